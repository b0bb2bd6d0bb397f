package gramapi

import "fmt"

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var shortcodeIndex = func() map[rune]int64 {
	m := make(map[rune]int64, len(shortcodeAlphabet))
	for i, r := range shortcodeAlphabet {
		m[r] = int64(i)
	}
	return m
}()

// ShortcodeToID reconstructs the numeric media id encoded in a shortcode.
// Shortcodes are the media primary key written in a base-64 alphabet; some
// lookup endpoints only accept the numeric form.
func ShortcodeToID(code string) (int64, error) {
	if code == "" {
		return 0, fmt.Errorf("empty shortcode")
	}
	var id int64
	for _, r := range code {
		idx, ok := shortcodeIndex[r]
		if !ok {
			return 0, fmt.Errorf("invalid shortcode character %q", r)
		}
		id = id*64 + idx
	}
	return id, nil
}
