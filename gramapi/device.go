package gramapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DeviceProfile describes the Android device a login pretends to be.
type DeviceProfile struct {
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	AndroidRelease string `json:"android_release"`
	AndroidVersion int    `json:"android_version"`
}

// devicePool is a fixed, ordered set of plausible device profiles. Retried
// logins cycle through the pool so repeated attempts do not present the same
// fingerprint twice in a row.
var devicePool = []DeviceProfile{
	{Manufacturer: "Samsung", Model: "SM-G973F", AndroidRelease: "10", AndroidVersion: 29},
	{Manufacturer: "Google", Model: "Pixel 4", AndroidRelease: "11", AndroidVersion: 30},
	{Manufacturer: "OnePlus", Model: "OnePlus8Pro", AndroidRelease: "11", AndroidVersion: 30},
}

// ProfileForAttempt returns the device profile for a given login attempt.
// Deterministic: attempt n always maps to pool index n mod pool size, which
// keeps retry behavior reproducible under test.
func ProfileForAttempt(n int) DeviceProfile {
	if n < 0 {
		n = 0
	}
	return devicePool[n%len(devicePool)]
}

// GenerateDeviceID derives an android device id from the account, its secret
// and the current time. The id is stable for the lifetime of one login
// attempt sequence; a fresh sequence gets a fresh id.
func GenerateDeviceID(username, secret string) string {
	seed := fmt.Sprintf("%s%s%d", username, secret, time.Now().Unix())
	sum := sha256.Sum256([]byte(seed))
	return "android-" + hex.EncodeToString(sum[:8])
}

func (d DeviceProfile) userAgent() string {
	return fmt.Sprintf("Instagram 269.0.0.18.75 Android (%d/%s; 420dpi; 1080x2042; %s; %s; qcom; en_US)",
		d.AndroidVersion, d.AndroidRelease, d.Manufacturer, d.Model)
}
