package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mojtba-allam/my-insta-bot/gramapi"
)

// browserUA makes the scrape request look like a desktop browser; the shared
// data blob is only embedded for browser user agents.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const scrapeBodyLimit = 8 << 20

// Scraper resolves a post from its public web page, without authentication.
// It parses the window._sharedData JSON blob embedded in the HTML. Private
// posts and logged-out walls make this fail, which is fine for a last-resort
// strategy.
type Scraper struct {
	// BaseURL defaults to the public web host.
	BaseURL    string
	HTTPClient *http.Client
}

// NewScraper builds a Scraper with default endpoint and timeout.
func NewScraper() *Scraper {
	return &Scraper{}
}

func (s *Scraper) Name() string { return "web-scrape" }

func (s *Scraper) base() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return "https://www.instagram.com"
}

func (s *Scraper) http() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Resolve fetches the post page and reconstructs media info from the embedded
// graphql payload.
func (s *Scraper) Resolve(ctx context.Context, code string) (*gramapi.MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base()+"/p/"+code+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html")
	resp, err := s.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch post page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post page returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, scrapeBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read post page: %w", err)
	}
	node, err := sharedMediaNode(string(body))
	if err != nil {
		return nil, err
	}
	return node.mediaInfo(code)
}

// sharedMediaNode cuts the _sharedData JSON out of the page HTML and digs to
// the shortcode_media node.
func sharedMediaNode(html string) (*scrapedNode, error) {
	_, after, found := strings.Cut(html, "window._sharedData = ")
	if !found {
		// Some page variants use the bare assignment.
		_, after, found = strings.Cut(html, "_sharedData = ")
	}
	if !found {
		return nil, fmt.Errorf("page has no shared data blob")
	}
	blob, _, found := strings.Cut(after, ";</script>")
	if !found {
		return nil, fmt.Errorf("shared data blob is not terminated")
	}
	var shared struct {
		EntryData struct {
			PostPage []struct {
				Graphql struct {
					ShortcodeMedia *scrapedNode `json:"shortcode_media"`
				} `json:"graphql"`
			} `json:"PostPage"`
		} `json:"entry_data"`
	}
	if err := json.Unmarshal([]byte(blob), &shared); err != nil {
		return nil, fmt.Errorf("decode shared data: %w", err)
	}
	if len(shared.EntryData.PostPage) == 0 || shared.EntryData.PostPage[0].Graphql.ShortcodeMedia == nil {
		return nil, fmt.Errorf("shared data has no post entry")
	}
	return shared.EntryData.PostPage[0].Graphql.ShortcodeMedia, nil
}

// scrapedNode is the graphql media node shape of the public page.
type scrapedNode struct {
	Typename   string `json:"__typename"`
	ID         string `json:"id"`
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
	Owner      struct {
		Username string `json:"username"`
	} `json:"owner"`
	CaptionEdges struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	SidecarEdges struct {
		Edges []struct {
			Node scrapedNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

// mediaInfo rebuilds the API media shape from the scraped node so the
// normalizer downstream does not care where the data came from.
func (n *scrapedNode) mediaInfo(code string) (*gramapi.MediaInfo, error) {
	item := gramapi.MediaItem{ID: n.ID, Code: code}
	item.User.Username = n.Owner.Username
	if len(n.CaptionEdges.Edges) > 0 {
		item.Caption.Text = n.CaptionEdges.Edges[0].Node.Text
	}
	switch n.Typename {
	case "GraphSidecar":
		item.MediaType = gramapi.MediaTypeCarousel
		for i := range n.SidecarEdges.Edges {
			child, err := n.SidecarEdges.Edges[i].Node.asset(code)
			if err != nil {
				return nil, fmt.Errorf("sidecar child %d: %w", i, err)
			}
			item.CarouselMedia = append(item.CarouselMedia, child)
		}
		if len(item.CarouselMedia) == 0 {
			return nil, fmt.Errorf("sidecar post has no children")
		}
	default:
		child, err := n.asset(code)
		if err != nil {
			return nil, err
		}
		item.MediaType = child.MediaType
		item.ImageVersions = child.ImageVersions
		item.VideoVersions = child.VideoVersions
	}
	return &gramapi.MediaInfo{Items: []gramapi.MediaItem{item}}, nil
}

func (n *scrapedNode) asset(code string) (gramapi.MediaItem, error) {
	item := gramapi.MediaItem{ID: n.ID, Code: code}
	switch n.Typename {
	case "GraphVideo":
		if n.VideoURL == "" {
			return item, fmt.Errorf("video node has no video_url")
		}
		item.MediaType = gramapi.MediaTypeVideo
		item.VideoVersions = []gramapi.MediaURL{{URL: n.VideoURL}}
	case "GraphImage", "":
		if n.DisplayURL == "" {
			return item, fmt.Errorf("image node has no display_url")
		}
		item.MediaType = gramapi.MediaTypePhoto
		item.ImageVersions.Candidates = []gramapi.MediaURL{{URL: n.DisplayURL}}
	default:
		return item, fmt.Errorf("unsupported node type %q", n.Typename)
	}
	return item, nil
}
