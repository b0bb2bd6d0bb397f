// Package resolve turns user-supplied post URLs into a normalized media
// description. The remote API is unreliable for this lookup, so the resolver
// runs an ordered list of strategies and returns the first success; the final
// error reflects the most actionable failure seen across all of them.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

// ErrInvalidReference reports a URL that does not name a post.
var ErrInvalidReference = errors.New("not a recognizable post link")

// shortcodeRe matches the post path shapes /p/<code>, /reel/<code>, /tv/<code>.
// The host is deliberately not pinned: mirrors and regional domains serve the
// same paths.
var shortcodeRe = regexp.MustCompile(`/(?:p|reel|tv)/([A-Za-z0-9_-]+)`)

// ExtractShortcode pulls the post shortcode out of a URL.
func ExtractShortcode(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, rawURL)
	}
	m := shortcodeRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, rawURL)
	}
	return m[1], nil
}

// MediaKind distinguishes the payload shapes a post can carry.
type MediaKind int

const (
	KindPhoto MediaKind = iota + 1
	KindVideo
	KindCarousel
)

// Item is a single downloadable asset.
type Item struct {
	Kind MediaKind
	URL  string
}

// ResolvedMedia is the strategy-independent description of a post.
type ResolvedMedia struct {
	Shortcode string
	Kind      MediaKind
	Items     []Item
	Owner     string
	Caption   string
}

// Client is the subset of the API client the lookup strategies need.
type Client interface {
	MediaByCode(ctx context.Context, code string) (*gramapi.MediaInfo, error)
	MediaByURL(ctx context.Context, rawURL string) (*gramapi.MediaInfo, error)
	MediaByID(ctx context.Context, id int64) (*gramapi.MediaInfo, error)
}

// Strategy is one way of turning a shortcode into media info.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, code string) (*gramapi.MediaInfo, error)
}

// Resolver runs strategies in order until one yields media.
type Resolver struct {
	strategies []Strategy
}

// New builds a Resolver with the standard strategy order: authenticated
// shortcode lookup, URL lookup, numeric-id lookup, then the unauthenticated
// web page scrape as a last resort.
func New(client Client, scraper *Scraper) *Resolver {
	return &Resolver{strategies: []Strategy{
		codeLookup{client},
		urlLookup{client},
		idLookup{client},
		scraper,
	}}
}

// NewWithStrategies builds a Resolver with an explicit strategy list.
func NewWithStrategies(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve validates the URL shape, then walks the strategies. Per-strategy
// failures are logged and swallowed; only full exhaustion surfaces an error,
// classified by the most actionable failure kind observed.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*ResolvedMedia, error) {
	code, err := ExtractShortcode(rawURL)
	if err != nil {
		return nil, err
	}
	defer telemetry.ObserveSince(telemetry.ResolveDuration, time.Now())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("shortcode", code))

	kinds := map[gramapi.Kind]bool{}
	for _, s := range r.strategies {
		info, err := s.Resolve(ctx, code)
		if err != nil {
			k := gramapi.Classify(err)
			kinds[k] = true
			logger.Warn("resolution strategy failed",
				slog.String("strategy", s.Name()),
				slog.String("kind", k.String()),
				slog.Any("err", err))
			continue
		}
		if info == nil || len(info.Items) == 0 {
			logger.Warn("resolution strategy returned no items", slog.String("strategy", s.Name()))
			continue
		}
		resolved, err := normalize(code, &info.Items[0])
		if err != nil {
			logger.Warn("resolution strategy returned unusable media",
				slog.String("strategy", s.Name()), slog.Any("err", err))
			continue
		}
		logger.Info("post resolved",
			slog.String("strategy", s.Name()),
			slog.Int("items", len(resolved.Items)))
		telemetry.IncResolve(true)
		return resolved, nil
	}
	telemetry.IncResolve(false)
	return nil, exhausted(code, kinds)
}

// exhausted picks the error to surface after every strategy failed, in
// decreasing order of user actionability.
func exhausted(code string, kinds map[gramapi.Kind]bool) error {
	switch {
	case kinds[gramapi.KindAuthRequired]:
		return gramapi.NewError(gramapi.KindAuthRequired, "login required to view this post")
	case kinds[gramapi.KindRateLimited]:
		return gramapi.NewError(gramapi.KindRateLimited, "rate limited while resolving post "+code)
	case kinds[gramapi.KindNotFound]:
		return gramapi.NewError(gramapi.KindNotFound, "post "+code+" not found or not accessible")
	default:
		return fmt.Errorf("could not resolve post %s with any strategy", code)
	}
}

// normalize flattens an API media item into a ResolvedMedia. Carousels keep
// their child order.
func normalize(code string, item *gramapi.MediaItem) (*ResolvedMedia, error) {
	out := &ResolvedMedia{
		Shortcode: code,
		Owner:     item.User.Username,
		Caption:   item.Caption.Text,
	}
	switch {
	case item.IsCarousel():
		out.Kind = KindCarousel
		for i := range item.CarouselMedia {
			child, err := itemAsset(&item.CarouselMedia[i])
			if err != nil {
				return nil, fmt.Errorf("carousel child %d: %w", i, err)
			}
			out.Items = append(out.Items, child)
		}
		if len(out.Items) == 0 {
			return nil, errors.New("carousel has no children")
		}
	default:
		asset, err := itemAsset(item)
		if err != nil {
			return nil, err
		}
		out.Kind = asset.Kind
		out.Items = []Item{asset}
	}
	return out, nil
}

func itemAsset(item *gramapi.MediaItem) (Item, error) {
	if item.IsVideo() {
		u := item.BestVideoURL()
		if u == "" {
			return Item{}, errors.New("video item has no playable version")
		}
		return Item{Kind: KindVideo, URL: u}, nil
	}
	u := item.BestImageURL()
	if u == "" {
		return Item{}, errors.New("image item has no candidate version")
	}
	return Item{Kind: KindPhoto, URL: u}, nil
}

// codeLookup asks the API for the post by shortcode directly.
type codeLookup struct{ client Client }

func (s codeLookup) Name() string { return "shortcode" }
func (s codeLookup) Resolve(ctx context.Context, code string) (*gramapi.MediaInfo, error) {
	return s.client.MediaByCode(ctx, code)
}

// urlLookup asks the oembed endpoint with a canonical post URL.
type urlLookup struct{ client Client }

func (s urlLookup) Name() string { return "url" }
func (s urlLookup) Resolve(ctx context.Context, code string) (*gramapi.MediaInfo, error) {
	return s.client.MediaByURL(ctx, "https://www.instagram.com/p/"+code+"/")
}

// idLookup converts the shortcode to its numeric media id and looks that up.
type idLookup struct{ client Client }

func (s idLookup) Name() string { return "media-id" }
func (s idLookup) Resolve(ctx context.Context, code string) (*gramapi.MediaInfo, error) {
	id, err := gramapi.ShortcodeToID(code)
	if err != nil {
		return nil, err
	}
	return s.client.MediaByID(ctx, id)
}
