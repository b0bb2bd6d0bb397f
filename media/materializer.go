// Package media downloads resolved post assets into a scratch directory so
// the publisher works from local files. Downloads are all-or-nothing: a
// partial media set is worse than a clean failure.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mojtba-allam/my-insta-bot/blobstore"
	"github.com/mojtba-allam/my-insta-bot/resolve"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

// ErrNoMediaFound reports a resolved post with nothing to download.
var ErrNoMediaFound = errors.New("post has no downloadable media")

const downloadTimeout = 5 * time.Minute

// LocalSet is a fully materialized post: every asset on local disk, in post
// order, plus the source metadata the publisher needs.
type LocalSet struct {
	Dir       string
	Files     []LocalFile
	Kind      resolve.MediaKind
	Caption   string
	Owner     string
	Shortcode string
	SourceURL string
}

// LocalFile is one downloaded asset.
type LocalFile struct {
	Path string
	Kind resolve.MediaKind
}

// Cleanup removes the scratch directory and everything in it.
func (s *LocalSet) Cleanup() {
	if s == nil || s.Dir == "" {
		return
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		slog.Warn("scratch cleanup failed", slog.String("dir", s.Dir), slog.Any("err", err))
	}
}

// Materializer downloads media sets. Mirror, when set, receives a best-effort
// async copy of every downloaded asset.
type Materializer struct {
	HTTPClient  *http.Client
	Mirror      blobstore.Store
	ScratchRoot string
}

// NewMaterializer builds a Materializer writing under root.
func NewMaterializer(root string, mirror blobstore.Store) *Materializer {
	return &Materializer{ScratchRoot: root, Mirror: mirror}
}

func (m *Materializer) http() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return &http.Client{Timeout: downloadTimeout}
}

// Fetch downloads every asset of rm into a fresh scratch directory. Any
// single failure removes the directory and fails the whole set. sourceURL is
// carried through for caption attribution.
func (m *Materializer) Fetch(ctx context.Context, rm *resolve.ResolvedMedia, sourceURL string) (*LocalSet, error) {
	if rm == nil || len(rm.Items) == 0 {
		return nil, ErrNoMediaFound
	}
	defer telemetry.ObserveSince(telemetry.DownloadDuration, time.Now())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("shortcode", rm.Shortcode))

	dir := filepath.Join(m.ScratchRoot, fmt.Sprintf("repost_%s_%s", rm.Shortcode, uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	set := &LocalSet{
		Dir:       dir,
		Kind:      rm.Kind,
		Caption:   rm.Caption,
		Owner:     rm.Owner,
		Shortcode: rm.Shortcode,
		SourceURL: sourceURL,
	}
	for i, item := range rm.Items {
		path := filepath.Join(dir, fileName(rm.Kind, item.Kind, i))
		logger.Info("downloading asset",
			slog.Int("index", i), slog.Int("total", len(rm.Items)), slog.String("file", filepath.Base(path)))
		if err := m.download(ctx, item.URL, path); err != nil {
			set.Cleanup()
			telemetry.IncDownload(false)
			return nil, fmt.Errorf("download item %d of %d: %w", i+1, len(rm.Items), err)
		}
		set.Files = append(set.Files, LocalFile{Path: path, Kind: item.Kind})
	}
	telemetry.IncDownload(true)
	m.mirror(set, logger)
	return set, nil
}

// fileName keeps carousel assets ordered and self-describing.
func fileName(setKind, itemKind resolve.MediaKind, idx int) string {
	ext, label := "jpg", "image"
	if itemKind == resolve.KindVideo {
		ext, label = "mp4", "video"
	}
	if setKind == resolve.KindCarousel {
		return fmt.Sprintf("carousel_%s_%d.%s", label, idx, ext)
	}
	return label + "." + ext
}

func (m *Materializer) download(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("asset fetch returned status %d", resp.StatusCode)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write asset: %w", err)
	}
	return f.Close()
}

type mirrorBlob struct {
	key  string
	data []byte
}

// mirror copies the downloaded set to the mirror store in the background.
// File contents are snapshotted before the goroutine starts: the caller may
// remove the scratch directory the moment Fetch returns. Mirroring never
// affects the repost outcome; failures are logged only.
func (m *Materializer) mirror(set *LocalSet, logger *slog.Logger) {
	if m.Mirror == nil {
		return
	}
	blobs := make([]mirrorBlob, 0, len(set.Files))
	for _, f := range set.Files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			logger.Warn("mirror read failed", slog.String("file", f.Path), slog.Any("err", err))
			continue
		}
		blobs = append(blobs, mirrorBlob{
			key:  "media/" + set.Shortcode + "/" + filepath.Base(f.Path),
			data: data,
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()
		for _, b := range blobs {
			if err := m.Mirror.Put(ctx, b.key, b.data); err != nil {
				logger.Warn("mirror upload failed", slog.String("key", b.key), slog.Any("err", err))
			}
		}
	}()
}
