// Package publish pushes materialized media sets back through the upload
// endpoints and reports a tri-state outcome: the remote service sometimes
// acknowledges an upload without returning the created media object, and that
// ambiguity must reach the user rather than be rounded to success.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/media"
	"github.com/mojtba-allam/my-insta-bot/resolve"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
)

// Uploader is the subset of the API client the publisher needs.
type Uploader interface {
	UploadPhoto(ctx context.Context, path, caption string) (*gramapi.UploadResult, error)
	UploadVideo(ctx context.Context, videoPath, thumbnailPath, caption string) (*gramapi.UploadResult, error)
	UploadAlbum(ctx context.Context, paths []string, caption string) (*gramapi.UploadResult, error)
}

// Status is the publish outcome class.
type Status int

const (
	StatusFailed Status = iota
	StatusConfirmed
	StatusUnconfirmed
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusUnconfirmed:
		return "unconfirmed"
	default:
		return "failed"
	}
}

// Result reports what happened to a publish attempt. MediaID is set only on
// confirmed success.
type Result struct {
	Status  Status
	MediaID string
}

const (
	publishAttempts = 3
	publishDelay    = 3 * time.Second
)

// Publisher uploads media sets with bounded retries on transient failures.
type Publisher struct {
	// Sleep is the inter-attempt delay hook, swappable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPublisher builds a Publisher with the default delay behavior.
func NewPublisher() *Publisher {
	return &Publisher{Sleep: func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}}
}

// Publish uploads set with caption through up. Local validation problems and
// errors needing user action fail immediately; transient failures are
// retried up to the attempt budget. Rate limiting is never retried: backing
// off does not help within a single request and repeating the call makes the
// penalty worse.
func (p *Publisher) Publish(ctx context.Context, up Uploader, set *media.LocalSet, caption string) (*Result, error) {
	if err := validateSet(set); err != nil {
		telemetry.IncUpload(false)
		return &Result{Status: StatusFailed}, err
	}
	defer telemetry.ObserveSince(telemetry.UploadDuration, time.Now())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("shortcode", set.Shortcode))

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		res, err := p.uploadOnce(ctx, up, set, caption)
		if err == nil {
			return p.interpret(res, logger)
		}
		lastErr = err
		logger.Error("publish attempt failed",
			slog.Int("attempt", attempt+1), slog.Int("max", publishAttempts), slog.Any("err", err))
		switch gramapi.Classify(err) {
		case gramapi.KindNetwork, gramapi.KindUnknown:
			// transient, retry
		default:
			telemetry.IncUpload(false)
			return &Result{Status: StatusFailed}, err
		}
		if attempt < publishAttempts-1 {
			if err := p.Sleep(ctx, publishDelay); err != nil {
				return &Result{Status: StatusFailed}, err
			}
		}
	}
	telemetry.IncUpload(false)
	return &Result{Status: StatusFailed}, fmt.Errorf("publish failed after %d attempts: %w", publishAttempts, lastErr)
}

// validateSet checks every file exists before any network work.
func validateSet(set *media.LocalSet) error {
	if set == nil || len(set.Files) == 0 {
		return fmt.Errorf("nothing to publish")
	}
	for _, f := range set.Files {
		if _, err := os.Stat(f.Path); err != nil {
			return fmt.Errorf("media file missing: %s: %w", f.Path, err)
		}
	}
	return nil
}

func (p *Publisher) uploadOnce(ctx context.Context, up Uploader, set *media.LocalSet, caption string) (*gramapi.UploadResult, error) {
	switch set.Kind {
	case resolve.KindCarousel:
		paths := make([]string, 0, len(set.Files))
		for _, f := range set.Files {
			path := f.Path
			if f.Kind == resolve.KindPhoto {
				path = NormalizeImage(path)
			}
			paths = append(paths, path)
		}
		return up.UploadAlbum(ctx, paths, caption)
	case resolve.KindVideo:
		thumb, err := p.thumbnail(set)
		if err != nil {
			return nil, err
		}
		return up.UploadVideo(ctx, set.Files[0].Path, thumb, caption)
	default:
		return up.UploadPhoto(ctx, NormalizeImage(set.Files[0].Path), caption)
	}
}

// thumbnail returns a thumbnail path for the video, writing the black
// fallback when none was downloaded alongside it.
func (p *Publisher) thumbnail(set *media.LocalSet) (string, error) {
	thumb := filepath.Join(set.Dir, "thumbnail.jpg")
	if _, err := os.Stat(thumb); err == nil {
		return thumb, nil
	}
	if err := FallbackThumbnail(thumb); err != nil {
		return "", err
	}
	return thumb, nil
}

// interpret maps the upload acknowledgement to the tri-state result.
func (p *Publisher) interpret(res *gramapi.UploadResult, logger *slog.Logger) (*Result, error) {
	if res == nil || res.Status != "ok" {
		msg := "upload rejected"
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		telemetry.IncUpload(false)
		return &Result{Status: StatusFailed}, fmt.Errorf("%s", msg)
	}
	if res.Media == nil || res.Media.ID == "" {
		logger.Warn("upload acknowledged without media object")
		telemetry.IncUpload(true)
		return &Result{Status: StatusUnconfirmed}, nil
	}
	logger.Info("publish confirmed", slog.String("media_id", res.Media.ID))
	telemetry.IncUpload(true)
	return &Result{Status: StatusConfirmed, MediaID: res.Media.ID}, nil
}
