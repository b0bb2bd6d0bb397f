package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mojtba-allam/my-insta-bot/gramapi"
	"github.com/mojtba-allam/my-insta-bot/media"
	"github.com/mojtba-allam/my-insta-bot/resolve"
	"github.com/mojtba-allam/my-insta-bot/telemetry"
	"github.com/mojtba-allam/my-insta-bot/testutil"
)

// fakeUploader scripts upload responses per attempt.
type fakeUploader struct {
	results []*gramapi.UploadResult
	errs    []error
	calls   int

	gotAlbumPaths []string
	gotThumbnail  string
	gotCaption    string
}

func (f *fakeUploader) next() (*gramapi.UploadResult, error) {
	i := f.calls
	f.calls++
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	return f.results[i], f.errs[i]
}

func (f *fakeUploader) UploadPhoto(ctx context.Context, path, caption string) (*gramapi.UploadResult, error) {
	f.gotCaption = caption
	return f.next()
}

func (f *fakeUploader) UploadVideo(ctx context.Context, videoPath, thumbnailPath, caption string) (*gramapi.UploadResult, error) {
	f.gotThumbnail = thumbnailPath
	f.gotCaption = caption
	return f.next()
}

func (f *fakeUploader) UploadAlbum(ctx context.Context, paths []string, caption string) (*gramapi.UploadResult, error) {
	f.gotAlbumPaths = paths
	f.gotCaption = caption
	return f.next()
}

func testPublisher() *Publisher {
	p := NewPublisher()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func photoSet(t *testing.T) *media.LocalSet {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "image.jpg")
	if err := os.WriteFile(path, []byte("not decodable, uploaded as-is"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &media.LocalSet{
		Dir:       dir,
		Files:     []media.LocalFile{{Path: path, Kind: resolve.KindPhoto}},
		Kind:      resolve.KindPhoto,
		Shortcode: "abc",
	}
}

func confirmedAck(id string) *gramapi.UploadResult {
	return &gramapi.UploadResult{Status: "ok", Media: &gramapi.UploadedMedia{ID: id}}
}

func TestPublishConfirmed(t *testing.T) {
	up := &fakeUploader{results: []*gramapi.UploadResult{confirmedAck("777")}, errs: []error{nil}}
	res, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap")
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if res.Status != StatusConfirmed || res.MediaID != "777" {
		t.Errorf("result = %+v, want confirmed 777", res)
	}
	if up.gotCaption != "cap" {
		t.Errorf("caption = %q", up.gotCaption)
	}
}

func TestPublishUnconfirmedAck(t *testing.T) {
	up := &fakeUploader{
		results: []*gramapi.UploadResult{{Status: "ok"}},
		errs:    []error{nil},
	}
	res, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap")
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if res.Status != StatusUnconfirmed {
		t.Errorf("status = %v, want unconfirmed", res.Status)
	}
	if res.MediaID != "" {
		t.Errorf("unconfirmed result carries media id %q", res.MediaID)
	}
}

func TestPublishRetriesTransientThenSucceeds(t *testing.T) {
	up := &fakeUploader{
		results: []*gramapi.UploadResult{nil, confirmedAck("5")},
		errs:    []error{errors.New("connection reset by peer"), nil},
	}
	res, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap")
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if up.calls != 2 {
		t.Errorf("uploader called %d times, want 2", up.calls)
	}
	if res.Status != StatusConfirmed {
		t.Errorf("status = %v, want confirmed", res.Status)
	}
}

func TestPublishExhaustsAttemptBudget(t *testing.T) {
	up := &fakeUploader{
		results: []*gramapi.UploadResult{nil},
		errs:    []error{errors.New("connection reset by peer")},
	}
	res, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap")
	if err == nil {
		t.Fatal("expected error")
	}
	if up.calls != publishAttempts {
		t.Errorf("uploader called %d times, want %d", up.calls, publishAttempts)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}
}

func TestPublishNeverRetriesRateLimit(t *testing.T) {
	up := &fakeUploader{
		results: []*gramapi.UploadResult{nil},
		errs:    []error{gramapi.NewError(gramapi.KindRateLimited, "slow down")},
	}
	_, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap")
	if err == nil {
		t.Fatal("expected error")
	}
	if up.calls != 1 {
		t.Errorf("uploader called %d times, want 1", up.calls)
	}
	if gramapi.Classify(err) != gramapi.KindRateLimited {
		t.Errorf("Classify = %v, want KindRateLimited", gramapi.Classify(err))
	}
}

func TestPublishMissingFileFailsWithoutUpload(t *testing.T) {
	set := photoSet(t)
	set.Files[0].Path = filepath.Join(set.Dir, "gone.jpg")
	up := &fakeUploader{results: []*gramapi.UploadResult{nil}, errs: []error{nil}}
	_, err := testPublisher().Publish(context.Background(), up, set, "cap")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if up.calls != 0 {
		t.Errorf("uploader called %d times, want 0", up.calls)
	}
}

func TestPublishVideoGetsFallbackThumbnail(t *testing.T) {
	dir := t.TempDir()
	vid := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(vid, []byte("vid"), 0o644); err != nil {
		t.Fatal(err)
	}
	set := &media.LocalSet{
		Dir:       dir,
		Files:     []media.LocalFile{{Path: vid, Kind: resolve.KindVideo}},
		Kind:      resolve.KindVideo,
		Shortcode: "vid",
	}
	up := &fakeUploader{results: []*gramapi.UploadResult{confirmedAck("9")}, errs: []error{nil}}
	if _, err := testPublisher().Publish(context.Background(), up, set, "cap"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if up.gotThumbnail == "" {
		t.Fatal("no thumbnail passed to upload")
	}
	if _, err := os.Stat(up.gotThumbnail); err != nil {
		t.Errorf("thumbnail file missing: %v", err)
	}
}

func TestPublishAlbumPassesAllPaths(t *testing.T) {
	dir := t.TempDir()
	var files []media.LocalFile
	for _, name := range []string{"carousel_image_0.jpg", "carousel_image_1.jpg"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, media.LocalFile{Path: p, Kind: resolve.KindPhoto})
	}
	set := &media.LocalSet{Dir: dir, Files: files, Kind: resolve.KindCarousel, Shortcode: "car"}
	up := &fakeUploader{results: []*gramapi.UploadResult{confirmedAck("1")}, errs: []error{nil}}
	if _, err := testPublisher().Publish(context.Background(), up, set, "cap"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(up.gotAlbumPaths) != 2 {
		t.Errorf("album got %d paths, want 2", len(up.gotAlbumPaths))
	}
}

func TestPublishRecordsDuration(t *testing.T) {
	obs := &testutil.CountingObserver{}
	prev := telemetry.UploadDuration
	telemetry.UploadDuration = obs
	t.Cleanup(func() { telemetry.UploadDuration = prev })

	up := &fakeUploader{results: []*gramapi.UploadResult{confirmedAck("1")}, errs: []error{nil}}
	if _, err := testPublisher().Publish(context.Background(), up, photoSet(t), "cap"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if got := obs.Count(); got != 1 {
		t.Errorf("upload duration observed %d times, want 1", got)
	}
}
