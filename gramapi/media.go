package gramapi

// Media type codes as reported by the remote API.
const (
	MediaTypePhoto    = 1
	MediaTypeVideo    = 2
	MediaTypeCarousel = 8
)

// MediaInfo is the envelope returned by the media lookup endpoints.
type MediaInfo struct {
	Items []MediaItem `json:"items"`
}

// MediaItem mirrors the subset of the API media representation the pipeline
// needs. Carousel children appear in CarouselMedia in source order.
type MediaItem struct {
	ID            string      `json:"id"`
	Code          string      `json:"code"`
	MediaType     int         `json:"media_type"`
	ImageVersions ImageSet    `json:"image_versions2"`
	VideoVersions []MediaURL  `json:"video_versions"`
	CarouselMedia []MediaItem `json:"carousel_media"`
	Caption       Caption     `json:"caption"`
	User          MediaUser   `json:"user"`
}

// ImageSet holds download candidates ordered best-first.
type ImageSet struct {
	Candidates []MediaURL `json:"candidates"`
}

// MediaURL is a single downloadable rendition.
type MediaURL struct {
	URL string `json:"url"`
}

// Caption wraps the caption text.
type Caption struct {
	Text string `json:"text"`
}

// MediaUser identifies the owner of a post.
type MediaUser struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// BestImageURL returns the first image candidate, or "".
func (m *MediaItem) BestImageURL() string {
	if len(m.ImageVersions.Candidates) > 0 {
		return m.ImageVersions.Candidates[0].URL
	}
	return ""
}

// BestVideoURL returns the first video rendition, or "".
func (m *MediaItem) BestVideoURL() string {
	if len(m.VideoVersions) > 0 {
		return m.VideoVersions[0].URL
	}
	return ""
}

// IsVideo reports whether the item should be treated as a video.
func (m *MediaItem) IsVideo() bool {
	return m.MediaType == MediaTypeVideo || len(m.VideoVersions) > 0
}

// IsCarousel reports whether the item is a multi-item post.
func (m *MediaItem) IsCarousel() bool {
	return m.MediaType == MediaTypeCarousel || len(m.CarouselMedia) > 0
}

// UploadedMedia is the media object embedded in a successful upload ack.
type UploadedMedia struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// UploadResult is the acknowledgement returned by the upload endpoints.
// Status "ok" with a nil Media is possible and is surfaced to callers as an
// unconfirmed success rather than collapsed into a boolean.
type UploadResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Media   *UploadedMedia `json:"media"`
}
