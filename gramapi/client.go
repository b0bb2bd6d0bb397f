package gramapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://i.instagram.com/api/v1"
	defaultWebURL  = "https://www.instagram.com"
)

// Client is an authenticated handle to the mobile API, bound to one Session.
// It is not safe for concurrent use on the same account; the auth manager
// serializes access per account.
type Client struct {
	// BaseURL overrides the mobile API endpoint (tests point it at httptest).
	BaseURL string
	// HTTPClient overrides the transport; nil uses a 90s-timeout default.
	HTTPClient *http.Client

	sess *Session
}

// NewClient returns a client bound to the given session. The session may be
// unauthenticated (no token yet); Login fills it in.
func NewClient(sess *Session) *Client {
	if sess == nil {
		sess = &Session{}
	}
	return &Client{sess: sess}
}

// Session exposes the bound session so the auth manager can persist it.
func (c *Client) Session() *Session { return c.sess }

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 90 * time.Second}
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.sess.Device.userAgent())
	if c.sess.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sess.AuthToken)
	}
	for k, v := range c.sess.Cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	return req, nil
}

// apiResponse is the envelope every mobile API endpoint shares.
type apiResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

func (r apiResponse) err() error {
	if r.Status == "ok" {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "request failed"
	}
	if r.ErrorType != "" {
		msg = msg + " (" + r.ErrorType + ")"
	}
	return fmt.Errorf("%s", msg)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// do executes the request and decodes the JSON body into out (may be nil).
// Remote failures come back as errors carrying the raw message text so the
// caller can log it before classification.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer closeBody(resp)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read api response: %w", err)
	}
	var env apiResponse
	_ = json.Unmarshal(body, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if envErr := env.err(); envErr != nil {
			return fmt.Errorf("api %s: %w", resp.Status, envErr)
		}
		return fmt.Errorf("api %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := env.err(); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode api response: %w", err)
		}
	}
	return nil
}

// Login performs a fresh credential login using the session's device
// identity. On success the bound session carries the new token and user id.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", password)
	form.Set("device_id", c.sess.DeviceID)
	form.Set("login_attempt_count", "0")
	req, err := c.newRequest(ctx, http.MethodPost, "/accounts/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer closeBody(resp)
	var body struct {
		apiResponse
		LoggedInUser struct {
			PK       int64  `json:"pk"`
			Username string `json:"username"`
		} `json:"logged_in_user"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}
	if err := json.Unmarshal(raw, &body); err != nil && resp.StatusCode >= 300 {
		return fmt.Errorf("login %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if err := body.err(); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if body.LoggedInUser.PK == 0 {
		return fmt.Errorf("login failed: no user in response")
	}
	c.sess.Username = body.LoggedInUser.Username
	c.sess.UserID = body.LoggedInUser.PK
	if tok := resp.Header.Get("Ig-Set-Authorization"); tok != "" {
		c.sess.AuthToken = strings.TrimPrefix(tok, "Bearer ")
	} else if c.sess.AuthToken == "" {
		// Older API surface: session is cookie based.
		c.sess.AuthToken = "cookie"
	}
	if c.sess.Cookies == nil {
		c.sess.Cookies = map[string]string{}
	}
	for _, ck := range resp.Cookies() {
		c.sess.Cookies[ck.Name] = ck.Value
	}
	c.sess.SavedAt = time.Now().UTC()
	return nil
}

// CurrentUser is the liveness check: one cheap authenticated call that
// succeeds iff the session is still valid.
func (c *Client) CurrentUser(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/accounts/current_user/", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Logout invalidates the session remotely. Best effort; callers clear local
// state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/accounts/logout/", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// MediaByID fetches media info by numeric id.
func (c *Client) MediaByID(ctx context.Context, id int64) (*MediaInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/media/"+strconv.FormatInt(id, 10)+"/info/", nil)
	if err != nil {
		return nil, err
	}
	var info MediaInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MediaByCode fetches media info by shortcode.
func (c *Client) MediaByCode(ctx context.Context, code string) (*MediaInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/media/shortcode/"+url.PathEscape(code)+"/info/", nil)
	if err != nil {
		return nil, err
	}
	var info MediaInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MediaByURL resolves a post URL through the oembed endpoint, a distinct code
// path that sometimes succeeds where the shortcode lookup fails.
func (c *Client) MediaByURL(ctx context.Context, postURL string) (*MediaInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/oembed/?url="+url.QueryEscape(postURL), nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		apiResponse
		MediaID string `json:"media_id"`
	}
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	idPart := body.MediaID
	if i := strings.IndexByte(idPart, '_'); i > 0 {
		idPart = idPart[:i]
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("oembed returned unparseable media id %q", body.MediaID)
	}
	return c.MediaByID(ctx, id)
}

// filePart is one file field of a multipart upload. Parts are written in
// slice order; carousel ordering is carried by the body layout, not just the
// field names.
type filePart struct {
	field string
	path  string
}

func (c *Client) uploadMultipart(ctx context.Context, path string, caption string, files []filePart, extra map[string]string) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var werr error
		defer func() { _ = pw.CloseWithError(werr) }()
		for _, fp := range files {
			f, err := os.Open(fp.path)
			if err != nil {
				werr = err
				return
			}
			part, err := mw.CreateFormFile(fp.field, filepath.Base(fp.path))
			if err == nil {
				_, err = io.Copy(part, f)
			}
			cerr := f.Close()
			if err != nil {
				werr = err
				return
			}
			if cerr != nil {
				werr = cerr
				return
			}
		}
		if err := mw.WriteField("caption", caption); err != nil {
			werr = err
			return
		}
		for k, v := range extra {
			if err := mw.WriteField(k, v); err != nil {
				werr = err
				return
			}
		}
		werr = mw.Close()
	}()

	req, err := c.newRequest(ctx, http.MethodPost, path, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res UploadResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadPhoto uploads a single photo with a caption.
func (c *Client) UploadPhoto(ctx context.Context, photoPath, caption string) (*UploadResult, error) {
	return c.uploadMultipart(ctx, "/media/upload/photo/", caption,
		[]filePart{{field: "photo", path: photoPath}},
		map[string]string{"upload_id": uploadID()})
}

// UploadVideo uploads a single video plus its cover thumbnail with a caption.
func (c *Client) UploadVideo(ctx context.Context, videoPath, thumbnailPath, caption string) (*UploadResult, error) {
	files := []filePart{{field: "video", path: videoPath}}
	if thumbnailPath != "" {
		files = append(files, filePart{field: "thumbnail", path: thumbnailPath})
	}
	return c.uploadMultipart(ctx, "/media/upload/video/", caption,
		files,
		map[string]string{"upload_id": uploadID()})
}

// UploadAlbum uploads an ordered multi-item set as one post. The caption is
// attached to the group as a whole, not to individual items.
func (c *Client) UploadAlbum(ctx context.Context, paths []string, caption string) (*UploadResult, error) {
	files := make([]filePart, 0, len(paths))
	for i, p := range paths {
		files = append(files, filePart{field: fmt.Sprintf("media_%d", i), path: p})
	}
	return c.uploadMultipart(ctx, "/media/upload/album/", caption,
		files,
		map[string]string{"upload_id": uploadID(), "children_count": strconv.Itoa(len(paths))})
}

func uploadID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
