package imx

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/logging"
)

var log = logging.Module("imx")

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReadTimeout    = 90 * time.Second

	maxErrorBodyLength = 512
)

// Options configures the HTTP client.
type Options struct {
	// BaseURL is the host's API root, e.g. "https://imx.example".
	BaseURL string
	APIKey  string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

type httpClient struct {
	opt  Options
	hc   *http.Client
	base *url.URL
}

// NewHTTPClient builds the production Client. Connect and read timeouts
// default to 30 s and 90 s.
func NewHTTPClient(opt Options) (Client, error) {
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = defaultConnectTimeout
	}

	if opt.ReadTimeout <= 0 {
		opt.ReadTimeout = defaultReadTimeout
	}

	base, err := url.Parse(opt.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	return &httpClient{
		opt:  opt,
		base: base,
		hc: &http.Client{
			Timeout: opt.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: opt.ConnectTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   opt.ConnectTimeout,
				ResponseHeaderTimeout: opt.ReadTimeout,
				MaxIdleConnsPerHost:   8,
			},
		},
	}, nil
}

type createGalleryResponse struct {
	GalleryID  string `json:"gallery_id"`
	GalleryURL string `json:"gallery_url"`
	Error      string `json:"error,omitempty"`
}

func (c *httpClient) CreateGallery(ctx context.Context, name string, cfg GalleryConfig) (*GalleryInfo, error) {
	form := url.Values{
		"name":             {name},
		"thumbnail_size":   {strconv.Itoa(cfg.ThumbnailSize)},
		"thumbnail_format": {cfg.ThumbnailFormat},
		"avg_width":        {strconv.Itoa(cfg.AvgWidth)},
		"avg_height":       {strconv.Itoa(cfg.AvgHeight)},
		"public":           {strconv.FormatBool(cfg.Public)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/gallery/create"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	var resp createGalleryResponse

	if err := c.doJSON(req, &resp); err != nil {
		return nil, errors.Wrap(err, "gallery creation failed")
	}

	if resp.GalleryID == "" {
		return nil, errors.Errorf("host rejected gallery creation: %v", resp.Error)
	}

	log(ctx).Debugf("created gallery %v (%v)", resp.GalleryID, name)

	return &GalleryInfo{GalleryID: resp.GalleryID, GalleryURL: resp.GalleryURL}, nil
}

type uploadImageResponse struct {
	ImageURL string `json:"image_url"`
	ThumbURL string `json:"thumb_url"`
	Error    string `json:"error,omitempty"`
}

func (c *httpClient) UploadImage(ctx context.Context, galleryID string, img ImageFile, opts UploadOptions, progress ProgressFunc) (*UploadResult, error) {
	f, err := os.Open(img.Path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open image")
	}
	defer f.Close() //nolint:errcheck

	// the multipart body is produced on a pipe so the file streams
	// through without being buffered in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadBody(mw, galleryID, img, opts, f, progress)) //nolint:errcheck
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload"), pr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	var resp uploadImageResponse

	if err := c.doJSON(req, &resp); err != nil {
		return nil, errors.Wrapf(err, "upload of %v failed", img.Name)
	}

	if resp.ImageURL == "" {
		return nil, errors.Errorf("host rejected %v: %v", img.Name, resp.Error)
	}

	return &UploadResult{URL: resp.ImageURL, ThumbURL: resp.ThumbURL}, nil
}

func writeUploadBody(mw *multipart.Writer, galleryID string, img ImageFile, opts UploadOptions, f *os.File, progress ProgressFunc) error {
	fields := map[string]string{
		"gallery_id":       galleryID,
		"thumbnail_size":   strconv.Itoa(opts.ThumbnailSize),
		"thumbnail_format": opts.ThumbnailFormat,
	}

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return errors.Wrap(err, "unable to write form field")
		}
	}

	part, err := mw.CreateFormFile("image", img.Name)
	if err != nil {
		return errors.Wrap(err, "unable to create form file")
	}

	src := io.Reader(f)
	if progress != nil {
		src = &progressReader{r: f, fn: progress}
	}

	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrap(err, "unable to stream image data")
	}

	return errors.Wrap(mw.Close(), "unable to finish multipart body")
}

// progressReader reports byte deltas as the wrapped reader is consumed.
type progressReader struct {
	r  io.Reader
	fn ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.fn(int64(n))
	}

	return n, err //nolint:wrapcheck
}

func (c *httpClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))

		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "malformed response")
}

func (c *httpClient) authorize(req *http.Request) {
	if c.opt.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opt.APIKey)
	}
}

func (c *httpClient) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String()
}
