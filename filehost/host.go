// Package filehost uploads gallery archives to secondary file hosts, one
// worker per enabled host.
package filehost

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/logging"
)

var log = logging.Module("filehost")

// UnlimitedQuota marks a host that does not report storage limits.
const UnlimitedQuota = int64(-1)

// ProgressFunc receives cumulative uploaded bytes and the archive size.
type ProgressFunc func(uploaded, total int64)

// Host is one file-host destination. Each worker owns one Host instance and
// its session; implementations need not be goroutine-safe.
type Host interface {
	Name() string
	Authenticate(ctx context.Context) error
	UploadArchive(ctx context.Context, archivePath string, progress ProgressFunc) (downloadURL string, err error)

	// Quota returns total and remaining bytes, or UnlimitedQuota for both.
	Quota(ctx context.Context) (total, left int64, err error)
}

// FormHostOptions configures the generic multipart-form host client.
type FormHostOptions struct {
	Name     string
	BaseURL  string
	Username string
	Password string

	// UploadTimeout bounds one archive POST.
	UploadTimeout time.Duration
}

// formHost talks to hosts exposing a login form, a multipart upload endpoint
// and a quota endpoint. Covers the common filehoster API shape.
type formHost struct {
	opt  FormHostOptions
	base *url.URL
	hc   *http.Client
}

const defaultUploadTimeout = 30 * time.Minute

// NewFormHost builds a Host speaking multipart form uploads.
func NewFormHost(opt FormHostOptions) (Host, error) {
	if opt.UploadTimeout <= 0 {
		opt.UploadTimeout = defaultUploadTimeout
	}

	base, err := url.Parse(opt.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	return &formHost{
		opt:  opt,
		base: base,
		hc:   &http.Client{Timeout: opt.UploadTimeout},
	}, nil
}

func (h *formHost) Name() string { return h.opt.Name }

type authResponse struct {
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}

func (h *formHost) Authenticate(ctx context.Context) error {
	form := url.Values{
		"username": {h.opt.Username},
		"password": {h.opt.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/api/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "unable to build login request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp authResponse

	if err := h.doJSON(req, &resp); err != nil {
		return errors.Wrapf(err, "login to %v failed", h.opt.Name)
	}

	if resp.Token == "" {
		return errors.Errorf("login to %v rejected: %v", h.opt.Name, resp.Error)
	}

	h.hc.Transport = &tokenTransport{token: resp.Token, next: http.DefaultTransport}

	return nil
}

type uploadResponse struct {
	DownloadURL string `json:"download_url"`
	Error       string `json:"error,omitempty"`
}

func (h *formHost) UploadArchive(ctx context.Context, archivePath string, progress ProgressFunc) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", errors.Wrap(err, "unable to open archive")
	}
	defer f.Close() //nolint:errcheck

	fi, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "unable to stat archive")
	}

	total := fi.Size()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeArchiveBody(mw, filepath.Base(archivePath), f, total, progress)) //nolint:errcheck
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/api/upload"), pr)
	if err != nil {
		return "", errors.Wrap(err, "unable to build upload request")
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse

	if err := h.doJSON(req, &resp); err != nil {
		return "", errors.Wrapf(err, "archive upload to %v failed", h.opt.Name)
	}

	if resp.DownloadURL == "" {
		return "", errors.Errorf("%v rejected the archive: %v", h.opt.Name, resp.Error)
	}

	return resp.DownloadURL, nil
}

func writeArchiveBody(mw *multipart.Writer, name string, f *os.File, total int64, progress ProgressFunc) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return errors.Wrap(err, "unable to create form file")
	}

	src := io.Reader(f)
	if progress != nil {
		src = &countingReader{r: f, total: total, fn: progress}
	}

	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrap(err, "unable to stream archive")
	}

	return errors.Wrap(mw.Close(), "unable to finish multipart body")
}

type countingReader struct {
	r        io.Reader
	total    int64
	uploaded int64
	fn       ProgressFunc
}

func (c *countingReader) Read(buf []byte) (int, error) {
	n, err := c.r.Read(buf)
	if n > 0 {
		c.uploaded += int64(n)
		c.fn(c.uploaded, c.total)
	}

	return n, err //nolint:wrapcheck
}

type quotaResponse struct {
	Unlimited bool  `json:"unlimited"`
	Total     int64 `json:"total"`
	Left      int64 `json:"left"`
}

func (h *formHost) Quota(ctx context.Context) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint("/api/quota"), http.NoBody)
	if err != nil {
		return 0, 0, errors.Wrap(err, "unable to build quota request")
	}

	var resp quotaResponse

	if err := h.doJSON(req, &resp); err != nil {
		return 0, 0, errors.Wrapf(err, "quota query to %v failed", h.opt.Name)
	}

	if resp.Unlimited {
		return UnlimitedQuota, UnlimitedQuota, nil
	}

	return resp.Total, resp.Left, nil
}

func (h *formHost) doJSON(req *http.Request, out interface{}) error {
	resp, err := h.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %v", resp.StatusCode)
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "malformed response")
}

func (h *formHost) endpoint(path string) string {
	u := *h.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String()
}

type tokenTransport struct {
	token string
	next  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.next.RoundTrip(req) //nolint:wrapcheck
}
