// Package renamer owns the authenticated web session against the primary
// host: it renames freshly created galleries and runs batched online-status
// checks. The API uploads images; only the web form can set a gallery name.
package renamer

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/internal/fanout"
	"github.com/imxup/imxup/logging"
	"github.com/imxup/imxup/secrets"
	"github.com/imxup/imxup/store"
)

var log = logging.Module("renamer")

const (
	// reAuthMinInterval spaces out full re-logins triggered by 403s.
	reAuthMinInterval = 5 * time.Second

	defaultRequestTimeout = 30 * time.Second
)

// Options configures the worker.
type Options struct {
	// BaseURL is the host's web root.
	BaseURL  string
	Username string
	Password string

	// FirefoxProfileDir overrides browser cookie discovery.
	FirefoxProfileDir string

	RequestTimeout time.Duration
}

// RenameDone reports the outcome of one rename.
type RenameDone struct {
	GalleryID string
	Name      string
	Err       string
}

// Events exposes the worker's notifications.
type Events struct {
	RenameDone *fanout.Bus[RenameDone]
}

type renameRequest struct {
	galleryID string
	name      string
}

// Worker is the single-threaded rename worker. Renames are processed in
// enqueue order on the worker's own goroutine.
type Worker struct {
	opt     Options
	store   *store.Store
	secrets secrets.Store
	hc      *http.Client
	base    *url.URL
	events  *Events

	mu      sync.Mutex
	cond    *sync.Cond
	pending []renameRequest
	closed  bool
	done    chan struct{}

	authMu        sync.Mutex
	authenticated bool
	lastReauth    time.Time

	statusCancel atomic.Bool
}

// NewWorker builds a rename worker with its own cookie-jar session.
func NewWorker(opt Options, s *store.Store, sec secrets.Store) (*Worker, error) {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = defaultRequestTimeout
	}

	base, err := url.Parse(opt.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "unable to create cookie jar")
	}

	w := &Worker{
		opt:     opt,
		store:   s,
		secrets: sec,
		base:    base,
		hc:      &http.Client{Jar: jar, Timeout: opt.RequestTimeout},
		events:  &Events{RenameDone: fanout.NewBus[RenameDone]()},
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	return w, nil
}

// Events exposes the worker's notifications.
func (w *Worker) Events() *Events { return w.events }

// EnqueueRename schedules a rename. The request is persisted first so a
// crash or auth failure parks it for the next startup.
func (w *Worker) EnqueueRename(ctx context.Context, galleryID, name string) {
	if err := w.store.PutUnnamedGallery(ctx, galleryID, name); err != nil {
		log(ctx).Warnf("unable to persist rename request for %v: %v", galleryID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.pending = append(w.pending, renameRequest{galleryID: galleryID, name: name})
	w.cond.Signal()
}

// Run drains parked renames from previous sessions and then processes the
// queue until Close.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.drainParked(ctx)

	for {
		w.mu.Lock()

		for len(w.pending) == 0 && !w.closed {
			w.cond.Wait()
		}

		if len(w.pending) == 0 && w.closed {
			w.mu.Unlock()
			return
		}

		req := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()

		w.process(ctx, req)
	}
}

// Close stops the worker after the current rename finishes.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Signal()
	w.mu.Unlock()

	<-w.done
	w.events.RenameDone.Close()
}

// drainParked re-enqueues renames that never succeeded in prior sessions.
func (w *Worker) drainParked(ctx context.Context) {
	parked, err := w.store.AllUnnamedGalleries(ctx)
	if err != nil {
		log(ctx).Warnf("unable to load parked renames: %v", err)
		return
	}

	if len(parked) == 0 {
		return
	}

	log(ctx).Infof("retrying %v parked renames", len(parked))

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range parked {
		w.pending = append(w.pending, renameRequest{galleryID: p.GalleryID, name: p.DesiredName})
	}

	w.cond.Signal()
}

func (w *Worker) process(ctx context.Context, req renameRequest) {
	err := w.rename(ctx, req.galleryID, req.name)

	outcome := RenameDone{GalleryID: req.galleryID, Name: req.name}

	if err != nil {
		outcome.Err = err.Error()

		log(ctx).Warnf("rename of %v to %q failed, parked for next start: %v", req.galleryID, req.name, err)
	} else {
		if derr := w.store.DeleteUnnamedGallery(ctx, req.galleryID); derr != nil {
			log(ctx).Warnf("unable to clear parked rename for %v: %v", req.galleryID, derr)
		}

		log(ctx).Infof("renamed gallery %v to %q", req.galleryID, req.name)
	}

	w.events.RenameDone.Publish(outcome)
}

// rename performs the authenticated edit-page GET followed by the form POST.
// A 403 or a login redirect triggers one rate-limited re-auth and a single
// retry.
func (w *Worker) rename(ctx context.Context, galleryID, name string) error {
	name = SanitizeName(name)

	if err := w.ensureAuthenticated(ctx); err != nil {
		return errors.Wrap(err, "unable to authenticate")
	}

	err := w.renameOnce(ctx, galleryID, name)
	if !needsReauth(err) {
		return err
	}

	if rerr := w.reAuth(ctx); rerr != nil {
		return errors.Wrap(rerr, "session rejected and re-auth unavailable")
	}

	return w.renameOnce(ctx, galleryID, name)
}

// errSessionRejected marks a 403 or login redirect on the edit page.
var errSessionRejected = errors.New("session rejected")

func needsReauth(err error) bool {
	return errors.Is(err, errSessionRejected)
}

func (w *Worker) renameOnce(ctx context.Context, galleryID, name string) error {
	editURL := w.endpoint("/user/gallery/edit") + "?id=" + url.QueryEscape(galleryID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, editURL, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "unable to build request")
	}

	resp, err := w.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "edit page fetch failed")
	}

	body := readBodyPrefix(resp)

	switch {
	case isChallenge(body):
		return ErrChallenge
	case resp.StatusCode == http.StatusForbidden, isLoginPage(resp, body):
		return errSessionRejected
	case resp.StatusCode != http.StatusOK:
		return errors.Errorf("edit page returned status %v", resp.StatusCode)
	}

	form := url.Values{
		"gallery_name":       {name},
		"submit_new_gallery": {"Submit"},
	}

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, editURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "unable to build request")
	}

	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	presp, err := w.hc.Do(post)
	if err != nil {
		return errors.Wrap(err, "rename POST failed")
	}

	pbody := readBodyPrefix(presp)

	switch {
	case presp.StatusCode == http.StatusForbidden, isLoginPage(presp, pbody):
		return errSessionRejected
	case presp.StatusCode != http.StatusOK:
		return errors.Errorf("rename POST returned status %v", presp.StatusCode)
	}

	return nil
}

// reAuth performs a full login, at most once per reAuthMinInterval across
// the whole worker.
func (w *Worker) reAuth(ctx context.Context) error {
	w.authMu.Lock()

	if clock.Since(w.lastReauth) < reAuthMinInterval {
		w.authMu.Unlock()
		return errors.New("re-auth attempted too recently")
	}

	w.lastReauth = clock.Now()
	w.authenticated = false
	w.authMu.Unlock()

	log(ctx).Infof("session rejected, performing full re-login")

	return w.formLogin(ctx)
}

func (w *Worker) isAuthenticated() bool {
	w.authMu.Lock()
	defer w.authMu.Unlock()

	return w.authenticated
}

func (w *Worker) setAuthenticated(v bool) {
	w.authMu.Lock()
	defer w.authMu.Unlock()

	w.authenticated = v
}

func (w *Worker) endpoint(path string) string {
	u := *w.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String()
}

// SanitizeName strips control characters and collapses whitespace so the
// form POST cannot be rejected for formatting.
func SanitizeName(name string) string {
	var b strings.Builder

	lastSpace := false

	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}

			lastSpace = true
		default:
			b.WriteRune(r)

			lastSpace = false
		}
	}

	out := b.String()
	if out == "" {
		return "Untitled"
	}

	return out
}
