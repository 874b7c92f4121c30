package renamer

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// statusCheckTimeout covers one moderation POST, which may carry thousands
// of URLs.
const statusCheckTimeout = 5 * time.Minute

// StatusItem names one gallery's image URLs for an online-status check.
type StatusItem struct {
	Path      string
	ImageURLs []string
}

// StatusResult is the per-gallery outcome of a status check.
type StatusResult struct {
	Online int
	Total  int
}

// StatusProgress reports per-gallery progress of a running check.
type StatusProgress struct {
	Path      string
	Done      int
	Total     int
	Online    int
	OutOf     int
	Cancelled bool
}

// CancelStatusCheck aborts the running status check at the next gallery
// boundary.
func (w *Worker) CancelStatusCheck() {
	w.statusCancel.Store(true)
}

// CheckOnlineStatus verifies which image URLs the host still serves. All
// URLs are deduplicated into a single moderation POST; the response body
// echoes the online ones. progress may be nil.
func (w *Worker) CheckOnlineStatus(ctx context.Context, items []StatusItem, progress func(StatusProgress)) (map[string]StatusResult, error) {
	w.statusCancel.Store(false)

	if err := w.ensureAuthenticated(ctx); err != nil {
		return nil, errors.Wrap(err, "unable to authenticate")
	}

	unique := dedupURLs(items)
	if len(unique) == 0 {
		return map[string]StatusResult{}, nil
	}

	body, err := w.moderationPost(ctx, unique)
	if errors.Is(err, errSessionRejected) {
		if rerr := w.reAuth(ctx); rerr != nil {
			return nil, errors.Wrap(rerr, "session rejected and re-auth unavailable")
		}

		body, err = w.moderationPost(ctx, unique)
	}

	if err != nil {
		return nil, err
	}

	results := make(map[string]StatusResult, len(items))

	for i, item := range items {
		if w.statusCancel.Load() {
			if progress != nil {
				progress(StatusProgress{Path: item.Path, Done: i, Total: len(items), Cancelled: true})
			}

			break
		}

		online := 0

		for _, u := range item.ImageURLs {
			if strings.Contains(body, u) {
				online++
			}
		}

		results[item.Path] = StatusResult{Online: online, Total: len(item.ImageURLs)}

		if progress != nil {
			progress(StatusProgress{
				Path:   item.Path,
				Done:   i + 1,
				Total:  len(items),
				Online: online,
				OutOf:  len(item.ImageURLs),
			})
		}
	}

	return results, nil
}

// moderationPost submits the newline-joined URL list and returns the
// response body, which echoes every URL still online.
func (w *Worker) moderationPost(ctx context.Context, urls []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()

	form := url.Values{"urls": {strings.Join(urls, "\n")}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint("/moderation/check"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "unable to build request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// the long deadline comes from ctx; the client default would cut the
	// request short.
	hc := &http.Client{Jar: w.hc.Jar}

	resp, err := hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "status check POST failed")
	}

	defer resp.Body.Close() //nolint:errcheck

	// the echo body scales with the URL count, so it is read in full.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "unable to read status check response")
	}

	body := string(raw)

	switch {
	case isChallenge(body):
		return "", ErrChallenge
	case resp.StatusCode == http.StatusForbidden, isLoginPage(resp, body):
		return "", errSessionRejected
	case resp.StatusCode != http.StatusOK:
		return "", errors.Errorf("status check returned status %v", resp.StatusCode)
	}

	return body, nil
}

// dedupURLs flattens all image URLs preserving first-seen order.
func dedupURLs(items []StatusItem) []string {
	seen := map[string]struct{}{}

	var out []string

	for _, item := range items {
		for _, u := range item.ImageURLs {
			if _, ok := seen[u]; ok {
				continue
			}

			seen[u] = struct{}{}

			out = append(out, u)
		}
	}

	return out
}
