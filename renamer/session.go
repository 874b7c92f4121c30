package renamer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imxup/imxup/internal/clock"
)

// cookieMaxAge bounds how long cached session cookies are trusted.
const cookieMaxAge = 48 * time.Hour

// cookieSecretKey is the secret-store entry holding the serialized session.
const cookieSecretKey = "imx-session"

// ErrChallenge indicates the host served a DDoS interstitial instead of a
// page; the session is unusable until the user solves it in a browser.
var ErrChallenge = errors.New("host presented a challenge page")

type storedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

type cookieEnvelope struct {
	SavedAt time.Time      `json:"saved_at"`
	Cookies []storedCookie `json:"cookies"`
}

// ensureAuthenticated walks the auth ladder: cached cookies, browser
// cookies, then a form login. Callers hold no locks.
func (w *Worker) ensureAuthenticated(ctx context.Context) error {
	if w.isAuthenticated() {
		return nil
	}

	if err := w.tryCachedCookies(ctx); err == nil {
		return nil
	} else if errors.Is(err, ErrChallenge) {
		return err
	}

	if err := w.tryBrowserCookies(ctx); err == nil {
		return nil
	} else if errors.Is(err, ErrChallenge) {
		return err
	}

	return w.formLogin(ctx)
}

// tryCachedCookies restores the session from the secret store. Entries older
// than cookieMaxAge are purged.
func (w *Worker) tryCachedCookies(ctx context.Context) error {
	raw, err := w.secrets.Get(cookieSecretKey)
	if err != nil {
		return errors.Wrap(err, "no cached session")
	}

	var env cookieEnvelope

	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		w.secrets.Delete(cookieSecretKey) //nolint:errcheck
		return errors.Wrap(err, "corrupted cached session")
	}

	if clock.Since(env.SavedAt) > cookieMaxAge {
		log(ctx).Debugf("cached session expired, purging")
		w.secrets.Delete(cookieSecretKey) //nolint:errcheck

		return errors.New("cached session expired")
	}

	w.installCookies(env.Cookies)

	if err := w.validateSession(ctx); err != nil {
		return err
	}

	log(ctx).Debugf("restored session from secret store")
	w.setAuthenticated(true)

	return nil
}

// tryBrowserCookies imports the host's cookies from the user's Firefox
// profile and validates them. Chromium-family browsers encrypt cookie values
// with an OS-bound key and are not supported.
func (w *Worker) tryBrowserCookies(ctx context.Context) error {
	dbPath, err := w.findFirefoxCookieDB()
	if err != nil {
		return err
	}

	cookies, err := readFirefoxCookies(dbPath, w.base.Hostname())
	if err != nil {
		return err
	}

	if len(cookies) == 0 {
		return errors.New("no browser cookies for host")
	}

	w.installCookies(cookies)

	if err := w.validateSession(ctx); err != nil {
		return err
	}

	log(ctx).Infof("imported %v browser cookies", len(cookies))
	w.setAuthenticated(true)
	w.persistCookies(ctx)

	return nil
}

// formLogin performs a credentialed POST and persists the resulting session.
func (w *Worker) formLogin(ctx context.Context) error {
	if w.opt.Username == "" {
		return errors.New("no stored credentials")
	}

	form := url.Values{
		"username": {w.opt.Username},
		"password": {w.opt.Password},
		"login":    {"Login"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint("/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "unable to build login request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "login request failed")
	}

	body := readBodyPrefix(resp)

	if isChallenge(body) {
		return ErrChallenge
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("login rejected with status %v", resp.StatusCode)
	}

	if err := w.validateSession(ctx); err != nil {
		return errors.Wrap(err, "login did not produce a valid session")
	}

	log(ctx).Infof("logged in as %v", w.opt.Username)
	w.setAuthenticated(true)
	w.persistCookies(ctx)

	return nil
}

// validateSession performs a cheap authenticated GET.
func (w *Worker) validateSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint("/user/home"), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "unable to build request")
	}

	resp, err := w.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "session check failed")
	}

	body := readBodyPrefix(resp)

	if isChallenge(body) {
		return ErrChallenge
	}

	if resp.StatusCode != http.StatusOK || isLoginPage(resp, body) {
		return errors.New("session is not authenticated")
	}

	return nil
}

func (w *Worker) installCookies(cookies []storedCookie) {
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	w.hc.Jar.SetCookies(w.base, httpCookies)
}

// persistCookies saves the current session to the secret store.
func (w *Worker) persistCookies(ctx context.Context) {
	jarCookies := w.hc.Jar.Cookies(w.base)

	env := cookieEnvelope{SavedAt: clock.Now()}
	for _, c := range jarCookies {
		env.Cookies = append(env.Cookies, storedCookie{
			Name: c.Name, Value: c.Value, Domain: w.base.Hostname(), Path: "/",
		})
	}

	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	if err := w.secrets.Set(cookieSecretKey, string(data)); err != nil {
		log(ctx).Warnf("unable to persist session cookies: %v", err)
	}
}

// findFirefoxCookieDB locates cookies.sqlite in the default profile.
func (w *Worker) findFirefoxCookieDB() (string, error) {
	if w.opt.FirefoxProfileDir != "" {
		return filepath.Join(w.opt.FirefoxProfileDir, "cookies.sqlite"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "no home directory")
	}

	matches, _ := filepath.Glob(filepath.Join(home, ".mozilla", "firefox", "*.default*", "cookies.sqlite"))
	if len(matches) == 0 {
		return "", errors.New("no Firefox profile found")
	}

	return matches[0], nil
}

// readFirefoxCookies extracts the host's cookies from a Firefox cookie
// database. The file is opened immutable so a running browser is not
// disturbed.
func readFirefoxCookies(dbPath, host string) ([]storedCookie, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, errors.Wrap(err, "cookie database not accessible")
	}

	dsn := "file:" + dbPath + "?mode=ro&immutable=1"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to open cookie database")
	}

	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close() //nolint:errcheck
	}

	var rows []struct {
		Name  string
		Value string
		Host  string
		Path  string
	}

	err = db.Raw(
		"SELECT name, value, host, path FROM moz_cookies WHERE host = ? OR host = ?",
		host, "."+host,
	).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "unable to query cookies")
	}

	out := make([]storedCookie, 0, len(rows))
	for _, r := range rows {
		out = append(out, storedCookie{Name: r.Name, Value: r.Value, Domain: host, Path: r.Path})
	}

	return out, nil
}

// isLoginPage detects a redirect to the login form.
func isLoginPage(resp *http.Response, body string) bool {
	if strings.Contains(resp.Request.URL.Path, "/login") {
		return true
	}

	return strings.Contains(body, `name="password"`)
}

func isChallenge(body string) bool {
	return strings.Contains(body, "DDoS-Guard") || strings.Contains(body, "Checking your browser")
}

// readBodyPrefix drains and closes the response body, keeping a prefix large
// enough for page-type detection.
func readBodyPrefix(resp *http.Response) string {
	defer resp.Body.Close() //nolint:errcheck

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	return string(data)
}
