// Package browser owns one authenticated chromium session against the
// legacy clinic system. Everything that talks to the external site goes
// through a Session: login, navigation and teardown live here, element
// level grid work lives in lib/grid.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("clinicsync.lib.browser")

var (
	ErrStartupFailed = errors.New("browser startup failed")
	ErrLoginFailed   = errors.New("login to legacy system failed")
	ErrNavTimeout    = errors.New("navigation timed out")
)

// Driver is the minimal browser surface a session needs. The production
// implementation drives chromium through playwright, tests substitute a
// fake.
type Driver interface {
	// Goto navigates and waits for the page to settle, bounded by timeout.
	Goto(url string, timeout time.Duration) error
	// WaitVisible blocks until the selector is visible or the timeout expires.
	WaitVisible(selector string, timeout time.Duration) error
	Fill(selector, value string) error
	// TypeSlowly presses the value key by key, for input-masked fields
	// that reject bulk paste.
	TypeSlowly(selector, value string, keyDelay time.Duration) error
	Click(selector string, timeout time.Duration) error
	// Eval runs a javascript expression in the page and returns its result.
	Eval(script string) (any, error)
	// Content returns the full serialized HTML of the current page.
	Content() (string, error)
	Close() error
}

type Options struct {
	BaseURL  string
	LoginURL string
	Username string
	Password string
	Headless bool

	// Selectors for the login form and the post-login marker. Defaults
	// match the legacy WebForms layout.
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	LoggedInSelector string

	// NavTimeout bounds every navigation and readiness wait.
	NavTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.UsernameSelector == "" {
		o.UsernameSelector = "#txtUsuario"
	}
	if o.PasswordSelector == "" {
		o.PasswordSelector = "#txtSenha"
	}
	if o.SubmitSelector == "" {
		o.SubmitSelector = "#btnEntrar"
	}
	if o.LoggedInSelector == "" {
		o.LoggedInSelector = "#ctl00_lblUsuarioLogado"
	}
	if o.NavTimeout == 0 {
		o.NavTimeout = time.Second * 20
	}
}

// Session is exclusively owned by the sync operation that created it
// and must be Closed on every exit path.
type Session struct {
	opts     Options
	drv      Driver
	loggedIn bool
	closed   bool
}

const (
	startupAttempts = 3
	startupBackoff  = time.Second
)

// replaced in tests
var startDriver = launchPlaywright

// Open launches a browser session. Transient startup failures are
// retried up to 3 times with a fixed backoff before surfacing
// ErrStartupFailed.
func Open(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Open")
	defer span.End()

	opts.setDefaults()

	var lastErr error
	for attempt := 1; attempt <= startupAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drv, err := startDriver(opts)
		if err == nil {
			return &Session{opts: opts, drv: drv}, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "browser startup attempt failed",
			"attempt", attempt, "err", err)
		if attempt < startupAttempts {
			time.Sleep(startupBackoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrStartupFailed, lastErr)
}

// Login authenticates against the legacy system. It is idempotent, a
// second call on an authenticated session is a no-op.
func (s *Session) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if s.loggedIn {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.drv.Goto(s.opts.LoginURL, s.opts.NavTimeout)
	if err != nil {
		return fmt.Errorf("%w: open login page: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Fill(s.opts.UsernameSelector, s.opts.Username); err != nil {
		return fmt.Errorf("%w: fill username: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Fill(s.opts.PasswordSelector, s.opts.Password); err != nil {
		return fmt.Errorf("%w: fill password: %v", ErrLoginFailed, err)
	}
	if err := s.drv.Click(s.opts.SubmitSelector, s.opts.NavTimeout); err != nil {
		return fmt.Errorf("%w: submit: %v", ErrLoginFailed, err)
	}
	if err := s.WaitReady(s.opts.LoggedInSelector); err != nil {
		return fmt.Errorf("%w: no logged-in marker: %v", ErrLoginFailed, err)
	}

	s.loggedIn = true
	slog.DebugContext(ctx, "logged into legacy system", "user", s.opts.Username)
	return nil
}

func (s *Session) IsLoggedIn() bool {
	return s.loggedIn
}

// Navigate opens the url and waits for the page's readiness condition.
// On expiry it returns ErrNavTimeout instead of blocking indefinitely.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.drv.Goto(url, s.opts.NavTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavTimeout, err)
	}
	slog.DebugContext(ctx, "navigated", "url", url)
	return nil
}

// WaitReady blocks until the selector is visible, bounded by the
// session's navigation timeout.
func (s *Session) WaitReady(selector string) error {
	err := s.drv.WaitVisible(selector, s.opts.NavTimeout)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %v", ErrNavTimeout, selector, err)
	}
	return nil
}

// Driver exposes the underlying browser surface for grid work.
func (s *Session) Driver() Driver {
	return s.drv
}

func (s *Session) NavTimeout() time.Duration {
	return s.opts.NavTimeout
}

// Close tears down the browser process. It is always safe to call,
// including after a failure or a previous Close.
func (s *Session) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.loggedIn = false
	if err := s.drv.Close(); err != nil {
		slog.Warn("failed to close browser session", "err", err)
	}
}
