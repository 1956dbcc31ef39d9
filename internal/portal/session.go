// Package portal drives the meetings console session: login, opening the
// failed meetings report and logout.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinytelemetry/meetreport/internal/browser"
)

// ErrAuthentication is returned when the console does not leave the login
// form after credentials were submitted.
var ErrAuthentication = errors.New("portal: authentication failed")

// Config holds the console endpoints and credentials.
type Config struct {
	LoginURL       string
	ReportURL      string
	ProfileURL     string
	Email          string
	Password       string
	PostLoginDelay time.Duration
}

// Session performs the console navigation steps on one page.
type Session struct {
	page   browser.Page
	cfg    Config
	sel    Selectors
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSession binds a session to page. A nil logger uses slog.Default.
func NewSession(page browser.Page, cfg Config, sel Selectors, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		page:   page,
		cfg:    cfg,
		sel:    sel,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Login opens the login page, submits the credentials and waits for the
// console to settle.
func (s *Session) Login(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.cfg.LoginURL); err != nil {
		return err
	}
	if err := s.page.WaitIdle(ctx); err != nil {
		return err
	}
	s.logger.Info("opened login page")

	if err := s.page.Fill(ctx, s.sel.LoginEmail, s.cfg.Email); err != nil {
		return err
	}
	if err := s.page.Fill(ctx, s.sel.LoginPassword, s.cfg.Password); err != nil {
		return err
	}
	if err := s.page.Click(ctx, s.sel.LoginSubmit); err != nil {
		return err
	}

	if err := s.sleep(ctx, s.cfg.PostLoginDelay); err != nil {
		return err
	}
	if err := s.page.WaitIdle(ctx); err != nil {
		if errors.Is(err, browser.ErrNavigationTimeout) {
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		return err
	}

	stillOnForm, err := s.page.Visible(ctx, s.sel.LoginEmail)
	if err != nil {
		return err
	}
	if stillOnForm {
		return fmt.Errorf("%w: login form still shown after submit", ErrAuthentication)
	}
	s.logger.Info("logged in", "user", s.cfg.Email)
	return nil
}

// OpenReport navigates to the failed meetings report.
func (s *Session) OpenReport(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.cfg.ReportURL); err != nil {
		return err
	}
	if err := s.page.WaitIdle(ctx); err != nil {
		return err
	}
	s.logger.Info("navigated to failed meetings page")
	return nil
}

// Logout opens the profile page and presses the logout control.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.cfg.ProfileURL); err != nil {
		return err
	}
	if err := s.page.WaitIdle(ctx); err != nil {
		return err
	}
	if err := s.page.Click(ctx, s.sel.Logout); err != nil {
		return err
	}
	s.logger.Info("logged out")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
