// Package invideo automates the InVideo AI editor: signing in, submitting a
// prompt, resolving the settings surface and requesting the rendered video.
package invideo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shorts-pipeline/browser"
	"shorts-pipeline/config"
	"shorts-pipeline/failure"
)

// TokenStore is the persisted session token
type TokenStore interface {
	Load() (string, bool)
	Save(token string) error
	Invalidate() error
}

// Credentials for the Google account behind the editor login
type Credentials struct {
	Username string
	Password string
}

// AuthState is a node of the sign-in state machine
type AuthState int

const (
	StateNoSession AuthState = iota
	StateTokenRestoreAttempted
	StateTokenInvalid
	StateInteractiveLoginAttempted
	StateAuthenticated
	StateLoginFailed
)

func (s AuthState) String() string {
	switch s {
	case StateNoSession:
		return "NoSession"
	case StateTokenRestoreAttempted:
		return "TokenRestoreAttempted"
	case StateTokenInvalid:
		return "TokenInvalid"
	case StateInteractiveLoginAttempted:
		return "InteractiveLoginAttempted"
	case StateAuthenticated:
		return "Authenticated"
	case StateLoginFailed:
		return "LoginFailed"
	}
	return fmt.Sprintf("AuthState(%d)", int(s))
}

// AuthOutcome describes how a session became authenticated
type AuthOutcome struct {
	Method       string // "token" or "interactive"
	WorkspaceURL string
	States       []AuthState
}

// Authenticator restores a stored session or signs in interactively
type Authenticator struct {
	cfg       config.InVideoConfig
	creds     Credentials
	store     TokenStore
	workspace *regexp.Regexp
	log       zerolog.Logger
}

// NewAuthenticator compiles the workspace pattern up front
func NewAuthenticator(cfg config.InVideoConfig, creds Credentials, store TokenStore, log zerolog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		cfg:   cfg,
		creds: creds,
		store: store,
		log:   log.With().Str("component", "auth").Logger(),
	}
	if cfg.CompatibilitySurface {
		re, err := regexp.Compile(cfg.WorkspacePattern)
		if err != nil {
			return nil, fmt.Errorf("workspace pattern: %w", err)
		}
		a.workspace = re
	}
	return a, nil
}

func (a *Authenticator) enter(out *AuthOutcome, s AuthState) {
	out.States = append(out.States, s)
	a.log.Debug().Stringer("state", s).Msg("auth state")
}

// Authenticate leaves page signed in and, when configured, on the
// compatibility surface.
func (a *Authenticator) Authenticate(ctx context.Context, page browser.Page) (*AuthOutcome, error) {
	out := &AuthOutcome{}
	a.enter(out, StateNoSession)

	if token, ok := a.store.Load(); ok {
		a.enter(out, StateTokenRestoreAttempted)
		err := a.restore(ctx, page, token)
		if err == nil {
			a.enter(out, StateAuthenticated)
			out.Method = "token"
			a.log.Info().Msg("✅ session restored from stored token")
			return out, a.finish(ctx, page, out)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		a.enter(out, StateTokenInvalid)
		a.log.Warn().Err(err).Msg("stored token rejected, falling back to interactive login")
		if ierr := a.store.Invalidate(); ierr != nil {
			a.log.Warn().Err(ierr).Msg("could not delete stored token")
		}
		_ = a.bounded(ctx, a.cfg.Timeouts.Interaction, func(ctx context.Context) error {
			return page.RemoveLocalStorage(ctx, a.cfg.TokenStorageKey)
		})
	} else {
		a.log.Info().Msg("no stored session token")
	}

	a.enter(out, StateInteractiveLoginAttempted)
	if err := a.login(ctx, page); err != nil {
		a.enter(out, StateLoginFailed)
		return out, err
	}
	a.enter(out, StateAuthenticated)
	out.Method = "interactive"
	a.log.Info().Msg("✅ interactive login complete")
	return out, a.finish(ctx, page, out)
}

// restore injects token and proves the session by waiting for the
// authenticated indicator. Injection alone proves nothing: the site ignores
// stale tokens silently.
func (a *Authenticator) restore(ctx context.Context, page browser.Page, token string) error {
	err := a.bounded(ctx, a.cfg.Timeouts.Interaction, func(ctx context.Context) error {
		if err := page.Navigate(ctx, a.cfg.AppURL); err != nil {
			return err
		}
		if err := page.SetLocalStorage(ctx, a.cfg.TokenStorageKey, token); err != nil {
			return err
		}
		return page.Navigate(ctx, a.cfg.AppURL)
	})
	if err != nil {
		return failure.TokenInvalid(fmt.Errorf("inject token: %w", err))
	}
	err = a.bounded(ctx, a.cfg.Timeouts.TokenVerify, func(ctx context.Context) error {
		return page.WaitVisible(ctx, a.cfg.Selectors.AuthIndicator)
	})
	if err != nil {
		return failure.TokenInvalid(fmt.Errorf("authenticated indicator never appeared: %w", err))
	}
	return nil
}

func (a *Authenticator) login(ctx context.Context, page browser.Page) error {
	if a.creds.Username == "" || a.creds.Password == "" {
		return failure.LoginFailed("credentials", "", errors.New("editor credentials are not configured"))
	}
	t := a.cfg.Timeouts
	sel := a.cfg.Selectors
	fail := func(step string, on browser.Page, err error) error {
		a.log.Error().Err(err).Str("step", step).Msg("login step failed")
		return failure.LoginFailed(step, browser.LastLocation(on), err)
	}

	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		return page.Navigate(ctx, a.cfg.LoginURL)
	}); err != nil {
		return fail("open-login", page, err)
	}

	var idp browser.Page
	if err := a.bounded(ctx, t.LoginButton, func(ctx context.Context) error {
		if err := page.WaitClickable(ctx, sel.GoogleButton); err != nil {
			return err
		}
		var err error
		idp, err = page.ClickAndFollowPopup(ctx, sel.GoogleButton, t.PopupWait)
		return err
	}); err != nil {
		return fail("sso-button", page, err)
	}
	if idp != page {
		a.log.Info().Msg("switched to sign-in window")
		defer idp.Close()
	}

	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		_, err := browser.WaitURL(ctx, idp, func(u string) bool {
			return strings.Contains(u, a.cfg.IdentityProviderHost)
		})
		return err
	}); err != nil {
		return fail("identity-provider", idp, err)
	}

	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		if err := idp.Type(ctx, sel.EmailInput, a.creds.Username); err != nil {
			return err
		}
		if err := idp.WaitClickable(ctx, sel.EmailNext); err != nil {
			return err
		}
		return idp.Click(ctx, sel.EmailNext)
	}); err != nil {
		return fail("username", idp, err)
	}

	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		if err := idp.Type(ctx, sel.PasswordInput, a.creds.Password); err != nil {
			return err
		}
		if err := idp.WaitClickable(ctx, sel.PasswordNext); err != nil {
			return err
		}
		return idp.Click(ctx, sel.PasswordNext)
	}); err != nil {
		return fail("password", idp, err)
	}

	// MFA is optional. When shown, approval happens out of band and the
	// redirect wait gets the long approval bound.
	redirectWait := t.LoginRedirect
	mfa := a.bounded(ctx, t.MFADetect, func(ctx context.Context) error {
		return idp.WaitVisible(ctx, sel.MFAHeading)
	}) == nil
	if mfa {
		if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
			if err := idp.WaitClickable(ctx, sel.MFADeviceOption); err != nil {
				return err
			}
			return idp.Click(ctx, sel.MFADeviceOption)
		}); err != nil {
			return fail("mfa-method", idp, err)
		}
		a.log.Warn().Dur("timeout", t.MFAApproval).Msg("⚠️  approve the sign-in on your phone")
		redirectWait = t.MFAApproval
	}

	if err := a.bounded(ctx, redirectWait, func(ctx context.Context) error {
		_, err := browser.WaitURLPrefix(ctx, page, a.cfg.SuccessURLPrefix)
		return err
	}); err != nil {
		step := "redirect"
		if mfa {
			step = "mfa-approval"
		}
		return fail(step, page, err)
	}

	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		if err := browser.WaitReady(ctx, page); err != nil {
			return err
		}
		return page.WaitVisible(ctx, sel.AuthIndicator)
	}); err != nil {
		return fail("auth-indicator", page, err)
	}

	var token string
	if err := a.bounded(ctx, t.Interaction, func(ctx context.Context) error {
		var err error
		token, err = page.LocalStorage(ctx, a.cfg.TokenStorageKey)
		return err
	}); err != nil {
		return fail("capture-token", page, err)
	}
	if token == "" {
		a.log.Warn().Str("key", a.cfg.TokenStorageKey).Msg("no session token in local storage; next run will sign in again")
		return nil
	}
	if err := a.store.Save(token); err != nil {
		a.log.Warn().Err(err).Msg("could not persist session token")
	}
	return nil
}

// finish moves to the compatibility surface when it is enabled
func (a *Authenticator) finish(ctx context.Context, page browser.Page, out *AuthOutcome) error {
	if !a.cfg.CompatibilitySurface {
		out.WorkspaceURL = browser.LastLocation(page)
		return nil
	}
	fail := func(err error) error {
		a.enter(out, StateLoginFailed)
		return failure.LoginFailed("compatibility-surface", browser.LastLocation(page), err)
	}

	var current string
	if err := a.bounded(ctx, a.cfg.Timeouts.Interaction, func(ctx context.Context) error {
		var err error
		current, err = browser.WaitURL(ctx, page, a.workspace.MatchString)
		return err
	}); err != nil {
		return fail(fmt.Errorf("no workspace URL to derive from: %w", err))
	}
	target, err := CompatibilityURL(current, a.workspace, a.cfg.CompatibilityURLTemplate)
	if err != nil {
		return fail(err)
	}
	a.log.Info().Str("url", target).Msg("switching to compatibility surface")
	if err := a.bounded(ctx, a.cfg.Timeouts.Interaction, func(ctx context.Context) error {
		if err := page.Navigate(ctx, target); err != nil {
			return err
		}
		return page.WaitVisible(ctx, a.cfg.Selectors.CompatibilityIndicator)
	}); err != nil {
		return fail(err)
	}
	out.WorkspaceURL = target
	return nil
}

func (a *Authenticator) bounded(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// CompatibilityURL extracts the workspace id from an authenticated URL and
// substitutes it into template.
func CompatibilityURL(authURL string, workspace *regexp.Regexp, template string) (string, error) {
	if workspace == nil {
		return "", errors.New("no workspace pattern configured")
	}
	m := workspace.FindStringSubmatch(authURL)
	if len(m) < 2 || m[1] == "" {
		return "", fmt.Errorf("no workspace id in %q", authURL)
	}
	return fmt.Sprintf(template, m[1]), nil
}
