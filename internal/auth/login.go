package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/minichat/internal/common"
)

// MaxLoginAttempts is the number of failed attempts a Login allows.
const MaxLoginAttempts = 3

// Login tracks one bounded login. Each failed Attempt uses up an attempt,
// including one with an empty field, one hitting a storage error, and one
// whose session token could not be issued or saved. Once none
// remain, or after Cancel, every Attempt fails with a
// common.KindAuthenticationFailed error.
//
// A Login is not safe for concurrent use.
type Login struct {
	svc       *Service
	remaining int
	cancelled error
}

func (s *Service) NewLogin() *Login {
	return &Login{svc: s, remaining: MaxLoginAttempts}
}

func (l *Login) Remaining() int {
	return l.remaining
}

// Attempt checks one username/password pair.
func (l *Login) Attempt(ctx context.Context, username, password string) (*Result, error) {
	if l.cancelled != nil {
		return nil, l.cancelled
	}
	if l.remaining <= 0 {
		return nil, l.exhausted()
	}
	if err := ctx.Err(); err != nil {
		return nil, l.Cancel(ctx, err)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, l.fail(ctx, username, fmt.Errorf("username: %w", ErrEmptyField))
	}
	if password == "" {
		return nil, l.fail(ctx, username, fmt.Errorf("password: %w", ErrEmptyField))
	}

	u, err := l.svc.store.AuthenticateUser(ctx, username, password)
	if err != nil {
		l.svc.log.Error(ctx, "login error", "username", username, "error", err)
		return nil, l.fail(ctx, username, fmt.Errorf("login error: %w", err))
	}
	if u == nil {
		return nil, l.fail(ctx, username, ErrInvalidCredentials)
	}

	tok, err := l.svc.issuer.Issue(u.ID)
	if err != nil {
		l.svc.log.Error(ctx, "issue session token", "username", username, "error", err)
		return nil, l.fail(ctx, username, fmt.Errorf("issue session token: %w", err))
	}
	if err := l.svc.store.SaveSessionToken(ctx, tok); err != nil {
		l.svc.log.Error(ctx, "save session token", "username", username, "error", err)
		return nil, l.fail(ctx, username, fmt.Errorf("save session token: %w", err))
	}

	l.svc.log.Info(ctx, "user logged in", "username", u.Username, "role", string(u.Role))
	return &Result{User: u, Token: tok.Value}, nil
}

// Cancel ends the login. cause, if given, is kept as the underlying error.
func (l *Login) Cancel(ctx context.Context, cause error) error {
	if l.cancelled == nil {
		l.svc.log.Info(ctx, "login cancelled")
		if cause != nil && !isCancellation(ctx, cause) {
			l.svc.log.Warn(ctx, "credential prompt failed", "error", cause)
		}
		l.cancelled = common.NewError(common.KindAuthenticationFailed, causeCancelled, cause)
	}
	return l.cancelled
}

func (l *Login) fail(ctx context.Context, username string, err error) error {
	l.remaining--
	l.svc.log.Warn(ctx, "failed login attempt", "username", username, "remaining", l.remaining)
	return err
}

func (l *Login) exhausted() error {
	return common.NewError(common.KindAuthenticationFailed, causeMaxAttempts, nil)
}
