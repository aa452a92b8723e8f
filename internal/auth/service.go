package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/models"
)

// TokenIssuer mints session tokens. *session.Issuer satisfies it.
type TokenIssuer interface {
	Issue(userID int64) (*models.SessionToken, error)
}

type Service struct {
	store  backend.Backend
	issuer TokenIssuer
	log    logging.Logger
}

func NewService(store backend.Backend, issuer TokenIssuer, log logging.Logger) *Service {
	return &Service{store: store, issuer: issuer, log: logging.OrNop(log)}
}

// Result is a successful authentication. Token is the bearer value to hand
// back later; Reused is set when an existing token was accepted instead of
// a new login.
type Result struct {
	User   *models.User
	Token  string
	Reused bool
}

// CredentialSource collects credentials for Service.Login.
type CredentialSource interface {
	// Credentials returns the next username and password. Returning
	// ErrPromptCancelled aborts the login.
	Credentials(ctx context.Context) (username, password string, err error)

	// AttemptFailed reports a rejected attempt and how many remain.
	AttemptFailed(ctx context.Context, err error, remaining int)
}

// Login runs the bounded interactive login.
func (s *Service) Login(ctx context.Context, src CredentialSource) (*Result, error) {
	l := s.NewLogin()

	for l.Remaining() > 0 {
		username, password, err := src.Credentials(ctx)
		if err != nil {
			return nil, l.Cancel(ctx, err)
		}

		res, err := l.Attempt(ctx, username, password)
		if err == nil {
			return res, nil
		}
		if common.KindOf(err) == common.KindAuthenticationFailed {
			return nil, err
		}
		src.AttemptFailed(ctx, err, l.Remaining())
	}

	return nil, l.exhausted()
}

// LoginWithToken resolves token to its user. An invalid or expired token is
// not an error: it yields (nil, nil) and a warning. Storage errors are
// logged and returned.
func (s *Service) LoginWithToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	u, err := s.store.GetUserByToken(ctx, token)
	if err != nil {
		s.log.Error(ctx, "token authentication error", "error", err)
		return nil, err
	}
	if u == nil {
		s.log.Warn(ctx, "invalid or expired token")
		return nil, nil
	}

	s.log.Info(ctx, "user authenticated via token", "username", u.Username, "role", string(u.Role))
	return u, nil
}

// Authenticate tries storedToken first and falls back to an interactive
// login through src.
func (s *Service) Authenticate(ctx context.Context, storedToken string, src CredentialSource) (*Result, error) {
	if storedToken != "" {
		u, err := s.LoginWithToken(ctx, storedToken)
		if err == nil && u != nil {
			return &Result{User: u, Token: storedToken, Reused: true}, nil
		}
	}
	return s.Login(ctx, src)
}

// RequireAdmin returns a common.KindAuthorizationDenied error unless user
// is an admin.
func (s *Service) RequireAdmin(ctx context.Context, user *models.User) error {
	if user.IsAdmin() {
		return nil
	}

	username := ""
	if user != nil {
		username = user.Username
	}
	s.log.Warn(ctx, "user attempted admin action without privileges", "username", username)
	return common.NewError(common.KindAuthorizationDenied, "admin privileges required", nil)
}

// CheckPermissions reports whether user satisfies requiredRole. "admin"
// needs an admin, "user" is satisfied by any user, anything else is refused.
func (s *Service) CheckPermissions(ctx context.Context, user *models.User, requiredRole string) bool {
	switch models.Role(requiredRole) {
	case models.RoleAdmin:
		return user.IsAdmin()
	case models.RoleUser:
		return user != nil
	default:
		s.log.Warn(ctx, "unknown role requirement", "role", requiredRole)
		return false
	}
}

type AdminRequest struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

type BootstrapResult int

const (
	BootstrapCreated BootstrapResult = iota + 1
	BootstrapAlreadyExists
)

func (r BootstrapResult) String() string {
	switch r {
	case BootstrapCreated:
		return "created"
	case BootstrapAlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// BootstrapAdmin validates req locally and then creates the admin account.
// An existing username is reported as BootstrapAlreadyExists, not an error.
func (s *Service) BootstrapAdmin(ctx context.Context, req AdminRequest) (BootstrapResult, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	switch {
	case username == "":
		return 0, fmt.Errorf("username: %w", ErrEmptyField)
	case email == "":
		return 0, fmt.Errorf("email: %w", ErrEmptyField)
	case req.Password == "":
		return 0, fmt.Errorf("password: %w", ErrEmptyField)
	case req.Password != req.ConfirmPassword:
		return 0, ErrPasswordMismatch
	}

	created, err := s.store.CreateAdminUser(ctx, username, email, req.Password)
	if err != nil {
		s.log.Error(ctx, "admin setup error", "username", username, "error", err)
		return 0, err
	}

	if !created {
		s.log.Info(ctx, "admin user already exists", "username", username)
		return BootstrapAlreadyExists, nil
	}

	s.log.Info(ctx, "admin user created", "username", username)
	return BootstrapCreated, nil
}

// Logout revokes token. An empty token is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.RevokeSessionToken(ctx, token); err != nil {
		s.log.Error(ctx, "logout error", "error", err)
		return err
	}
	s.log.Info(ctx, "user logged out")
	return nil
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, ErrPromptCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
