package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/minichat/internal/auth"
	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/dmitrijs2005/minichat/internal/settings"
)

const saveTokenPrompt = "Save authentication token? (y/N): "

// maxBootstrapTries bounds how often the admin form is re-asked after a
// validation error.
const maxBootstrapTries = 3

// Store is the part of backendmanager.Manager the App needs.
type Store interface {
	backend.Backend
	State() models.BackendState
	SessionUser(ctx context.Context) (*models.User, error)
}

// TokenStore persists the session token between runs. *settings.FileStore
// satisfies it.
type TokenStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type App struct {
	store    Store
	auth     *auth.Service
	tokens   TokenStore
	prompt   *Prompter
	out      io.Writer
	log      logging.Logger
	user     *models.User
	token    string
	conv     *models.Conversation
	finished bool
}

// NewApp wires the front end. tokens may be nil, in which case tokens are
// never saved or read from disk.
func NewApp(store Store, svc *auth.Service, tokens TokenStore, p *Prompter, log logging.Logger) *App {
	return &App{
		store:  store,
		auth:   svc,
		tokens: tokens,
		prompt: p,
		out:    p.out,
		log:    logging.OrNop(log),
	}
}

func (a *App) User() *models.User {
	return a.user
}

func (a *App) isLoggedIn() bool {
	return a.user != nil
}

// SignIn establishes the current user. An in-memory backend uses its session
// user. Otherwise the admin account is bootstrapped when the database has
// none, and then envToken, the saved token, or an interactive login is used,
// in that order.
func (a *App) SignIn(ctx context.Context, envToken string) error {
	su, err := a.store.SessionUser(ctx)
	if err != nil {
		return err
	}
	if su != nil {
		a.user = su
		fmt.Fprintf(a.out, "Using in-memory session as %s. Data will not be saved.\n", su.Username)
		return nil
	}

	if a.store.State().AdminBootstrapNeeded {
		if err := a.bootstrapAdmin(ctx); err != nil {
			return err
		}
	}

	token := envToken
	if token == "" {
		token = a.savedToken(ctx)
	}

	res, err := a.auth.Authenticate(ctx, token, a.prompt)
	if err != nil {
		return err
	}

	a.user, a.token = res.User, res.Token
	fmt.Fprintf(a.out, "Welcome, %s!\n", res.User.Username)

	if !res.Reused && a.tokens != nil {
		a.offerSaveToken(ctx)
	}
	return nil
}

func (a *App) savedToken(ctx context.Context) string {
	if a.tokens == nil {
		return ""
	}
	v, _, err := a.tokens.Get(settings.SessionTokenKey)
	if err != nil {
		a.log.Warn(ctx, "reading saved token", "error", err)
		return ""
	}
	return v
}

func (a *App) offerSaveToken(ctx context.Context) {
	ok, err := a.prompt.Confirm(ctx, saveTokenPrompt)
	if err != nil || !ok {
		return
	}
	if err := a.tokens.Set(settings.SessionTokenKey, a.token); err != nil {
		a.log.Warn(ctx, "saving token", "error", err)
		fmt.Fprintln(a.out, "Could not save token.")
		return
	}
	fmt.Fprintln(a.out, "Token saved.")
}

func (a *App) bootstrapAdmin(ctx context.Context) error {
	fmt.Fprintln(a.out, "No admin user found. Please create one.")

	for i := 0; i < maxBootstrapTries; i++ {
		req, err := a.prompt.AdminRequest(ctx)
		if err != nil {
			return err
		}

		res, err := a.auth.BootstrapAdmin(ctx, req)
		switch {
		case err == nil:
			if res == auth.BootstrapCreated {
				fmt.Fprintf(a.out, "Admin user %q created.\n", req.Username)
			} else {
				fmt.Fprintf(a.out, "User %q already exists.\n", req.Username)
			}
			return nil
		case errors.Is(err, auth.ErrEmptyField), errors.Is(err, auth.ErrPasswordMismatch):
			fmt.Fprintf(a.out, "%v\n", err)
		default:
			return err
		}
	}
	return errors.New("admin setup abandoned")
}

// Run starts the REPL and returns when it ends.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to minichat (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.prompt.reader, a.out)
}

func (a *App) status() string {
	s := a.store.Info().Type
	if a.user != nil {
		s = a.user.Username + "@" + s
	}
	return s
}
