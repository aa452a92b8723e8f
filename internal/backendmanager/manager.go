// Package backendmanager selects, probes and publishes the single active
// storage backend.
//
// A Manager moves through uninitialized, probing, ready and failed phases.
// State changes are committed only once a probe has fully succeeded or fully
// failed, and a mutex makes every transition atomic to observers. Once ready,
// further Initialize calls return the active backend without probing again.
package backendmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/models"
)

// FallbackPrompt is shown to the Confirmer before an interactive fallback.
const FallbackPrompt = "PostgreSQL database is not available. Would you like to use in-memory mode instead?\n" +
	"Note: In-memory mode has limited functionality and no data persistence.\n" +
	"Continue with in-memory mode? (y/N): "

var ErrNotInitialized = errors.New("database backend not initialized")

// DurableFactory constructs, without connecting, a durable backend for
// databaseURL.
type DurableFactory func(ctx context.Context, databaseURL string) (backend.Durable, error)

type VolatileFactory func(ctx context.Context) (backend.Volatile, error)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Manager struct {
	mu       sync.Mutex
	state    models.BackendState
	active   backend.Backend
	volatile backend.Volatile

	newDurable  DurableFactory
	newVolatile VolatileFactory
	confirmer   Confirmer
	log         logging.Logger
}

var _ backend.Backend = (*Manager)(nil)

type Option func(*Manager)

func WithDurableFactory(f DurableFactory) Option {
	return func(m *Manager) { m.newDurable = f }
}

func WithVolatileFactory(f VolatileFactory) Option {
	return func(m *Manager) { m.newVolatile = f }
}

// WithConfirmer enables interactive fallback for selections that ask for it.
func WithConfirmer(c Confirmer) Option {
	return func(m *Manager) { m.confirmer = c }
}

func NewManager(log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		log: logging.OrNop(log),
		state: models.BackendState{
			Kind:  models.BackendNone,
			Phase: models.PhaseUninitialized,
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize brings up a backend according to sel and publishes it.
//
// A durable probe failure is returned as a common.KindBackendInitialization
// error unless sel allows falling back to memory, either directly or after
// the Confirmer agrees.
func (m *Manager) Initialize(ctx context.Context, sel backend.Selection) (backend.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase == models.PhaseReady {
		return m.active, nil
	}

	b, err := m.initializeLocked(ctx, sel)
	if err == nil {
		return b, nil
	}

	if sel.InteractiveFallback && sel.Mode != backend.ModeMemory && m.confirmer != nil && ctx.Err() == nil {
		ok, cerr := m.confirmer.Confirm(ctx, FallbackPrompt)
		if cerr != nil {
			m.log.Warn(ctx, "fallback prompt failed", "error", cerr)
		}
		if cerr == nil && ok {
			m.log.Info(ctx, "user chose to fall back to in-memory mode")
			return m.initializeLocked(ctx, backend.Selection{Mode: backend.ModeMemory})
		}
	}

	return nil, err
}

func (m *Manager) initializeLocked(ctx context.Context, sel backend.Selection) (backend.Backend, error) {
	m.state.Phase = models.PhaseProbing

	switch sel.Mode {
	case backend.ModeMemory:
		m.log.Info(ctx, "initializing in-memory database backend")
		return m.useVolatileLocked(ctx)

	case backend.ModeDurable, backend.ModeAuto:
		if sel.Mode == backend.ModeAuto {
			m.log.Info(ctx, "auto-detecting database backend (trying PostgreSQL first)")
		} else {
			m.log.Info(ctx, "initializing PostgreSQL database backend")
		}

		d, adminExists, err := m.probeDurable(ctx, sel.DatabaseURL)
		if err == nil {
			m.active = d
			m.volatile = nil
			m.state = models.BackendState{
				Kind:                 models.BackendDurable,
				Phase:                models.PhaseReady,
				Initialized:          true,
				AdminBootstrapNeeded: !adminExists,
			}
			if !adminExists {
				m.log.Info(ctx, "database ready but no admin users found")
			}
			m.log.Info(ctx, "database backend initialized", "backend", d.Info().Name)
			return d, nil
		}

		if sel.FallbackToMemory && ctx.Err() == nil {
			m.log.Warn(ctx, "PostgreSQL initialization failed", "mode", string(sel.Mode), "error", err)
			m.log.Info(ctx, "falling back to in-memory backend")
			return m.useVolatileLocked(ctx)
		}

		m.failLocked()
		m.log.Error(ctx, "PostgreSQL initialization failed", "mode", string(sel.Mode), "error", err)
		return nil, common.NewError(common.KindBackendInitialization, "PostgreSQL initialization failed", err)

	default:
		m.failLocked()
		return nil, common.NewError(common.KindBackendInitialization,
			fmt.Sprintf("unknown backend type %q", sel.Mode), nil)
	}
}

// probeDurable runs the full readiness sequence. A backend that fails any
// step is closed before returning.
func (m *Manager) probeDurable(ctx context.Context, databaseURL string) (backend.Durable, bool, error) {
	if m.newDurable == nil {
		return nil, false, errors.New("no durable backend configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	d, err := m.newDurable(ctx, databaseURL)
	if err != nil {
		return nil, false, err
	}

	if err := d.EnsureSystemReady(ctx); err != nil {
		m.closeQuietly(ctx, d)
		return nil, false, err
	}

	adminExists, err := d.EnsureDatabaseReady(ctx)
	if err != nil {
		m.closeQuietly(ctx, d)
		return nil, false, err
	}

	return d, adminExists, nil
}

func (m *Manager) useVolatileLocked(ctx context.Context) (backend.Backend, error) {
	if m.newVolatile == nil {
		m.failLocked()
		return nil, common.NewError(common.KindBackendInitialization, "no in-memory backend configured", nil)
	}

	v, err := m.newVolatile(ctx)
	if err != nil {
		m.failLocked()
		return nil, common.NewError(common.KindBackendInitialization, "in-memory backend failed", err)
	}

	m.active = v
	m.volatile = v
	m.state = models.BackendState{
		Kind:        models.BackendVolatile,
		Phase:       models.PhaseReady,
		Initialized: true,
	}
	m.log.Info(ctx, "database backend initialized", "backend", v.Info().Name)
	return v, nil
}

func (m *Manager) failLocked() {
	m.active = nil
	m.volatile = nil
	m.state = models.BackendState{Kind: models.BackendNone, Phase: models.PhaseFailed}
}

func (m *Manager) closeQuietly(ctx context.Context, b backend.Backend) {
	if err := b.Close(ctx); err != nil {
		m.log.Warn(ctx, "closing failed backend", "error", err)
	}
}

// State returns a snapshot of the manager's state.
func (m *Manager) State() models.BackendState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backend returns the active backend, or ErrNotInitialized.
func (m *Manager) Backend() (backend.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.state.Phase != models.PhaseReady {
		return nil, ErrNotInitialized
	}
	return m.active, nil
}

// SessionUser returns the volatile backend's built-in user. With a durable
// backend there is none and (nil, nil) is returned.
func (m *Manager) SessionUser(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	v, ready := m.volatile, m.state.Phase == models.PhaseReady
	m.mu.Unlock()

	if !ready {
		return nil, ErrNotInitialized
	}
	if v == nil {
		return nil, nil
	}
	return v.SessionUser(ctx)
}

func (m *Manager) Info() models.BackendInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return models.BackendInfo{Name: "None"}
	}
	info := m.active.Info()
	info.Initialized = m.state.Initialized
	return info
}

func (m *Manager) SupportsPersistence() bool {
	b, err := m.Backend()
	if err != nil {
		return false
	}
	return b.SupportsPersistence()
}

// Close closes the active backend and returns the manager to the
// uninitialized phase.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	b := m.active
	m.active = nil
	m.volatile = nil
	m.state = models.BackendState{Kind: models.BackendNone, Phase: models.PhaseUninitialized}
	m.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close(ctx)
}

func (m *Manager) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	b, err := m.Backend()
	if err != nil {
		return nil, err
	}
	return b.AuthenticateUser(ctx, username, password)
}

// CreateAdminUser clears AdminBootstrapNeeded once an admin is created.
func (m *Manager) CreateAdminUser(ctx context.Context, username, email, password string) (bool, error) {
	b, err := m.Backend()
	if err != nil {
		return false, err
	}

	created, err := b.CreateAdminUser(ctx, username, email, password)
	if err != nil {
		return false, err
	}

	if created {
		m.mu.Lock()
		if m.active == b {
			m.state.AdminBootstrapNeeded = false
		}
		m.mu.Unlock()
	}

	return created, nil
}

func (m *Manager) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	b, err := m.Backend()
	if err != nil {
		return nil, err
	}
	return b.GetUserByToken(ctx, token)
}

func (m *Manager) SaveSessionToken(ctx context.Context, token *models.SessionToken) error {
	b, err := m.Backend()
	if err != nil {
		return err
	}
	return b.SaveSessionToken(ctx, token)
}

func (m *Manager) RevokeSessionToken(ctx context.Context, token string) error {
	b, err := m.Backend()
	if err != nil {
		return err
	}
	return b.RevokeSessionToken(ctx, token)
}

func (m *Manager) CreateConversation(ctx context.Context, userID int64, title *string) (*models.Conversation, error) {
	b, err := m.Backend()
	if err != nil {
		return nil, err
	}
	return b.CreateConversation(ctx, userID, title)
}

func (m *Manager) AddMessage(ctx context.Context, conversationID int64, role models.MessageRole, content string, tokenCount *int) (*models.Message, error) {
	b, err := m.Backend()
	if err != nil {
		return nil, err
	}
	return b.AddMessage(ctx, conversationID, role, content, tokenCount)
}

func (m *Manager) GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	b, err := m.Backend()
	if err != nil {
		return nil, err
	}
	return b.GetConversationMessages(ctx, conversationID, limit)
}

func (m *Manager) TruncateConversationMessages(ctx context.Context, conversationID int64, maxMessages int) (bool, error) {
	b, err := m.Backend()
	if err != nil {
		return false, err
	}
	return b.TruncateConversationMessages(ctx, conversationID, maxMessages)
}
