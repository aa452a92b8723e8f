// Package backend defines the storage contract shared by the PostgreSQL and
// in-memory implementations.
//
// Every backend satisfies Backend. Durable backends additionally satisfy
// Durable, which adds the readiness probes run during initialization.
// Volatile backends satisfy Volatile, which adds an always-available session
// user. Callers pick the variant by construction, never by probing.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/minichat/internal/models"
)

type Backend interface {
	// AuthenticateUser returns the user when password matches. A wrong
	// password or unknown username yields (nil, nil); errors are reserved
	// for storage failures.
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)

	// CreateAdminUser creates an admin account. It returns false, without
	// error, when the username already exists.
	CreateAdminUser(ctx context.Context, username, email, password string) (bool, error)

	// GetUserByToken resolves a session token. Expired, revoked, unknown or
	// malformed tokens yield (nil, nil).
	GetUserByToken(ctx context.Context, token string) (*models.User, error)

	SaveSessionToken(ctx context.Context, token *models.SessionToken) error
	RevokeSessionToken(ctx context.Context, token string) error

	CreateConversation(ctx context.Context, userID int64, title *string) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID int64, role models.MessageRole, content string, tokenCount *int) (*models.Message, error)

	// GetConversationMessages returns messages in insertion order. With
	// limit > 0 only the most recent limit messages are returned.
	GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)

	// TruncateConversationMessages deletes the oldest messages so that at
	// most maxMessages remain, and reports whether anything was deleted.
	TruncateConversationMessages(ctx context.Context, conversationID int64, maxMessages int) (bool, error)

	Info() models.BackendInfo
	SupportsPersistence() bool
	Close(ctx context.Context) error
}

// Durable is a backend whose data outlives the process.
type Durable interface {
	Backend

	// EnsureSystemReady checks connectivity and the server version, and
	// creates the target database when it is missing.
	EnsureSystemReady(ctx context.Context) error

	// EnsureDatabaseReady opens the database, applies migrations and
	// reports whether an admin account exists.
	EnsureDatabaseReady(ctx context.Context) (adminExists bool, err error)
}

// Volatile is a backend that lives only as long as the process.
type Volatile interface {
	Backend

	// SessionUser returns the built-in user available without login.
	SessionUser(ctx context.Context) (*models.User, error)
}

type Mode string

const (
	ModeMemory  Mode = "memory"
	ModeDurable Mode = "durable"
	ModeAuto    Mode = "auto"
)

// ParseMode accepts memory, durable, auto and the aliases postgresql and
// postgres for durable. An empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory":
		return ModeMemory, nil
	case "durable", "postgresql", "postgres":
		return ModeDurable, nil
	case "", "auto":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown backend type %q", s)
	}
}

// Selection is what the caller asks the manager to initialize.
type Selection struct {
	Mode                Mode
	FallbackToMemory    bool
	DatabaseURL         string
	InteractiveFallback bool
}
