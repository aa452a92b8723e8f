// Package memory implements the volatile backend: everything lives in
// process memory and disappears with the process.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/cryptox"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/models"
)

const (
	SessionUsername = "session_user"
	sessionEmail    = "session_user@localhost"
)

// Backend is safe for concurrent use. Records handed to callers are copies.
type Backend struct {
	mu sync.RWMutex

	users         map[int64]*models.User
	userByName    map[string]int64
	userByEmail   map[string]int64
	conversations map[int64]*models.Conversation
	messages      map[int64][]*models.Message // keyed by conversation id
	tokens        map[string]*models.SessionToken

	nextUserID         int64
	nextConversationID int64
	nextMessageID      int64

	sessionUserID int64

	parser     backend.TokenParser
	bcryptCost int
	log        logging.Logger
	now        func() time.Time
}

var _ backend.Volatile = (*Backend)(nil)

type Option func(*Backend)

func WithLogger(l logging.Logger) Option {
	return func(b *Backend) { b.log = logging.OrNop(l) }
}

func WithBcryptCost(cost int) Option {
	return func(b *Backend) { b.bcryptCost = cost }
}

// New returns an empty backend holding only the session user.
func New(parser backend.TokenParser, opts ...Option) *Backend {
	b := &Backend{
		users:         make(map[int64]*models.User),
		userByName:    make(map[string]int64),
		userByEmail:   make(map[string]int64),
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64][]*models.Message),
		tokens:        make(map[string]*models.SessionToken),
		parser:        parser,
		log:           logging.Nop{},
		now:           time.Now,
	}
	for _, o := range opts {
		o(b)
	}

	u := b.insertUserLocked(&models.User{
		Username: SessionUsername,
		Email:    sessionEmail,
		Role:     models.RoleUser,
	})
	b.sessionUserID = u.ID

	return b
}

func (b *Backend) insertUserLocked(u *models.User) *models.User {
	b.nextUserID++
	u.ID = b.nextUserID
	u.CreatedAt = b.now()
	b.users[u.ID] = u
	b.userByName[u.Username] = u.ID
	b.userByEmail[u.Email] = u.ID
	return u
}

func (b *Backend) SessionUser(ctx context.Context) (*models.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.users[b.sessionUserID].Public(), nil
}

func (b *Backend) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	b.mu.RLock()
	id, ok := b.userByName[username]
	var u *models.User
	if ok {
		u = b.users[id].Clone()
	}
	b.mu.RUnlock()

	if u == nil || !cryptox.CheckPassword(u.PasswordHash, password) {
		return nil, nil
	}
	return u.Public(), nil
}

func (b *Backend) CreateAdminUser(ctx context.Context, username, email, password string) (bool, error) {
	if err := backend.ValidateAdminUser(username, email, password); err != nil {
		return false, err
	}

	b.mu.RLock()
	_, exists := b.userByName[username]
	b.mu.RUnlock()
	if exists {
		return false, nil
	}

	hash, err := cryptox.HashPassword(password, b.bcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// re-check: another caller may have won while we were hashing
	if _, exists := b.userByName[username]; exists {
		return false, nil
	}
	if _, exists := b.userByEmail[email]; exists {
		return false, fmt.Errorf("%w: email %q", common.ErrorAlreadyExists, email)
	}

	b.insertUserLocked(&models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	return true, nil
}

func (b *Backend) SaveSessionToken(ctx context.Context, token *models.SessionToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[token.UserID]; !ok {
		return fmt.Errorf("%w: user %d", common.ErrorNotFound, token.UserID)
	}
	t := *token
	t.Value = ""
	b.tokens[t.ID] = &t
	return nil
}

func (b *Backend) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := b.parser.Parse(token)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			if id, idErr := b.parser.TokenID(token); idErr == nil {
				b.deleteToken(id)
			}
		}
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.tokens[claims.ID]
	if !ok {
		return nil, nil
	}
	if rec.Expired(b.now()) {
		delete(b.tokens, claims.ID)
		return nil, nil
	}

	u, ok := b.users[rec.UserID]
	if !ok {
		return nil, nil
	}
	return u.Public(), nil
}

func (b *Backend) RevokeSessionToken(ctx context.Context, token string) error {
	id, err := b.parser.TokenID(token)
	if err != nil {
		return nil
	}
	b.deleteToken(id)
	return nil
}

func (b *Backend) deleteToken(id string) {
	b.mu.Lock()
	delete(b.tokens, id)
	b.mu.Unlock()
}

func (b *Backend) CreateConversation(ctx context.Context, userID int64, title *string) (*models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user %d", common.ErrorNotFound, userID)
	}

	b.nextConversationID++
	c := &models.Conversation{
		ID:        b.nextConversationID,
		UserID:    userID,
		Title:     copyPtr(title),
		CreatedAt: b.now(),
	}
	b.conversations[c.ID] = c

	return copyConversation(c), nil
}

func (b *Backend) AddMessage(ctx context.Context, conversationID int64, role models.MessageRole, content string, tokenCount *int) (*models.Message, error) {
	if err := backend.ValidateMessageRole(role); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: conversation %d", common.ErrorNotFound, conversationID)
	}

	b.nextMessageID++
	m := &models.Message{
		ID:             b.nextMessageID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     copyPtr(tokenCount),
		CreatedAt:      b.now(),
	}
	b.messages[conversationID] = append(b.messages[conversationID], m)

	return copyMessage(m), nil
}

// GetConversationMessages returns an empty slice for unknown conversations.
func (b *Backend) GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	// appends are already in id order; keep the guarantee explicit
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (b *Backend) TruncateConversationMessages(ctx context.Context, conversationID int64, maxMessages int) (bool, error) {
	if maxMessages < 0 {
		maxMessages = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.messages[conversationID]
	if len(msgs) <= maxMessages {
		return false, nil
	}

	kept := make([]*models.Message, maxMessages)
	copy(kept, msgs[len(msgs)-maxMessages:])
	b.messages[conversationID] = kept

	return true, nil
}

func (b *Backend) Info() models.BackendInfo {
	return models.BackendInfo{
		Name:        "In-Memory",
		Type:        "memory",
		Persistent:  false,
		Initialized: true,
	}
}

func (b *Backend) SupportsPersistence() bool { return false }

func (b *Backend) Close(ctx context.Context) error { return nil }

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyConversation(c *models.Conversation) *models.Conversation {
	r := *c
	r.Title = copyPtr(c.Title)
	return &r
}

func copyMessage(m *models.Message) *models.Message {
	r := *m
	r.TokenCount = copyPtr(m.TokenCount)
	return &r
}
