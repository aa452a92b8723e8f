// Package postgres implements the durable backend on PostgreSQL through the
// pgx driver and the repositories in internal/repositories.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/cryptox"
	"github.com/dmitrijs2005/minichat/internal/dbx"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/dmitrijs2005/minichat/internal/repositories/repomanager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

const maintenanceDatabase = "postgres"

var (
	ErrNotReady      = errors.New("postgres backend is not ready")
	ErrServerTooOld  = errors.New("postgres server version is too old")
	ErrNoDatabaseSet = errors.New("connection string names no database")
)

// probeConn is the part of *pgx.Conn used by EnsureSystemReady.
type probeConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// connectPostgres is a seam for tests.
var connectPostgres = func(ctx context.Context, cfg *pgx.ConnConfig) (probeConn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// openDB is a seam for tests.
var openDB = func(cfg *pgx.ConnConfig) *sql.DB {
	return stdlib.OpenDB(*cfg)
}

type Backend struct {
	cfg              *pgx.ConnConfig
	minServerVersion int
	bcryptCost       int

	repos  repomanager.RepositoryManager
	parser backend.TokenParser
	log    logging.Logger
	now    func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

var _ backend.Durable = (*Backend)(nil)

type Option func(*Backend)

func WithLogger(l logging.Logger) Option {
	return func(b *Backend) { b.log = logging.OrNop(l) }
}

func WithBcryptCost(cost int) Option {
	return func(b *Backend) { b.bcryptCost = cost }
}

// WithMinServerVersion sets the lowest accepted server_version_num,
// e.g. 120000 for PostgreSQL 12.
func WithMinServerVersion(v int) Option {
	return func(b *Backend) { b.minServerVersion = v }
}

func WithRepositoryManager(m repomanager.RepositoryManager) Option {
	return func(b *Backend) { b.repos = m }
}

// New parses databaseURL. It does not connect; see EnsureSystemReady and
// EnsureDatabaseReady.
func New(databaseURL string, parser backend.TokenParser, opts ...Option) (*Backend, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database == "" {
		return nil, ErrNoDatabaseSet
	}

	b := &Backend{
		cfg:    cfg,
		repos:  repomanager.NewPostgresRepositoryManager(),
		parser: parser,
		log:    logging.Nop{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// EnsureSystemReady connects to the maintenance database, checks the
// server version and creates the target database if it does not exist.
func (b *Backend) EnsureSystemReady(ctx context.Context) error {
	mcfg := b.cfg.Copy()
	mcfg.Database = maintenanceDatabase

	conn, err := connectPostgres(ctx, mcfg)
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer conn.Close(ctx)

	var raw string
	if err := conn.QueryRow(ctx, "SHOW server_version_num").Scan(&raw); err != nil {
		return fmt.Errorf("read server version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("read server version: %w", err)
	}
	if version < b.minServerVersion {
		return fmt.Errorf("%w: have %d, need %d", ErrServerTooOld, version, b.minServerVersion)
	}
	b.log.Debug(ctx, "postgres server version", "version", version)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", b.cfg.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database: %w", err)
	}
	if exists {
		return nil
	}

	b.log.Info(ctx, "creating database", "database", b.cfg.Database)
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{b.cfg.Database}.Sanitize()); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

// EnsureDatabaseReady opens the pool, applies migrations and reports whether
// an admin account exists. On failure the pool is closed again.
func (b *Backend) EnsureDatabaseReady(ctx context.Context) (bool, error) {
	db := openDB(b.cfg)

	adminExists, err := b.prepare(ctx, db)
	if err != nil {
		_ = db.Close()
		return false, err
	}

	b.mu.Lock()
	old := b.db
	b.db = db
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	return adminExists, nil
}

func (b *Backend) prepare(ctx context.Context, db *sql.DB) (bool, error) {
	if err := db.PingContext(ctx); err != nil {
		return false, fmt.Errorf("ping database: %w", err)
	}
	if err := b.repos.RunMigrations(ctx, db); err != nil {
		return false, fmt.Errorf("run migrations: %w", err)
	}
	n, err := b.repos.Users(db).CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotReady
	}
	return b.db, nil
}

func (b *Backend) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	u, err := b.repos.Users(db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if !cryptox.CheckPassword(u.PasswordHash, password) {
		return nil, nil
	}
	return u.Public(), nil
}

func (b *Backend) CreateAdminUser(ctx context.Context, username, email, password string) (bool, error) {
	if err := backend.ValidateAdminUser(username, email, password); err != nil {
		return false, err
	}
	db, err := b.conn()
	if err != nil {
		return false, err
	}

	hash, err := cryptox.HashPassword(password, b.bcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	return b.repos.Users(db).CreateIfAbsent(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
}

func (b *Backend) SaveSessionToken(ctx context.Context, token *models.SessionToken) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	return b.repos.SessionTokens(db).Create(ctx, token)
}

func (b *Backend) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := b.parser.Parse(token)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			b.pruneExpired(ctx, token)
		}
		return nil, nil
	}

	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := b.repos.SessionTokens(tx)

		rec, err := tokens.Find(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if rec.Expired(b.now()) {
			return tokens.Delete(ctx, rec.ID)
		}

		u, err := b.repos.Users(tx).GetByID(ctx, rec.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

func (b *Backend) pruneExpired(ctx context.Context, token string) {
	id, err := b.parser.TokenID(token)
	if err != nil {
		return
	}
	db, err := b.conn()
	if err != nil {
		return
	}
	if err := b.repos.SessionTokens(db).Delete(ctx, id); err != nil {
		b.log.Warn(ctx, "failed to prune expired session token", "error", err)
	}
}

func (b *Backend) RevokeSessionToken(ctx context.Context, token string) error {
	id, err := b.parser.TokenID(token)
	if err != nil {
		return nil
	}
	db, err := b.conn()
	if err != nil {
		return err
	}
	return b.repos.SessionTokens(db).Delete(ctx, id)
}

func (b *Backend) CreateConversation(ctx context.Context, userID int64, title *string) (*models.Conversation, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return b.repos.Conversations(db).Create(ctx, &models.Conversation{UserID: userID, Title: title})
}

func (b *Backend) AddMessage(ctx context.Context, conversationID int64, role models.MessageRole, content string, tokenCount *int) (*models.Message, error) {
	if err := backend.ValidateMessageRole(role); err != nil {
		return nil, err
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return b.repos.Messages(db).Create(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     tokenCount,
	})
}

func (b *Backend) GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return b.repos.Messages(db).List(ctx, conversationID, limit)
}

func (b *Backend) TruncateConversationMessages(ctx context.Context, conversationID int64, maxMessages int) (bool, error) {
	db, err := b.conn()
	if err != nil {
		return false, err
	}
	n, err := b.repos.Messages(db).Truncate(ctx, conversationID, maxMessages)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Info never includes the password from the connection string.
func (b *Backend) Info() models.BackendInfo {
	b.mu.RLock()
	ready := b.db != nil
	b.mu.RUnlock()

	return models.BackendInfo{
		Name:        "PostgreSQL",
		Type:        "postgresql",
		Persistent:  true,
		Connection:  fmt.Sprintf("postgresql://%s@%s:%d/%s", b.cfg.User, b.cfg.Host, b.cfg.Port, b.cfg.Database),
		Initialized: ready,
	}
}

func (b *Backend) SupportsPersistence() bool { return true }

func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	db := b.db
	b.db = nil
	b.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}
