package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/dmitrijs2005/minichat/internal/repositories/repomanager"
	"github.com/dmitrijs2005/minichat/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testURL = "postgres://chat:pw@db.local:5433/mini_llm_chat?sslmode=disable"

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeConn struct {
	version   string
	exists    bool
	queryErr  error
	execErr   error
	execSQL   []string
	closed    bool
	existsArg any
}

func (c *fakeConn) QueryRow(ctx context.Context, q string, args ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if c.queryErr != nil {
			return c.queryErr
		}
		switch {
		case q == "SHOW server_version_num":
			*dest[0].(*string) = c.version
		default:
			c.existsArg = args[0]
			*dest[0].(*bool) = c.exists
		}
		return nil
	}}
}

func (c *fakeConn) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	c.execSQL = append(c.execSQL, q)
	return pgconn.CommandTag{}, c.execErr
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func stubConnect(t *testing.T, conn *fakeConn, err error) {
	t.Helper()
	orig := connectPostgres
	connectPostgres = func(ctx context.Context, cfg *pgx.ConnConfig) (probeConn, error) {
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	t.Cleanup(func() { connectPostgres = orig })
}

func newTestBackend(t *testing.T, opts ...Option) (*Backend, *session.Issuer) {
	t.Helper()
	iss := session.NewIssuer([]byte("k"), time.Hour)
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost), WithMinServerVersion(120000)}, opts...)
	b, err := New(testURL, iss, opts...)
	require.NoError(t, err)
	return b, iss
}

// attachMock gives b a ready pool backed by sqlmock.
func attachMock(t *testing.T, b *Backend) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	b.db = db
	t.Cleanup(func() { _ = db.Close() })
	return mock
}

func TestNew(t *testing.T) {
	_, err := New("postgres://u@h:notaport/db", nil)
	assert.Error(t, err)

	_, err = New("postgres://u@h:5432/?sslmode=disable", nil)
	assert.ErrorIs(t, err, ErrNoDatabaseSet)

	b, _ := newTestBackend(t)
	info := b.Info()
	assert.Equal(t, "postgresql", info.Type)
	assert.True(t, info.Persistent)
	assert.False(t, info.Initialized)
	assert.Equal(t, "postgresql://chat@db.local:5433/mini_llm_chat", info.Connection)
	assert.NotContains(t, info.Connection, "pw")
	assert.True(t, b.SupportsPersistence())
}

func TestEnsureSystemReady_DatabaseExists(t *testing.T) {
	b, _ := newTestBackend(t)
	conn := &fakeConn{version: "160002", exists: true}

	var seen *pgx.ConnConfig
	orig := connectPostgres
	connectPostgres = func(ctx context.Context, cfg *pgx.ConnConfig) (probeConn, error) {
		seen = cfg
		return conn, nil
	}
	t.Cleanup(func() { connectPostgres = orig })

	require.NoError(t, b.EnsureSystemReady(context.Background()))

	require.NotNil(t, seen)
	assert.Equal(t, "postgres", seen.Database, "probe uses the maintenance database")
	assert.Equal(t, "mini_llm_chat", b.cfg.Database, "own config untouched")
	assert.Equal(t, "mini_llm_chat", conn.existsArg)
	assert.Empty(t, conn.execSQL)
	assert.True(t, conn.closed)
}

func TestEnsureSystemReady_CreatesMissingDatabase(t *testing.T) {
	b, _ := newTestBackend(t)
	conn := &fakeConn{version: "150004", exists: false}
	stubConnect(t, conn, nil)

	require.NoError(t, b.EnsureSystemReady(context.Background()))
	assert.Equal(t, []string{`CREATE DATABASE "mini_llm_chat"`}, conn.execSQL)
}

func TestEnsureSystemReady_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable", func(t *testing.T) {
		b, _ := newTestBackend(t)
		stubConnect(t, nil, errors.New("connection refused"))

		err := b.EnsureSystemReady(ctx)
		assert.ErrorContains(t, err, "connect to server")
	})

	t.Run("server too old", func(t *testing.T) {
		b, _ := newTestBackend(t)
		conn := &fakeConn{version: "110022", exists: true}
		stubConnect(t, conn, nil)

		err := b.EnsureSystemReady(ctx)
		assert.ErrorIs(t, err, ErrServerTooOld)
		assert.True(t, conn.closed)
	})

	t.Run("garbage version", func(t *testing.T) {
		b, _ := newTestBackend(t)
		stubConnect(t, &fakeConn{version: "sixteen"}, nil)

		assert.ErrorContains(t, b.EnsureSystemReady(ctx), "read server version")
	})

	t.Run("query error", func(t *testing.T) {
		b, _ := newTestBackend(t)
		stubConnect(t, &fakeConn{queryErr: errors.New("boom")}, nil)

		assert.ErrorContains(t, b.EnsureSystemReady(ctx), "boom")
	})

	t.Run("create fails", func(t *testing.T) {
		b, _ := newTestBackend(t)
		stubConnect(t, &fakeConn{version: "160000", execErr: errors.New("permission denied")}, nil)

		assert.ErrorContains(t, b.EnsureSystemReady(ctx), "create database")
	})
}

type fakeRepos struct {
	*repomanager.PostgresRepositoryManager
	migrateErr error
	migrated   bool
}

func (f *fakeRepos) RunMigrations(ctx context.Context, db *sql.DB) error {
	f.migrated = true
	return f.migrateErr
}

func stubOpen(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	orig := openDB
	openDB = func(cfg *pgx.ConnConfig) *sql.DB { return db }
	t.Cleanup(func() { openDB = orig })
	return db, mock
}

const countAdmins = `SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+role`

func TestEnsureDatabaseReady(t *testing.T) {
	ctx := context.Background()

	t.Run("no admin yet", func(t *testing.T) {
		repos := &fakeRepos{PostgresRepositoryManager: repomanager.NewPostgresRepositoryManager()}
		b, _ := newTestBackend(t, WithRepositoryManager(repos))
		_, mock := stubOpen(t)

		mock.ExpectPing()
		mock.ExpectQuery(countAdmins).WithArgs("admin").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

		adminExists, err := b.EnsureDatabaseReady(ctx)
		require.NoError(t, err)
		assert.False(t, adminExists)
		assert.True(t, repos.migrated)
		assert.True(t, b.Info().Initialized)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin present", func(t *testing.T) {
		repos := &fakeRepos{PostgresRepositoryManager: repomanager.NewPostgresRepositoryManager()}
		b, _ := newTestBackend(t, WithRepositoryManager(repos))
		_, mock := stubOpen(t)

		mock.ExpectPing()
		mock.ExpectQuery(countAdmins).WithArgs("admin").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

		adminExists, err := b.EnsureDatabaseReady(ctx)
		require.NoError(t, err)
		assert.True(t, adminExists)
	})

	t.Run("ping fails closes pool", func(t *testing.T) {
		repos := &fakeRepos{PostgresRepositoryManager: repomanager.NewPostgresRepositoryManager()}
		b, _ := newTestBackend(t, WithRepositoryManager(repos))
		_, mock := stubOpen(t)

		mock.ExpectPing().WillReturnError(errors.New("no route"))
		mock.ExpectClose()

		_, err := b.EnsureDatabaseReady(ctx)
		assert.ErrorContains(t, err, "ping database")
		assert.False(t, repos.migrated)
		assert.False(t, b.Info().Initialized)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("migration fails", func(t *testing.T) {
		repos := &fakeRepos{
			PostgresRepositoryManager: repomanager.NewPostgresRepositoryManager(),
			migrateErr:                errors.New("bad sql"),
		}
		b, _ := newTestBackend(t, WithRepositoryManager(repos))
		_, mock := stubOpen(t)

		mock.ExpectPing()
		mock.ExpectClose()

		_, err := b.EnsureDatabaseReady(ctx)
		assert.ErrorContains(t, err, "run migrations")
		_, connErr := b.conn()
		assert.ErrorIs(t, connErr, ErrNotReady)
	})
}

func TestOperationsBeforeReady(t *testing.T) {
	b, iss := newTestBackend(t)
	ctx := context.Background()

	_, err := b.AuthenticateUser(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = b.CreateAdminUser(ctx, "a", "a@x", "b")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = b.CreateConversation(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = b.GetConversationMessages(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrNotReady)

	tok, err := iss.Issue(1)
	require.NoError(t, err)
	_, err = b.GetUserByToken(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrNotReady)

	assert.NoError(t, b.Close(ctx))
}

var userCols = []string{"id", "username", "email", "password_hash", "role", "created_at"}

func TestAuthenticateUser(t *testing.T) {
	b, _ := newTestBackend(t)
	mock := attachMock(t, b)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	q := `FROM\s+users\s+WHERE\s+username\s*=\s*\$1`

	mock.ExpectQuery(q).WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(1), "admin", "a@x", hash, "admin", time.Now()))
	u, err := b.AuthenticateUser(ctx, "admin", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Nil(t, u.PasswordHash, "hash stays inside the backend")

	mock.ExpectQuery(q).WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(1), "admin", "a@x", hash, "admin", time.Now()))
	u, err = b.AuthenticateUser(ctx, "admin", "wrong")
	require.NoError(t, err)
	assert.Nil(t, u)

	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	u, err = b.AuthenticateUser(ctx, "ghost", "x")
	require.NoError(t, err)
	assert.Nil(t, u)

	mock.ExpectQuery(q).WithArgs("admin").WillReturnError(errors.New("conn reset"))
	_, err = b.AuthenticateUser(ctx, "admin", "x")
	assert.ErrorContains(t, err, "conn reset")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAdminUser(t *testing.T) {
	b, _ := newTestBackend(t)
	mock := attachMock(t, b)
	ctx := context.Background()

	q := `INSERT\s+INTO\s+users.*ON\s+CONFLICT\s*\(username\)\s*DO\s+NOTHING`

	mock.ExpectQuery(q).WithArgs("admin", "a@x", sqlmock.AnyArg(), "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	created, err := b.CreateAdminUser(ctx, "admin", "a@x", "pw")
	require.NoError(t, err)
	assert.True(t, created)

	mock.ExpectQuery(q).WithArgs("admin", "a@x", sqlmock.AnyArg(), "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	created, err = b.CreateAdminUser(ctx, "admin", "a@x", "pw")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = b.CreateAdminUser(ctx, "admin", "", "pw")
	assert.ErrorIs(t, err, common.ErrorValidation)

	require.NoError(t, mock.ExpectationsWereMet())
}

const (
	findToken   = `SELECT\s+id,\s*user_id,\s*issued_at,\s*expires_at\s+FROM\s+session_tokens`
	deleteToken = `DELETE\s+FROM\s+session_tokens\s+WHERE\s+id`
	userByID    = `FROM\s+users\s+WHERE\s+id\s*=\s*\$1`
)

func TestGetUserByToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		b, iss := newTestBackend(t)
		mock := attachMock(t, b)

		tok, err := iss.Issue(7)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(findToken).WithArgs(tok.ID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "issued_at", "expires_at"}).
				AddRow(tok.ID, int64(7), tok.IssuedAt, tok.ExpiresAt))
		mock.ExpectQuery(userByID).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(7), "admin", "a@x", []byte("h"), "admin", time.Now()))
		mock.ExpectCommit()

		u, err := b.GetUserByToken(ctx, tok.Value)
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, int64(7), u.ID)
		assert.Nil(t, u.PasswordHash)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoked", func(t *testing.T) {
		b, iss := newTestBackend(t)
		mock := attachMock(t, b)

		tok, err := iss.Issue(7)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(findToken).WithArgs(tok.ID).WillReturnError(sql.ErrNoRows)
		mock.ExpectCommit()

		u, err := b.GetUserByToken(ctx, tok.Value)
		require.NoError(t, err)
		assert.Nil(t, u)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record expired is pruned", func(t *testing.T) {
		b, iss := newTestBackend(t)
		mock := attachMock(t, b)

		tok, err := iss.Issue(7)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(findToken).WithArgs(tok.ID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "issued_at", "expires_at"}).
				AddRow(tok.ID, int64(7), tok.IssuedAt, time.Now().Add(-time.Minute)))
		mock.ExpectExec(deleteToken).WithArgs(tok.ID).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		u, err := b.GetUserByToken(ctx, tok.Value)
		require.NoError(t, err)
		assert.Nil(t, u)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("jwt expired is pruned", func(t *testing.T) {
		iss := session.NewIssuer([]byte("k"), -time.Minute)
		b, err := New(testURL, iss)
		require.NoError(t, err)
		mock := attachMock(t, b)

		tok, err := iss.Issue(7)
		require.NoError(t, err)

		mock.ExpectExec(deleteToken).WithArgs(tok.ID).WillReturnResult(sqlmock.NewResult(0, 1))

		u, err := b.GetUserByToken(ctx, tok.Value)
		require.NoError(t, err)
		assert.Nil(t, u)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fabricated never touches the database", func(t *testing.T) {
		b, _ := newTestBackend(t)
		mock := attachMock(t, b)

		u, err := b.GetUserByToken(ctx, "fabricated")
		require.NoError(t, err)
		assert.Nil(t, u)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage error rolls back", func(t *testing.T) {
		b, iss := newTestBackend(t)
		mock := attachMock(t, b)

		tok, err := iss.Issue(7)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(findToken).WithArgs(tok.ID).WillReturnError(errors.New("db down"))
		mock.ExpectRollback()

		_, err = b.GetUserByToken(ctx, tok.Value)
		assert.ErrorContains(t, err, "db down")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveAndRevokeSessionToken(t *testing.T) {
	b, iss := newTestBackend(t)
	mock := attachMock(t, b)
	ctx := context.Background()

	tok, err := iss.Issue(3)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT\s+INTO\s+session_tokens`).
		WithArgs(tok.ID, int64(3), tok.IssuedAt, tok.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, b.SaveSessionToken(ctx, tok))

	mock.ExpectExec(deleteToken).WithArgs(tok.ID).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, b.RevokeSessionToken(ctx, tok.Value))

	// unparseable tokens have nothing to revoke
	require.NoError(t, b.RevokeSessionToken(ctx, "junk"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationsAndMessages(t *testing.T) {
	b, _ := newTestBackend(t)
	mock := attachMock(t, b)
	ctx := context.Background()

	title := "Test Conversation"
	mock.ExpectQuery(`INSERT\s+INTO\s+conversations`).WithArgs(int64(1), title).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))
	c, err := b.CreateConversation(ctx, 1, &title)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.ID)

	n := 10
	mock.ExpectQuery(`INSERT\s+INTO\s+messages`).WithArgs(int64(5), "user", "Hello", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	m, err := b.AddMessage(ctx, 5, models.MessageRoleUser, "Hello", &n)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)

	_, err = b.AddMessage(ctx, 5, "tool", "x", nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	mock.ExpectQuery(`LIMIT\s+\$2`).WithArgs(int64(5), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "token_count", "created_at"}).
			AddRow(int64(1), int64(5), "user", "Hello", int64(10), time.Now()))
	msgs, err := b.GetConversationMessages(ctx, 5, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	mock.ExpectExec(`DELETE\s+FROM\s+messages`).WithArgs(int64(5), 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	removed, err := b.TruncateConversationMessages(ctx, 5, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	mock.ExpectExec(`DELETE\s+FROM\s+messages`).WithArgs(int64(5), 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err = b.TruncateConversationMessages(ctx, 5, 1)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClose(t *testing.T) {
	b, _ := newTestBackend(t)
	mock := attachMock(t, b)
	mock.ExpectClose()

	require.NoError(t, b.Close(context.Background()))
	assert.False(t, b.Info().Initialized)
	require.NoError(t, b.Close(context.Background()), "second close is a no-op")
	require.NoError(t, mock.ExpectationsWereMet())
}
