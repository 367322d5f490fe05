package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// UserRecord is a stored account.
type UserRecord struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshRecord is a stored refresh token. Only the HMAC of the token is kept.
type RefreshRecord struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// Revoked reports whether the record was explicitly revoked.
func (r RefreshRecord) Revoked() bool { return !r.RevokedAt.IsZero() }

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u UserRecord) error
	UserByID(ctx context.Context, id string) (UserRecord, error)
	UserByLogin(ctx context.Context, emailOrUsername string) (UserRecord, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
}

// RefreshStore persists refresh tokens.
type RefreshStore interface {
	SaveRefresh(ctx context.Context, r RefreshRecord) error
	RefreshByHash(ctx context.Context, tokenHash string) (RefreshRecord, error)
	RevokeRefresh(ctx context.Context, tokenHash string, at time.Time) error
	DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error)
}

// OpenDB opens the SQLite database at path and applies migrations. ":memory:"
// opens a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}
	return db, nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE COLLATE NOCASE,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

const createRefreshTokensTable = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	token_hash TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at INTEGER NOT NULL,
	revoked_at INTEGER NOT NULL DEFAULT 0
)`

const createRefreshIndices = `
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at)`

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("could not enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}

	migrations := []struct {
		version int
		name    string
		sql     string
	}{
		{1, "create_users_table", createUsersTable},
		{2, "create_refresh_tokens_table", createRefreshTokensTable},
		{3, "create_refresh_indices", createRefreshIndices},
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := db.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SQLiteStore implements UserStore and RefreshStore.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

var (
	_ UserStore    = (*SQLiteStore)(nil)
	_ RefreshStore = (*SQLiteStore)(nil)
)

func (s *SQLiteStore) CreateUser(ctx context.Context, u UserRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt.Unix())
	if err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (s *SQLiteStore) UserByID(ctx context.Context, id string) (UserRecord, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id))
}

// UserByLogin matches either column case-insensitively.
func (s *SQLiteStore) UserByLogin(ctx context.Context, emailOrUsername string) (UserRecord, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = ? OR email = ? LIMIT 1",
		emailOrUsername, emailOrUsername))
}

func (s *SQLiteStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username)
}

func (s *SQLiteStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email)
}

func (s *SQLiteStore) SaveRefresh(ctx context.Context, r RefreshRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, expires_at, revoked_at) VALUES (?, ?, ?, 0)",
		r.TokenHash, r.UserID, r.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RefreshByHash(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	var (
		r                  RefreshRecord
		expires, revokedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT token_hash, user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?", tokenHash).
		Scan(&r.TokenHash, &r.UserID, &expires, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RefreshRecord{}, ErrInvalidToken
	}
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("load refresh token: %w", err)
	}
	r.ExpiresAt = time.Unix(expires, 0).UTC()
	if revokedAt > 0 {
		r.RevokedAt = time.Unix(revokedAt, 0).UTC()
	}
	return r, nil
}

// RevokeRefresh marks the token revoked. Revoking an unknown or already
// revoked token is not an error.
func (s *SQLiteStore) RevokeRefresh(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at = 0", at.Unix(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) scanUser(row *sql.Row) (UserRecord, error) {
	var (
		u       UserRecord
		created int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("load user: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *SQLiteStore) exists(ctx context.Context, query string, arg string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return count > 0, nil
}

// mapConstraintErr turns a unique violation into the matching conflict error.
func mapConstraintErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "users.username"):
			return ErrUsernameTaken
		case strings.Contains(msg, "users.email"):
			return ErrEmailTaken
		}
	}
	return fmt.Errorf("create user: %w", err)
}
