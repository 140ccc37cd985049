package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Backend persists session-scoped string values. Implementations must be
// safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryBackend keeps values for the lifetime of the process.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// SQLiteBackend keeps values in a small key/value table so they survive a
// process restart within the same session file.
type SQLiteBackend struct {
	db *sql.DB

	get *sql.Stmt
	set *sql.Stmt
	del *sql.Stmt
}

// OpenSQLiteBackend opens (creating if needed) the sqlite file at path and
// applies pending migrations.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("session: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers on file databases.
	db.SetMaxOpenConns(1)

	b, err := NewSQLiteBackend(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLiteBackend wraps an already-opened database, migrating it first.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if err := NewMigrationRunner(db).Run(); err != nil {
		return nil, fmt.Errorf("run session migrations: %w", err)
	}

	b := &SQLiteBackend{db: db}
	var err error

	b.get, err = db.Prepare(`SELECT value FROM session_values WHERE key = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare get: %w", err)
	}
	b.set, err = db.Prepare(`
		INSERT INTO session_values (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare set: %w", err)
	}
	b.del, err = db.Prepare(`DELETE FROM session_values WHERE key = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare delete: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := b.get.QueryRowContext(ctx, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session get %q: %w", key, err)
	}
	return v, true, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	if _, err := b.set.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("session set %q: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.del.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("session delete %q: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	for _, st := range []*sql.Stmt{b.get, b.set, b.del} {
		if st != nil {
			st.Close()
		}
	}
	return b.db.Close()
}
