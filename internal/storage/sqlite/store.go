// Package sqlite предоставляет локальное key-value хранилище на SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/letsssgooo/quizrunner/internal/storage"

	_ "modernc.org/sqlite" // driver: sqlite
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store реализует storage.Store поверх одной таблицы kv.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open открывает базу по пути path и создает таблицу, если её нет.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err = sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close закрывает соединение.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}

	return s.sqlDB.Close()
}

// Save сохраняет значение по ключу.
func (s *Store) Save(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := s.sqlDB.ExecContext(ctx, query, key, value, s.clock().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save key %q: %w", key, err)
	}

	return nil
}

// Load возвращает значение по ключу.
func (s *Store) Load(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("load key %q: %w", key, err)
	}

	return value, true, nil
}

// Clear удаляет ключ.
func (s *Store) Clear(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear key %q: %w", key, err)
	}

	return nil
}

var _ storage.Store = (*Store)(nil)
