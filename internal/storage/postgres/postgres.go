package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/letsssgooo/quizrunner/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Storage реализует storage.Store поверх PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage подключается к базе по dsn и создает таблицу, если её нет.
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err = pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.pool.Close()
}

// Save сохраняет значение по ключу.
func (s *Storage) Save(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	query := `
	INSERT INTO quiz_kv (key, value, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, key, value, time.Now().UTC())

	return err
}

// Load возвращает значение по ключу.
func (s *Storage) Load(ctx context.Context, key string) (string, bool, error) {
	query := `
		SELECT value FROM quiz_kv WHERE key = $1
	`

	var value string
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Clear удаляет ключ.
func (s *Storage) Clear(ctx context.Context, key string) error {
	query := `
	DELETE FROM quiz_kv WHERE key = $1
	`

	_, err := s.pool.Exec(ctx, query, key)

	return err
}

var _ storage.Store = (*Storage)(nil)
