package storage

import (
	"context"
	"sync"
)

// MemoryStorage реализует Store в памяти.
type MemoryStorage struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMemoryStorage создаёт новый MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]string),
	}
}

// Save сохраняет значение.
func (s *MemoryStorage) Save(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()

	return nil
}

// Load возвращает значение по ключу.
func (s *MemoryStorage) Load(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]

	return value, ok, nil
}

// Clear удаляет ключ.
func (s *MemoryStorage) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return nil
}
