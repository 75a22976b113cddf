package storage

import (
	"context"
	"errors"
)

// Store определяет интерфейс плоского строкового key-value хранилища.
type Store interface {
	// Save сохраняет значение по ключу, перезаписывая предыдущее.
	Save(ctx context.Context, key, value string) error

	// Load возвращает значение по ключу. Второе значение false, если ключа нет.
	Load(ctx context.Context, key string) (string, bool, error)

	// Clear удаляет ключ. Удаление отсутствующего ключа не ошибка.
	Clear(ctx context.Context, key string) error
}

// Ключи логических записей
const (
	KeyIdentity = "quiz_identity"
	KeySession  = "quiz_session"
)

// ErrEmptyKey возвращается при попытке работы с пустым ключом.
var ErrEmptyKey = errors.New("storage: empty key")
