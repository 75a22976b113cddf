package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/letsssgooo/quizrunner/internal/codec"
	"github.com/letsssgooo/quizrunner/internal/domain/models"
)

// Persistence хранит две логические записи поверх Store: имя пользователя и
// сериализованную сессию. Вопросы сессии проходят через codec.
type Persistence struct {
	store Store
	log   *slog.Logger
}

// sessionRecord — форма сессии в хранилище.
type sessionRecord struct {
	ID                   string         `json:"id"`
	Username             string         `json:"username"`
	Questions            string         `json:"questions"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	Answers              map[int]string `json:"answers"`
	StartTime            int64          `json:"startTime"`
	Duration             int            `json:"duration"`
	IsCompleted          bool           `json:"isCompleted"`
	PausedAt             *int64         `json:"pausedAt,omitempty"`
	TimeLeft             *int           `json:"timeLeft,omitempty"`
}

// NewPersistence создает Persistence. Если log равен nil, используется slog.Default().
func NewPersistence(store Store, log *slog.Logger) *Persistence {
	if log == nil {
		log = slog.Default()
	}

	return &Persistence{
		store: store,
		log:   log.With("component", "persistence"),
	}
}

// SaveIdentity сохраняет имя текущего пользователя.
func (p *Persistence) SaveIdentity(ctx context.Context, username string) error {
	if err := p.store.Save(ctx, KeyIdentity, username); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	return nil
}

// LoadIdentity возвращает сохраненное имя или пустую строку.
func (p *Persistence) LoadIdentity(ctx context.Context) string {
	username, ok, err := p.store.Load(ctx, KeyIdentity)
	if err != nil {
		p.log.Warn("cannot load identity, treating as absent", "err", err)
		return ""
	}

	if !ok {
		return ""
	}

	return username
}

// SaveSession перезаписывает сохраненную сессию целиком.
func (p *Persistence) SaveSession(ctx context.Context, session *models.Session) error {
	encoded, err := codec.Encode(session.Questions)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	record := sessionRecord{
		ID:                   session.ID,
		Username:             session.Username,
		Questions:            encoded,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		Answers:              session.Answers,
		StartTime:            session.StartTime,
		Duration:             session.Duration,
		IsCompleted:          session.IsCompleted,
		PausedAt:             session.PausedAt,
		TimeLeft:             session.TimeLeft,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if err = p.store.Save(ctx, KeySession, string(data)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// LoadSession возвращает сохраненную сессию. Отсутствующая, поврежденная или
// нарушающая инварианты запись возвращается как nil, ошибка наружу не уходит.
func (p *Persistence) LoadSession(ctx context.Context) *models.Session {
	raw, ok, err := p.store.Load(ctx, KeySession)
	if err != nil {
		p.log.Warn("cannot load session, treating as absent", "err", err)
		return nil
	}

	if !ok || raw == "" {
		return nil
	}

	var record sessionRecord
	if err = json.Unmarshal([]byte(raw), &record); err != nil {
		p.log.Warn("malformed session record, treating as absent", "err", err)
		return nil
	}

	questions, err := codec.Decode(record.Questions)
	if err != nil {
		p.log.Warn("cannot decode session questions, treating as absent", "err", err)
		return nil
	}

	session := &models.Session{
		ID:                   record.ID,
		Username:             record.Username,
		Questions:            questions,
		CurrentQuestionIndex: record.CurrentQuestionIndex,
		Answers:              record.Answers,
		StartTime:            record.StartTime,
		Duration:             record.Duration,
		IsCompleted:          record.IsCompleted,
		PausedAt:             record.PausedAt,
		TimeLeft:             record.TimeLeft,
	}

	if session.Answers == nil {
		session.Answers = make(map[int]string)
	}

	if err = session.Validate(); err != nil {
		p.log.Warn("stored session violates invariants, treating as absent", "err", err)
		return nil
	}

	return session
}

// ClearSession удаляет сохраненную сессию.
func (p *Persistence) ClearSession(ctx context.Context) error {
	if err := p.store.Clear(ctx, KeySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	return nil
}

// ClearAll удаляет обе записи.
func (p *Persistence) ClearAll(ctx context.Context) error {
	if err := p.store.Clear(ctx, KeySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	if err := p.store.Clear(ctx, KeyIdentity); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}

	return nil
}
