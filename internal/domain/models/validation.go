package models

import (
	"errors"
	"fmt"
)

// ErrInvalid возвращается, если модель нарушает инварианты.
var ErrInvalid = errors.New("invalid model")

// Validate проверяет на корректность структуру вопроса
func (q Question) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("%w: missing field question", ErrInvalid)
	}

	if q.CorrectAnswer == "" {
		return fmt.Errorf("%w: missing field correct_answer", ErrInvalid)
	}

	switch q.Type {
	case TypeMultiple, TypeBoolean:
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalid, q.Type)
	}

	switch q.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalid, q.Difficulty)
	}

	if len(q.IncorrectAnswers) == 0 {
		return fmt.Errorf("%w: need at least one incorrect answer", ErrInvalid)
	}

	seen := make(map[string]int, len(q.IncorrectAnswers)+1)
	seen[q.CorrectAnswer]++
	for _, answer := range q.IncorrectAnswers {
		if answer == q.CorrectAnswer {
			return fmt.Errorf("%w: correct answer %q duplicated in incorrect answers", ErrInvalid, answer)
		}
		seen[answer]++
	}

	if q.ShuffledAnswers == nil {
		return nil
	}

	if len(q.ShuffledAnswers) != len(q.IncorrectAnswers)+1 {
		return fmt.Errorf("%w: shuffled answers are not a permutation of answers", ErrInvalid)
	}

	for _, answer := range q.ShuffledAnswers {
		if seen[answer] == 0 {
			return fmt.Errorf("%w: shuffled answers are not a permutation of answers", ErrInvalid)
		}
		seen[answer]--
	}

	return nil
}

// Validate проверяет инварианты сессии. Сессия, не прошедшая проверку,
// считается отсутствующей.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalid)
	}

	if s.Username == "" {
		return fmt.Errorf("%w: missing username", ErrInvalid)
	}

	if s.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalid)
	}

	if len(s.Questions) == 0 {
		return fmt.Errorf("%w: need at least one question", ErrInvalid)
	}

	for i, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}

	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return fmt.Errorf("%w: current question index %d is out of range", ErrInvalid, s.CurrentQuestionIndex)
	}

	for idx := range s.Answers {
		if idx < 0 || idx >= len(s.Questions) {
			return fmt.Errorf("%w: answer index %d is out of range", ErrInvalid, idx)
		}
	}

	if (s.PausedAt == nil) != (s.TimeLeft == nil) {
		return fmt.Errorf("%w: pausedAt and timeLeft must be set together", ErrInvalid)
	}

	if s.TimeLeft != nil && *s.TimeLeft < 0 {
		return fmt.Errorf("%w: negative timeLeft", ErrInvalid)
	}

	return nil
}
