// Package codec обратимо преобразует список вопросов перед записью в хранилище.
//
// Это обфускация, а не шифрование: кодек не является границей безопасности.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
)

// ErrDecode возвращается, если строку не удалось раскодировать.
var ErrDecode = errors.New("codec: cannot decode questions")

var encoding = base64.RawURLEncoding

// Encode сериализует вопросы в JSON, переворачивает байты и кодирует в base64.
func Encode(questions []models.Question) (string, error) {
	if questions == nil {
		questions = []models.Question{}
	}

	data, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("codec: marshal questions: %w", err)
	}

	reverse(data)

	return encoding.EncodeToString(data), nil
}

// Decode обращает Encode.
func Decode(s string) ([]models.Question, error) {
	data, err := encoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	reverse(data)

	var questions []models.Question
	if err = json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if questions == nil {
		return nil, fmt.Errorf("%w: not a question list", ErrDecode)
	}

	return questions, nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
