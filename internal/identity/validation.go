package identity

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseUsername валидирует введенное имя и отдает его без пробелов по краям.
// Это не проверка подлинности: имя нужно только чтобы отличать сохраненные сессии.
func ParseUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)

	if username == "" {
		return "", fmt.Errorf("%w, please enter a username", ErrValidation)
	}

	if utf8.RuneCountInString(username) < MinUsernameLength {
		return "", fmt.Errorf("%w, username must be at least %d characters", ErrValidation, MinUsernameLength)
	}

	return username, nil
}
