package identity

import "errors"

// Ошибки проверки имени
var ErrValidation = errors.New("validation error")

// MinUsernameLength — минимальная длина имени в символах.
const MinUsernameLength = 2
