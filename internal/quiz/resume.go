package quiz

import (
	"sync"
	"time"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
)

// BrowsingSession — признак «квиз уже открыт в этом сеансе работы».
//
// Живет столько же, сколько процесс (или вкладка), и не сохраняется в
// хранилище. Передается в решение о возобновлении явно.
type BrowsingSession struct {
	mu   sync.Mutex
	open bool
}

// NewBrowsingSession создает признак в состоянии «квиз не открыт».
func NewBrowsingSession() *BrowsingSession {
	return &BrowsingSession{}
}

// QuizOpen сообщает, открыт ли квиз в этом сеансе. nil означает «не открыт».
func (b *BrowsingSession) QuizOpen() bool {
	if b == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.open
}

func (b *BrowsingSession) setOpen(open bool) {
	if b == nil {
		return
	}

	b.mu.Lock()
	b.open = open
	b.mu.Unlock()
}

// ResumeDecision — результат решения о возобновлении сохраненной сессии.
type ResumeDecision string

const (
	// ResumeNone — возобновлять нечего, начинается новая сессия.
	ResumeNone ResumeDecision = "none"
	// ResumeSilent — квиз уже открыт в этом сеансе (например, перезагрузка),
	// сессия возобновляется сразу.
	ResumeSilent ResumeDecision = "silent"
	// ResumePrompt — возврат после полного закрытия, нужно подтверждение.
	ResumePrompt ResumeDecision = "prompt"
)

// DecideResume решает, можно ли возобновить сохраненную сессию для username.
// Завершенная сессия или сессия другого пользователя не возобновляется.
func DecideResume(stored *models.Session, username string, marker *BrowsingSession) ResumeDecision {
	if stored == nil || stored.IsCompleted || username == "" || stored.Username != username {
		return ResumeNone
	}

	if marker.QuizOpen() {
		return ResumeSilent
	}

	return ResumePrompt
}

// RemainingOnResume вычисляет оставшиеся секунды для восстанавливаемой сессии.
//
// При наличии снимка паузы берется замороженное значение как есть. Иначе
// время считается от StartTime до момента паузы или до now, с ограничением
// снизу нулем и сверху полной длительностью (часы, ушедшие назад).
func RemainingOnResume(s *models.Session, now time.Time) int {
	if s.TimeLeft != nil {
		return clampSeconds(*s.TimeLeft, s.Duration)
	}

	ref := now.UnixMilli()
	if s.PausedAt != nil {
		ref = *s.PausedAt
	}

	elapsed := ref - s.StartTime
	if elapsed < 0 {
		elapsed = 0
	}

	return clampSeconds(s.Duration-int(elapsed/1000), s.Duration)
}

func clampSeconds(v, upper int) int {
	if v < 0 {
		return 0
	}
	if v > upper {
		return upper
	}

	return v
}
