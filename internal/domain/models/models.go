package models

// Файл с моделями предметной области, которые доступны извне.
// Контроллер сессии создает экземпляры моделей, заполняет их данными и
// передает в хранилище и калькулятор результата.

// Типы вопросов
const (
	TypeMultiple = "multiple"
	TypeBoolean  = "boolean"
)

// Уровни сложности
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question представляет вопрос квиза в том виде, в каком его отдает источник вопросов.
type Question struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`

	// ShuffledAnswers фиксирует порядок вариантов при загрузке, чтобы
	// повторный показ вопроса не перемешивал их заново.
	ShuffledAnswers []string `json:"shuffled_answers,omitempty"`
}

// DisplayAnswers возвращает варианты ответа в порядке показа.
func (q Question) DisplayAnswers() []string {
	if len(q.ShuffledAnswers) > 0 {
		out := make([]string, len(q.ShuffledAnswers))
		copy(out, q.ShuffledAnswers)
		return out
	}

	out := make([]string, 0, len(q.IncorrectAnswers)+1)
	out = append(out, q.CorrectAnswer)
	out = append(out, q.IncorrectAnswers...)

	return out
}

// Session представляет одну попытку прохождения квиза пользователем.
type Session struct {
	// ID нужен только для логов, в логике переходов не участвует.
	ID                   string         `json:"id"`
	Username             string         `json:"username"`
	Questions            []Question     `json:"questions"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	Answers              map[int]string `json:"answers"`

	// StartTime — якорь таймера в миллисекундах эпохи: момент, когда
	// оставшееся время было равно Duration. Сдвигается при снятии с паузы.
	StartTime   int64 `json:"startTime"`
	Duration    int   `json:"duration"`
	IsCompleted bool  `json:"isCompleted"`

	// PausedAt и TimeLeft либо заданы оба, либо не заданы.
	PausedAt *int64 `json:"pausedAt,omitempty"`
	TimeLeft *int   `json:"timeLeft,omitempty"`
}

// IsPaused сообщает, есть ли у сессии снимок паузы.
func (s *Session) IsPaused() bool {
	return s.PausedAt != nil && s.TimeLeft != nil
}

// Clone возвращает глубокую копию сессии.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s

	out.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.IncorrectAnswers = append([]string(nil), q.IncorrectAnswers...)
		if q.ShuffledAnswers != nil {
			q.ShuffledAnswers = append([]string(nil), q.ShuffledAnswers...)
		}
		out.Questions[i] = q
	}

	out.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}

	if s.PausedAt != nil {
		pausedAt := *s.PausedAt
		out.PausedAt = &pausedAt
	}

	if s.TimeLeft != nil {
		timeLeft := *s.TimeLeft
		out.TimeLeft = &timeLeft
	}

	return &out
}

// QuestionResult — разбор одного вопроса в итоговом результате.
type QuestionResult struct {
	Question      string   `json:"question"`
	UserAnswer    string   `json:"userAnswer"`
	IsCorrect     bool     `json:"isCorrect"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	AllAnswers    []string `json:"allAnswers"`
}

// Result содержит результат завершенной сессии. Не сохраняется.
type Result struct {
	TotalQuestions    int              `json:"totalQuestions"`
	AnsweredQuestions int              `json:"answeredQuestions"`
	CorrectAnswers    int              `json:"correctAnswers"`
	IncorrectAnswers  int              `json:"incorrectAnswers"`
	Score             int              `json:"score"`
	TimeUsed          int              `json:"timeUsed"`
	QuestionResults   []QuestionResult `json:"questionResults"`
}

// FetchParams — параметры запроса к источнику вопросов. Нулевые значения
// необязательных полей означают «любой».
type FetchParams struct {
	Amount     int
	Category   int
	Difficulty string
	Type       string
}

// Clone возвращает глубокую копию результата.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}

	out := *r

	out.QuestionResults = make([]QuestionResult, len(r.QuestionResults))
	for i, qr := range r.QuestionResults {
		qr.AllAnswers = append([]string(nil), qr.AllAnswers...)
		out.QuestionResults[i] = qr
	}

	return &out
}
