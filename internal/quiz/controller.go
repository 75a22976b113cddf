package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
	"github.com/letsssgooo/quizrunner/internal/storage"
)

// Значения по умолчанию
const (
	DefaultDuration      = 600
	DefaultQuestionCount = 10
)

// Таймаут записи в хранилище из обработчика истечения таймера
const timeoutPersist = 3 * time.Second

// Ошибки контроллера
var (
	ErrFetch            = errors.New("failed to load quiz questions")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrEndNotRequested  = errors.New("end of quiz was not requested")
	ErrNoPendingSession = errors.New("no pending session to resume")
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrUnknownAnswer    = errors.New("answer is not one of the options")
	ErrNotAnswered      = errors.New("current question is not answered")
	ErrNoUser           = errors.New("username is not set")
)

// State — состояние контроллера сессии.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// QuestionSource определяет внешний источник вопросов.
type QuestionSource interface {
	// FetchQuestions возвращает упорядоченный список вопросов или ошибку.
	FetchQuestions(ctx context.Context, params models.FetchParams) ([]models.Question, error)
}

// View — снимок того, что сейчас нужно показать пользователю.
type View struct {
	State            State
	Username         string
	Index            int
	Total            int
	Question         *models.Question // nil на паузе и вне активной сессии
	Answers          []string
	Selected         string
	Answered         int
	RemainingSeconds int
	EndRequested     bool
}

// Controller — конечный автомат сессии квиза.
//
// Каждый переход выполняется целиком под мьютексом, включая запись в
// хранилище, поэтому переходы никогда не выполняются одновременно.
// Истечение таймера — такое же событие, как действие пользователя.
type Controller struct {
	mu sync.Mutex

	persistence  *storage.Persistence
	source       QuestionSource
	log          *slog.Logger
	clock        func() time.Time
	newID        func() string
	duration     int
	fetchParams  models.FetchParams
	pollInterval time.Duration
	onComplete   func(models.Result)

	state        State
	username     string
	marker       *BrowsingSession
	session      *models.Session
	pending      *models.Session
	countdown    *Countdown
	endRequested bool
	result       *models.Result
}

// Option настраивает Controller.
type Option func(*Controller)

// WithLogger задает логгер.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock подменяет источник текущего времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDuration задает длительность квиза в секундах.
func WithDuration(seconds int) Option {
	return func(c *Controller) {
		c.duration = seconds
	}
}

// WithFetchParams задает параметры запроса вопросов.
func WithFetchParams(params models.FetchParams) Option {
	return func(c *Controller) {
		c.fetchParams = params
	}
}

// WithPollInterval задает период опроса таймера.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Controller) {
		c.pollInterval = interval
	}
}

// WithOnComplete задает обработчик завершения сессии. Вызывается вне
// блокировки контроллера, в том числе из горутины таймера.
func WithOnComplete(fn func(models.Result)) Option {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// NewController создаёт контроллер в состоянии Idle.
func NewController(persistence *storage.Persistence, source QuestionSource, opts ...Option) *Controller {
	c := &Controller{
		persistence:  persistence,
		source:       source,
		log:          slog.Default(),
		clock:        time.Now,
		newID:        uuid.NewString,
		duration:     DefaultDuration,
		fetchParams:  models.FetchParams{Amount: DefaultQuestionCount},
		pollInterval: DefaultPollInterval,
		state:        StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.fetchParams.Amount <= 0 {
		c.fetchParams.Amount = DefaultQuestionCount
	}

	c.log = c.log.With("component", "quiz")

	return c
}

// Open связывает контроллер с пользователем и решает судьбу сохраненной сессии:
// новая сессия, немедленное возобновление или запрос подтверждения.
func (c *Controller) Open(ctx context.Context, username string, marker *BrowsingSession) (ResumeDecision, error) {
	c.mu.Lock()

	if c.state != StateIdle && c.state != StateCompleted {
		c.mu.Unlock()
		return ResumeNone, fmt.Errorf("%w: open in state %s", ErrInvalidState, c.state)
	}

	if username == "" {
		c.mu.Unlock()
		return ResumeNone, ErrNoUser
	}

	c.username = username
	c.marker = marker
	c.pending = nil
	c.result = nil

	if err := c.persistence.SaveIdentity(ctx, username); err != nil {
		c.log.Warn("cannot persist identity", "err", err)
	}

	stored := c.persistence.LoadSession(ctx)
	decision := DecideResume(stored, username, marker)

	c.log.Debug("open", "username", username, "decision", decision)

	switch decision {
	case ResumeSilent:
		c.resumeLocked(ctx, stored)
		c.mu.Unlock()
		return decision, nil
	case ResumePrompt:
		c.pending = stored
		c.state = StateIdle
		c.mu.Unlock()
		return decision, nil
	}

	c.mu.Unlock()

	return ResumeNone, c.Start(ctx)
}

// Pending возвращает копию сессии, ожидающей подтверждения возобновления.
func (c *Controller) Pending() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending.Clone()
}

// ConfirmResume возобновляет ожидающую сессию: в Active или, если у нее есть
// снимок паузы, в Paused.
func (c *Controller) ConfirmResume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return ErrNoPendingSession
	}

	if c.state != StateIdle {
		return fmt.Errorf("%w: resume in state %s", ErrInvalidState, c.state)
	}

	stored := c.pending
	c.pending = nil
	c.resumeLocked(ctx, stored)

	return nil
}

// StartNew отбрасывает сохраненную сессию и загружает новые вопросы.
func (c *Controller) StartNew(ctx context.Context) error {
	c.mu.Lock()

	if c.state != StateIdle && c.state != StateCompleted {
		c.mu.Unlock()
		return fmt.Errorf("%w: start new in state %s", ErrInvalidState, c.state)
	}

	c.pending = nil
	if err := c.persistence.ClearSession(ctx); err != nil {
		c.log.Warn("cannot clear stored session", "err", err)
	}

	c.mu.Unlock()

	return c.Start(ctx)
}

// Start загружает вопросы и запускает новую сессию с полной длительностью.
// При ошибке загрузки контроллер возвращается в Idle, ничего не сохраняется.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()

	if c.state != StateIdle && c.state != StateCompleted {
		c.mu.Unlock()
		return fmt.Errorf("%w: start in state %s", ErrInvalidState, c.state)
	}

	if c.username == "" {
		c.mu.Unlock()
		return ErrNoUser
	}

	c.state = StateLoading
	c.pending = nil
	c.result = nil
	params := c.fetchParams

	c.mu.Unlock()

	questions, err := c.source.FetchQuestions(ctx, params)
	if err == nil && len(questions) == 0 {
		err = errors.New("question source returned no questions")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Пока шла загрузка, пользователь мог выйти
	if c.state != StateLoading {
		return fmt.Errorf("%w: loading was interrupted", ErrInvalidState)
	}

	if err != nil {
		c.state = StateIdle
		c.log.Warn("cannot fetch questions", "err", err)
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	now := c.clock()
	session := &models.Session{
		ID:        c.newID(),
		Username:  c.username,
		Questions: questions,
		Answers:   make(map[int]string),
		StartTime: now.UnixMilli(),
		Duration:  c.duration,
	}

	c.session = session
	c.endRequested = false
	c.installCountdownLocked(session.Duration)
	c.countdown.Start()
	c.state = StateActive
	c.marker.setOpen(true)

	c.log.Debug("session started", "session_id", session.ID, "questions", len(questions), "duration", session.Duration)

	c.persistLocked(ctx)

	return nil
}

// SelectAnswer записывает ответ на текущий вопрос. Повторный выбор до
// перехода к следующему вопросу перезаписывает предыдущий.
func (c *Controller) SelectAnswer(ctx context.Context, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectLocked(ctx, answer)
}

// Advance переходит к следующему вопросу или завершает сессию после
// последнего. Возвращает результат, если сессия завершена.
func (c *Controller) Advance(ctx context.Context) (*models.Result, error) {
	c.mu.Lock()
	result, err := c.advanceLocked(ctx)
	c.mu.Unlock()

	c.notifyComplete(result)

	return result, err
}

// SubmitAnswer записывает ответ и сразу переходит дальше.
func (c *Controller) SubmitAnswer(ctx context.Context, answer string) (*models.Result, error) {
	c.mu.Lock()

	if err := c.selectLocked(ctx, answer); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	result, err := c.advanceLocked(ctx)
	c.mu.Unlock()

	c.notifyComplete(result)

	return result, err
}

// Pause замораживает таймер и сохраняет снимок паузы. Если время уже
// вышло, сессия завершается вместо паузы.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()

	if c.state != StateActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: pause in state %s", ErrInvalidState, c.state)
	}

	c.countdown.Pause()

	if c.countdown.Remaining() <= 0 {
		result := c.completeLocked(ctx, "time_up")
		c.mu.Unlock()

		c.notifyComplete(result)
		return nil
	}

	defer c.mu.Unlock()

	pausedAt := c.clock().UnixMilli()
	timeLeft := c.countdown.RemainingSeconds()

	c.session.PausedAt = &pausedAt
	c.session.TimeLeft = &timeLeft
	c.state = StatePaused
	c.endRequested = false

	c.log.Debug("session paused", "session_id", c.session.ID, "time_left", timeLeft)

	c.persistLocked(ctx)

	return nil
}

// Unpause продолжает отсчет от замороженного значения. Снимок без
// оставшегося времени сразу завершает сессию.
func (c *Controller) Unpause(ctx context.Context) error {
	c.mu.Lock()

	if c.state != StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("%w: unpause in state %s", ErrInvalidState, c.state)
	}

	if c.countdown.Remaining() <= 0 {
		result := c.completeLocked(ctx, "time_up")
		c.mu.Unlock()

		c.notifyComplete(result)
		return nil
	}

	defer c.mu.Unlock()

	c.endRequested = false
	c.startTimerLocked()

	c.log.Debug("session unpaused", "session_id", c.session.ID, "remaining", c.countdown.RemainingSeconds())

	c.persistLocked(ctx)

	return nil
}

// RequestEnd — первый шаг досрочного завершения.
func (c *Controller) RequestEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive && c.state != StatePaused {
		return fmt.Errorf("%w: end in state %s", ErrInvalidState, c.state)
	}

	c.endRequested = true

	return nil
}

// CancelEnd отменяет запрос досрочного завершения.
func (c *Controller) CancelEnd() {
	c.mu.Lock()
	c.endRequested = false
	c.mu.Unlock()
}

// ConfirmEnd — второй шаг: завершает сессию с имеющимися ответами.
// Неотвеченные вопросы отбрасываются безвозвратно.
func (c *Controller) ConfirmEnd(ctx context.Context) (*models.Result, error) {
	c.mu.Lock()

	if c.state != StateActive && c.state != StatePaused {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: end in state %s", ErrInvalidState, c.state)
	}

	if !c.endRequested {
		c.mu.Unlock()
		return nil, ErrEndNotRequested
	}

	result := c.completeLocked(ctx, "ended")
	c.mu.Unlock()

	c.notifyComplete(result)

	return result, nil
}

// Logout останавливает таймер и удаляет имя и сессию из хранилища.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}

	c.marker.setOpen(false)

	c.state = StateIdle
	c.username = ""
	c.session = nil
	c.pending = nil
	c.result = nil
	c.endRequested = false

	if err := c.persistence.ClearAll(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

// Close останавливает таймер. Сохраненная сессия остается доступной для
// возобновления.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown != nil {
		c.countdown.Stop()
	}
}

// State возвращает текущее состояние.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Result возвращает копию результата завершенной сессии или nil.
func (c *Controller) Result() *models.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.result.Clone()
}

// View возвращает снимок для отображения.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:        c.state,
		Username:     c.username,
		EndRequested: c.endRequested,
	}

	if c.session == nil || (c.state != StateActive && c.state != StatePaused) {
		return v
	}

	v.Index = c.session.CurrentQuestionIndex
	v.Total = len(c.session.Questions)
	v.Answered = len(c.session.Answers)
	v.Selected = c.session.Answers[v.Index]
	v.RemainingSeconds = c.countdown.RemainingSeconds()

	if c.state == StateActive {
		q := c.session.Questions[v.Index]
		v.Question = &q
		v.Answers = q.DisplayAnswers()
	}

	return v
}

func (c *Controller) selectLocked(ctx context.Context, answer string) error {
	if c.state != StateActive {
		return fmt.Errorf("%w: answer in state %s", ErrInvalidState, c.state)
	}

	if answer == "" {
		return ErrEmptyAnswer
	}

	idx := c.session.CurrentQuestionIndex
	if !slices.Contains(c.session.Questions[idx].DisplayAnswers(), answer) {
		return fmt.Errorf("%w: %q", ErrUnknownAnswer, answer)
	}

	// Ответ принимается, пока сессия активна, даже если таймер уже дошел до
	// нуля, а событие истечения еще не обработано.
	c.session.Answers[idx] = answer
	c.endRequested = false

	c.persistLocked(ctx)

	return nil
}

func (c *Controller) advanceLocked(ctx context.Context) (*models.Result, error) {
	if c.state != StateActive {
		return nil, fmt.Errorf("%w: advance in state %s", ErrInvalidState, c.state)
	}

	idx := c.session.CurrentQuestionIndex
	if _, ok := c.session.Answers[idx]; !ok {
		return nil, ErrNotAnswered
	}

	c.endRequested = false

	if idx >= len(c.session.Questions)-1 {
		return c.completeLocked(ctx, "finished"), nil
	}

	c.session.CurrentQuestionIndex++
	c.persistLocked(ctx)

	return nil, nil
}

// resumeLocked восстанавливает сохраненную сессию.
func (c *Controller) resumeLocked(ctx context.Context, stored *models.Session) {
	remaining := RemainingOnResume(stored, c.clock())

	c.session = stored
	c.endRequested = false
	c.installCountdownLocked(stored.Duration)
	c.countdown.SetRemaining(remaining)
	c.marker.setOpen(true)

	if stored.IsPaused() {
		c.state = StatePaused
		c.log.Debug("session resumed paused", "session_id", stored.ID, "remaining", remaining)
		c.persistLocked(ctx)
		return
	}

	c.startTimerLocked()

	c.log.Debug("session resumed", "session_id", stored.ID, "remaining", remaining)

	c.persistLocked(ctx)
}

// startTimerLocked запускает отсчет, снимает снимок паузы и сдвигает якорь
// StartTime так, чтобы он соответствовал уже израсходованному времени.
func (c *Controller) startTimerLocked() {
	c.countdown.Start()

	used := time.Duration(c.session.Duration)*time.Second - c.countdown.Remaining()
	c.session.StartTime = c.clock().Add(-used).UnixMilli()
	c.session.PausedAt = nil
	c.session.TimeLeft = nil
	c.state = StateActive
}

func (c *Controller) installCountdownLocked(duration int) {
	if c.countdown != nil {
		c.countdown.Stop()
	}

	var cd *Countdown
	cd = NewCountdown(
		duration,
		func() { c.handleExpire(cd) },
		WithCountdownClock(c.clock),
		WithCountdownPollInterval(c.pollInterval),
	)

	c.countdown = cd
}

// handleExpire обрабатывает истечение таймера cd. Событие от таймера,
// который уже заменен, игнорируется.
func (c *Controller) handleExpire(cd *Countdown) {
	c.mu.Lock()

	if c.countdown != cd || c.state != StateActive {
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPersist)
	defer cancel()

	result := c.completeLocked(ctx, "time_up")
	c.mu.Unlock()

	c.notifyComplete(result)
}

func (c *Controller) completeLocked(ctx context.Context, reason string) *models.Result {
	c.countdown.Stop()

	remaining := c.countdown.RemainingSeconds()
	timeUsed := c.session.Duration - remaining

	c.session.IsCompleted = true
	c.session.PausedAt = nil
	c.session.TimeLeft = nil

	result := Compute(c.session.Questions, c.session.Answers, timeUsed)
	c.result = &result
	c.state = StateCompleted
	c.endRequested = false
	c.marker.setOpen(false)

	if err := c.persistence.ClearSession(ctx); err != nil {
		c.log.Warn("cannot clear completed session", "session_id", c.session.ID, "err", err)
	}

	c.log.Info("session completed",
		"session_id", c.session.ID,
		"reason", reason,
		"score", result.Score,
		"answered", result.AnsweredQuestions,
		"time_used", result.TimeUsed,
	)

	return result.Clone()
}

// persistLocked сохраняет сессию целиком. Ошибка записи не прерывает
// переход: в худшем случае теряется прогресс текущей сессии.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.session == nil || c.session.IsCompleted {
		return
	}

	if err := c.persistence.SaveSession(ctx, c.session); err != nil {
		c.log.Warn("cannot persist session", "session_id", c.session.ID, "err", err)
	}
}

func (c *Controller) notifyComplete(result *models.Result) {
	if result == nil || c.onComplete == nil {
		return
	}

	c.onComplete(*result)
}
