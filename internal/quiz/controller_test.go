package quiz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
	"github.com/letsssgooo/quizrunner/internal/storage"
)

type fakeSource struct {
	mu     sync.Mutex
	count  int
	err    error
	empty  bool
	calls  int
	params models.FetchParams
}

func (s *fakeSource) FetchQuestions(_ context.Context, params models.FetchParams) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.params = params

	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return nil, nil
	}

	return makeQuestions(s.count), nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type harness struct {
	ctrl        *Controller
	persistence *storage.Persistence
	store       *storage.MemoryStorage
	clock       *fakeClock
	source      *fakeSource
	results     chan models.Result
}

// newHarness собирает контроллер поверх store и clock. nil означает новые.
// Таймер опрашивается только вручную через pollTimer.
func newHarness(t *testing.T, store *storage.MemoryStorage, clock *fakeClock, opts ...Option) *harness {
	t.Helper()

	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if clock == nil {
		clock = newFakeClock()
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		persistence: storage.NewPersistence(store, log),
		store:       store,
		clock:       clock,
		source:      &fakeSource{count: 10},
		results:     make(chan models.Result, 4),
	}

	base := []Option{
		WithLogger(log),
		WithClock(clock.Now),
		WithDuration(300),
		WithPollInterval(manualPoll),
		WithOnComplete(func(r models.Result) { h.results <- r }),
	}

	h.ctrl = NewController(h.persistence, h.source, append(base, opts...)...)
	t.Cleanup(h.ctrl.Close)

	return h
}

func pollTimer(c *Controller) {
	c.mu.Lock()
	cd := c.countdown
	c.mu.Unlock()

	cd.Poll()
}

func TestController_FreshStartPersistsImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	marker := NewBrowsingSession()

	decision, err := h.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)
	assert.Equal(t, ResumeNone, decision)
	assert.Equal(t, StateActive, h.ctrl.State())
	assert.True(t, marker.QuizOpen())
	assert.Equal(t, DefaultQuestionCount, h.source.params.Amount)

	stored := h.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, 0, stored.CurrentQuestionIndex)
	assert.Empty(t, stored.Answers)
	assert.Equal(t, 300, stored.Duration)
	assert.Equal(t, h.clock.Now().UnixMilli(), stored.StartTime)
	assert.NotEmpty(t, stored.ID)
	assert.Len(t, stored.Questions, 10)

	assert.Equal(t, "alice", h.persistence.LoadIdentity(ctx))

	view := h.ctrl.View()
	assert.Equal(t, StateActive, view.State)
	assert.Equal(t, 0, view.Index)
	assert.Equal(t, 10, view.Total)
	assert.Equal(t, 300, view.RemainingSeconds)
	require.NotNil(t, view.Question)
	assert.Equal(t, "Question 1?", view.Question.Question)
	assert.Equal(t, []string{"A0", "B0", "C0"}, view.Answers)
}

func TestController_FetchFailureLeavesIdle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	h.source.err = errors.New("connection refused")

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateIdle, h.ctrl.State())

	_, ok, err := h.store.Load(ctx, storage.KeySession)
	require.NoError(t, err)
	assert.False(t, ok)

	h.source.mu.Lock()
	h.source.err = nil
	h.source.empty = true
	h.source.mu.Unlock()

	err = h.ctrl.Start(ctx)
	require.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateIdle, h.ctrl.State())

	h.source.mu.Lock()
	h.source.empty = false
	h.source.mu.Unlock()

	require.NoError(t, h.ctrl.Start(ctx))
	assert.Equal(t, StateActive, h.ctrl.State())
	assert.Equal(t, 3, h.source.Calls())
}

func TestController_StartRequiresUser(t *testing.T) {
	h := newHarness(t, nil, nil)

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrNoUser)

	_, err := h.ctrl.Open(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestController_SelectAnswerOverwritesUntilAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	require.NoError(t, h.ctrl.SelectAnswer(ctx, "B0"))
	require.NoError(t, h.ctrl.SelectAnswer(ctx, "A0"))
	require.NoError(t, h.ctrl.SelectAnswer(ctx, "A0"))

	stored := h.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, map[int]string{0: "A0"}, stored.Answers)
	assert.Equal(t, 0, stored.CurrentQuestionIndex)
	assert.Equal(t, "A0", h.ctrl.View().Selected)

	assert.ErrorIs(t, h.ctrl.SelectAnswer(ctx, ""), ErrEmptyAnswer)
	assert.ErrorIs(t, h.ctrl.SelectAnswer(ctx, "Z"), ErrUnknownAnswer)

	result, err := h.ctrl.Advance(ctx)
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = h.ctrl.Advance(ctx)
	assert.ErrorIs(t, err, ErrNotAnswered)

	stored = h.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.CurrentQuestionIndex)
}

func TestController_AllCorrect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	marker := NewBrowsingSession()

	_, err := h.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)

	var result *models.Result
	for i := 0; i < 10; i++ {
		h.clock.Advance(4500 * time.Millisecond)

		view := h.ctrl.View()
		require.Equal(t, i, view.Index)

		result, err = h.ctrl.SubmitAnswer(ctx, view.Question.CorrectAnswer)
		require.NoError(t, err)

		if i < 9 {
			require.Nil(t, result)
		}
	}

	require.NotNil(t, result)
	assert.Equal(t, 10, result.TotalQuestions)
	assert.Equal(t, 10, result.AnsweredQuestions)
	assert.Equal(t, 10, result.CorrectAnswers)
	assert.Equal(t, 0, result.IncorrectAnswers)
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, 45, result.TimeUsed)

	assert.Equal(t, StateCompleted, h.ctrl.State())
	assert.Equal(t, *result, *h.ctrl.Result())
	assert.Equal(t, *result, <-h.results)
	assert.False(t, marker.QuizOpen())
	assert.Nil(t, h.persistence.LoadSession(ctx))

	_, err = h.ctrl.SubmitAnswer(ctx, "A0")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_TimerExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	for _, answer := range []string{"A0", "A1", "B2", "A3"} {
		_, err = h.ctrl.SubmitAnswer(ctx, answer)
		require.NoError(t, err)
	}

	h.clock.Advance(299 * time.Second)
	pollTimer(h.ctrl)
	assert.Equal(t, StateActive, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.View().RemainingSeconds)

	h.clock.Advance(time.Second)
	pollTimer(h.ctrl)

	require.Equal(t, StateCompleted, h.ctrl.State())

	result := <-h.results
	assert.Equal(t, 10, result.TotalQuestions)
	assert.Equal(t, 4, result.AnsweredQuestions)
	assert.Equal(t, 3, result.CorrectAnswers)
	assert.Equal(t, 1, result.IncorrectAnswers)
	assert.Equal(t, 30, result.Score)
	assert.Equal(t, 300, result.TimeUsed)

	require.Len(t, result.QuestionResults, 10)
	for _, qr := range result.QuestionResults[4:] {
		assert.Empty(t, qr.UserAnswer)
		assert.False(t, qr.IsCorrect)
	}

	assert.Nil(t, h.persistence.LoadSession(ctx))

	// Повторное событие истечения ничего не меняет
	pollTimer(h.ctrl)
	select {
	case <-h.results:
		t.Fatal("completion reported twice")
	default:
	}
}

func TestController_AnswerAcceptedBeforeExpiryIsHandled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	h.clock.Advance(301 * time.Second)

	require.NoError(t, h.ctrl.SelectAnswer(ctx, "A0"))

	pollTimer(h.ctrl)
	require.Equal(t, StateCompleted, h.ctrl.State())

	result := h.ctrl.Result()
	require.NotNil(t, result)
	assert.Equal(t, 1, result.AnsweredQuestions)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 300, result.TimeUsed)
}

func TestController_StaleExpiryIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	h.ctrl.handleExpire(NewCountdown(1, nil))

	assert.Equal(t, StateActive, h.ctrl.State())
	assert.NotNil(t, h.persistence.LoadSession(ctx))
}

func TestController_PauseSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	_, err = first.ctrl.SubmitAnswer(ctx, "A0")
	require.NoError(t, err)

	first.clock.Advance(180 * time.Second)
	require.NoError(t, first.ctrl.Pause(ctx))

	view := first.ctrl.View()
	assert.Equal(t, StatePaused, view.State)
	assert.Equal(t, 120, view.RemainingSeconds)
	assert.Nil(t, view.Question)

	stored := first.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	require.True(t, stored.IsPaused())
	assert.Equal(t, 120, *stored.TimeLeft)
	assert.Equal(t, first.clock.Now().UnixMilli(), *stored.PausedAt)

	assert.ErrorIs(t, first.ctrl.Pause(ctx), ErrInvalidState)
	_, err = first.ctrl.SubmitAnswer(ctx, "A1")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Перезапуск процесса
	first.ctrl.Close()
	first.clock.Advance(time.Hour)

	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	assert.Equal(t, ResumePrompt, decision)
	assert.Equal(t, StateIdle, second.ctrl.State())

	pending := second.ctrl.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, 1, pending.CurrentQuestionIndex)

	require.NoError(t, second.ctrl.ConfirmResume(ctx))
	assert.Equal(t, StatePaused, second.ctrl.State())
	assert.Equal(t, 120, second.ctrl.View().RemainingSeconds)
	assert.Equal(t, 0, second.source.Calls())

	require.NoError(t, second.ctrl.Unpause(ctx))
	assert.Equal(t, StateActive, second.ctrl.State())
	assert.Equal(t, 120, second.ctrl.View().RemainingSeconds)

	stored = second.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.False(t, stored.IsPaused())
	assert.Equal(t, second.clock.Now().Add(-180*time.Second).UnixMilli(), stored.StartTime)

	second.clock.Advance(20 * time.Second)
	assert.Equal(t, 100, second.ctrl.View().RemainingSeconds)

	assert.ErrorIs(t, second.ctrl.Unpause(ctx), ErrInvalidState)
	assert.ErrorIs(t, second.ctrl.ConfirmResume(ctx), ErrNoPendingSession)
}

func TestController_SilentResumeCountsWallClock(t *testing.T) {
	ctx := context.Background()
	marker := NewBrowsingSession()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)

	first.clock.Advance(100 * time.Second)
	first.ctrl.Close()

	// Перезагрузка в том же сеансе работы
	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)
	assert.Equal(t, ResumeSilent, decision)
	assert.Equal(t, StateActive, second.ctrl.State())
	assert.Equal(t, 200, second.ctrl.View().RemainingSeconds)
	assert.Equal(t, 0, second.source.Calls())
}

func TestController_ResumeAfterDeadlineCompletes(t *testing.T) {
	ctx := context.Background()
	marker := NewBrowsingSession()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)
	require.NoError(t, first.ctrl.SelectAnswer(ctx, "A0"))

	first.ctrl.Close()
	first.clock.Advance(400 * time.Second)

	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)
	assert.Equal(t, ResumeSilent, decision)
	assert.Equal(t, 0, second.ctrl.View().RemainingSeconds)

	pollTimer(second.ctrl)
	require.Equal(t, StateCompleted, second.ctrl.State())

	result := <-second.results
	assert.Equal(t, 1, result.AnsweredQuestions)
	assert.Equal(t, 300, result.TimeUsed)
	assert.Nil(t, second.persistence.LoadSession(ctx))
}

func TestController_DifferentUserStartsFresh(t *testing.T) {
	ctx := context.Background()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	first.ctrl.Close()

	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "bob", NewBrowsingSession())
	require.NoError(t, err)
	assert.Equal(t, ResumeNone, decision)
	assert.Equal(t, StateActive, second.ctrl.State())
	assert.Equal(t, 1, second.source.Calls())

	stored := second.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, "bob", stored.Username)
}

func TestController_CorruptStoreStartsFresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	require.NoError(t, h.store.Save(ctx, storage.KeySession, "{not json"))

	decision, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	assert.Equal(t, ResumeNone, decision)
	assert.Equal(t, StateActive, h.ctrl.State())

	stored := h.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.Username)
}

func TestController_StartNewDiscardsPending(t *testing.T) {
	ctx := context.Background()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	_, err = first.ctrl.SubmitAnswer(ctx, "A0")
	require.NoError(t, err)
	first.ctrl.Close()

	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	require.Equal(t, ResumePrompt, decision)

	require.NoError(t, second.ctrl.StartNew(ctx))
	assert.Equal(t, StateActive, second.ctrl.State())
	assert.Nil(t, second.ctrl.Pending())

	stored := second.persistence.LoadSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.CurrentQuestionIndex)
	assert.Empty(t, stored.Answers)
}

func TestController_EndRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	_, err = h.ctrl.SubmitAnswer(ctx, "A0")
	require.NoError(t, err)

	_, err = h.ctrl.ConfirmEnd(ctx)
	assert.ErrorIs(t, err, ErrEndNotRequested)

	require.NoError(t, h.ctrl.RequestEnd())
	assert.True(t, h.ctrl.View().EndRequested)

	h.ctrl.CancelEnd()
	assert.False(t, h.ctrl.View().EndRequested)

	_, err = h.ctrl.ConfirmEnd(ctx)
	assert.ErrorIs(t, err, ErrEndNotRequested)
	assert.Equal(t, StateActive, h.ctrl.State())

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.ctrl.Pause(ctx))
	require.NoError(t, h.ctrl.RequestEnd())

	result, err := h.ctrl.ConfirmEnd(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.AnsweredQuestions)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 10, result.Score)
	assert.Equal(t, 30, result.TimeUsed)
	assert.Equal(t, StateCompleted, h.ctrl.State())
	assert.Nil(t, h.persistence.LoadSession(ctx))

	assert.ErrorIs(t, h.ctrl.RequestEnd(), ErrInvalidState)
}

func TestController_StartAfterCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)

	require.NoError(t, h.ctrl.RequestEnd())
	_, err = h.ctrl.ConfirmEnd(ctx)
	require.NoError(t, err)

	require.NoError(t, h.ctrl.StartNew(ctx))
	assert.Equal(t, StateActive, h.ctrl.State())
	assert.Nil(t, h.ctrl.Result())
	assert.Equal(t, 300, h.ctrl.View().RemainingSeconds)
	assert.Equal(t, 2, h.source.Calls())
}

func TestController_Logout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	marker := NewBrowsingSession()

	_, err := h.ctrl.Open(ctx, "alice", marker)
	require.NoError(t, err)

	require.NoError(t, h.ctrl.Logout(ctx))

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.ctrl.View().Username)
	assert.False(t, marker.QuizOpen())
	assert.Empty(t, h.persistence.LoadIdentity(ctx))
	assert.Nil(t, h.persistence.LoadSession(ctx))

	assert.ErrorIs(t, h.ctrl.Start(ctx), ErrNoUser)
}

func TestController_PauseRacingExpiryStillCompletes(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		h := newHarness(t, nil, nil)

		_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
		require.NoError(t, err)
		_, err = h.ctrl.SubmitAnswer(ctx, "A0")
		require.NoError(t, err)

		// Таймер доходит до нуля, пока контроллер занят другим переходом
		h.ctrl.mu.Lock()
		cd := h.ctrl.countdown
		h.clock.Advance(301 * time.Second)

		polled := make(chan struct{})
		go func() {
			defer close(polled)
			cd.Poll()
		}()

		require.Eventually(t, func() bool {
			cd.mu.Lock()
			defer cd.mu.Unlock()
			return cd.expired
		}, time.Second, time.Millisecond)
		h.ctrl.mu.Unlock()

		_ = h.ctrl.Pause(ctx)
		_ = h.ctrl.Unpause(ctx)
		<-polled

		require.Equal(t, StateCompleted, h.ctrl.State(), "iteration %d", i)

		result := <-h.results
		assert.Equal(t, 1, result.AnsweredQuestions)
		assert.Equal(t, 300, result.TimeUsed)
		assert.Empty(t, h.results)
		assert.Nil(t, h.persistence.LoadSession(ctx))
	}
}

func TestController_UnpauseWithoutTimeLeftCompletes(t *testing.T) {
	ctx := context.Background()
	first := newHarness(t, nil, nil)

	_, err := first.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	first.ctrl.Close()

	stored := first.persistence.LoadSession(ctx)
	require.NotNil(t, stored)

	pausedAt := first.clock.Now().UnixMilli()
	timeLeft := 0
	stored.PausedAt = &pausedAt
	stored.TimeLeft = &timeLeft
	require.NoError(t, first.persistence.SaveSession(ctx, stored))

	second := newHarness(t, first.store, first.clock)

	decision, err := second.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	require.Equal(t, ResumePrompt, decision)
	require.NoError(t, second.ctrl.ConfirmResume(ctx))
	assert.Equal(t, StatePaused, second.ctrl.State())

	require.NoError(t, second.ctrl.Unpause(ctx))
	assert.Equal(t, StateCompleted, second.ctrl.State())

	result := <-second.results
	assert.Equal(t, 300, result.TimeUsed)
	assert.Nil(t, second.persistence.LoadSession(ctx))
}

func TestController_ResultIsACopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.ctrl.Open(ctx, "alice", NewBrowsingSession())
	require.NoError(t, err)
	require.NoError(t, h.ctrl.RequestEnd())
	_, err = h.ctrl.ConfirmEnd(ctx)
	require.NoError(t, err)

	got := h.ctrl.Result()
	require.NotNil(t, got)
	got.QuestionResults[0].UserAnswer = "changed"
	got.QuestionResults[0].AllAnswers[0] = "changed"

	again := h.ctrl.Result()
	assert.Empty(t, again.QuestionResults[0].UserAnswer)
	assert.Equal(t, "A0", again.QuestionResults[0].AllAnswers[0])
}
