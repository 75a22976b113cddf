package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
	"github.com/letsssgooo/quizrunner/internal/identity"
	"github.com/letsssgooo/quizrunner/internal/quiz"
)

// Controller — операции сессии квиза, которыми пользуется терминал.
type Controller interface {
	Open(ctx context.Context, username string, marker *quiz.BrowsingSession) (quiz.ResumeDecision, error)
	Pending() *models.Session
	ConfirmResume(ctx context.Context) error
	StartNew(ctx context.Context) error
	Start(ctx context.Context) error
	SubmitAnswer(ctx context.Context, answer string) (*models.Result, error)
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	RequestEnd() error
	CancelEnd()
	ConfirmEnd(ctx context.Context) (*models.Result, error)
	Logout(ctx context.Context) error
	View() quiz.View
	Close()
}

// IdentityLoader отдает сохраненное имя пользователя или пустую строку.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context) string
}

// step — куда перейти после окончания сессии.
type step int

const (
	stepQuit step = iota
	stepLogout
)

// Runner — построчный терминальный интерфейс квиза.
type Runner struct {
	in         io.Reader
	out        io.Writer
	identities IdentityLoader
	log        *slog.Logger
	clock      func() time.Time
	csvPath    string

	completions chan models.Result
}

// Option настраивает Runner.
type Option func(*Runner)

// WithLogger задает логгер.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithCSVPath включает выгрузку разбора результата в CSV-файл.
func WithCSVPath(path string) Option {
	return func(r *Runner) {
		r.csvPath = path
	}
}

// NewRunner создаёт терминальный интерфейс.
func NewRunner(in io.Reader, out io.Writer, identities IdentityLoader, opts ...Option) *Runner {
	r := &Runner{
		in:          in,
		out:         out,
		identities:  identities,
		log:         slog.Default(),
		clock:       time.Now,
		completions: make(chan models.Result, 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.log = r.log.With("component", "terminal")

	return r
}

// Notify принимает результат завершенной сессии. Передается контроллеру
// через quiz.WithOnComplete и может вызываться из горутины таймера.
func (r *Runner) Notify(result models.Result) {
	select {
	case r.completions <- result:
	default:
		r.log.Warn("result dropped, previous one is not shown yet")
	}
}

// Run ведет диалог с пользователем до команды выхода, конца ввода или
// отмены ctx. Незавершенная сессия остается в хранилище.
func (r *Runner) Run(ctx context.Context, ctrl Controller, marker *quiz.BrowsingSession) error {
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := readLines(ctx, r.in)

	for {
		username, ok := r.login(ctx, lines)
		if !ok {
			return nil
		}

		next, err := r.session(ctx, ctrl, username, marker, lines)
		if err != nil {
			return err
		}

		if next == stepQuit {
			return nil
		}
	}
}

func (r *Runner) login(ctx context.Context, lines <-chan string) (string, bool) {
	if username := r.identities.LoadIdentity(ctx); username != "" {
		r.printf(msgWelcomeBack, username)
		return username, true
	}

	for {
		r.printf(msgAskUsername)

		line, ok := r.readLine(ctx, lines)
		if !ok {
			return "", false
		}

		username, err := identity.ParseUsername(line)
		if err != nil {
			r.printf("%v", err)
			continue
		}

		return username, true
	}
}

func (r *Runner) session(
	ctx context.Context,
	ctrl Controller,
	username string,
	marker *quiz.BrowsingSession,
	lines <-chan string,
) (step, error) {
	r.printf(msgLoading)

	decision, err := ctrl.Open(ctx, username, marker)
	if err != nil && !errors.Is(err, quiz.ErrFetch) {
		return stepQuit, err
	}

	r.log.Debug("session opened", "username", username, "decision", decision)

	if err != nil {
		if !r.retryStart(ctx, ctrl, err, lines) {
			return stepQuit, nil
		}
	}

	if decision == quiz.ResumePrompt {
		next, handled, err := r.resumePrompt(ctx, ctrl, lines)
		if err != nil || handled {
			return next, err
		}
	}

	return r.play(ctx, ctrl, lines)
}

// retryStart повторяет загрузку вопросов, пока пользователь соглашается.
func (r *Runner) retryStart(ctx context.Context, ctrl Controller, err error, lines <-chan string) bool {
	for err != nil {
		r.printf(msgFetchFailed, err)

		line, ok := r.readLine(ctx, lines)
		if !ok || !isYes(line) {
			return false
		}

		r.printf(msgLoading)
		err = ctrl.Start(ctx)
	}

	return true
}

// resumePrompt спрашивает, что делать с сохраненной сессией. handled
// означает, что дальнейший шаг уже определен и играть не нужно.
func (r *Runner) resumePrompt(ctx context.Context, ctrl Controller, lines <-chan string) (step, bool, error) {
	pending := ctrl.Pending()
	if pending == nil {
		return stepQuit, true, nil
	}

	remaining := quiz.RemainingOnResume(pending, r.clock())

	for {
		r.printf(msgResumePrompt,
			pending.CurrentQuestionIndex+1,
			len(pending.Questions),
			len(pending.Answers),
			quiz.FormatClock(remaining),
		)

		line, ok := r.readLine(ctx, lines)
		if !ok {
			return stepQuit, true, nil
		}

		switch command(line) {
		case "r":
			return stepQuit, false, ctrl.ConfirmResume(ctx)
		case "n":
			r.printf(msgLoading)
			if err := ctrl.StartNew(ctx); err != nil {
				if !errors.Is(err, quiz.ErrFetch) {
					return stepQuit, true, err
				}
				if !r.retryStart(ctx, ctrl, err, lines) {
					return stepQuit, true, nil
				}
			}
			return stepQuit, false, nil
		case "l":
			return stepLogout, true, ctrl.Logout(ctx)
		default:
			r.printf(msgUnknownCommand, line)
		}
	}
}

// play показывает вопросы и обрабатывает команды до завершения сессии.
func (r *Runner) play(ctx context.Context, ctrl Controller, lines <-chan string) (step, error) {
	for {
		select {
		case result := <-r.completions:
			return r.afterResult(ctx, ctrl, result, lines)
		default:
		}

		view := ctrl.View()
		r.render(view)

		select {
		case <-ctx.Done():
			return stepQuit, nil
		case result := <-r.completions:
			return r.afterResult(ctx, ctrl, result, lines)
		case line, ok := <-lines:
			if !ok {
				return stepQuit, nil
			}

			if command(line) == "q" {
				ctrl.Close()
				r.printf(msgSaved)
				return stepQuit, nil
			}

			if err := r.handle(ctx, ctrl, view, line); err != nil {
				r.log.Debug("command rejected", "line", line, "err", err)
				r.printf("%v", err)
			}
		}
	}
}

func (r *Runner) handle(ctx context.Context, ctrl Controller, view quiz.View, line string) error {
	if view.EndRequested {
		if isYes(line) {
			_, err := ctrl.ConfirmEnd(ctx)
			return err
		}

		ctrl.CancelEnd()
		return nil
	}

	if view.State == quiz.StateActive {
		if idx, ok := LetterToIndex(line); ok && idx < len(view.Answers) {
			_, err := ctrl.SubmitAnswer(ctx, view.Answers[idx])
			return err
		}
	}

	switch command(line) {
	case "p":
		return ctrl.Pause(ctx)
	case "r":
		return ctrl.Unpause(ctx)
	case "e":
		return ctrl.RequestEnd()
	}

	return fmt.Errorf(msgUnknownCommand, line)
}

func (r *Runner) render(view quiz.View) {
	if view.EndRequested {
		r.printf(msgConfirmEnd)
		return
	}

	switch view.State {
	case quiz.StatePaused:
		r.printf(msgPaused, quiz.FormatClock(view.RemainingSeconds))
	case quiz.StateActive:
		r.printf("")
		r.printf(msgQuestionHeader, view.Index+1, view.Total, quiz.FormatClock(view.RemainingSeconds), view.Answered)
		r.printf("[%s · %s]", view.Question.Category, view.Question.Difficulty)
		r.printf("%s", view.Question.Question)

		for i, answer := range view.Answers {
			r.printf("  %s) %s", IndexToLetter(i), answer)
		}

		r.printf(msgActiveHelp, letterRange(len(view.Answers)))
	}
}

func (r *Runner) afterResult(ctx context.Context, ctrl Controller, result models.Result, lines <-chan string) (step, error) {
	r.showResult(result)

	for {
		r.printf(msgAfterResult)

		line, ok := r.readLine(ctx, lines)
		if !ok {
			return stepQuit, nil
		}

		switch command(line) {
		case "n":
			r.printf(msgLoading)
			if err := ctrl.StartNew(ctx); err != nil {
				if !errors.Is(err, quiz.ErrFetch) {
					return stepQuit, err
				}
				if !r.retryStart(ctx, ctrl, err, lines) {
					return stepQuit, nil
				}
			}
			return r.play(ctx, ctrl, lines)
		case "l":
			return stepLogout, ctrl.Logout(ctx)
		case "q":
			return stepQuit, nil
		default:
			r.printf(msgUnknownCommand, line)
		}
	}
}

func (r *Runner) showResult(result models.Result) {
	r.printf("")
	r.printf(msgResultHeader)
	r.printf(msgResultScore,
		result.CorrectAnswers,
		result.TotalQuestions,
		result.Score,
		result.AnsweredQuestions,
		result.IncorrectAnswers,
		quiz.FormatClock(result.TimeUsed),
	)

	for i, qr := range result.QuestionResults {
		answer := qr.UserAnswer
		if answer == "" {
			answer = msgNoAnswer
		}

		mark := "✗"
		if qr.IsCorrect {
			mark = "✓"
		}

		r.printf(msgResultLine, i+1, qr.Question, answer, qr.CorrectAnswer, mark)
	}

	if r.csvPath == "" {
		return
	}

	if err := writeCSV(r.csvPath, result); err != nil {
		r.log.Warn("cannot export result", "path", r.csvPath, "err", err)
		r.printf("%v", err)
		return
	}

	r.printf(msgCSVSaved, r.csvPath)
}

func (r *Runner) readLine(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

// readLines читает ввод построчно. Канал закрывается в конце ввода или
// после отмены ctx, когда строку уже некому принять.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}

func writeCSV(path string, result models.Result) error {
	data, err := quiz.ExportCSV(result)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write csv: %w", err)
	}

	return nil
}

func command(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}

func isYes(line string) bool {
	switch command(line) {
	case "y", "yes", "д", "да":
		return true
	}

	return false
}

func letterRange(n int) string {
	if n <= 0 {
		return ""
	}

	return AnswerLetters[0] + "-" + IndexToLetter(min(n, len(AnswerLetters))-1)
}
