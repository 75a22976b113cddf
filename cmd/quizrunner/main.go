package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/letsssgooo/quizrunner/internal/config"
	"github.com/letsssgooo/quizrunner/internal/domain/models"
	"github.com/letsssgooo/quizrunner/internal/lib/slogcustom"
	"github.com/letsssgooo/quizrunner/internal/quiz"
	"github.com/letsssgooo/quizrunner/internal/storage"
	"github.com/letsssgooo/quizrunner/internal/storage/postgres"
	"github.com/letsssgooo/quizrunner/internal/storage/sqlite"
	"github.com/letsssgooo/quizrunner/internal/terminal"
	"github.com/letsssgooo/quizrunner/internal/trivia"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cfg.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	slog.Info("starting quiz runner...", "store", cfg.Store, "duration", cfg.Duration, "questions", cfg.Questions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	persistence := storage.NewPersistence(store, log)

	source := trivia.NewClient(
		trivia.WithBaseURL(cfg.TriviaURL),
		trivia.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)

	runner := terminal.NewRunner(os.Stdin, os.Stdout, persistence,
		terminal.WithLogger(log),
		terminal.WithCSVPath(cfg.CSVPath),
	)

	ctrl := quiz.NewController(persistence, source,
		quiz.WithLogger(log),
		quiz.WithDuration(cfg.Duration),
		quiz.WithFetchParams(models.FetchParams{
			Amount:     cfg.Questions,
			Category:   cfg.Category,
			Difficulty: cfg.Difficulty,
			Type:       cfg.Type,
		}),
		quiz.WithOnComplete(runner.Notify),
	)

	// Один запуск процесса — один сеанс работы
	marker := quiz.NewBrowsingSession()

	if err := runner.Run(ctx, ctrl, marker); err != nil {
		return fmt.Errorf("quiz runner: %w", err)
	}

	slog.Info("quiz runner stopped")

	return nil
}

func setupLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	if cfg.LogPretty {
		return slog.New(slogcustom.NewCustomHandler(os.Stderr, level)), nil
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return log, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storage.NewMemoryStorage(), func() {}, nil
	case config.StorePostgres:
		st, err := postgres.NewStorage(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				slog.Warn("cannot close sqlite store", "err", err)
			}
		}, nil
	}
}
