package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Виды хранилища
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Ошибки конфигурации
var ErrInvalidConfig = errors.New("invalid config")

// Config — настройки запуска квиза. Сначала читаются из окружения, затем
// переопределяются флагами командной строки.
type Config struct {
	Store       string `env:"QUIZ_STORE" envDefault:"sqlite"`
	SQLitePath  string `env:"QUIZ_SQLITE_PATH" envDefault:"quiz.db"`
	PostgresDSN string `env:"QUIZ_POSTGRES_DSN"`

	Duration   int    `env:"QUIZ_DURATION" envDefault:"600"`
	Questions  int    `env:"QUIZ_QUESTIONS" envDefault:"10"`
	Category   int    `env:"QUIZ_CATEGORY"`
	Difficulty string `env:"QUIZ_DIFFICULTY"`
	Type       string `env:"QUIZ_TYPE"`

	TriviaURL   string        `env:"QUIZ_TRIVIA_URL" envDefault:"https://opentdb.com/api.php"`
	HTTPTimeout time.Duration `env:"QUIZ_HTTP_TIMEOUT" envDefault:"10s"`

	// CSVPath — куда выгрузить разбор результата. Пусто — не выгружать.
	CSVPath string `env:"QUIZ_CSV_PATH"`

	LogLevel  string `env:"QUIZ_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"QUIZ_LOG_PRETTY" envDefault:"true"`
}

// Load читает конфигурацию из переменных окружения.
func Load() (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// RegisterFlags регистрирует флаги, значения по умолчанию которых берутся
// из cfg. После fs.Parse флаги перезаписывают поля cfg.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Store, "store", c.Store, "storage backend: memory, sqlite or postgres")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "path to the sqlite database file")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "postgres connection string")
	fs.IntVarP(&c.Duration, "duration", "d", c.Duration, "quiz duration in seconds")
	fs.IntVarP(&c.Questions, "questions", "n", c.Questions, "number of questions")
	fs.IntVar(&c.Category, "category", c.Category, "Open Trivia DB category id, 0 for any")
	fs.StringVar(&c.Difficulty, "difficulty", c.Difficulty, "easy, medium or hard, empty for any")
	fs.StringVar(&c.Type, "type", c.Type, "multiple or boolean, empty for any")
	fs.StringVar(&c.TriviaURL, "trivia-url", c.TriviaURL, "question API endpoint")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "question API request timeout")
	fs.StringVar(&c.CSVPath, "csv", c.CSVPath, "write the result breakdown to this CSV file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&c.LogPretty, "log-pretty", c.LogPretty, "colored human-readable logs")
}

// Validate проверяет значения настроек.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite path is empty", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres dsn is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}

	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}

	if c.Questions <= 0 {
		return fmt.Errorf("%w: questions must be positive", ErrInvalidConfig)
	}

	if c.Category < 0 {
		return fmt.Errorf("%w: category must not be negative", ErrInvalidConfig)
	}

	switch c.Difficulty {
	case "", "easy", "medium", "hard":
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidConfig, c.Difficulty)
	}

	switch c.Type {
	case "", "multiple", "boolean":
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidConfig, c.Type)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrInvalidConfig)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel переводит LogLevel в уровень slog.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	return level, nil
}
