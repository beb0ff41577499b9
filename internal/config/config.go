package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	DatabaseURL    string        `env:"DATABASE_URL" validate:"required"`
	ReportInterval time.Duration `env:"REPORT_INTERVAL_HOURS" validate:"gt=0"`
	// ReportAt, when set as HH:MM, replaces the report interval with one
	// report per day at that local time.
	ReportAt string `env:"REPORT_AT" validate:"omitempty,datetime=15:04"`

	RecurrenceInterval time.Duration `env:"RECURRENCE_INTERVAL" validate:"gt=0"`
	RecurrenceWorkers  int           `env:"RECURRENCE_WORKERS" validate:"gt=0"`
	// RecurrenceTrackLast switches the sweep to last-instance tracking, which
	// stops overlapping or repeated ticks from spawning duplicates.
	RecurrenceTrackLast bool          `env:"RECURRENCE_TRACK_LAST"`
	ReminderInterval    time.Duration `env:"REMINDER_INTERVAL" validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=json console"`
}

var ErrTelegramTokenMissing = errors.New("TELEGRAM_TOKEN is required")

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ReportInterval: parseInterval(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		ReportAt:       strings.TrimSpace(os.Getenv("REPORT_AT")),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "todo_planner.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	var err error
	if cfg.RecurrenceInterval, err = getEnvAsDuration("RECURRENCE_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.ReminderInterval, err = getEnvAsDuration("REMINDER_INTERVAL", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RecurrenceWorkers, err = getEnvAsInt("RECURRENCE_WORKERS", 1); err != nil {
		return cfg, err
	}
	if cfg.RecurrenceTrackLast, err = getEnvAsBool("RECURRENCE_TRACK_LAST", false); err != nil {
		return cfg, err
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RequireTelegram reports an error when the bot cannot be started.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return ErrTelegramTokenMissing
	}
	return nil
}

var structValidator = newValidator()

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

func (c Config) validate() error {
	err := structValidator.Struct(c)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid value %q for %s: failed %q check", fmt.Sprint(fe.Value()), fe.Field(), fe.Tag())
	}
	return err
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %w", key, err)
	}
	return i, nil
}

func getEnvAsBool(key string, defaultVal bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %w", key, err)
	}
	return d, nil
}
