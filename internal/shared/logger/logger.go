package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func New(app, env string) *slog.Logger {
	return NewWithWriter(os.Stdout, app, env)
}

func NewWithWriter(w io.Writer, app, env string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})

	return slog.New(h).With(
		slog.String("app", app),
		slog.String("env", env),
	)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
