package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog. Log level defaults to info
// and can be lowered to debug with IDV_LOG_DEBUG=true. PII must never be
// passed as a log attribute; use privacy.RedactAlphanumeric or hashed IDs.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("IDV_LOG_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
