package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithUser returns a logger with the owning user's context fields attached.
func WithUser(userID, profileID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"profile_id", profileID,
	)
}

// WithSesh returns a logger scoped to a specific sesh.
func WithSesh(logger *slog.Logger, seshID string) *slog.Logger {
	return logger.With("sesh_id", seshID)
}
