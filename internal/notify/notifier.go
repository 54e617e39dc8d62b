package notify

import "log/slog"

// Notifier carries fire-and-forget status messages to the user (the mobile
// client renders these as toasts). Not part of correctness, purely
// observability.
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes notices to the structured log
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	slog.Info("user notice", "message", message)
}

// NopNotifier drops all notices
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}
