package notify

import (
	"context"
	"time"

	"companioncare/pkg/logger"
)

// Notifier is the notification-dispatch collaborator. Delivery and retry are
// its problem; callers fire and forget.
type Notifier interface {
	ScheduleAt(ctx context.Context, chatID int64, at time.Time, title, body string, payload map[string]string) error
	SendNow(ctx context.Context, chatID int64, title, body string) error
}

// LogNotifier writes notifications to the log. Used when no telegram token is
// configured, and in tests.
type LogNotifier struct {
	log logger.ILogger
}

func NewLogNotifier(log logger.ILogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) ScheduleAt(_ context.Context, chatID int64, at time.Time, title, body string, _ map[string]string) error {
	n.log.Info("notification scheduled",
		logger.Int64("chat_id", chatID),
		logger.Time("at", at),
		logger.String("title", title),
		logger.String("body", body),
	)
	return nil
}

func (n *LogNotifier) SendNow(_ context.Context, chatID int64, title, body string) error {
	n.log.Info("notification sent",
		logger.Int64("chat_id", chatID),
		logger.String("title", title),
		logger.String("body", body),
	)
	return nil
}
