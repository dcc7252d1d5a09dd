package reminder

import (
	"context"
	"fmt"
	"time"

	"companioncare/pkg/logger"
	"companioncare/pkg/models"
	"companioncare/pkg/notify"
)

// Scheduler arms a pre-start reminder for an accepted service request. The
// trigger time is an absolute offset before the scheduled start, never a
// wall-clock seconds component.
type Scheduler struct {
	notifier notify.Notifier
	lead     time.Duration
	log      logger.ILogger
}

func New(notifier notify.Notifier, lead time.Duration, log logger.ILogger) *Scheduler {
	return &Scheduler{notifier: notifier, lead: lead, log: log}
}

// ScheduleStartReminder requests a reminder at scheduledStart - lead. If that
// moment already passed, the reminder is sent immediately. Delivery is the
// notifier's responsibility.
func (s *Scheduler) ScheduleStartReminder(ctx context.Context, req *models.ServiceRequest, chatID int64, now time.Time) error {
	at := req.ScheduledStart.Add(-s.lead)

	title := "Upcoming service"
	body := fmt.Sprintf("Your %s service starts at %s.", req.Category, req.ScheduledStart.Format("15:04 02/01/2006"))

	if !at.After(now) {
		if err := s.notifier.SendNow(ctx, chatID, title, body); err != nil {
			return fmt.Errorf("reminder: send immediate reminder: %w", err)
		}
		return nil
	}

	payload := map[string]string{"service_id": req.ID}
	if err := s.notifier.ScheduleAt(ctx, chatID, at, title, body, payload); err != nil {
		return fmt.Errorf("reminder: schedule reminder: %w", err)
	}

	s.log.Info("reminder armed",
		logger.String("service_id", req.ID),
		logger.Time("fire_at", at),
	)
	return nil
}
