package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/internal/ratings"
	"github.com/aldoetobex/legal-bid-backend/internal/reminders"
)

// relayBatch caps how many failed emails one relay run retries.
const relayBatch = 100

// ReminderSweepJob sends appointment and deadline reminders that have come due.
func ReminderSweepJob(s *reminders.Scheduler, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "reminder-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			rep, err := s.Sweep(ctx)
			if err != nil {
				return err
			}
			logger.Debug("reminder sweep",
				zap.Int("sent", rep.Sent),
				zap.Int("failed", rep.Failed))
			return nil
		},
	}
}

// RatingReminderJob re-prompts dismissed ratings.
func RatingReminderJob(e *ratings.Engine, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "rating-reminders",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := e.RemindDismissed(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Debug("rating reminders sent", zap.Int("count", n))
			}
			return nil
		},
	}
}

// OutboxRelayJob retries email delivery for notifications whose email failed.
func OutboxRelayJob(d *notify.Dispatcher, logger *zap.Logger, interval time.Duration, maxAttempts int) Job {
	return Job{
		Name:     "outbox-relay",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := d.RetryFailedEmails(ctx, maxAttempts, relayBatch)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("outbox relay retried emails", zap.Int("count", n))
			}
			return nil
		},
	}
}
