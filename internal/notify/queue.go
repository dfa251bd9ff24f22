package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// TypeEmailDelivery is the asynq task type for outbound notification emails.
const TypeEmailDelivery = "email:deliver"

// EmailTaskPayload is the body of an email:deliver task.
type EmailTaskPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	To             string    `json:"to"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
}

// Enqueuer is the part of *asynq.Client the queue channel needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

/* ============================ Queue channel ============================== */

// QueueChannel hands emails to the asynq worker, which retries until delivered.
type QueueChannel struct {
	client     Enqueuer
	maxRetries int
}

func NewQueueChannel(client Enqueuer, maxRetries int) *QueueChannel {
	return &QueueChannel{client: client, maxRetries: maxRetries}
}

func (q *QueueChannel) DeliverEmail(ctx context.Context, id uuid.UUID, to, subject string, body []byte) (models.DeliveryStatus, error) {
	payload, err := json.Marshal(EmailTaskPayload{NotificationID: id, To: to, Subject: subject, Body: string(body)})
	if err != nil {
		return models.DeliveryFailed, err
	}
	task := asynq.NewTask(TypeEmailDelivery, payload)
	if _, err := q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(q.maxRetries),
		asynq.Timeout(time.Minute),
		// One task per notification; a relay retry of a still-queued email is a no-op.
		asynq.TaskID("email:"+id.String()),
	); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return models.DeliveryFailed, fmt.Errorf("enqueue email: %w", err)
	}
	return models.DeliveryQueued, nil
}

/* ============================= Email worker ============================== */

// EmailWorker processes email:deliver tasks.
type EmailWorker struct {
	db     *gorm.DB
	sender Sender
	from   string
	log    *zap.Logger

	// lastAttempt reports whether the running task has no retries left.
	lastAttempt func(ctx context.Context) bool
}

func NewEmailWorker(db *gorm.DB, sender Sender, from string, log *zap.Logger) *EmailWorker {
	return &EmailWorker{db: db, sender: sender, from: from, log: log, lastAttempt: asynqLastAttempt}
}

func asynqLastAttempt(ctx context.Context) bool {
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried >= maxRetry
}

// HandleEmailDeliveryTask sends the email and marks the notification sent.
// A returned error makes asynq retry the task.
func (w *EmailWorker) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var p EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	raw := ComposeEmail(w.from, p.To, p.Subject, []byte(p.Body), time.Now())
	if err := w.sender.Send(ctx, []string{p.To}, p.Subject, raw); err != nil {
		w.log.Warn("queued email delivery failed",
			zap.String("notification_id", p.NotificationID.String()),
			zap.String("channel", "email"),
			zap.Error(err))
		updates := map[string]any{
			"email_attempts":   gorm.Expr("email_attempts + 1"),
			"email_last_error": truncate(err.Error(), 500),
		}
		// asynq archives the task after this; hand it back to the outbox relay.
		if w.lastAttempt(ctx) {
			updates["email_status"] = models.DeliveryFailed
		}
		if uerr := w.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND email_status <> ?", p.NotificationID, models.DeliverySent).
			Updates(updates).Error; uerr != nil {
			w.log.Error("email status update failed",
				zap.String("notification_id", p.NotificationID.String()),
				zap.Error(uerr))
			return errors.Join(err, uerr)
		}
		return err
	}

	return w.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", p.NotificationID).
		Updates(map[string]any{"email_status": models.DeliverySent, "email_last_error": ""}).Error
}

// NewServer builds the asynq server and mux for the email worker.
func NewServer(opt asynq.RedisConnOpt, w *EmailWorker, log *zap.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("asynq task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, w.HandleEmailDeliveryTask)
	return srv, mux
}
