// Package notify persists notifications and fans them out over the realtime and
// email channels. Delivery problems are logged and recorded on the notification;
// they never reach the caller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-bid-backend/internal/realtime"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

const emailSubject = "Legal Platform Notification"

/* ============================== Collaborators ============================ */

// Directory resolves recipients.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// RealtimeChannel pushes a payload to everyone subscribed to topic.
type RealtimeChannel interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// EmailChannel hands an email off for delivery and reports the resulting outbox state
// (sent when delivered inline, queued when handed to a worker).
type EmailChannel interface {
	DeliverEmail(ctx context.Context, notificationID uuid.UUID, to, subject string, body []byte) (models.DeliveryStatus, error)
}

/* ================================ Types ================================= */

// Notifier is the dispatcher surface the ledgers depend on.
type Notifier interface {
	Notify(ctx context.Context, m Message) Outcome
	Broadcast(ctx context.Context, role models.Role, typ models.NotificationType, text string, meta map[string]any) Outcome
	NotifyAdmins(ctx context.Context, typ models.NotificationType, text string, meta map[string]any) []Outcome
}

var _ Notifier = (*Dispatcher)(nil)

// Message is a notification addressed to one user.
type Message struct {
	RecipientID uuid.UUID
	Type        models.NotificationType
	Text        string
	Metadata    map[string]any

	// DedupeKey, when set, makes the message idempotent: a second message with the
	// same key is dropped before any delivery.
	DedupeKey string
}

// Outcome reports what happened to one notification.
type Outcome struct {
	Notification *models.Notification
	Duplicate    bool
	Err          error // persistence failure; nothing was delivered
	RealtimeErr  error
	EmailErr     error
}

// Delivered reports whether the notification exists and reached at least one channel.
func (o Outcome) Delivered() bool {
	return o.Err == nil && !o.Duplicate && (o.RealtimeErr == nil || o.EmailErr == nil)
}

// Dispatcher is the NotificationDispatcher.
type Dispatcher struct {
	db       *gorm.DB
	dir      Directory
	realtime RealtimeChannel
	email    EmailChannel
	clock    clockwork.Clock
	log      *zap.Logger
	timeout  time.Duration
}

func NewDispatcher(db *gorm.DB, dir Directory, rt RealtimeChannel, email EmailChannel,
	clock clockwork.Clock, log *zap.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{db: db, dir: dir, realtime: rt, email: email, clock: clock, log: log, timeout: timeout}
}

/* ================================ Notify ================================ */

// Notify persists m and attempts realtime and email delivery.
func (d *Dispatcher) Notify(ctx context.Context, m Message) Outcome {
	log := d.log.With(zap.String("recipient_id", m.RecipientID.String()), zap.String("type", string(m.Type)))

	user, err := d.dir.FindByID(ctx, m.RecipientID)
	if err != nil {
		log.Warn("notification recipient lookup failed", zap.Error(err))
		return Outcome{Err: err}
	}

	rid := m.RecipientID
	n := d.newNotification(m.Type, m.Text, m.Metadata)
	n.RecipientID = &rid
	n.RecipientRole = user.Role
	if m.DedupeKey != "" {
		key := m.DedupeKey
		n.DedupeKey = &key
	}

	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		log.Error("notification persist failed", zap.Error(res.Error))
		return Outcome{Err: res.Error}
	}
	if res.RowsAffected == 0 {
		log.Debug("notification deduplicated", zap.String("dedupe_key", m.DedupeKey))
		return Outcome{Duplicate: true}
	}

	out := Outcome{Notification: n}
	out.RealtimeErr = d.pushRealtime(ctx, realtime.UserTopic(rid), n)
	out.EmailErr = d.sendEmail(ctx, n, user.Email)
	return out
}

// Broadcast stores a single notification addressed to role and pushes it on the
// role topic. Broadcasts are not emailed.
func (d *Dispatcher) Broadcast(ctx context.Context, role models.Role, typ models.NotificationType, text string, meta map[string]any) Outcome {
	n := d.newNotification(typ, text, meta)
	n.RecipientRole = role
	n.EmailStatus = models.DeliverySkipped

	if err := d.db.WithContext(ctx).Create(n).Error; err != nil {
		d.log.Error("broadcast persist failed", zap.String("role", string(role)), zap.Error(err))
		return Outcome{Err: err}
	}
	return Outcome{Notification: n, RealtimeErr: d.pushRealtime(ctx, realtime.RoleTopic(role), n)}
}

// NotifyAdmins sends an admin-feed notification to every admin user.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, typ models.NotificationType, text string, meta map[string]any) []Outcome {
	admins, err := d.dir.FindByRole(ctx, models.RoleAdmin)
	if err != nil {
		d.log.Error("admin lookup failed", zap.Error(err))
		return []Outcome{{Err: err}}
	}
	out := make([]Outcome, 0, len(admins))
	for _, a := range admins {
		out = append(out, d.Notify(ctx, Message{RecipientID: a.ID, Type: typ, Text: text, Metadata: meta}))
	}
	return out
}

/* =============================== Delivery =============================== */

func (d *Dispatcher) newNotification(typ models.NotificationType, text string, meta map[string]any) *models.Notification {
	n := &models.Notification{
		ID:                  uuid.New(),
		Message:             text,
		Type:                typ,
		Status:              models.NotificationUnread,
		IsAdminNotification: typ.IsAdmin(),
		EmailStatus:         models.DeliveryPending,
		CreatedAt:           d.clock.Now(),
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			n.Metadata = datatypes.JSON(b)
		}
	}
	return n
}

// realtimePayload is what websocket clients receive.
type realtimePayload struct {
	ID        uuid.UUID               `json:"id"`
	Type      models.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	Metadata  datatypes.JSON          `json:"metadata,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

func (d *Dispatcher) pushRealtime(ctx context.Context, topic string, n *models.Notification) error {
	if d.realtime == nil {
		return nil
	}
	b, err := json.Marshal(realtimePayload{
		ID: n.ID, Type: n.Type, Message: n.Message, Metadata: n.Metadata, CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.realtime.Publish(ctx, topic, b); err != nil {
		err = apperr.Delivery("notify.realtime", err)
		d.log.Warn("realtime delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("channel", "realtime"),
			zap.String("topic", topic),
			zap.Error(err))
		return err
	}
	return nil
}

// sendEmail attempts delivery and records the outcome on the notification row.
func (d *Dispatcher) sendEmail(ctx context.Context, n *models.Notification, to string) error {
	if d.email == nil || to == "" {
		d.markEmail(ctx, n, models.DeliverySkipped, nil)
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	status, err := d.email.DeliverEmail(dctx, n.ID, to, emailSubject, []byte(n.Message))
	if err != nil {
		err = apperr.Delivery("notify.email", err)
		d.log.Warn("email delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("channel", "email"),
			zap.Error(err))
		d.markEmail(ctx, n, models.DeliveryFailed, err)
		return err
	}
	d.markEmail(ctx, n, status, nil)
	return nil
}

func (d *Dispatcher) markEmail(ctx context.Context, n *models.Notification, status models.DeliveryStatus, cause error) {
	updates := map[string]any{"email_status": status}
	if status != models.DeliverySkipped {
		updates["email_attempts"] = gorm.Expr("email_attempts + 1")
		n.EmailAttempts++
	}
	if cause != nil {
		updates["email_last_error"] = truncate(cause.Error(), 500)
	}
	n.EmailStatus = status

	// The caller's context may already be cancelled by a delivery timeout.
	err := d.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.Notification{}).
		Where("id = ? AND email_status <> ?", n.ID, models.DeliverySent).
		Updates(updates).Error
	if err != nil && !errors.Is(err, context.Canceled) {
		d.log.Error("email status update failed", zap.String("notification_id", n.ID.String()), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
