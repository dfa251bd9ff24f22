package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
)

/* ================================ Inbox ================================= */

// visibleTo scopes q to notifications actor can see: their own plus broadcasts
// to their role.
func visibleTo(q *gorm.DB, actor models.Actor) *gorm.DB {
	return q.Where("(recipient_id = ? OR (recipient_id IS NULL AND recipient_role = ?))", actor.ID, actor.Role)
}

// unreadBy keeps what actor has not read yet. Personal rows carry their own
// status; a broadcast is unread until actor has a receipt for it.
func unreadBy(q *gorm.DB, actor models.Actor) *gorm.DB {
	return q.Where(`((recipient_id = ? AND status = ?) OR (recipient_id IS NULL AND NOT EXISTS (
		SELECT 1 FROM notification_reads r WHERE r.notification_id = notifications.id AND r.user_id = ?)))`,
		actor.ID, models.NotificationUnread, actor.ID)
}

// ListMine returns the actor's notifications, newest first. Broadcasts report
// the actor's own read state.
func (d *Dispatcher) ListMine(ctx context.Context, actor models.Actor, p utils.Page, unreadOnly bool) (models.PageResponse[models.Notification], error) {
	q := visibleTo(d.db.WithContext(ctx).Model(&models.Notification{}), actor)
	if unreadOnly {
		q = unreadBy(q, actor)
	}
	out, err := utils.Paginate[models.Notification](q, p, "created_at DESC")
	if err != nil {
		return out, err
	}
	return out, d.applyReceipts(ctx, actor, out.Items)
}

func (d *Dispatcher) applyReceipts(ctx context.Context, actor models.Actor, items []models.Notification) error {
	var ids []uuid.UUID
	for _, n := range items {
		if n.RecipientID == nil {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var receipts []models.NotificationRead
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND notification_id IN ?", actor.ID, ids).
		Find(&receipts).Error; err != nil {
		return err
	}
	readAt := make(map[uuid.UUID]models.NotificationRead, len(receipts))
	for _, r := range receipts {
		readAt[r.NotificationID] = r
	}
	for i := range items {
		if r, ok := readAt[items[i].ID]; ok {
			at := r.ReadAt
			items[i].Status, items[i].ReadAt = models.NotificationRead, &at
		}
	}
	return nil
}

// UnreadCount counts the actor's unread notifications.
func (d *Dispatcher) UnreadCount(ctx context.Context, actor models.Actor) (int64, error) {
	var n int64
	err := unreadBy(visibleTo(d.db.WithContext(ctx).Model(&models.Notification{}), actor), actor).
		Count(&n).Error
	return n, err
}

// MarkRead moves a notification Unread -> Read for actor. Personal notifications
// may be marked by their recipient, or by any admin for admin-feed ones. A role
// broadcast gets a read receipt for actor only.
func (d *Dispatcher) MarkRead(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Notification, error) {
	const op = "notifications.read"

	var n models.Notification
	if err := d.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "notification")
		}
		return nil, err
	}

	switch {
	case n.RecipientID == nil:
		if n.RecipientRole != actor.Role {
			return nil, apperr.Permission(op, "not your notification")
		}
		return d.markBroadcastRead(ctx, actor, &n)
	case *n.RecipientID == actor.ID:
	case n.IsAdminNotification && actor.Is(models.RoleAdmin):
	default:
		return nil, apperr.Permission(op, "not your notification")
	}

	if n.Status == models.NotificationRead {
		return &n, nil
	}
	now := d.clock.Now()
	if err := d.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status = ?", n.ID, models.NotificationUnread).
		Updates(map[string]any{"status": models.NotificationRead, "read_at": now}).Error; err != nil {
		return nil, err
	}
	n.Status, n.ReadAt = models.NotificationRead, &now
	return &n, nil
}

func (d *Dispatcher) markBroadcastRead(ctx context.Context, actor models.Actor, n *models.Notification) (*models.Notification, error) {
	receipt := models.NotificationRead{NotificationID: n.ID, UserID: actor.ID, ReadAt: d.clock.Now()}
	if err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error; err != nil {
		return nil, err
	}
	// A second call keeps the first read time.
	if err := d.db.WithContext(ctx).
		First(&receipt, "notification_id = ? AND user_id = ?", n.ID, actor.ID).Error; err != nil {
		return nil, err
	}
	at := receipt.ReadAt
	n.Status, n.ReadAt = models.NotificationRead, &at
	return n, nil
}

// MarkAllRead marks every unread notification visible to actor as read, role
// broadcasts included. Admins also clear the shared admin feed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	now := d.clock.Now()
	var total int64
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Notification{}).Where("status = ?", models.NotificationUnread)
		if actor.Is(models.RoleAdmin) {
			q = q.Where("(recipient_id = ? OR is_admin_notification = ?)", actor.ID, true)
		} else {
			q = q.Where("recipient_id = ?", actor.ID)
		}
		res := q.Updates(map[string]any{"status": models.NotificationRead, "read_at": now})
		if res.Error != nil {
			return res.Error
		}
		total = res.RowsAffected

		res = tx.Exec(`
INSERT INTO notification_reads (notification_id, user_id, read_at)
SELECT n.id, ?, ? FROM notifications n
WHERE n.recipient_id IS NULL AND n.recipient_role = ?
ON CONFLICT DO NOTHING`, actor.ID, now, actor.Role)
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}
