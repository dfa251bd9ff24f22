package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// RetryFailedEmails re-attempts email for notifications whose last delivery failed
// and that have attempts left. It returns how many were delivered or queued.
func (d *Dispatcher) RetryFailedEmails(ctx context.Context, maxAttempts, limit int) (int, error) {
	var pending []models.Notification
	err := d.db.WithContext(ctx).
		Where("email_status = ? AND email_attempts < ? AND recipient_id IS NOT NULL", models.DeliveryFailed, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	ok := 0
	for i := range pending {
		n := &pending[i]
		user, err := d.dir.FindByID(ctx, *n.RecipientID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				d.markEmail(ctx, n, models.DeliverySkipped, nil)
				continue
			}
			return ok, err
		}
		if d.sendEmail(ctx, n, user.Email) == nil {
			ok++
		}
	}
	if len(pending) > 0 {
		d.log.Info("email relay pass", zap.Int("candidates", len(pending)), zap.Int("delivered", ok))
	}
	return ok, nil
}
