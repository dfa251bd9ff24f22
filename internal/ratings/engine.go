package ratings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
	"github.com/aldoetobex/legal-bid-backend/pkg/sanitize"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
	"github.com/aldoetobex/legal-bid-backend/pkg/validation"
)

// RoundRating rounds an average to one decimal place.
func RoundRating(avg float64) float64 { return math.Round(avg*10) / 10 }

// Engine owns rating requests and the per-lawyer rating aggregate.
type Engine struct {
	db            *gorm.DB
	notifier      notify.Notifier
	clock         clockwork.Clock
	log           *zap.Logger
	repromptAfter time.Duration
}

func NewEngine(db *gorm.DB, n notify.Notifier, clock clockwork.Clock, log *zap.Logger, repromptAfter time.Duration) *Engine {
	return &Engine{db: db, notifier: n, clock: clock, log: log, repromptAfter: repromptAfter}
}

/* ================================ Prompt ================================ */

// InitiatePrompt opens the rating request for (client, case). Calling it again
// returns the existing request without notifying twice.
func (e *Engine) InitiatePrompt(ctx context.Context, caseID, clientID, lawyerID uuid.UUID) (*models.Rating, error) {
	now := e.clock.Now()
	r := models.Rating{
		ID:        uuid.New(),
		ClientID:  clientID,
		CaseID:    caseID,
		LawyerID:  lawyerID,
		Status:    models.RatingPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "case_id"}},
			DoNothing: true,
		}).
		Create(&r)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.Rating
		if err := e.db.WithContext(ctx).First(&existing, "client_id = ? AND case_id = ?", clientID, caseID).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}

	e.notifier.Notify(ctx, notify.Message{
		RecipientID: clientID,
		Type:        models.NotifyRatingPrompt,
		Text:        "Your case has a lawyer. Let us know how it goes by rating them.",
		Metadata:    map[string]any{"case_id": caseID, "lawyer_id": lawyerID, "rating_id": r.ID},
		DedupeKey:   fmt.Sprintf("rating_prompt:%s:%s", caseID, clientID),
	})
	return &r, nil
}

/* ================================ Submit ================================= */

type SubmitInput struct {
	CaseID  uuid.UUID `json:"case_id" validate:"required"`
	Rating  int       `json:"rating" validate:"required,min=1,max=5"`
	Comment string    `json:"comment" validate:"max=500"`
}

// Submit completes the client's rating for a case and recomputes the lawyer's
// aggregate from every completed rating. The lawyer row is locked for the
// recomputation so concurrent submissions for one lawyer apply in turn.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (*models.Rating, error) {
	const op = "ratings.submit"
	if !actor.Is(models.RoleClient) {
		return nil, apperr.Permission(op, "only clients can rate")
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var r models.Rating
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cs models.Case
		if err := tx.Select("id", "client_id", "status", "assigned_lawyer_id").First(&cs, "id = ?", in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "case")
			}
			return err
		}
		if cs.ClientID != actor.ID {
			return apperr.Permission(op, "you can only rate your own cases")
		}
		if cs.AssignedLawyerID == nil {
			return apperr.Conflict(op, "case has no assigned lawyer")
		}
		lawyerID := *cs.AssignedLawyerID

		var lawyer models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&lawyer, "id = ?", lawyerID).Error; err != nil {
			return err
		}

		created := false
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&r, "client_id = ? AND case_id = ?", actor.ID, cs.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			r = models.Rating{ID: uuid.New(), ClientID: actor.ID, CaseID: cs.ID, LawyerID: lawyerID, CreatedAt: now}
			created = true
		case err != nil:
			return err
		case !r.Status.CanTransitionTo(models.RatingCompleted):
			return apperr.Conflict(op, "rating already submitted")
		}

		score := in.Rating
		r.Rating, r.Comment, r.Status, r.CompletedAt, r.UpdatedAt = &score, in.Comment, models.RatingCompleted, &now, now
		if created {
			err = tx.Create(&r).Error
		} else {
			err = tx.Save(&r).Error
		}
		if err != nil {
			return err
		}
		return recomputeAggregate(tx, lawyerID)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("rating submitted",
		zap.String("rating_id", r.ID.String()),
		zap.String("case_id", r.CaseID.String()),
		zap.String("lawyer_id", r.LawyerID.String()),
		zap.Int("rating", *r.Rating))
	return &r, nil
}

func recomputeAggregate(tx *gorm.DB, lawyerID uuid.UUID) error {
	var agg struct {
		Avg   float64
		Count int
	}
	if err := tx.Model(&models.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("lawyer_id = ? AND status = ?", lawyerID, models.RatingCompleted).
		Scan(&agg).Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", lawyerID).Updates(map[string]any{
		"average_rating": RoundRating(agg.Avg),
		"rating_count":   agg.Count,
	}).Error
}

/* ================================ Dismiss =============================== */

// Dismiss defers a Pending request. It comes back through RemindDismissed.
func (e *Engine) Dismiss(ctx context.Context, actor models.Actor, caseID uuid.UUID) (*models.Rating, error) {
	const op = "ratings.dismiss"
	now := e.clock.Now()

	res := e.db.WithContext(ctx).Model(&models.Rating{}).
		Where("client_id = ? AND case_id = ? AND status = ?", actor.ID, caseID, models.RatingPending).
		Updates(map[string]any{"status": models.RatingDismissed, "last_reminded_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}

	var r models.Rating
	if err := e.db.WithContext(ctx).First(&r, "client_id = ? AND case_id = ?", actor.ID, caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "rating")
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, apperr.WrongState(op, "rating", models.RatingPending, r.Status)
	}
	return &r, nil
}

/* =========================== Dismissed reminders ======================== */

// RemindDismissed re-prompts every Dismissed request last reminded more than
// repromptAfter ago and refreshes its reminder time. Completed requests are
// never touched.
func (e *Engine) RemindDismissed(ctx context.Context) (int, error) {
	now := e.clock.Now()
	cutoff := now.Add(-e.repromptAfter)

	var due []models.Rating
	if err := e.db.WithContext(ctx).
		Where("status = ? AND (last_reminded_at IS NULL OR last_reminded_at < ?)", models.RatingDismissed, cutoff).
		Order("last_reminded_at ASC NULLS FIRST").
		Find(&due).Error; err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		var prev int64
		if r.LastRemindedAt != nil {
			prev = r.LastRemindedAt.Unix()
		}
		out := e.notifier.Notify(ctx, notify.Message{
			RecipientID: r.ClientID,
			Type:        models.NotifyRatingReminder,
			Text:        "You still have a lawyer to rate.",
			Metadata:    map[string]any{"case_id": r.CaseID, "lawyer_id": r.LawyerID, "rating_id": r.ID},
			DedupeKey:   fmt.Sprintf("rating_reminder:%s:%d", r.ID, prev),
		})
		if out.Err != nil {
			e.log.Warn("rating reminder not recorded", zap.String("rating_id", r.ID.String()), zap.Error(out.Err))
			continue
		}

		q := e.db.WithContext(ctx).Model(&models.Rating{}).Where("id = ? AND status = ?", r.ID, models.RatingDismissed)
		if r.LastRemindedAt != nil {
			q = q.Where("last_reminded_at = ?", *r.LastRemindedAt)
		} else {
			q = q.Where("last_reminded_at IS NULL")
		}
		res := q.Updates(map[string]any{"last_reminded_at": now, "updated_at": now})
		if res.Error != nil {
			e.log.Error("refresh rating reminder", zap.String("rating_id", r.ID.String()), zap.Error(res.Error))
			continue
		}
		if res.RowsAffected == 1 {
			sent++
		}
	}
	if sent > 0 {
		e.log.Info("dismissed ratings re-prompted", zap.Int("count", sent))
	}
	return sent, nil
}

/* ================================ Queries =============================== */

type RatingItem struct {
	ID          uuid.UUID  `json:"id"`
	CaseID      uuid.UUID  `json:"case_id"`
	ClientName  string     `json:"client_name"`
	Rating      int        `json:"rating"`
	Comment     string     `json:"comment"`
	CompletedAt *time.Time `json:"completed_at"`
}

type LawyerRatings struct {
	LawyerID      uuid.UUID                       `json:"lawyer_id"`
	Username      string                          `json:"username"`
	AverageRating float64                         `json:"average_rating"`
	RatingCount   int                             `json:"rating_count"`
	Ratings       models.PageResponse[RatingItem] `json:"ratings"`
}

// ListForLawyer is the public view of a lawyer's aggregate and completed ratings.
func (e *Engine) ListForLawyer(ctx context.Context, lawyerID uuid.UUID, p utils.Page) (*LawyerRatings, error) {
	const op = "ratings.list_lawyer"
	var u models.User
	if err := e.db.WithContext(ctx).First(&u, "id = ? AND role = ?", lawyerID, models.RoleLawyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "lawyer")
		}
		return nil, err
	}

	out := &LawyerRatings{
		LawyerID:      u.ID,
		Username:      u.Username,
		AverageRating: u.AverageRating,
		RatingCount:   u.RatingCount,
		Ratings:       models.PageResponse[RatingItem]{Page: p.Number, PageSize: p.Size, Items: []RatingItem{}},
	}

	q := e.db.WithContext(ctx).Table("ratings").
		Where("ratings.lawyer_id = ? AND ratings.status = ?", lawyerID, models.RatingCompleted)
	if err := q.Session(&gorm.Session{}).Count(&out.Ratings.Total).Error; err != nil {
		return nil, err
	}
	if err := q.Session(&gorm.Session{}).
		Select("ratings.id, ratings.case_id, users.username AS client_name, ratings.rating, ratings.comment, ratings.completed_at").
		Joins("LEFT JOIN users ON users.id = ratings.client_id").
		Order("ratings.completed_at DESC").
		Offset(p.Offset()).Limit(p.Size).
		Scan(&out.Ratings.Items).Error; err != nil {
		return nil, err
	}
	out.Ratings.Pages = int((out.Ratings.Total + int64(p.Size) - 1) / int64(p.Size))
	return out, nil
}

type PendingItem struct {
	ID          uuid.UUID           `json:"id"`
	CaseID      uuid.UUID           `json:"case_id"`
	CaseSummary string              `json:"case_summary"`
	LawyerID    uuid.UUID           `json:"lawyer_id"`
	LawyerName  string              `json:"lawyer_name"`
	Status      models.RatingStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
}

// ListPending returns the client's outstanding requests, Pending or Dismissed.
func (e *Engine) ListPending(ctx context.Context, actor models.Actor) ([]PendingItem, error) {
	out := []PendingItem{}
	err := e.db.WithContext(ctx).Table("ratings").
		Select(`ratings.id, ratings.case_id, cases.description AS case_summary, ratings.lawyer_id,
          users.username AS lawyer_name, ratings.status, ratings.created_at`).
		Joins("JOIN cases ON cases.id = ratings.case_id").
		Joins("LEFT JOIN users ON users.id = ratings.lawyer_id").
		Where("ratings.client_id = ? AND ratings.status IN ?", actor.ID, []models.RatingStatus{models.RatingPending, models.RatingDismissed}).
		Order("ratings.created_at ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].CaseSummary = sanitize.Summary(out[i].CaseSummary, 120)
	}
	return out, nil
}

// PendingCount is the number of outstanding requests for a client.
func (e *Engine) PendingCount(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&models.Rating{}).
		Where("client_id = ? AND status IN ?", clientID, []models.RatingStatus{models.RatingPending, models.RatingDismissed}).
		Count(&n).Error
	return n, err
}
