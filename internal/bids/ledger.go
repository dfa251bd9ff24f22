package bids

import (
	"context"
	"errors"
	"fmt"
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

// Prompter opens the rating request once a lawyer is assigned.
type Prompter interface {
	InitiatePrompt(ctx context.Context, caseID, clientID, lawyerID uuid.UUID) (*models.Rating, error)
}

// Options tunes acceptance policy.
type Options struct {
	// AutoRejectLosing rejects every other Pending bid of a case when one is accepted.
	AutoRejectLosing bool
}

// Ledger owns bids and the acceptance that assigns a lawyer to a case.
type Ledger struct {
	db       *gorm.DB
	notifier notify.Notifier
	prompter Prompter
	clock    clockwork.Clock
	log      *zap.Logger
	opts     Options
}

func NewLedger(db *gorm.DB, n notify.Notifier, p Prompter, clock clockwork.Clock, log *zap.Logger, opts Options) *Ledger {
	return &Ledger{db: db, notifier: n, prompter: p, clock: clock, log: log, opts: opts}
}

type PlaceInput struct {
	CaseID      uuid.UUID `json:"case_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"gt=0"`
	Comment     string    `json:"comment" validate:"max=200"`
}

/* ================================= Place ================================ */

// Place records a lawyer's bid on a Posted case. One bid per lawyer per case.
func (l *Ledger) Place(ctx context.Context, actor models.Actor, in PlaceInput) (*models.Bid, error) {
	const op = "bids.place"
	if !actor.Is(models.RoleLawyer) {
		return nil, apperr.Permission(op, "only lawyers can bid")
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	bid := models.Bid{
		ID:          uuid.New(),
		CaseID:      in.CaseID,
		LawyerID:    actor.ID,
		AmountCents: in.AmountCents,
		Comment:     in.Comment,
		Status:      models.BidPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var cs models.Case
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) Case must still be Posted; the share lock holds off a concurrent accept or close.
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&cs, "id = ?", in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "case")
			}
			return err
		}
		if cs.Status != models.CasePosted {
			return apperr.Conflict(op, "case not open")
		}

		// 2) Unique (case_id, lawyer_id); the index settles concurrent duplicates.
		if err := tx.Create(&bid).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Duplicate(op, "you have already bid on this case")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("bid placed",
		zap.String("bid_id", bid.ID.String()),
		zap.String("case_id", cs.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Int64("amount_cents", bid.AmountCents))

	l.notifier.Notify(ctx, notify.Message{
		RecipientID: cs.ClientID,
		Type:        models.NotifyBidPlaced,
		Text:        fmt.Sprintf("New bid of %s on your case", formatAmount(bid.AmountCents)),
		Metadata:    map[string]any{"case_id": cs.ID, "bid_id": bid.ID},
	})
	return &bid, nil
}

/* ================================= Accept =============================== */

// Accept assigns the bid's lawyer to the case. The case row is claimed with a
// conditional update on status = posted, so of any number of concurrent accepts on
// the same case exactly one succeeds and the rest get a conflict.
func (l *Ledger) Accept(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Case, error) {
	const op = "bids.accept"

	var (
		bid      models.Bid
		cs       models.Case
		rejected []uuid.UUID
	)
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bid, "id = ?", bidID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "bid")
			}
			return err
		}
		if err := tx.First(&cs, "id = ?", bid.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "case")
			}
			return err
		}
		if cs.ClientID != actor.ID {
			return apperr.Permission(op, "only the case owner can accept bids")
		}
		if bid.Status != models.BidPending {
			return apperr.WrongState(op, "bid", models.BidPending, bid.Status)
		}

		// CAS on the case status.
		res := tx.Model(&models.Case{}).
			Where("id = ? AND status = ?", cs.ID, models.CasePosted).
			Updates(map[string]any{
				"status":             models.CaseAssigned,
				"assigned_lawyer_id": bid.LawyerID,
				"winning_bid_id":     bid.ID,
				"assigned_at":        now,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "case not open")
		}

		res = tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.BidPending).
			Updates(map[string]any{"status": models.BidAccepted, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "bid is no longer pending")
		}

		if l.opts.AutoRejectLosing {
			if err := tx.Model(&models.Bid{}).
				Where("case_id = ? AND id <> ? AND status = ?", cs.ID, bid.ID, models.BidPending).
				Pluck("lawyer_id", &rejected).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Bid{}).
				Where("case_id = ? AND id <> ? AND status = ?", cs.ID, bid.ID, models.BidPending).
				Updates(map[string]any{"status": models.BidRejected, "updated_at": now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lawyerID, winning := bid.LawyerID, bid.ID
	cs.Status, cs.AssignedLawyerID, cs.WinningBidID, cs.AssignedAt, cs.UpdatedAt =
		models.CaseAssigned, &lawyerID, &winning, &now, now
	utils.LogCaseHistory(l.log, cs.ID, actor.ID, "bid_accepted", models.CasePosted, models.CaseAssigned, "bid "+bid.ID.String())

	meta := map[string]any{"case_id": cs.ID, "bid_id": bid.ID}
	l.notifier.Notify(ctx, notify.Message{
		RecipientID: bid.LawyerID,
		Type:        models.NotifyBidAccepted,
		Text:        fmt.Sprintf("Your bid of %s was accepted", formatAmount(bid.AmountCents)),
		Metadata:    meta,
	})
	l.notifier.Notify(ctx, notify.Message{
		RecipientID: cs.ClientID,
		Type:        models.NotifyCaseAssigned,
		Text:        "Your case has been assigned to a lawyer",
		Metadata:    meta,
	})
	for _, lid := range rejected {
		l.notifier.Notify(ctx, notify.Message{
			RecipientID: lid,
			Type:        models.NotifyBidRejected,
			Text:        "Your bid was not selected; the client accepted another bid",
			Metadata:    map[string]any{"case_id": cs.ID},
		})
	}
	l.notifier.NotifyAdmins(ctx, models.NotifyBidAcceptedAdmin, fmt.Sprintf("Bid accepted on case %s", cs.ID), meta)

	if l.prompter != nil {
		if _, err := l.prompter.InitiatePrompt(ctx, cs.ID, cs.ClientID, bid.LawyerID); err != nil {
			l.log.Warn("rating prompt failed", zap.String("case_id", cs.ID.String()), zap.Error(err))
		}
	}
	return &cs, nil
}

/* ================================ Listings ============================== */

type CaseBidItem struct {
	ID           uuid.UUID        `json:"id"`
	LawyerID     uuid.UUID        `json:"lawyer_id"`
	LawyerName   string           `json:"lawyer_name"`
	LawyerRating float64          `json:"lawyer_rating"`
	AmountCents  int64            `json:"amount_cents"`
	Comment      string           `json:"comment"`
	Status       models.BidStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ListForCase shows the owner every bid on their case. Comments are redacted
// while the case is still Posted.
func (l *Ledger) ListForCase(ctx context.Context, actor models.Actor, caseID uuid.UUID, p utils.Page) (models.PageResponse[CaseBidItem], error) {
	const op = "bids.list_case"
	out := models.PageResponse[CaseBidItem]{Page: p.Number, PageSize: p.Size, Items: []CaseBidItem{}}

	var cs models.Case
	if err := l.db.WithContext(ctx).Select("id", "client_id", "status").First(&cs, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, apperr.NotFound(op, "case")
		}
		return out, err
	}
	if cs.ClientID != actor.ID && !actor.Is(models.RoleAdmin) {
		return out, apperr.Permission(op, "not the case owner")
	}

	q := l.db.WithContext(ctx).Model(&models.Bid{}).Where("case_id = ?", caseID)
	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := l.db.WithContext(ctx).
		Table("bids").
		Select(`bids.id, bids.lawyer_id, users.username AS lawyer_name, users.average_rating AS lawyer_rating,
          bids.amount_cents, bids.comment, bids.status, bids.created_at`).
		Joins("LEFT JOIN users ON users.id = bids.lawyer_id").
		Where("bids.case_id = ?", caseID).
		Order("bids.created_at DESC").
		Offset(p.Offset()).Limit(p.Size).
		Scan(&out.Items).Error; err != nil {
		return out, err
	}

	if cs.Status == models.CasePosted {
		for i := range out.Items {
			out.Items[i].Comment = sanitize.RedactPII(out.Items[i].Comment)
		}
	}
	out.Pages = int((out.Total + int64(p.Size) - 1) / int64(p.Size))
	return out, nil
}

type MyBidItem struct {
	ID          uuid.UUID         `json:"id"`
	CaseID      uuid.UUID         `json:"case_id"`
	CaseStatus  models.CaseStatus `json:"case_status"`
	AmountCents int64             `json:"amount_cents"`
	Comment     string            `json:"comment"`
	Status      models.BidStatus  `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListMine lists the lawyer's own bids, optionally filtered by status.
func (l *Ledger) ListMine(ctx context.Context, actor models.Actor, p utils.Page, status string) (models.PageResponse[MyBidItem], error) {
	out := models.PageResponse[MyBidItem]{Page: p.Number, PageSize: p.Size, Items: []MyBidItem{}}

	q := l.db.WithContext(ctx).Table("bids").Where("bids.lawyer_id = ?", actor.ID)
	if status = strings.TrimSpace(status); status != "" {
		if !models.BidStatus(status).Valid() {
			return out, apperr.Invalid("bids.list_mine", "status", "invalid status filter")
		}
		q = q.Where("bids.status = ?", status)
	}

	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := q.Session(&gorm.Session{}).
		Select(`bids.id, bids.case_id, cases.status AS case_status, bids.amount_cents, bids.comment,
          bids.status, bids.created_at, bids.updated_at`).
		Joins("JOIN cases ON cases.id = bids.case_id").
		Order("bids.created_at DESC").
		Offset(p.Offset()).Limit(p.Size).
		Scan(&out.Items).Error; err != nil {
		return out, err
	}
	out.Pages = int((out.Total + int64(p.Size) - 1) / int64(p.Size))
	return out, nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
