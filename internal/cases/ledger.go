package cases

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

// Ledger owns case records and their Posted -> Assigned -> Closed lifecycle.
// Assignment itself is performed by the bid ledger.
type Ledger struct {
	db       *gorm.DB
	notifier notify.Notifier
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewLedger(db *gorm.DB, n notify.Notifier, clock clockwork.Clock, log *zap.Logger) *Ledger {
	return &Ledger{db: db, notifier: n, clock: clock, log: log}
}

/* ================================ Inputs ================================ */

// DocumentRef points at a file already held by the document store.
type DocumentRef struct {
	Key          string `json:"key" validate:"required,max=300"`
	Mime         string `json:"mime" validate:"required,max=100"`
	Size         int    `json:"size" validate:"gt=0"`
	OriginalName string `json:"original_name" validate:"max=255"`
}

type CreateInput struct {
	Description string        `json:"description" validate:"required,max=500"`
	Category    string        `json:"category" validate:"required,casecategory"`
	Deadline    time.Time     `json:"deadline"`
	Documents   []DocumentRef `json:"documents" validate:"max=10,dive"`
}

// UpdateInput carries the fields to change; nil means unchanged.
type UpdateInput struct {
	Description *string    `json:"description" validate:"omitnil,required,max=500"`
	Category    *string    `json:"category" validate:"omitnil,required,casecategory"`
	Deadline    *time.Time `json:"deadline"`
}

type DeadlineInput struct {
	Title      string     `json:"title" validate:"required,max=200"`
	Date       time.Time  `json:"date"`
	AssigneeID *uuid.UUID `json:"assignee_id"`
}

type NoteInput struct {
	Text string `json:"text" validate:"required,max=1000"`
}

/* ================================ Create ================================ */

// Create stores a new Posted case for a client and announces it to all lawyers.
func (l *Ledger) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Case, error) {
	const op = "cases.create"
	if !actor.Is(models.RoleClient) {
		return nil, apperr.Permission(op, "only clients can post cases")
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}
	now := l.clock.Now()
	if err := validation.Future(op, "deadline", in.Deadline, now); err != nil {
		return nil, err
	}

	cs := models.Case{
		ID:          uuid.New(),
		ClientID:    actor.ID,
		Description: in.Description,
		Category:    models.CaseCategory(in.Category),
		Deadline:    in.Deadline.UTC(),
		Status:      models.CasePosted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, d := range in.Documents {
		cs.Files = append(cs.Files, models.CaseFile{
			ID: uuid.New(), CaseID: cs.ID, Key: d.Key, Mime: d.Mime, Size: d.Size,
			OriginalName: d.OriginalName, CreatedAt: now,
		})
	}

	// Files are created through the association in the same transaction.
	if err := l.db.WithContext(ctx).Create(&cs).Error; err != nil {
		return nil, err
	}
	utils.LogCaseHistory(l.log, cs.ID, actor.ID, "created", "", models.CasePosted, "")

	l.notifier.Broadcast(ctx, models.RoleLawyer, models.NotifyCasePosted,
		fmt.Sprintf("New %s case posted", cs.Category),
		map[string]any{"case_id": cs.ID, "category": cs.Category})
	return &cs, nil
}

/* ================================= Read ================================= */

// Get returns a case with its documents, deadlines and notes to one of its parties
// or an admin.
func (l *Ledger) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Case, error) {
	const op = "cases.get"
	var cs models.Case
	err := l.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Deadlines", func(db *gorm.DB) *gorm.DB { return db.Order("date ASC") }).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&cs, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "case")
		}
		return nil, err
	}
	if !actor.Is(models.RoleAdmin) && !isParty(&cs, actor.ID) {
		return nil, apperr.Permission(op, "not a party to this case")
	}

	// Don't send nulls
	if cs.Files == nil {
		cs.Files = []models.CaseFile{}
	}
	if cs.Deadlines == nil {
		cs.Deadlines = []models.CaseDeadline{}
	}
	if cs.Notes == nil {
		cs.Notes = []models.CaseNote{}
	}
	return &cs, nil
}

type CaseListItem struct {
	ID               uuid.UUID           `json:"id"`
	Description      string              `json:"description"`
	Category         models.CaseCategory `json:"category"`
	Status           models.CaseStatus   `json:"status"`
	Deadline         time.Time           `json:"deadline"`
	AssignedLawyerID *uuid.UUID          `json:"assigned_lawyer_id"`
	CreatedAt        time.Time           `json:"created_at"`
	Bids             int64               `json:"bids"`
}

// ListMine lists the client's cases with their bid counts, newest first.
func (l *Ledger) ListMine(ctx context.Context, actor models.Actor, p utils.Page) (models.PageResponse[CaseListItem], error) {
	out := models.PageResponse[CaseListItem]{Page: p.Number, PageSize: p.Size, Items: []CaseListItem{}}

	if err := l.db.WithContext(ctx).Model(&models.Case{}).
		Where("client_id = ?", actor.ID).
		Count(&out.Total).Error; err != nil {
		return out, err
	}

	if err := l.db.WithContext(ctx).
		Table("cases").
		Select(`cases.id, cases.description, cases.category, cases.status, cases.deadline,
          cases.assigned_lawyer_id, cases.created_at, COUNT(bids.id) AS bids`).
		Joins("LEFT JOIN bids ON bids.case_id = cases.id").
		Where("cases.client_id = ?", actor.ID).
		Group("cases.id").
		Order("cases.created_at DESC").
		Offset(p.Offset()).Limit(p.Size).
		Scan(&out.Items).Error; err != nil {
		return out, err
	}
	out.Pages = pages(out.Total, p.Size)
	return out, nil
}

// MarketCaseItem is the anonymized view lawyers browse.
type MarketCaseItem struct {
	ID        uuid.UUID           `json:"id"`
	Category  models.CaseCategory `json:"category"`
	Deadline  time.Time           `json:"deadline"`
	CreatedAt time.Time           `json:"created_at"`
	Preview   string              `json:"preview"`
	HasMyBid  bool                `json:"has_my_bid"`
}

// Marketplace lists Posted cases for lawyers. Descriptions are PII-redacted and
// the client is never revealed.
func (l *Ledger) Marketplace(ctx context.Context, actor models.Actor, p utils.Page, category string) (models.PageResponse[MarketCaseItem], error) {
	out := models.PageResponse[MarketCaseItem]{Page: p.Number, PageSize: p.Size, Items: []MarketCaseItem{}}

	dbq := l.db.WithContext(ctx).Model(&models.Case{}).Where("status = ?", models.CasePosted)
	if category = strings.ToLower(strings.TrimSpace(category)); category != "" {
		if !models.CaseCategory(category).Valid() {
			return out, apperr.Invalid("cases.marketplace", "category", "Value is not allowed")
		}
		dbq = dbq.Where("category = ?", category)
	}

	if err := dbq.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	var list []models.Case
	if err := dbq.Session(&gorm.Session{}).Order("created_at DESC").
		Offset(p.Offset()).Limit(p.Size).
		Find(&list).Error; err != nil {
		return out, err
	}

	// Only look up bids for the cases on this page (IN (?)), no N+1.
	caseIDs := make([]uuid.UUID, 0, len(list))
	for _, cs := range list {
		caseIDs = append(caseIDs, cs.ID)
	}
	bidded := map[uuid.UUID]bool{}
	if len(caseIDs) > 0 {
		var ids []uuid.UUID
		if err := l.db.WithContext(ctx).Model(&models.Bid{}).
			Where("lawyer_id = ? AND case_id IN ?", actor.ID, caseIDs).
			Pluck("DISTINCT case_id", &ids).Error; err != nil {
			return out, err
		}
		for _, id := range ids {
			bidded[id] = true
		}
	}

	for _, cs := range list {
		out.Items = append(out.Items, MarketCaseItem{
			ID:        cs.ID,
			Category:  cs.Category,
			Deadline:  cs.Deadline,
			CreatedAt: cs.CreatedAt,
			Preview:   sanitize.Summary(sanitize.RedactPII(cs.Description), 240),
			HasMyBid:  bidded[cs.ID],
		})
	}
	out.Pages = pages(out.Total, p.Size)
	return out, nil
}

/* ================================ Update ================================ */

// Update edits a case while it is still Posted. Owner only.
func (l *Ledger) Update(ctx context.Context, actor models.Actor, id uuid.UUID, in UpdateInput) (*models.Case, error) {
	const op = "cases.update"
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if in.Category != nil {
		c := strings.ToLower(strings.TrimSpace(*in.Category))
		in.Category = &c
	}
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Category != nil {
		updates["category"] = *in.Category
	}
	if in.Deadline != nil {
		if err := validation.Future(op, "deadline", *in.Deadline, l.clock.Now()); err != nil {
			return nil, err
		}
		updates["deadline"] = in.Deadline.UTC()
	}
	if len(updates) == 0 {
		return nil, apperr.Invalid(op, "body", "Nothing to update")
	}
	updates["updated_at"] = l.clock.Now()

	res := l.db.WithContext(ctx).Model(&models.Case{}).
		Where("id = ? AND client_id = ? AND status = ?", id, actor.ID, models.CasePosted).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, l.explainMiss(ctx, op, id, actor, models.CasePosted)
	}

	var cs models.Case
	if err := l.db.WithContext(ctx).First(&cs, "id = ?", id).Error; err != nil {
		return nil, err
	}
	utils.LogCaseHistory(l.log, id, actor.ID, "updated", "", "", "")
	return &cs, nil
}

// Delete removes a case and everything hanging off it while it is still Posted.
// Assigned or closed cases are never deleted.
func (l *Ledger) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	const op = "cases.delete"
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cs models.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cs, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "case")
			}
			return err
		}
		if cs.ClientID != actor.ID {
			return apperr.Permission(op, "not the case owner")
		}
		if cs.Status != models.CasePosted {
			return apperr.WrongState(op, "case", models.CasePosted, cs.Status)
		}
		for _, child := range []any{&models.Bid{}, &models.CaseFile{}, &models.CaseDeadline{}, &models.CaseNote{}} {
			if err := tx.Where("case_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Case{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	utils.LogCaseHistory(l.log, id, actor.ID, "deleted", models.CasePosted, "", "")
	return nil
}

/* ================================= Close ================================ */

// Close moves a Posted or Assigned case to Closed. Owner only.
func (l *Ledger) Close(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Case, error) {
	const op = "cases.close"

	var before models.Case
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "case")
			}
			return err
		}
		if before.ClientID != actor.ID {
			return apperr.Permission(op, "only the case owner can close it")
		}
		if !before.Status.CanTransitionTo(models.CaseClosed) {
			return apperr.Conflict(op, "case is already closed")
		}
		return tx.Model(&models.Case{}).
			Where("id = ? AND status = ?", id, before.Status).
			Updates(map[string]any{"status": models.CaseClosed, "closed_at": now, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	utils.LogCaseHistory(l.log, id, actor.ID, "closed", before.Status, models.CaseClosed, "")

	closed := before
	closed.Status, closed.ClosedAt, closed.UpdatedAt = models.CaseClosed, &now, now

	meta := map[string]any{"case_id": id}
	if closed.AssignedLawyerID != nil {
		l.notifier.Notify(ctx, notify.Message{
			RecipientID: *closed.AssignedLawyerID,
			Type:        models.NotifyCaseClosed,
			Text:        "A case assigned to you has been closed by the client",
			Metadata:    meta,
		})
	}
	l.notifier.NotifyAdmins(ctx, models.NotifyCaseClosedAdmin, fmt.Sprintf("Case %s was closed", id), meta)
	return &closed, nil
}

/* =============================== Deadlines ============================== */

// AddDeadline attaches a dated milestone to an open case and notifies its assignee.
func (l *Ledger) AddDeadline(ctx context.Context, actor models.Actor, caseID uuid.UUID, in DeadlineInput) (*models.CaseDeadline, error) {
	const op = "cases.deadline.add"
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}
	now := l.clock.Now()
	if err := validation.Future(op, "date", in.Date, now); err != nil {
		return nil, err
	}

	dl := models.CaseDeadline{
		ID: uuid.New(), CaseID: caseID, Title: in.Title, Date: in.Date.UTC(),
		AssigneeID: in.AssigneeID, CreatedAt: now,
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cs, err := l.lockOpenCase(tx, op, caseID, actor)
		if err != nil {
			return err
		}
		if in.AssigneeID != nil && !isParty(cs, *in.AssigneeID) {
			return apperr.Invalid(op, "assignee_id", "Assignee must be the client or the assigned lawyer")
		}
		return tx.Create(&dl).Error
	})
	if err != nil {
		return nil, err
	}

	if dl.AssigneeID != nil && *dl.AssigneeID != actor.ID {
		l.notifier.Notify(ctx, notify.Message{
			RecipientID: *dl.AssigneeID,
			Type:        models.NotifyDeadlineAssigned,
			Text:        fmt.Sprintf("You were assigned the deadline %q due %s", dl.Title, dl.Date.Format(time.RFC1123)),
			Metadata:    map[string]any{"case_id": caseID, "deadline_id": dl.ID},
		})
	}
	return &dl, nil
}

// CompleteDeadline marks a deadline completed. Completing twice is a conflict.
func (l *Ledger) CompleteDeadline(ctx context.Context, actor models.Actor, caseID, deadlineID uuid.UUID) (*models.CaseDeadline, error) {
	const op = "cases.deadline.complete"

	var (
		dl models.CaseDeadline
		cs *models.Case
	)
	now := l.clock.Now()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = l.lockOpenCase(tx, op, caseID, actor); err != nil {
			return err
		}
		if err := tx.First(&dl, "id = ? AND case_id = ?", deadlineID, caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "deadline")
			}
			return err
		}
		res := tx.Model(&models.CaseDeadline{}).
			Where("id = ? AND completed = ?", deadlineID, false).
			Updates(map[string]any{"completed": true, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "deadline already completed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dl.Completed, dl.CompletedAt = true, &now

	if cs.ClientID != actor.ID {
		l.notifier.Notify(ctx, notify.Message{
			RecipientID: cs.ClientID,
			Type:        models.NotifyDeadlineCompleted,
			Text:        fmt.Sprintf("Deadline %q was completed", dl.Title),
			Metadata:    map[string]any{"case_id": caseID, "deadline_id": dl.ID},
		})
	}
	return &dl, nil
}

/* ================================= Notes ================================ */

// AddNote records a note from the owner or the assigned lawyer on an open case.
func (l *Ledger) AddNote(ctx context.Context, actor models.Actor, caseID uuid.UUID, in NoteInput) (*models.CaseNote, error) {
	const op = "cases.note.add"
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}
	note := models.CaseNote{ID: uuid.New(), CaseID: caseID, AuthorID: actor.ID, Text: in.Text, CreatedAt: l.clock.Now()}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := l.lockOpenCase(tx, op, caseID, actor); err != nil {
			return err
		}
		return tx.Create(&note).Error
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

/* ================================ Helpers =============================== */

func isParty(cs *models.Case, id uuid.UUID) bool {
	return cs.ClientID == id || (cs.AssignedLawyerID != nil && *cs.AssignedLawyerID == id)
}

// lockOpenCase share-locks a case so it cannot be closed underneath a child write,
// and checks the actor is a party and the case is not Closed.
func (l *Ledger) lockOpenCase(tx *gorm.DB, op string, id uuid.UUID, actor models.Actor) (*models.Case, error) {
	var cs models.Case
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "case")
		}
		return nil, err
	}
	if !isParty(&cs, actor.ID) {
		return nil, apperr.Permission(op, "not a party to this case")
	}
	if cs.Status == models.CaseClosed {
		return nil, apperr.Conflict(op, "case is closed")
	}
	return &cs, nil
}

// explainMiss turns a conditional write that matched no row into the error that
// describes why.
func (l *Ledger) explainMiss(ctx context.Context, op string, id uuid.UUID, actor models.Actor, want models.CaseStatus) error {
	var cs models.Case
	if err := l.db.WithContext(ctx).Select("id", "client_id", "status").First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(op, "case")
		}
		return err
	}
	if cs.ClientID != actor.ID {
		return apperr.Permission(op, "not the case owner")
	}
	return apperr.WrongState(op, "case", want, cs.Status)
}

func pages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
