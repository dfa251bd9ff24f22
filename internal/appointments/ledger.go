package appointments

import (
	"context"
	"errors"
	"fmt"
	"slices"
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
	"github.com/aldoetobex/legal-bid-backend/pkg/validation"
)

// Directory resolves the counterparty of a standalone appointment.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Ledger owns appointments between a client and a lawyer.
type Ledger struct {
	db       *gorm.DB
	dir      Directory
	notifier notify.Notifier
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewLedger(db *gorm.DB, dir Directory, n notify.Notifier, clock clockwork.Clock, log *zap.Logger) *Ledger {
	return &Ledger{db: db, dir: dir, notifier: n, clock: clock, log: log}
}

// CreateInput schedules an appointment either on a case (parties come from the
// case) or directly with a counterparty of the opposite role.
type CreateInput struct {
	CaseID         *uuid.UUID             `json:"case_id"`
	CounterpartyID *uuid.UUID             `json:"counterparty_id"`
	Date           time.Time              `json:"date" validate:"required"`
	Type           models.AppointmentType `json:"type" validate:"required,apptype"`
	Notes          string                 `json:"notes" validate:"max=1000"`
}

/* ================================= Create =============================== */

func (l *Ledger) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Appointment, error) {
	const op = "appointments.create"
	if !actor.Is(models.RoleClient) && !actor.Is(models.RoleLawyer) {
		return nil, apperr.Permission(op, "only clients and lawyers schedule appointments")
	}
	in.Type = models.AppointmentType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	in.Notes = strings.TrimSpace(in.Notes)
	if err := validation.Check(op, in); err != nil {
		return nil, err
	}
	now := l.clock.Now()
	if err := validation.Future(op, "date", in.Date, now); err != nil {
		return nil, err
	}

	a := models.Appointment{
		ID:        uuid.New(),
		CaseID:    in.CaseID,
		Date:      in.Date.UTC(),
		Status:    models.AppointmentPending,
		Type:      in.Type,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch {
	case in.CaseID != nil:
		var cs models.Case
		if err := l.db.WithContext(ctx).First(&cs, "id = ?", *in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound(op, "case")
			}
			return nil, err
		}
		if cs.AssignedLawyerID == nil {
			return nil, apperr.WrongState(op, "case", models.CaseAssigned, cs.Status)
		}
		if actor.ID != cs.ClientID && actor.ID != *cs.AssignedLawyerID {
			return nil, apperr.Permission(op, "not a party to this case")
		}
		if cs.Status.Terminal() {
			return nil, apperr.Conflict(op, "case is closed")
		}
		a.ClientID, a.LawyerID = cs.ClientID, *cs.AssignedLawyerID

	case in.CounterpartyID != nil:
		other, err := l.dir.FindByID(ctx, *in.CounterpartyID)
		if err != nil {
			return nil, err
		}
		switch {
		case actor.Is(models.RoleClient) && other.Role == models.RoleLawyer:
			a.ClientID, a.LawyerID = actor.ID, other.ID
		case actor.Is(models.RoleLawyer) && other.Role == models.RoleClient:
			a.ClientID, a.LawyerID = other.ID, actor.ID
		default:
			return nil, apperr.Invalid(op, "counterparty_id", "counterparty must be a client and a lawyer pair")
		}

	default:
		return nil, apperr.Invalid(op, "case_id", "case_id or counterparty_id is required")
	}

	if err := l.db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, err
	}
	l.log.Info("appointment created",
		zap.String("appointment_id", a.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Time("date", a.Date))

	l.notifier.Notify(ctx, notify.Message{
		RecipientID: counterparty(&a, actor.ID),
		Type:        models.NotifyAppointment,
		Text:        fmt.Sprintf("New %s scheduled on %s", a.Type, formatDate(a.Date)),
		Metadata:    meta(&a),
	})
	return &a, nil
}

/* =============================== Transitions ============================ */

// caseOpen matches appointments with no case or whose case is not Closed.
const caseOpen = `(appointments.case_id IS NULL OR NOT EXISTS (
	SELECT 1 FROM cases c WHERE c.id = appointments.case_id AND c.status = ?))`

// Confirm moves a Pending appointment to Confirmed. Lawyer only; the case, if
// any, must not be Closed.
func (l *Ledger) Confirm(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Appointment, error) {
	return l.transition(ctx, "appointments.confirm", actor, id, models.AppointmentConfirmed, true, true)
}

// Complete moves a Confirmed appointment to Completed. Lawyer only. Allowed after
// the case is closed so a held meeting can still be recorded.
func (l *Ledger) Complete(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Appointment, error) {
	return l.transition(ctx, "appointments.complete", actor, id, models.AppointmentCompleted, true, false)
}

// Cancel is open to either party while the appointment is still active, also
// after the case is closed.
func (l *Ledger) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Appointment, error) {
	return l.transition(ctx, "appointments.cancel", actor, id, models.AppointmentCancelled, false, false)
}

func (l *Ledger) transition(ctx context.Context, op string, actor models.Actor, id uuid.UUID, to models.AppointmentStatus, lawyerOnly, needOpenCase bool) (*models.Appointment, error) {
	now := l.clock.Now()
	from := models.AppointmentSourcesOf(to)

	q := l.db.WithContext(ctx).Model(&models.Appointment{}).Where("id = ? AND status IN ?", id, from)
	if lawyerOnly {
		q = q.Where("lawyer_id = ?", actor.ID)
	} else {
		q = q.Where("(client_id = ? OR lawyer_id = ?)", actor.ID, actor.ID)
	}
	if needOpenCase {
		q = q.Where(caseOpen, models.CaseClosed)
	}
	res := q.Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, l.explainMiss(ctx, op, actor, id, from, lawyerOnly)
	}

	var a models.Appointment
	if err := l.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	l.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("status", string(to)))

	l.notifier.Notify(ctx, notify.Message{
		RecipientID: counterparty(&a, actor.ID),
		Type:        models.NotifyAppointment,
		Text:        fmt.Sprintf("Your %s on %s is now %s", a.Type, formatDate(a.Date), to),
		Metadata:    meta(&a),
	})
	return &a, nil
}

/* ================================ Reschedule ============================ */

// Reschedule moves an active appointment to a new date. Both reminder flags are
// cleared so the new date gets its own reminders.
func (l *Ledger) Reschedule(ctx context.Context, actor models.Actor, id uuid.UUID, date time.Time) (*models.Appointment, error) {
	const op = "appointments.reschedule"
	now := l.clock.Now()
	if err := validation.Future(op, "date", date, now); err != nil {
		return nil, err
	}

	var (
		a   models.Appointment
		old time.Time
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(op, "appointment")
			}
			return err
		}
		if !isParty(&a, actor.ID) {
			return apperr.Permission(op, "not a party to this appointment")
		}
		if !a.Status.Active() {
			return apperr.WrongState(op, "appointment", strings.Join(statusNames(models.ActiveAppointmentStatuses), " or "), a.Status)
		}
		closed, err := caseClosed(tx, a.CaseID)
		if err != nil {
			return err
		}
		if closed {
			return apperr.Conflict(op, "case is closed")
		}

		old = a.Date
		a.Date, a.ReminderSent24h, a.ReminderSent1h, a.UpdatedAt = date.UTC(), false, false, now
		return tx.Model(&models.Appointment{}).Where("id = ?", id).Updates(map[string]any{
			"date":              a.Date,
			"reminder_sent_24h": false,
			"reminder_sent_1h":  false,
			"updated_at":        now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("appointment rescheduled",
		zap.String("appointment_id", id.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Time("old_date", old),
		zap.Time("new_date", a.Date))

	m := meta(&a)
	m["old_date"], m["new_date"] = old, a.Date
	l.notifier.Notify(ctx, notify.Message{
		RecipientID: counterparty(&a, actor.ID),
		Type:        models.NotifyAppointment,
		Text:        fmt.Sprintf("Your %s was moved from %s to %s", a.Type, formatDate(old), formatDate(a.Date)),
		Metadata:    m,
	})
	return &a, nil
}

/* ================================= Queries ============================== */

// Get returns one appointment to either party.
func (l *Ledger) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Appointment, error) {
	const op = "appointments.get"
	var a models.Appointment
	if err := l.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "appointment")
		}
		return nil, err
	}
	if !isParty(&a, actor.ID) && !actor.Is(models.RoleAdmin) {
		return nil, apperr.Permission(op, "not a party to this appointment")
	}
	return &a, nil
}

// List returns the actor's appointments ordered by date, bounded by from/to when given.
func (l *Ledger) List(ctx context.Context, actor models.Actor, from, to *time.Time) ([]models.Appointment, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.Invalid("appointments.list", "to", "must not be before from")
	}
	q := l.db.WithContext(ctx).Where("(client_id = ? OR lawyer_id = ?)", actor.ID, actor.ID)
	if from != nil {
		q = q.Where("date >= ?", *from)
	}
	if to != nil {
		q = q.Where("date <= ?", *to)
	}
	out := []models.Appointment{}
	if err := q.Order("date ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Upcoming returns at most limit active appointments dated after now.
func (l *Ledger) Upcoming(ctx context.Context, userID uuid.UUID, limit int) ([]models.Appointment, error) {
	out := []models.Appointment{}
	err := l.db.WithContext(ctx).
		Where("(client_id = ? OR lawyer_id = ?) AND status IN ? AND date > ?",
			userID, userID, models.ActiveAppointmentStatuses, l.clock.Now()).
		Order("date ASC").Limit(limit).Find(&out).Error
	return out, err
}

/* ================================= Helpers ============================== */

func (l *Ledger) explainMiss(ctx context.Context, op string, actor models.Actor, id uuid.UUID, from []models.AppointmentStatus, lawyerOnly bool) error {
	var a models.Appointment
	if err := l.db.WithContext(ctx).Select("id", "client_id", "lawyer_id", "case_id", "status").First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(op, "appointment")
		}
		return err
	}
	if !isParty(&a, actor.ID) {
		return apperr.Permission(op, "not a party to this appointment")
	}
	if lawyerOnly && a.LawyerID != actor.ID {
		return apperr.Permission(op, "only the lawyer can do this")
	}
	if slices.Contains(from, a.Status) {
		closed, err := caseClosed(l.db.WithContext(ctx), a.CaseID)
		if err != nil {
			return err
		}
		if closed {
			return apperr.Conflict(op, "case is closed")
		}
	}
	return apperr.WrongState(op, "appointment", strings.Join(statusNames(from), " or "), a.Status)
}

func caseClosed(db *gorm.DB, caseID *uuid.UUID) (bool, error) {
	if caseID == nil {
		return false, nil
	}
	var n int64
	err := db.Model(&models.Case{}).Where("id = ? AND status = ?", *caseID, models.CaseClosed).Count(&n).Error
	return n > 0, err
}

func isParty(a *models.Appointment, id uuid.UUID) bool {
	return a.ClientID == id || a.LawyerID == id
}

func counterparty(a *models.Appointment, actorID uuid.UUID) uuid.UUID {
	if actorID == a.LawyerID {
		return a.ClientID
	}
	return a.LawyerID
}

func meta(a *models.Appointment) map[string]any {
	m := map[string]any{"appointment_id": a.ID, "date": a.Date}
	if a.CaseID != nil {
		m["case_id"] = *a.CaseID
	}
	return m
}

func statusNames(ss []models.AppointmentStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func formatDate(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") }
