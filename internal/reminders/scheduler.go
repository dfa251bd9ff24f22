package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/config"
	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Window is a lead-time band before an event. A reminder fires when the time
// left until the event falls inside [Min, Max].
type Window struct {
	Name   string
	Column string
	Min    time.Duration
	Max    time.Duration
}

func (w Window) Contains(left time.Duration) bool { return left >= w.Min && left <= w.Max }

// Report summarises one sweep.
type Report struct {
	Appointments int // candidates examined
	Deadlines    int
	Sent         int // flags set, one per (item, window)
	Failed       int // items whose processing errored or panicked
}

// Scheduler sends appointment and deadline reminders. Each (item, window) flag
// moves false to true at most once; the notification dedupe key keeps a retried
// sweep from sending twice.
type Scheduler struct {
	db       *gorm.DB
	notifier notify.Notifier
	clock    clockwork.Clock
	log      *zap.Logger

	windows  []Window
	deadline Window
}

func NewScheduler(db *gorm.DB, n notify.Notifier, clock clockwork.Clock, log *zap.Logger, cfg config.ReminderConfig) *Scheduler {
	return &Scheduler{
		db:       db,
		notifier: n,
		clock:    clock,
		log:      log,
		windows: []Window{
			{Name: "24h", Column: "reminder_sent_24h", Min: cfg.Window24hMin, Max: cfg.Window24hMax},
			{Name: "1h", Column: "reminder_sent_1h", Min: cfg.Window1hMin, Max: cfg.Window1hMax},
		},
		deadline: Window{Name: "deadline", Column: "reminder_sent", Min: cfg.DeadlineMin, Max: cfg.DeadlineMax},
	}
}

// Sweep runs one pass over appointments and case deadlines. A failing item is
// logged and counted; it never stops the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	now := s.clock.Now()

	for _, w := range s.windows {
		var due []models.Appointment
		err := s.db.WithContext(ctx).
			Where("status IN ? AND date BETWEEN ? AND ?", models.ActiveAppointmentStatuses, now.Add(w.Min), now.Add(w.Max)).
			Where(w.Column+" = ?", false).
			// Appointments of a closed case are not reminded.
			Where(`(appointments.case_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM cases c WHERE c.id = appointments.case_id AND c.status = ?))`, models.CaseClosed).
			Order("date ASC").
			Find(&due).Error
		if err != nil {
			return rep, fmt.Errorf("load appointments for %s window: %w", w.Name, err)
		}
		rep.Appointments += len(due)

		for i := range due {
			sent, err := s.isolate(func() (bool, error) { return s.remindAppointment(ctx, &due[i], w, now) })
			s.tally(&rep, sent, err, "appointment", due[i].ID, w.Name)
		}
	}

	var deadlines []dueDeadline
	err := s.db.WithContext(ctx).
		Table("case_deadlines").
		Select("case_deadlines.id, case_deadlines.case_id, case_deadlines.title, case_deadlines.date, cases.client_id, cases.assigned_lawyer_id").
		Joins("JOIN cases ON cases.id = case_deadlines.case_id").
		Where("case_deadlines.completed = ? AND case_deadlines.reminder_sent = ?", false, false).
		Where("case_deadlines.date BETWEEN ? AND ?", now.Add(s.deadline.Min), now.Add(s.deadline.Max)).
		Where("cases.status <> ?", models.CaseClosed).
		Order("case_deadlines.date ASC").
		Scan(&deadlines).Error
	if err != nil {
		return rep, fmt.Errorf("load deadlines: %w", err)
	}
	rep.Deadlines = len(deadlines)
	for i := range deadlines {
		sent, err := s.isolate(func() (bool, error) { return s.remindDeadline(ctx, &deadlines[i]) })
		s.tally(&rep, sent, err, "deadline", deadlines[i].ID, s.deadline.Name)
	}

	if rep.Sent > 0 || rep.Failed > 0 {
		s.log.Info("reminder sweep finished",
			zap.Int("appointments", rep.Appointments),
			zap.Int("deadlines", rep.Deadlines),
			zap.Int("sent", rep.Sent),
			zap.Int("failed", rep.Failed))
	}
	return rep, nil
}

func (s *Scheduler) remindAppointment(ctx context.Context, a *models.Appointment, w Window, now time.Time) (bool, error) {
	if !w.Contains(a.Date.Sub(now)) {
		return false, nil
	}

	text := fmt.Sprintf("Reminder: your %s is in %s (%s)", a.Type, w.Name, a.Date.UTC().Format("2006-01-02 15:04 MST"))
	meta := map[string]any{"appointment_id": a.ID, "date": a.Date, "window": w.Name}
	for _, rid := range []uuid.UUID{a.ClientID, a.LawyerID} {
		out := s.notifier.Notify(ctx, notify.Message{
			RecipientID: rid,
			Type:        models.NotifyAppointmentReminder,
			Text:        text,
			Metadata:    meta,
			DedupeKey:   fmt.Sprintf("appointment:%s:%s:%d:%s", a.ID, w.Name, a.Date.Unix(), rid),
		})
		if out.Err != nil {
			s.log.Warn("appointment reminder not recorded",
				zap.String("appointment_id", a.ID.String()),
				zap.String("recipient_id", rid.String()),
				zap.Error(out.Err))
		}
	}

	// The date guard drops the flag write if the appointment was rescheduled
	// since it was loaded.
	res := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND date = ? AND status IN ?", a.ID, a.Date, models.ActiveAppointmentStatuses).
		Where(w.Column+" = ?", false).
		Update(w.Column, true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type dueDeadline struct {
	ID               uuid.UUID
	CaseID           uuid.UUID
	Title            string
	Date             time.Time
	ClientID         uuid.UUID
	AssignedLawyerID *uuid.UUID
}

func (s *Scheduler) remindDeadline(ctx context.Context, d *dueDeadline) (bool, error) {
	recipients := []uuid.UUID{d.ClientID}
	if d.AssignedLawyerID != nil {
		recipients = append(recipients, *d.AssignedLawyerID)
	}

	text := fmt.Sprintf("Reminder: deadline %q is due %s", d.Title, d.Date.UTC().Format("2006-01-02 15:04 MST"))
	meta := map[string]any{"case_id": d.CaseID, "deadline_id": d.ID, "date": d.Date}
	for _, rid := range recipients {
		out := s.notifier.Notify(ctx, notify.Message{
			RecipientID: rid,
			Type:        models.NotifyDeadlineReminder,
			Text:        text,
			Metadata:    meta,
			DedupeKey:   fmt.Sprintf("deadline:%s:%d:%s", d.ID, d.Date.Unix(), rid),
		})
		if out.Err != nil {
			s.log.Warn("deadline reminder not recorded",
				zap.String("deadline_id", d.ID.String()),
				zap.String("recipient_id", rid.String()),
				zap.Error(out.Err))
		}
	}

	res := s.db.WithContext(ctx).Model(&models.CaseDeadline{}).
		Where("id = ? AND completed = ? AND reminder_sent = ?", d.ID, false, false).
		Update("reminder_sent", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// isolate turns a panic in fn into an error.
func (s *Scheduler) isolate(fn func() (bool, error)) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Scheduler) tally(rep *Report, sent bool, err error, kind string, id uuid.UUID, window string) {
	switch {
	case err != nil:
		rep.Failed++
		s.log.Error("reminder failed",
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.String("window", window),
			zap.Error(err))
	case sent:
		rep.Sent++
	}
}
