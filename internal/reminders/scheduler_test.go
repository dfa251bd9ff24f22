package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/appointments"
	"github.com/aldoetobex/legal-bid-backend/internal/config"
	"github.com/aldoetobex/legal-bid-backend/internal/notify"
	"github.com/aldoetobex/legal-bid-backend/internal/notify/notifytest"
	"github.com/aldoetobex/legal-bid-backend/internal/testutil"
	"github.com/aldoetobex/legal-bid-backend/internal/users"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

var testWindows = config.ReminderConfig{
	SweepInterval: time.Hour,
	Window24hMin:  22 * time.Hour,
	Window24hMax:  26 * time.Hour,
	Window1hMin:   30 * time.Minute,
	Window1hMax:   2 * time.Hour,
	DeadlineMin:   22 * time.Hour,
	DeadlineMax:   26 * time.Hour,
}

type env struct {
	db     *gorm.DB
	clock  *clockwork.FakeClock
	rec    *notifytest.Recorder
	s      *Scheduler
	client models.User
	lawyer models.User
}

func newEnv(t *testing.T) env {
	db := testutil.OpenTestDB(t, "reminders_test")
	clock := clockwork.NewFakeClockAt(t0)
	rec := notifytest.New()
	return env{
		db:     db,
		clock:  clock,
		rec:    rec,
		s:      NewScheduler(db, rec, clock, zap.NewNop(), testWindows),
		client: testutil.SeedUser(t, db, models.RoleClient),
		lawyer: testutil.SeedUser(t, db, models.RoleLawyer),
	}
}

func (e env) appointment(t *testing.T, at time.Time, status models.AppointmentStatus) models.Appointment {
	t.Helper()
	a := models.Appointment{
		ID: uuid.New(), ClientID: e.client.ID, LawyerID: e.lawyer.ID,
		Date: at, Status: status, Type: models.AppointmentConsultation,
	}
	require.NoError(t, e.db.Create(&a).Error)
	return a
}

func (e env) reload(t *testing.T, id uuid.UUID) models.Appointment {
	t.Helper()
	var a models.Appointment
	require.NoError(t, e.db.First(&a, "id = ?", id).Error)
	return a
}

func TestWindowContains(t *testing.T) {
	w := Window{Min: 22 * time.Hour, Max: 26 * time.Hour}
	assert.True(t, w.Contains(22*time.Hour))
	assert.True(t, w.Contains(26*time.Hour))
	assert.True(t, w.Contains(25*time.Hour))
	assert.False(t, w.Contains(21*time.Hour+59*time.Minute))
	assert.False(t, w.Contains(27*time.Hour))
}

func TestSweep_24hReminderOnceUntilRescheduled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.appointment(t, t0.Add(25*time.Hour), models.AppointmentConfirmed)

	rep, err := e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, e.reload(t, a.ID).ReminderSent24h)
	assert.False(t, e.reload(t, a.ID).ReminderSent1h)
	assert.Len(t, e.rec.To(e.client.ID, models.NotifyAppointmentReminder), 1)
	assert.Len(t, e.rec.To(e.lawyer.ID, models.NotifyAppointmentReminder), 1)

	// Still inside the window an hour later; nothing new goes out.
	e.clock.Advance(time.Hour)
	rep, err = e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Sent)
	assert.Equal(t, 2, e.rec.Count(models.NotifyAppointmentReminder))

	// Rescheduling clears both flags.
	ledger := appointments.NewLedger(e.db, users.NewDirectory(e.db), e.rec, e.clock, zap.NewNop())
	_, err = ledger.Reschedule(ctx, models.Actor{ID: e.client.ID, Role: models.RoleClient}, a.ID, e.clock.Now().Add(48*time.Hour))
	require.NoError(t, err)
	got := e.reload(t, a.ID)
	assert.False(t, got.ReminderSent24h)
	assert.False(t, got.ReminderSent1h)

	// The new date gets its own 24h reminder once it comes into range.
	e.clock.Advance(24 * time.Hour)
	rep, err = e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Equal(t, 4, e.rec.Count(models.NotifyAppointmentReminder))
}

func TestRemindAppointment_StaleCopyAfterReschedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.appointment(t, t0.Add(25*time.Hour), models.AppointmentConfirmed)

	// A sweep has loaded the row; a reschedule lands before it writes the flag.
	var stale models.Appointment
	require.NoError(t, e.db.First(&stale, "id = ?", a.ID).Error)

	ledger := appointments.NewLedger(e.db, users.NewDirectory(e.db), e.rec, e.clock, zap.NewNop())
	moved, err := ledger.Reschedule(ctx, models.Actor{ID: e.lawyer.ID, Role: models.RoleLawyer}, a.ID, t0.Add(24*time.Hour))
	require.NoError(t, err)

	w := e.s.windows[0]
	require.Equal(t, "24h", w.Name)
	sent, err := e.s.remindAppointment(ctx, &stale, w, e.clock.Now())
	require.NoError(t, err)
	assert.False(t, sent, "flag write for the old date must miss")

	got := e.reload(t, a.ID)
	assert.True(t, got.Date.Equal(moved.Date))
	assert.False(t, got.ReminderSent24h)
	assert.False(t, got.ReminderSent1h)

	// The next sweep reminds for the new date and sets the flag.
	rep, err := e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, e.reload(t, a.ID).ReminderSent24h)
}

func TestSweep_SkipsClosedCaseAppointments(t *testing.T) {
	e := newEnv(t)
	bid := uuid.New()
	cs := models.Case{
		ID: uuid.New(), ClientID: e.client.ID, Description: "d", Category: models.CategoryFamily,
		Deadline: t0.Add(240 * time.Hour), Status: models.CaseClosed,
		AssignedLawyerID: &e.lawyer.ID, WinningBidID: &bid,
	}
	require.NoError(t, e.db.Create(&cs).Error)
	a := models.Appointment{
		ID: uuid.New(), ClientID: e.client.ID, LawyerID: e.lawyer.ID, CaseID: &cs.ID,
		Date: t0.Add(25 * time.Hour), Status: models.AppointmentConfirmed, Type: models.AppointmentMeeting,
	}
	require.NoError(t, e.db.Create(&a).Error)

	rep, err := e.s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Appointments)
	assert.False(t, e.reload(t, a.ID).ReminderSent24h)
	assert.Zero(t, e.rec.Count(models.NotifyAppointmentReminder))
}

func TestSweep_1hWindow(t *testing.T) {
	e := newEnv(t)
	a := e.appointment(t, t0.Add(90*time.Minute), models.AppointmentPending)

	rep, err := e.s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)

	got := e.reload(t, a.ID)
	assert.True(t, got.ReminderSent1h)
	assert.False(t, got.ReminderSent24h, "24h window was never entered")
}

func TestSweep_SkipsInactiveAndOutOfWindow(t *testing.T) {
	e := newEnv(t)
	e.appointment(t, t0.Add(25*time.Hour), models.AppointmentCancelled)
	e.appointment(t, t0.Add(25*time.Hour), models.AppointmentCompleted)
	e.appointment(t, t0.Add(10*time.Hour), models.AppointmentConfirmed)
	e.appointment(t, t0.Add(-time.Hour), models.AppointmentConfirmed)

	rep, err := e.s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Sent)
	assert.Equal(t, 0, e.rec.Count(models.NotifyAppointmentReminder))
}

func TestSweep_RecipientFailureDoesNotBlockFlag(t *testing.T) {
	e := newEnv(t)
	e.rec.FailFor[e.client.ID] = true
	a := e.appointment(t, t0.Add(24*time.Hour), models.AppointmentConfirmed)

	rep, err := e.s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, e.rec.To(e.lawyer.ID, models.NotifyAppointmentReminder), 1)
	assert.True(t, e.reload(t, a.ID).ReminderSent24h)
}

// panicky blows up for one recipient.
type panicky struct {
	*notifytest.Recorder
	victim uuid.UUID
}

func (p panicky) Notify(ctx context.Context, m notify.Message) notify.Outcome {
	if m.RecipientID == p.victim {
		panic("boom")
	}
	return p.Recorder.Notify(ctx, m)
}

func TestSweep_IsolatesPanics(t *testing.T) {
	e := newEnv(t)
	other := testutil.SeedUser(t, e.db, models.RoleClient)
	bad := models.Appointment{
		ID: uuid.New(), ClientID: other.ID, LawyerID: e.lawyer.ID,
		Date: t0.Add(23 * time.Hour), Status: models.AppointmentConfirmed, Type: models.AppointmentCall,
	}
	require.NoError(t, e.db.Create(&bad).Error)
	good := e.appointment(t, t0.Add(25*time.Hour), models.AppointmentConfirmed)

	core, logs := observer.New(zap.ErrorLevel)
	s := NewScheduler(e.db, panicky{Recorder: e.rec, victim: other.ID}, e.clock, zap.New(core), testWindows)

	rep, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Sent)
	assert.True(t, e.reload(t, good.ID).ReminderSent24h)
	assert.False(t, e.reload(t, bad.ID).ReminderSent24h)
	assert.Equal(t, 1, logs.FilterMessage("reminder failed").Len())
}

func TestSweep_DeadlineReminders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bid := uuid.New()
	cs := models.Case{
		ID: uuid.New(), ClientID: e.client.ID, Description: "d", Category: models.CategoryContract,
		Deadline: t0.Add(30 * 24 * time.Hour), Status: models.CaseAssigned,
		AssignedLawyerID: &e.lawyer.ID, WinningBidID: &bid,
	}
	require.NoError(t, e.db.Create(&cs).Error)

	due := models.CaseDeadline{ID: uuid.New(), CaseID: cs.ID, Title: "File response", Date: t0.Add(24 * time.Hour)}
	done := models.CaseDeadline{ID: uuid.New(), CaseID: cs.ID, Title: "Done", Date: t0.Add(24 * time.Hour), Completed: true}
	later := models.CaseDeadline{ID: uuid.New(), CaseID: cs.ID, Title: "Later", Date: t0.Add(5 * 24 * time.Hour)}
	for _, d := range []*models.CaseDeadline{&due, &done, &later} {
		require.NoError(t, e.db.Create(d).Error)
	}

	rep, err := e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deadlines)
	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, e.rec.To(e.client.ID, models.NotifyDeadlineReminder), 1)
	assert.Len(t, e.rec.To(e.lawyer.ID, models.NotifyDeadlineReminder), 1)

	rep, err = e.s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Deadlines)
	assert.Equal(t, 2, e.rec.Count(models.NotifyDeadlineReminder))
}
