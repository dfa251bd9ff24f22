package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/internal/notify/notifytest"
	"github.com/aldoetobex/legal-bid-backend/internal/testutil"
	"github.com/aldoetobex/legal-bid-backend/internal/users"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	db    *gorm.DB
	l     *Ledger
	rec   *notifytest.Recorder
	clock *clockwork.FakeClock

	client, lawyer models.User
}

func newEnv(t *testing.T) env {
	db := testutil.OpenTestDB(t, "appointments_test")
	rec := notifytest.New()
	clock := clockwork.NewFakeClockAt(t0)
	return env{
		db:     db,
		l:      NewLedger(db, users.NewDirectory(db), rec, clock, zap.NewNop()),
		rec:    rec,
		clock:  clock,
		client: testutil.SeedUser(t, db, models.RoleClient),
		lawyer: testutil.SeedUser(t, db, models.RoleLawyer),
	}
}

func actorOf(u models.User) models.Actor { return models.Actor{ID: u.ID, Role: u.Role} }

func (e env) schedule(t *testing.T, at time.Time) *models.Appointment {
	t.Helper()
	a, err := e.l.Create(context.Background(), actorOf(e.client), CreateInput{
		CounterpartyID: &e.lawyer.ID,
		Date:           at,
		Type:           models.AppointmentConsultation,
	})
	require.NoError(t, err)
	return a
}

func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		c.Locals("role", string(role))
		return c.Next()
	}
}

func newTestApp(h *Handler, u models.User) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(u.ID, u.Role))
	app.Post("/api/appointments", h.Create)
	app.Get("/api/appointments", h.List)
	app.Patch("/api/appointments/:id/confirm", h.Confirm)
	app.Patch("/api/appointments/:id/cancel", h.Cancel)
	app.Patch("/api/appointments/:id/complete", h.Complete)
	app.Patch("/api/appointments/:id/date", h.Reschedule)
	app.Get("/api/appointments/:id/ics", h.ICS)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

/* ================================= Create =============================== */

func TestCreate_WithCounterparty(t *testing.T) {
	e := newEnv(t)
	a := e.schedule(t, t0.Add(48*time.Hour))

	assert.Equal(t, models.AppointmentPending, a.Status)
	assert.Equal(t, e.client.ID, a.ClientID)
	assert.Equal(t, e.lawyer.ID, a.LawyerID)
	assert.False(t, a.ReminderSent24h || a.ReminderSent1h)
	assert.Len(t, e.rec.To(e.lawyer.ID, models.NotifyAppointment), 1)
}

func TestCreate_OnCase(t *testing.T) {
	e := newEnv(t)
	cs := models.Case{
		ID: uuid.New(), ClientID: e.client.ID, Description: "d", Category: models.CategoryLabor,
		Deadline: t0.Add(240 * time.Hour), Status: models.CaseAssigned, AssignedLawyerID: &e.lawyer.ID,
	}
	bid := uuid.New()
	cs.WinningBidID = &bid
	require.NoError(t, e.db.Create(&cs).Error)

	a, err := e.l.Create(context.Background(), actorOf(e.lawyer), CreateInput{
		CaseID: &cs.ID, Date: t0.Add(72 * time.Hour), Type: "Hearing",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentHearing, a.Type)
	assert.Equal(t, e.client.ID, a.ClientID)
	assert.Len(t, e.rec.To(e.client.ID, models.NotifyAppointment), 1)

	stranger := testutil.SeedUser(t, e.db, models.RoleLawyer)
	_, err = e.l.Create(context.Background(), actorOf(stranger), CreateInput{
		CaseID: &cs.ID, Date: t0.Add(72 * time.Hour), Type: models.AppointmentCall,
	})
	assert.ErrorIs(t, err, apperr.ErrPermission)
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.l.Create(ctx, actorOf(e.client), CreateInput{CounterpartyID: &e.lawyer.ID, Date: t0.Add(-time.Hour), Type: models.AppointmentCall})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "date")

	_, err = e.l.Create(ctx, actorOf(e.client), CreateInput{CounterpartyID: &e.lawyer.ID, Date: t0.Add(time.Hour), Type: "lunch"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "type")

	other := testutil.SeedUser(t, e.db, models.RoleClient)
	_, err = e.l.Create(ctx, actorOf(e.client), CreateInput{CounterpartyID: &other.ID, Date: t0.Add(time.Hour), Type: models.AppointmentCall})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.l.Create(ctx, actorOf(e.client), CreateInput{Date: t0.Add(time.Hour), Type: models.AppointmentCall})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

/* =============================== Transitions ============================ */

func TestLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.schedule(t, t0.Add(48*time.Hour))

	// Only the lawyer confirms.
	_, err := e.l.Confirm(ctx, actorOf(e.client), a.ID)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	// Completing a Pending appointment names the expected state.
	_, err = e.l.Complete(ctx, actorOf(e.lawyer), a.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, apperr.MessageOf(err), "confirmed")

	got, err := e.l.Confirm(ctx, actorOf(e.lawyer), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, got.Status)
	assert.Len(t, e.rec.To(e.client.ID, models.NotifyAppointment), 1)

	got, err = e.l.Complete(ctx, actorOf(e.lawyer), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, got.Status)

	_, err = e.l.Cancel(ctx, actorOf(e.client), a.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCancel_EitherParty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.schedule(t, t0.Add(48*time.Hour))

	stranger := testutil.SeedUser(t, e.db, models.RoleClient)
	_, err := e.l.Cancel(ctx, actorOf(stranger), a.ID)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	got, err := e.l.Cancel(ctx, actorOf(e.client), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, got.Status)

	_, err = e.l.Cancel(ctx, actorOf(e.lawyer), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

/* ================================ Reschedule ============================ */

func TestReschedule_ResetsReminderFlags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.schedule(t, t0.Add(25*time.Hour))

	require.NoError(t, e.db.Model(&models.Appointment{}).Where("id = ?", a.ID).
		Updates(map[string]any{"reminder_sent_24h": true, "reminder_sent_1h": true}).Error)

	newDate := t0.Add(48 * time.Hour)
	got, err := e.l.Reschedule(ctx, actorOf(e.client), a.ID, newDate)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(newDate))

	var stored models.Appointment
	require.NoError(t, e.db.First(&stored, "id = ?", a.ID).Error)
	assert.False(t, stored.ReminderSent24h)
	assert.False(t, stored.ReminderSent1h)
	assert.Equal(t, models.AppointmentPending, stored.Status)

	msgs := e.rec.To(e.lawyer.ID, models.NotifyAppointment)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "moved from")
	assert.Contains(t, msgs[1].Metadata, "old_date")
	assert.Contains(t, msgs[1].Metadata, "new_date")
}

func TestReschedule_Rejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.schedule(t, t0.Add(25*time.Hour))

	_, err := e.l.Reschedule(ctx, actorOf(e.client), a.ID, t0.Add(-time.Minute))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.l.Cancel(ctx, actorOf(e.lawyer), a.ID)
	require.NoError(t, err)
	_, err = e.l.Reschedule(ctx, actorOf(e.client), a.ID, t0.Add(30*time.Hour))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestClosedCase_BlocksConfirmAndReschedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bid := uuid.New()
	cs := models.Case{
		ID: uuid.New(), ClientID: e.client.ID, Description: "d", Category: models.CategoryLabor,
		Deadline: t0.Add(240 * time.Hour), Status: models.CaseAssigned,
		AssignedLawyerID: &e.lawyer.ID, WinningBidID: &bid,
	}
	require.NoError(t, e.db.Create(&cs).Error)

	a, err := e.l.Create(ctx, actorOf(e.client), CreateInput{
		CaseID: &cs.ID, Date: t0.Add(72 * time.Hour), Type: models.AppointmentMeeting,
	})
	require.NoError(t, err)
	b, err := e.l.Create(ctx, actorOf(e.client), CreateInput{
		CaseID: &cs.ID, Date: t0.Add(96 * time.Hour), Type: models.AppointmentCall,
	})
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&models.Case{}).Where("id = ?", cs.ID).Update("status", models.CaseClosed).Error)

	_, err = e.l.Confirm(ctx, actorOf(e.lawyer), a.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, apperr.MessageOf(err), "case is closed")

	_, err = e.l.Reschedule(ctx, actorOf(e.client), a.ID, t0.Add(100*time.Hour))
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, apperr.MessageOf(err), "case is closed")

	var got models.Appointment
	require.NoError(t, e.db.First(&got, "id = ?", a.ID).Error)
	assert.Equal(t, models.AppointmentPending, got.Status)
	assert.True(t, got.Date.Equal(t0.Add(72*time.Hour)))

	// Wrapping up stays possible.
	cancelled, err := e.l.Cancel(ctx, actorOf(e.client), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, cancelled.Status)

	// A wrong state is still reported as such, not as a closed case.
	_, err = e.l.Complete(ctx, actorOf(e.lawyer), b.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, apperr.MessageOf(err), "confirmed")
}

/* ================================ HTTP/ICS ============================== */

func TestHTTP_ListAndICS(t *testing.T) {
	e := newEnv(t)
	early := e.schedule(t, t0.Add(24*time.Hour))
	e.schedule(t, t0.Add(10*24*time.Hour))

	app := newTestApp(NewHandler(e.l), e.lawyer)

	code, raw := do(t, app, "GET", "/api/appointments", nil)
	require.Equal(t, fiber.StatusOK, code)
	var list struct {
		Items []models.Appointment `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, early.ID, list.Items[0].ID)

	to := t0.Add(48 * time.Hour).Format(time.RFC3339)
	code, raw = do(t, app, "GET", "/api/appointments?to="+to, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Len(t, list.Items, 1)

	code, _ = do(t, app, "GET", "/api/appointments?from=yesterday", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, raw = do(t, app, "GET", "/api/appointments/"+early.ID.String()+"/ics", nil)
	require.Equal(t, fiber.StatusOK, code)
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "BEGIN:VEVENT")
	assert.Contains(t, body, early.ID.String())
	assert.Contains(t, body, "DTSTART:20260602T090000Z")
}

func TestHTTP_Reschedule(t *testing.T) {
	e := newEnv(t)
	a := e.schedule(t, t0.Add(25*time.Hour))
	app := newTestApp(NewHandler(e.l), e.lawyer)

	code, _ := do(t, app, "PATCH", "/api/appointments/"+a.ID.String()+"/confirm", nil)
	require.Equal(t, fiber.StatusOK, code)

	code, raw := do(t, app, "PATCH", "/api/appointments/"+a.ID.String()+"/date",
		map[string]any{"date": t0.Add(50 * time.Hour)})
	require.Equal(t, fiber.StatusOK, code, string(raw))

	var got models.Appointment
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, models.AppointmentConfirmed, got.Status)
}

func TestGet_Permission(t *testing.T) {
	e := newEnv(t)
	a := e.schedule(t, t0.Add(25*time.Hour))
	stranger := testutil.SeedUser(t, e.db, models.RoleLawyer)

	_, err := e.l.Get(context.Background(), actorOf(stranger), a.ID)
	assert.True(t, errors.Is(err, apperr.ErrPermission))
}
