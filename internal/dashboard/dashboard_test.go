package dashboard

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/appointments"
	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/internal/notify/notifytest"
	"github.com/aldoetobex/legal-bid-backend/internal/ratings"
	"github.com/aldoetobex/legal-bid-backend/internal/testutil"
	"github.com/aldoetobex/legal-bid-backend/internal/users"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 0.0, successRate(0, 0))
	assert.Equal(t, 100.0, successRate(2, 2))
	assert.Equal(t, 33.3, successRate(1, 3))
	assert.Equal(t, 66.7, successRate(2, 3))
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	client models.User
	lawyer models.User
}

func setup(t *testing.T) fixture {
	db := testutil.OpenTestDB(t, "dashboard_test")
	clock := clockwork.NewFakeClockAt(t0)
	rec := notifytest.New()
	appts := appointments.NewLedger(db, users.NewDirectory(db), rec, clock, zap.NewNop())
	eng := ratings.NewEngine(db, rec, clock, zap.NewNop(), 7*24*time.Hour)
	f := fixture{
		db:     db,
		svc:    NewService(db, appts, eng),
		client: testutil.SeedUser(t, db, models.RoleClient),
		lawyer: testutil.SeedUser(t, db, models.RoleLawyer),
	}

	mkCase := func(status models.CaseStatus, assigned bool, assignedAt time.Time) uuid.UUID {
		cs := models.Case{
			ID: uuid.New(), ClientID: f.client.ID, Description: "Employment contract question",
			Category: models.CategoryLabor, Deadline: t0.Add(20 * 24 * time.Hour), Status: status,
		}
		if assigned {
			bid := uuid.New()
			cs.AssignedLawyerID, cs.WinningBidID, cs.AssignedAt = &f.lawyer.ID, &bid, &assignedAt
		}
		require.NoError(t, db.Create(&cs).Error)
		return cs.ID
	}
	posted := mkCase(models.CasePosted, false, time.Time{})
	a1 := mkCase(models.CaseAssigned, true, t0.Add(-48*time.Hour))
	mkCase(models.CaseClosed, true, t0.Add(-96*time.Hour))
	a2 := mkCase(models.CaseAssigned, true, t0.Add(-24*time.Hour))

	for _, b := range []models.Bid{
		{ID: uuid.New(), CaseID: a1, LawyerID: f.lawyer.ID, AmountCents: 100, Status: models.BidAccepted},
		{ID: uuid.New(), CaseID: a2, LawyerID: f.lawyer.ID, AmountCents: 100, Status: models.BidAccepted},
		{ID: uuid.New(), CaseID: posted, LawyerID: f.lawyer.ID, AmountCents: 100, Status: models.BidPending},
	} {
		require.NoError(t, db.Create(&b).Error)
	}

	ctx := context.Background()
	_, err := eng.InitiatePrompt(ctx, a1, f.client.ID, f.lawyer.ID)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Appointment{
		ID: uuid.New(), ClientID: f.client.ID, LawyerID: f.lawyer.ID,
		Date: t0.Add(48 * time.Hour), Status: models.AppointmentConfirmed, Type: models.AppointmentMeeting,
	}).Error)
	require.NoError(t, db.Create(&models.Appointment{
		ID: uuid.New(), ClientID: f.client.ID, LawyerID: f.lawyer.ID,
		Date: t0.Add(72 * time.Hour), Status: models.AppointmentCancelled, Type: models.AppointmentMeeting,
	}).Error)
	return f
}

func TestClientDashboard(t *testing.T) {
	f := setup(t)
	d, err := f.svc.Client(context.Background(), f.client.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 4, d.TotalCases)
	assert.EqualValues(t, 3, d.ActiveCases)
	assert.EqualValues(t, 1, d.PendingRatings)
	assert.Len(t, d.UpcomingAppointments, 1)
}

func TestLawyerDashboard(t *testing.T) {
	f := setup(t)
	d, err := f.svc.Lawyer(context.Background(), f.lawyer.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 3, d.AssignedCases)
	assert.EqualValues(t, 2, d.ActiveCases)
	assert.EqualValues(t, 3, d.TotalBids)
	assert.Equal(t, 66.7, d.BidSuccessRate)
	assert.Len(t, d.UpcomingAppointments, 1)
	require.Len(t, d.RecentCases, 3)
	assert.Equal(t, models.CaseAssigned, d.RecentCases[0].Status)
	assert.True(t, d.RecentCases[0].AssignedAt.After(*d.RecentCases[1].AssignedAt))
}

func TestHandle_RoleDependent(t *testing.T) {
	f := setup(t)
	admin := testutil.SeedUser(t, f.db, models.RoleAdmin)

	for _, u := range []models.User{f.client, f.lawyer, admin} {
		app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("userID", u.ID.String())
			c.Locals("role", string(u.Role))
			return c.Next()
		})
		app.Get("/api/dashboard", f.svc.Handle)

		resp, err := app.Test(httptest.NewRequest("GET", "/api/dashboard", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, u.Role)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		switch u.Role {
		case models.RoleClient:
			assert.Contains(t, body, "pending_ratings")
		case models.RoleLawyer:
			assert.Contains(t, body, "bid_success_rate")
		case models.RoleAdmin:
			assert.Contains(t, body, "cases_by_status")
		}
	}
}
