package ratings

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
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
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

type env struct {
	db    *gorm.DB
	e     *Engine
	rec   *notifytest.Recorder
	clock *clockwork.FakeClock
}

func newEnv(t *testing.T) env {
	db := testutil.OpenTestDB(t, "ratings_test")
	rec := notifytest.New()
	clock := clockwork.NewFakeClockAt(t0)
	return env{db: db, e: NewEngine(db, rec, clock, zap.NewNop(), week), rec: rec, clock: clock}
}

func actorOf(u models.User) models.Actor { return models.Actor{ID: u.ID, Role: u.Role} }

// assignedCase creates a case owned by client with lawyer assigned.
func assignedCase(t *testing.T, db *gorm.DB, clientID, lawyerID uuid.UUID) uuid.UUID {
	t.Helper()
	bid := uuid.New()
	cs := models.Case{
		ID: uuid.New(), ClientID: clientID, Description: "Contract review for a small business lease",
		Category: models.CategoryContract, Deadline: t0.Add(30 * 24 * time.Hour),
		Status: models.CaseAssigned, AssignedLawyerID: &lawyerID, WinningBidID: &bid, AssignedAt: &t0,
	}
	require.NoError(t, db.Create(&cs).Error)
	return cs.ID
}

func lawyerAggregate(t *testing.T, db *gorm.DB, id uuid.UUID) (float64, int) {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u.AverageRating, u.RatingCount
}

func TestRoundRating(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{4.0, 4.0},
		{13.0 / 3.0, 4.3},
		{4.25, 4.3},
		{4.24, 4.2},
		{2.0 / 3.0, 0.7},
		{0, 0},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, RoundRating(c.in), 1e-9, "RoundRating(%v)", c.in)
	}
}

/* ================================ Prompt ================================ */

func TestInitiatePrompt_Idempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	client := testutil.SeedUser(t, env.db, models.RoleClient)
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)
	caseID := assignedCase(t, env.db, client.ID, lawyer.ID)

	first, err := env.e.InitiatePrompt(ctx, caseID, client.ID, lawyer.ID)
	require.NoError(t, err)
	second, err := env.e.InitiatePrompt(ctx, caseID, client.ID, lawyer.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.RatingPending, second.Status)

	var n int64
	env.db.Model(&models.Rating{}).Where("client_id = ? AND case_id = ?", client.ID, caseID).Count(&n)
	assert.EqualValues(t, 1, n)
	assert.Len(t, env.rec.To(client.ID, models.NotifyRatingPrompt), 1)
}

/* ================================ Submit ================================= */

func TestSubmit_AggregateFromCompletedSet(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)

	for _, score := range []int{5, 4, 4} {
		client := testutil.SeedUser(t, env.db, models.RoleClient)
		caseID := assignedCase(t, env.db, client.ID, lawyer.ID)
		_, err := env.e.InitiatePrompt(ctx, caseID, client.ID, lawyer.ID)
		require.NoError(t, err)
		r, err := env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: caseID, Rating: score, Comment: "ok"})
		require.NoError(t, err)
		assert.Equal(t, models.RatingCompleted, r.Status)
		require.NotNil(t, r.CompletedAt)
	}

	avg, count := lawyerAggregate(t, env.db, lawyer.ID)
	assert.InDelta(t, 4.3, avg, 1e-9)
	assert.Equal(t, 3, count)

	// A pending request for the same lawyer does not count.
	client := testutil.SeedUser(t, env.db, models.RoleClient)
	caseID := assignedCase(t, env.db, client.ID, lawyer.ID)
	_, err := env.e.InitiatePrompt(ctx, caseID, client.ID, lawyer.ID)
	require.NoError(t, err)
	_, count = lawyerAggregate(t, env.db, lawyer.ID)
	assert.Equal(t, 3, count)
}

func TestSubmit_ConcurrentSubmissionsKeepAggregateExact(t *testing.T) {
	env := newEnv(t)
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)

	scores := []int{1, 2, 3, 4, 5, 5, 4, 2}
	type job struct {
		client models.User
		caseID uuid.UUID
		score  int
	}
	jobs := make([]job, len(scores))
	sum := 0
	for i, s := range scores {
		c := testutil.SeedUser(t, env.db, models.RoleClient)
		jobs[i] = job{client: c, caseID: assignedCase(t, env.db, c.ID, lawyer.ID), score: s}
		sum += s
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(jobs))
	// Reverse order so completion order differs from creation order.
	for i := len(jobs) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			_, err := env.e.Submit(context.Background(), actorOf(j.client), SubmitInput{CaseID: j.caseID, Rating: j.score})
			errs <- err
		}(jobs[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	avg, count := lawyerAggregate(t, env.db, lawyer.ID)
	assert.Equal(t, len(scores), count)
	assert.InDelta(t, RoundRating(float64(sum)/float64(len(scores))), avg, 1e-9)
}

func TestSubmit_Rejections(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	client := testutil.SeedUser(t, env.db, models.RoleClient)
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)
	caseID := assignedCase(t, env.db, client.ID, lawyer.ID)

	_, err := env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: caseID, Rating: 6})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "rating")

	_, err = env.e.Submit(ctx, actorOf(lawyer), SubmitInput{CaseID: caseID, Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	other := testutil.SeedUser(t, env.db, models.RoleClient)
	_, err = env.e.Submit(ctx, actorOf(other), SubmitInput{CaseID: caseID, Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	posted := models.Case{
		ID: uuid.New(), ClientID: client.ID, Description: "d", Category: models.CategoryOther,
		Deadline: t0.Add(48 * time.Hour), Status: models.CasePosted,
	}
	require.NoError(t, env.db.Create(&posted).Error)
	_, err = env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: posted.ID, Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: caseID, Rating: 5})
	require.NoError(t, err)
	_, err = env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: caseID, Rating: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	avg, count := lawyerAggregate(t, env.db, lawyer.ID)
	assert.InDelta(t, 5.0, avg, 1e-9)
	assert.Equal(t, 1, count)
}

/* ======================== Dismiss & re-prompting ======================== */

func TestDismissThenSubmit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	client := testutil.SeedUser(t, env.db, models.RoleClient)
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)
	caseID := assignedCase(t, env.db, client.ID, lawyer.ID)
	_, err := env.e.InitiatePrompt(ctx, caseID, client.ID, lawyer.ID)
	require.NoError(t, err)

	r, err := env.e.Dismiss(ctx, actorOf(client), caseID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingDismissed, r.Status)
	require.NotNil(t, r.LastRemindedAt)
	assert.True(t, r.LastRemindedAt.Equal(t0))

	_, err = env.e.Dismiss(ctx, actorOf(client), caseID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.e.Dismiss(ctx, actorOf(client), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	r, err = env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: caseID, Rating: 3})
	require.NoError(t, err)
	assert.Equal(t, models.RatingCompleted, r.Status)
}

func TestRemindDismissed(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)

	mk := func(status models.RatingStatus, remindedAgo time.Duration) (models.User, uuid.UUID) {
		client := testutil.SeedUser(t, env.db, models.RoleClient)
		caseID := assignedCase(t, env.db, client.ID, lawyer.ID)
		at := t0.Add(-remindedAgo)
		r := models.Rating{ID: uuid.New(), ClientID: client.ID, CaseID: caseID, LawyerID: lawyer.ID, Status: status, LastRemindedAt: &at}
		if status == models.RatingCompleted {
			score := 4
			r.Rating, r.CompletedAt = &score, &at
		}
		require.NoError(t, env.db.Create(&r).Error)
		return client, r.ID
	}

	stale, staleID := mk(models.RatingDismissed, 8*24*time.Hour)
	fresh, freshID := mk(models.RatingDismissed, 3*24*time.Hour)
	done, _ := mk(models.RatingCompleted, 30*24*time.Hour)

	n, err := env.e.RemindDismissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, env.rec.To(stale.ID, models.NotifyRatingReminder), 1)
	assert.Empty(t, env.rec.To(fresh.ID, models.NotifyRatingReminder))
	assert.Empty(t, env.rec.To(done.ID, models.NotifyRatingReminder))

	var got models.Rating
	require.NoError(t, env.db.First(&got, "id = ?", staleID).Error)
	assert.True(t, got.LastRemindedAt.Equal(t0))
	assert.Equal(t, models.RatingDismissed, got.Status)

	require.NoError(t, env.db.First(&got, "id = ?", freshID).Error)
	assert.True(t, got.LastRemindedAt.Equal(t0.Add(-3*24*time.Hour)))

	// Running again right away finds nothing due.
	n, err = env.e.RemindDismissed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A week later both dismissed requests are due.
	env.clock.Advance(week + time.Hour)
	n, err = env.e.RemindDismissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

/* ================================== HTTP ================================= */

func TestHTTP_PendingAndLawyerRatings(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	client := testutil.SeedUser(t, env.db, models.RoleClient)
	lawyer := testutil.SeedUser(t, env.db, models.RoleLawyer)
	c1 := assignedCase(t, env.db, client.ID, lawyer.ID)
	c2 := assignedCase(t, env.db, client.ID, lawyer.ID)
	for _, id := range []uuid.UUID{c1, c2} {
		_, err := env.e.InitiatePrompt(ctx, id, client.ID, lawyer.ID)
		require.NoError(t, err)
	}

	h := NewHandler(env.e)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Get("/api/ratings/lawyers/:lawyerID", h.ForLawyer)
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", client.ID.String())
		c.Locals("role", string(models.RoleClient))
		return c.Next()
	})
	app.Post("/api/ratings", h.Submit)
	app.Get("/api/ratings/pending", h.Pending)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/ratings/pending", nil), -1)
	require.NoError(t, err)
	var pending struct {
		Items []PendingItem `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.Len(t, pending.Items, 2)
	assert.Equal(t, lawyer.Username, pending.Items[0].LawyerName)

	_, err = env.e.Submit(ctx, actorOf(client), SubmitInput{CaseID: c1, Rating: 4, Comment: "Clear and quick"})
	require.NoError(t, err)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/ratings/lawyers/"+lawyer.ID.String(), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var lr LawyerRatings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	assert.InDelta(t, 4.0, lr.AverageRating, 1e-9)
	assert.Equal(t, 1, lr.RatingCount)
	require.Len(t, lr.Ratings.Items, 1)
	assert.Equal(t, "Clear and quick", lr.Ratings.Items[0].Comment)
	assert.Equal(t, client.Username, lr.Ratings.Items[0].ClientName)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/ratings/lawyers/"+client.ID.String(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	_, err = env.e.ListForLawyer(ctx, lawyer.ID, utils.NewPage(1, 10))
	require.NoError(t, err)
}
