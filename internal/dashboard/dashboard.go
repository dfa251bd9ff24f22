package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
	"github.com/aldoetobex/legal-bid-backend/pkg/sanitize"
)

const (
	upcomingLimit = 5
	recentLimit   = 3
)

type Appointments interface {
	Upcoming(ctx context.Context, userID uuid.UUID, limit int) ([]models.Appointment, error)
}

type Ratings interface {
	PendingCount(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// Service assembles the role-specific dashboard summaries.
type Service struct {
	db           *gorm.DB
	appointments Appointments
	ratings      Ratings
}

func NewService(db *gorm.DB, a Appointments, r Ratings) *Service {
	return &Service{db: db, appointments: a, ratings: r}
}

type ClientDashboard struct {
	TotalCases           int64                `json:"total_cases"`
	ActiveCases          int64                `json:"active_cases"`
	PendingRatings       int64                `json:"pending_ratings"`
	UpcomingAppointments []models.Appointment `json:"upcoming_appointments"`
}

type RecentCase struct {
	ID         uuid.UUID         `json:"id"`
	Summary    string            `json:"summary"`
	Category   string            `json:"category"`
	Status     models.CaseStatus `json:"status"`
	AssignedAt *time.Time        `json:"assigned_at"`
}

type LawyerDashboard struct {
	AssignedCases        int64                `json:"assigned_cases"`
	ActiveCases          int64                `json:"active_cases"`
	TotalBids            int64                `json:"total_bids"`
	BidSuccessRate       float64              `json:"bid_success_rate"`
	AverageRating        float64              `json:"average_rating"`
	RatingCount          int                  `json:"rating_count"`
	UpcomingAppointments []models.Appointment `json:"upcoming_appointments"`
	RecentCases          []RecentCase         `json:"recent_cases"`
}

type AdminDashboard struct {
	CasesByStatus map[models.CaseStatus]int64 `json:"cases_by_status"`
	UsersByRole   map[models.Role]int64       `json:"users_by_role"`
	TotalBids     int64                       `json:"total_bids"`
}

func (s *Service) Client(ctx context.Context, clientID uuid.UUID) (*ClientDashboard, error) {
	out := &ClientDashboard{}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Case{}).Where("client_id = ?", clientID).Count(&out.TotalCases).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Case{}).
		Where("client_id = ? AND status IN ?", clientID, []models.CaseStatus{models.CasePosted, models.CaseAssigned}).
		Count(&out.ActiveCases).Error; err != nil {
		return nil, err
	}

	var err error
	if out.PendingRatings, err = s.ratings.PendingCount(ctx, clientID); err != nil {
		return nil, err
	}
	if out.UpcomingAppointments, err = s.appointments.Upcoming(ctx, clientID, upcomingLimit); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Lawyer(ctx context.Context, lawyerID uuid.UUID) (*LawyerDashboard, error) {
	out := &LawyerDashboard{RecentCases: []RecentCase{}}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Case{}).Where("assigned_lawyer_id = ?", lawyerID).Count(&out.AssignedCases).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Case{}).
		Where("assigned_lawyer_id = ? AND status = ?", lawyerID, models.CaseAssigned).
		Count(&out.ActiveCases).Error; err != nil {
		return nil, err
	}

	var accepted int64
	if err := db.Model(&models.Bid{}).Where("lawyer_id = ?", lawyerID).Count(&out.TotalBids).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Bid{}).Where("lawyer_id = ? AND status = ?", lawyerID, models.BidAccepted).Count(&accepted).Error; err != nil {
		return nil, err
	}
	out.BidSuccessRate = successRate(accepted, out.TotalBids)

	var u models.User
	if err := db.Select("average_rating", "rating_count").First(&u, "id = ?", lawyerID).Error; err != nil {
		return nil, err
	}
	out.AverageRating, out.RatingCount = u.AverageRating, u.RatingCount

	var err error
	if out.UpcomingAppointments, err = s.appointments.Upcoming(ctx, lawyerID, upcomingLimit); err != nil {
		return nil, err
	}

	var recent []models.Case
	if err := db.Select("id", "description", "category", "status", "assigned_at").
		Where("assigned_lawyer_id = ?", lawyerID).
		Order("assigned_at DESC NULLS LAST").Limit(recentLimit).
		Find(&recent).Error; err != nil {
		return nil, err
	}
	for _, c := range recent {
		out.RecentCases = append(out.RecentCases, RecentCase{
			ID:         c.ID,
			Summary:    sanitize.Summary(c.Description, 120),
			Category:   string(c.Category),
			Status:     c.Status,
			AssignedAt: c.AssignedAt,
		})
	}
	return out, nil
}

func (s *Service) Admin(ctx context.Context) (*AdminDashboard, error) {
	out := &AdminDashboard{
		CasesByStatus: map[models.CaseStatus]int64{},
		UsersByRole:   map[models.Role]int64{},
	}
	db := s.db.WithContext(ctx)

	var byStatus []struct {
		Status models.CaseStatus
		N      int64
	}
	if err := db.Model(&models.Case{}).Select("status, COUNT(*) AS n").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, r := range byStatus {
		out.CasesByStatus[r.Status] = r.N
	}

	var byRole []struct {
		Role models.Role
		N    int64
	}
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS n").Group("role").Scan(&byRole).Error; err != nil {
		return nil, err
	}
	for _, r := range byRole {
		out.UsersByRole[r.Role] = r.N
	}

	if err := db.Model(&models.Bid{}).Count(&out.TotalBids).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// successRate is accepted/total as a percentage with one decimal.
func successRate(accepted, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(accepted)/float64(total)*1000) / 10
}

// Dashboard godoc
// @Summary      Dashboard
// @Description  Role-specific summary: ClientDashboard, LawyerDashboard or AdminDashboard
// @Tags         dashboard
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /dashboard [get]
func (s *Service) Handle(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	switch actor.Role {
	case models.RoleClient:
		out, err := s.Client(ctx, actor.ID)
		if err != nil {
			return err
		}
		return c.JSON(out)
	case models.RoleLawyer:
		out, err := s.Lawyer(ctx, actor.ID)
		if err != nil {
			return err
		}
		return c.JSON(out)
	case models.RoleAdmin:
		out, err := s.Admin(ctx)
		if err != nil {
			return err
		}
		return c.JSON(out)
	default:
		return apperr.Permission("dashboard", "unknown role")
	}
}
