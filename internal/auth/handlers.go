package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

/* ================================ DTOs ================================= */

// Request body for /dev/token
type DevTokenRequest struct {
	UserID string `json:"user_id"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

/* ============================== Handler ================================= */

// UserLookup resolves the user a dev token is minted for.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// DevHandler mints tokens for existing users in local development. Production
// tokens come from the identity provider.
type DevHandler struct {
	users  UserLookup
	secret string
	devKey string
	ttl    time.Duration
}

func NewDevHandler(users UserLookup, secret, devKey string, ttl time.Duration) *DevHandler {
	return &DevHandler{users: users, secret: secret, devKey: devKey, ttl: ttl}
}

/* ============================== Dev token =============================== */

// Dev Token godoc
// @Summary      Issue dev token
// @Description  Mints a JWT for an existing user. Development only
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-Dev-Secret  header  string  true  "Dev secret"
// @Param        payload  body  DevTokenRequest  true  "User to impersonate"
// @Success      200  {object}  AuthResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /dev/token [post]
func (h *DevHandler) Token(c *fiber.Ctx) error {
	if h.devKey == "" || c.Get("X-Dev-Secret") != h.devKey {
		return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in DevTokenRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	id, err := uuid.Parse(in.UserID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
	}
	u, err := h.users.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	token, err := IssueToken(h.secret, u.ID, u.Role, h.ttl)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(AuthResponse{Token: token, Role: string(u.Role)})
}
