package users

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Directory is the read side of the user store.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory { return &Directory{db: db} }

// FindByID returns the user or a not-found error.
func (d *Directory) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("users.find", "user")
		}
		return nil, err
	}
	return &u, nil
}

// FindByRole returns every user holding role.
func (d *Directory) FindByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var out []models.User
	err := d.db.WithContext(ctx).Where("role = ?", role).Order("created_at ASC").Find(&out).Error
	return out, err
}

/* ================================ HTTP ================================== */

// Me godoc
// @Summary      Current user
// @Description  Directory entry of the caller
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  models.User
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /me [get]
func (d *Directory) Me(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	u, err := d.FindByID(c.UserContext(), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(u)
}
