package ratings

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
)

type Handler struct {
	e *Engine
}

func NewHandler(e *Engine) *Handler { return &Handler{e: e} }

func parseID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// Submit Rating godoc
// @Summary      Submit rating
// @Description  Client rates the lawyer of a closed case
// @Tags         ratings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SubmitInput  true  "Rating payload"
// @Success      201  {object}  models.Rating
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /ratings [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	r, err := h.e.Submit(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// Dismiss Rating godoc
// @Summary      Dismiss rating request
// @Description  Client postpones a pending rating request
// @Tags         ratings
// @Security     BearerAuth
// @Produce      json
// @Param        caseID  path  string  true  "Case ID"
// @Success      200  {object}  models.Rating
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /ratings/{caseID}/dismiss [patch]
func (h *Handler) Dismiss(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	caseID, err := parseID(c, "caseID")
	if err != nil {
		return err
	}
	r, err := h.e.Dismiss(c.UserContext(), actor, caseID)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

// List Pending Ratings godoc
// @Summary      List pending ratings
// @Description  Client's outstanding rating requests
// @Tags         ratings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string][]PendingItem  "items"
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /ratings/pending [get]
func (h *Handler) Pending(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	out, err := h.e.ListPending(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": out})
}

// Lawyer Ratings godoc
// @Summary      Lawyer ratings
// @Description  Public aggregate and completed ratings of a lawyer
// @Tags         ratings
// @Produce      json
// @Param        lawyerID  path  string  true  "Lawyer ID"
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Success      200  {object}  LawyerRatings
// @Failure      404  {object}  models.ErrorResponse
// @Router       /ratings/lawyers/{lawyerID} [get]
func (h *Handler) ForLawyer(c *fiber.Ctx) error {
	id, err := parseID(c, "lawyerID")
	if err != nil {
		return err
	}
	out, err := h.e.ListForLawyer(c.UserContext(), id, utils.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}
