package cases

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
)

type Handler struct {
	l *Ledger
}

func NewHandler(l *Ledger) *Handler { return &Handler{l: l} }

func parseID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// Create Case godoc
// @Summary      Create case
// @Description  Client posts a new case
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateInput  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	cs, err := h.l.Create(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

// List My Cases godoc
// @Summary      List my cases
// @Description  Client lists own cases with bid counts, newest first
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Success      200  {object}  models.PageResponse[CaseListItem]
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	out, err := h.l.ListMine(c.UserContext(), actor, utils.ParsePage(c))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(out)
}

// Marketplace godoc
// @Summary      Browse marketplace
// @Description  Lawyer browses posted cases. Descriptions are shortened and redacted
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Param        category  query  string  false  "Filter by category"
// @Success      200  {object}  models.PageResponse[MarketCaseItem]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /marketplace [get]
func (h *Handler) Marketplace(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	out, err := h.l.Marketplace(c.UserContext(), actor, utils.ParsePage(c), c.Query("category"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Get Case Detail godoc
// @Summary      Get case detail
// @Description  Case parties and admins see the case with its documents, deadlines and notes
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Success      200  {object}  models.Case
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.l.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Update Case godoc
// @Summary      Update case
// @Description  Owner edits a posted case. Omitted fields stay unchanged
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Param        payload  body  UpdateInput  true  "Fields to change"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	cs, err := h.l.Update(c.UserContext(), actor, id, in)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Delete Case godoc
// @Summary      Delete case
// @Description  Owner deletes a posted case
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Success      204
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.l.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Close Case godoc
// @Summary      Close case
// @Description  Owner closes a posted or assigned case
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Success      200  {object}  models.Case
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/close [patch]
func (h *Handler) Close(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.l.Close(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Add Case Deadline godoc
// @Summary      Add deadline
// @Description  A case party adds a dated milestone
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Param        payload  body  DeadlineInput  true  "Deadline payload"
// @Success      201  {object}  models.CaseDeadline
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/deadlines [post]
func (h *Handler) AddDeadline(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in DeadlineInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	dl, err := h.l.AddDeadline(c.UserContext(), actor, id, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dl)
}

// Complete Case Deadline godoc
// @Summary      Complete deadline
// @Description  A case party marks a milestone done
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Param        deadlineID  path  string  true  "Deadline ID"
// @Success      200  {object}  models.CaseDeadline
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/deadlines/{deadlineID}/complete [patch]
func (h *Handler) CompleteDeadline(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	deadlineID, err := parseID(c, "deadlineID")
	if err != nil {
		return err
	}
	dl, err := h.l.CompleteDeadline(c.UserContext(), actor, id, deadlineID)
	if err != nil {
		return err
	}
	return c.JSON(dl)
}

// Add Case Note godoc
// @Summary      Add note
// @Description  A case party leaves a note
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Param        payload  body  NoteInput  true  "Note payload"
// @Success      201  {object}  models.CaseNote
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [post]
func (h *Handler) AddNote(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in NoteInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	note, err := h.l.AddNote(c.UserContext(), actor, id, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(note)
}
