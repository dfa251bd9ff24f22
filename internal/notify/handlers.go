package notify

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/utils"
)

type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler { return &Handler{d: d} }

// List Notifications godoc
// @Summary      List notifications
// @Description  Caller's notifications including broadcasts to their role, newest first
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Param        unread  query  bool  false  "Only unread"
// @Success      200  {object}  models.PageResponse[models.Notification]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /notifications [get]
func (h *Handler) List(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	out, err := h.d.ListMine(c.UserContext(), actor, utils.ParsePage(c), c.QueryBool("unread", false))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(out)
}

// Unread Notification Count godoc
// @Summary      Unread count
// @Description  Number of unread notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int  "unread"
// @Failure      401  {object}  models.ErrorResponse
// @Router       /notifications/unread-count [get]
func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	n, err := h.d.UnreadCount(c.UserContext(), actor)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"unread": n})
}

// Mark Notification Read godoc
// @Summary      Mark notification read
// @Description  Marks one notification read for the caller. Idempotent
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Notification ID"
// @Success      200  {object}  models.Notification
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /notifications/{id}/read [patch]
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid notification id")
	}
	n, err := h.d.MarkRead(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(n)
}

// Mark All Notifications Read godoc
// @Summary      Mark all read
// @Description  Marks every unread notification read
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int  "updated"
// @Failure      401  {object}  models.ErrorResponse
// @Router       /notifications/read-all [patch]
func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	n, err := h.d.MarkAllRead(c.UserContext(), actor)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"updated": n})
}
