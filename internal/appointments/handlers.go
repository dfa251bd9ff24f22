package appointments

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/internal/auth"
	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
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

// parseTimeQuery reads an optional RFC3339 query parameter.
func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Invalid("appointments.list", name, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

// Create Appointment godoc
// @Summary      Create appointment
// @Description  Client or lawyer books a meeting on a case or with a counterparty of the opposite role
// @Tags         appointments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateInput  true  "Appointment payload"
// @Success      201  {object}  models.Appointment
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /appointments [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	a, err := h.l.Create(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

// List Appointments godoc
// @Summary      List appointments
// @Description  Caller's appointments, optionally within a date range
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        from  query  string  false  "RFC3339 lower bound"
// @Param        to  query  string  false  "RFC3339 upper bound"
// @Success      200  {object}  map[string][]models.Appointment  "items"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /appointments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return err
	}
	out, err := h.l.List(c.UserContext(), actor, from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": out})
}

type transitionFunc func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Appointment, error)

func (h *Handler) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := parseID(c, "id")
		if err != nil {
			return err
		}
		a, err := fn(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.JSON(a)
	}
}

// Confirm Appointment godoc
// @Summary      Confirm appointment
// @Description  Lawyer confirms a pending appointment
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  models.Appointment
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /appointments/{id}/confirm [patch]
func (h *Handler) Confirm(c *fiber.Ctx) error { return h.transition(h.l.Confirm)(c) }

// Cancel Appointment godoc
// @Summary      Cancel appointment
// @Description  Either party cancels a pending or confirmed appointment
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  models.Appointment
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /appointments/{id}/cancel [patch]
func (h *Handler) Cancel(c *fiber.Ctx) error { return h.transition(h.l.Cancel)(c) }

// Complete Appointment godoc
// @Summary      Complete appointment
// @Description  Lawyer completes a confirmed appointment
// @Tags         appointments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {object}  models.Appointment
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /appointments/{id}/complete [patch]
func (h *Handler) Complete(c *fiber.Ctx) error { return h.transition(h.l.Complete)(c) }

type rescheduleReq struct {
	Date time.Time `json:"date"`
}

// Reschedule Appointment godoc
// @Summary      Reschedule appointment
// @Description  Either party moves a pending or confirmed appointment. Reminder flags are cleared
// @Tags         appointments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Appointment ID"
// @Param        payload  body  rescheduleReq  true  "New date"
// @Success      200  {object}  models.Appointment
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /appointments/{id}/date [patch]
func (h *Handler) Reschedule(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in rescheduleReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	a, err := h.l.Reschedule(c.UserContext(), actor, id, in.Date)
	if err != nil {
		return err
	}
	return c.JSON(a)
}

// Export Appointment godoc
// @Summary      Export appointment as iCalendar
// @Description  Either party downloads an .ics file
// @Tags         appointments
// @Security     BearerAuth
// @Produce      text/calendar
// @Param        id  path  string  true  "Appointment ID"
// @Success      200  {string}  string
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /appointments/{id}/ics [get]
func (h *Handler) ICS(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	body, err := h.l.ExportICS(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	c.Attachment("appointment-" + id.String() + ".ics")
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	return c.SendString(body)
}
