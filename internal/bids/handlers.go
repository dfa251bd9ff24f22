package bids

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

// Place Bid godoc
// @Summary      Place bid
// @Description  Lawyer bids on a posted case. One bid per lawyer per case
// @Tags         bids
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  PlaceInput  true  "Bid payload"
// @Success      201  {object}  models.Bid
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "Duplicate bid or case not posted"
// @Router       /bids [post]
func (h *Handler) Place(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	var in PlaceInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	bid, err := h.l.Place(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(bid)
}

// Accept Bid godoc
// @Summary      Accept bid
// @Description  Case owner accepts a pending bid. The case becomes assigned to the bidding lawyer
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Bid ID"
// @Success      200  {object}  map[string]interface{}  "case_id, status, assigned_lawyer_id, winning_bid_id"
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /bids/{id}/accept [patch]
func (h *Handler) Accept(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.l.Accept(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"case_id":            cs.ID,
		"status":             cs.Status,
		"assigned_lawyer_id": cs.AssignedLawyerID,
		"winning_bid_id":     cs.WinningBidID,
	})
}

// List My Bids godoc
// @Summary      List my bids
// @Description  Lawyer lists own bids, newest first
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Param        status  query  string  false  "Filter by bid status"
// @Success      200  {object}  models.PageResponse[MyBidItem]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /bids/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	out, err := h.l.ListMine(c.UserContext(), actor, utils.ParsePage(c), c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// List Case Bids godoc
// @Summary      List bids on case
// @Description  Case owner sees every bid. Comments are redacted while the case is posted
// @Tags         bids
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Case ID"
// @Param        page  query  int  false  "Page number"
// @Param        pageSize  query  int  false  "Page size"
// @Success      200  {object}  models.PageResponse[CaseBidItem]
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/bids [get]
func (h *Handler) ListForCase(c *fiber.Ctx) error {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	out, err := h.l.ListForCase(c.UserContext(), actor, id, utils.ParsePage(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}
