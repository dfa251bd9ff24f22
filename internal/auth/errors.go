package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
	"github.com/aldoetobex/legal-bid-backend/pkg/validation"
)

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON shape.
// Ledger errors are mapped by kind; *fiber.Error keeps its own status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Defaults
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"
	tag := ""

	var fe *fiber.Error
	switch {
	case errors.Is(err, apperr.ErrValidation):
		if fields := apperr.FieldsOf(err); len(fields) > 0 {
			return validation.Respond(c, fields)
		}
		code, msg = fiber.StatusBadRequest, apperr.MessageOf(err)
	case errors.Is(err, apperr.ErrPermission):
		code, msg = fiber.StatusForbidden, apperr.MessageOf(err)
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		code, msg = fiber.StatusNotFound, apperr.MessageOf(err)
	case errors.Is(err, apperr.ErrDuplicate):
		code, msg, tag = fiber.StatusConflict, apperr.MessageOf(err), "DUPLICATE"
	case errors.Is(err, apperr.ErrConflict):
		code, msg = fiber.StatusConflict, apperr.MessageOf(err)
	case errors.As(err, &fe):
		code = fe.Code
		if strings.TrimSpace(fe.Message) != "" {
			msg = fe.Message
		} else {
			msg = fiber.ErrInternalServerError.Message
		}
	}

	if tag == "" {
		tag = httpCodeToString(code)
	}
	return c.Status(code).JSON(models.ErrorResponse{
		Code:    tag,
		Error:   true,
		Message: msg,
	})
}
