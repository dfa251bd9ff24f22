package utils

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

/* ============================== Pagination ============================== */

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// NewPage clamps page/size into sane bounds (size 1..50, default 10).
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return Page{Number: number, Size: size}
}

// ParsePage reads ?page=&pageSize= from the request.
func ParsePage(c *fiber.Ctx) Page {
	n, _ := strconv.Atoi(c.Query("page", "1"))
	s, _ := strconv.Atoi(c.Query("pageSize", "10"))
	return NewPage(n, s)
}

// Paginate counts q, then scans the requested page of it into a PageResponse.
// q must already carry its filters; order is applied to the page query only.
func Paginate[T any](q *gorm.DB, p Page, order string) (models.PageResponse[T], error) {
	out := models.PageResponse[T]{Page: p.Number, PageSize: p.Size, Items: []T{}}

	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := q.Session(&gorm.Session{}).Order(order).
		Offset(p.Offset()).Limit(p.Size).
		Find(&out.Items).Error; err != nil {
		return out, err
	}
	out.Pages = int(math.Ceil(float64(out.Total) / float64(p.Size)))
	return out, nil
}

/* ============================== Case history ============================ */

// LogCaseHistory writes a structured line for an important case change.
// Case history is not persisted; the log stream is the audit trail.
func LogCaseHistory(
	log *zap.Logger,
	caseID, actorID uuid.UUID,
	action string,
	oldS, newS models.CaseStatus,
	reason string,
) {
	fields := []zap.Field{
		zap.String("case_id", caseID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("action", action),
	}
	if oldS != "" || newS != "" {
		fields = append(fields, zap.String("from", string(oldS)), zap.String("to", string(newS)))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	log.Info("case history", fields...)
}
