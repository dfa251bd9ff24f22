package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
)

type caseInput struct {
	Description string `json:"description" validate:"required,max=500"`
	Category    string `json:"category" validate:"required,casecategory"`
}

type apptInput struct {
	Type   string `json:"type" validate:"required,apptype"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

func TestValidate_UsesJSONNames(t *testing.T) {
	errs, err := Validate(caseInput{Category: "taxes"})
	require.NoError(t, err)

	assert.Equal(t, []string{"This field is required"}, errs["description"])
	require.Len(t, errs["category"], 1)
	assert.Contains(t, errs["category"][0], "Invalid category")
}

func TestValidate_CategoryCaseInsensitive(t *testing.T) {
	errs, err := Validate(caseInput{Description: "x", Category: "Family"})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidate_AppointmentType(t *testing.T) {
	errs, err := Validate(apptInput{Type: "lunch", Amount: 0})
	require.NoError(t, err)
	assert.Contains(t, errs, "type")
	assert.Equal(t, []string{"Must be greater than 0"}, errs["amount"])
}

func TestCheck_ReturnsValidationKind(t *testing.T) {
	err := Check("case.create", caseInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Contains(t, apperr.FieldsOf(err), "description")

	assert.NoError(t, Check("case.create", caseInput{Description: "ok", Category: "labor"}))
}

func TestFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, Future("op", "deadline", now.Add(time.Minute), now))
	assert.ErrorIs(t, Future("op", "deadline", now, now), apperr.ErrValidation)
	assert.ErrorIs(t, Future("op", "deadline", time.Time{}, now), apperr.ErrValidation)
}
