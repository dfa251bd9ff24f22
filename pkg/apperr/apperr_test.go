package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{Invalid("cases.create", "description", "too long"), ErrValidation},
		{Permission("cases.update", "not the owner"), ErrPermission},
		{Conflict("bids.accept", "case is not open"), ErrConflict},
		{NotFound("bids.accept", "bid"), ErrNotFound},
		{Duplicate("bids.place", "already bid"), ErrDuplicate},
		{Delivery("notify.email", errors.New("smtp down")), ErrDelivery},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.kind)
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.kind)
	}
}

func TestDeliveryKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Delivery("notify.email", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestWrongStateNamesExpected(t *testing.T) {
	err := WrongState("appointments.complete", "appointment", "confirmed", "pending")
	assert.Equal(t, "appointment must be confirmed (is pending)", MessageOf(err))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFieldsOf(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Invalid("ratings.submit", "rating", "Must be between 1 and 5"))
	fields := FieldsOf(err)
	require.Len(t, fields, 1)
	assert.Equal(t, []string{"Must be between 1 and 5"}, fields["rating"])
	assert.Nil(t, FieldsOf(errors.New("plain")))
}
