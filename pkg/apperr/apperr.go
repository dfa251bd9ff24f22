// Package apperr is the error taxonomy shared by the ledgers, the dispatcher and the
// HTTP layer. Every error carries one of the sentinel kinds below so callers can branch
// with errors.Is without knowing which ledger produced it.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel kinds.
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission denied")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrDelivery   = errors.New("delivery failed")
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind    error
	Op      string // e.g. "bids.accept"
	Message string
	Fields  map[string][]string // only set for validation errors
	Err     error               // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation reports malformed or out-of-range input, keyed by field.
func Validation(op string, fields map[string][]string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: "validation failed", Fields: fields}
}

// Invalid is a shortcut for a single-field validation error.
func Invalid(op, field, msg string) *Error {
	return Validation(op, map[string][]string{field: {msg}})
}

func Permission(op, msg string) *Error {
	return &Error{Kind: ErrPermission, Op: op, Message: msg}
}

func Conflict(op, msg string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Message: msg}
}

// WrongState is a conflict that names the state the operation expected.
func WrongState(op, entity string, expected, actual any) *Error {
	return &Error{
		Kind:    ErrConflict,
		Op:      op,
		Message: fmt.Sprintf("%s must be %v (is %v)", entity, expected, actual),
	}
}

func NotFound(op, entity string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: entity + " not found"}
}

func Duplicate(op, msg string) *Error {
	return &Error{Kind: ErrDuplicate, Op: op, Message: msg}
}

// Delivery wraps a notification channel failure. It never leaves the dispatcher.
func Delivery(op string, cause error) *Error {
	return &Error{Kind: ErrDelivery, Op: op, Message: "delivery failed", Err: cause}
}

// FieldsOf returns the validation fields carried by err, if any.
func FieldsOf(err error) map[string][]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// MessageOf returns the human message of a classified error, or err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
