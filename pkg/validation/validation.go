package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aldoetobex/legal-bid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

var v *validator.Validate

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Custom: case category
	_ = v.RegisterValidation("casecategory", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" { // let required handle empty
			return true
		}
		return models.CaseCategory(strings.ToLower(val)).Valid()
	})

	// Custom: appointment type
	_ = v.RegisterValidation("apptype", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return models.AppointmentType(strings.ToLower(val)).Valid()
	})
}

// Validate returns map[field][]messages (Laravel-like)
func Validate(s any) (map[string][]string, error) {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		out := make(map[string][]string)
		for _, e := range ve {
			field := e.Field() // already mapped from json tag
			out[field] = append(out[field], message(e))
		}
		return out, nil
	}
	return nil, nil
}

// Check validates s and folds failures into an apperr validation error.
func Check(op string, s any) error {
	errs, err := Validate(s)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return apperr.Validation(op, errs)
	}
	return nil
}

// Future reports a validation error for field unless t is strictly after now.
func Future(op, field string, t, now time.Time) error {
	if t.IsZero() {
		return apperr.Invalid(op, field, "This field is required")
	}
	if !t.After(now) {
		return apperr.Invalid(op, field, "Must be in the future")
	}
	return nil
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"

	case "email":
		return "Invalid email format"

	case "min":
		// Show a string-specific message when the field is a string
		if e.Kind() == reflect.String {
			return fmt.Sprintf("Must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("Must be at least %s", e.Param())

	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("Must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("Must be at most %s", e.Param())

	case "gt":
		return fmt.Sprintf("Must be greater than %s", e.Param())

	case "oneof":
		return "Value is not allowed"

	case "uuid", "uuid4":
		return "Invalid UUID format"

	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())

	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())

	case "casecategory":
		return "Invalid category (contract, family, criminal, property, labor, other)"

	case "apptype":
		return "Invalid appointment type (consultation, meeting, hearing, call)"

	default:
		// Fallback to original error text if we missed a tag
		return e.Error()
	}
}
