package web

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validator wraps go-playground/validator for echo.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a Validator using json field names in errors.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return &Validator{validator: v}
}

// Validate validates a struct using go-playground/validator tags.
func (v *Validator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", dispatch.ErrValidation, err)
	}
	return nil
}

// Bind decodes the request body into req and validates it.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: malformed body", dispatch.ErrValidation)
	}
	return c.Validate(req)
}
