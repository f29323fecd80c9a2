package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"larder/internal/types"
)

// Validator wraps go-playground/validator with domain-specific rules and
// AppError translation.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// plan_tier accepts only the known tiers.
	_ = v.RegisterValidation("plan_tier", func(fl validator.FieldLevel) bool {
		return types.PlanTier(fl.Field().String()).Valid()
	})

	// billing_interval accepts month or year.
	_ = v.RegisterValidation("billing_interval", func(fl validator.FieldLevel) bool {
		switch types.BillingInterval(fl.Field().String()) {
		case types.IntervalMonth, types.IntervalYear:
			return true
		default:
			return false
		}
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates a request struct against its validate tags and
// returns a 400-class AppError listing the failing fields.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Programming error (non-struct passed in), not client input.
		v.logger.Error("validator invoked on non-struct value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]any, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidField,
			"request failed validation",
			err,
			map[string]any{"fields": fields},
		)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidField, "request failed validation", err)
}
