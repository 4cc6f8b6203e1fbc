package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks a request struct against its validation tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return &Error{
			Code:    ErrInvalidPlan,
			Message: fmt.Sprintf("validation failed: %v", err),
			Err:     err,
		}
	}
	return nil
}

// ValidateVerificationRequest checks a self-transfer request before polling
// starts. Rejected requests never consume an attempt budget.
func ValidateVerificationRequest(req *VerificationRequest) error {
	if err := validate.Struct(req); err != nil {
		return &Error{
			Code:    ErrInvalidState,
			Message: fmt.Sprintf("invalid verification request: %v", err),
			Err:     err,
		}
	}
	if req.ExpectedAmount.Sign() <= 0 {
		return &Error{
			Code:    ErrInvalidState,
			Message: "expected amount must be positive",
		}
	}
	return nil
}
