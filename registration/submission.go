package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Submission is the registration form as the visitor sent it.
type Submission struct {
	Name         string  `validate:"notblank,min=2"`
	Company      string  `validate:"notblank,min=2"`
	Email        string  `validate:"notblank,email,dotteddomain"`
	Phone        string  `validate:"notblank,min=10"`
	Role         string  `validate:"notblank,role"`
	Expectations *string `validate:"omitempty"`
}

var submissionValidator = newSubmissionValidator()

func newSubmissionValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return isKnownRole(fl.Field().String())
	})
	_ = v.RegisterValidation("dotteddomain", func(fl validator.FieldLevel) bool {
		_, domain, ok := strings.Cut(fl.Field().String(), "@")
		if !ok {
			return false
		}
		dot := strings.LastIndex(domain, ".")
		return dot > 0 && dot < len(domain)-1
	})
	return v
}

func isKnownRole(role string) bool {
	for _, r := range Roles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// Validate checks every field and returns the record to persist, or a
// REASON_VALIDATION_FAILED error with one message per offending field.
func (s Submission) Validate() (NewAttendee, error) {
	trimmed := Submission{
		Name:         strings.TrimSpace(s.Name),
		Company:      strings.TrimSpace(s.Company),
		Email:        NormalizeEmail(s.Email),
		Phone:        strings.TrimSpace(s.Phone),
		Role:         strings.TrimSpace(s.Role),
		Expectations: s.Expectations,
	}

	err := submissionValidator.Struct(trimmed)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return NewAttendee{}, NewValidationError(map[string]string{"body": "invalid registration"})
		}

		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			field := strings.ToLower(fe.StructField())
			if _, seen := fields[field]; seen {
				continue
			}
			fields[field] = fieldMessage(field, fe)
		}
		return NewAttendee{}, NewValidationError(fields)
	}

	var expectations *string
	if trimmed.Expectations != nil && strings.TrimSpace(*trimmed.Expectations) != "" {
		e := strings.TrimSpace(*trimmed.Expectations)
		expectations = &e
	}

	return NewAttendee{
		Name:         trimmed.Name,
		Company:      trimmed.Company,
		Email:        trimmed.Email,
		Phone:        trimmed.Phone,
		Role:         Role(trimmed.Role),
		Expectations: expectations,
	}, nil
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "email", "dotteddomain":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "role":
		roles := make([]string, 0, len(Roles))
		for _, r := range Roles {
			roles = append(roles, string(r))
		}
		return fmt.Sprintf("%s must be one of [%s]", field, strings.Join(roles, " "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
