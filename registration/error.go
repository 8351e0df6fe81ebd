package registration

import (
	"errors"
	"fmt"
	"time"
)

type ErrorReason string

const (
	REASON_VALIDATION_FAILED               ErrorReason = "VALIDATION_FAILED"
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_ATTENDEE_DOES_NOT_EXIST         ErrorReason = "ATTENDEE_DOES_NOT_EXIST"
	REASON_ATTENDEE_ALREADY_EXISTS         ErrorReason = "ATTENDEE_ALREADY_EXISTS"
	REASON_ATTENDEE_ALREADY_PAID           ErrorReason = "ATTENDEE_ALREADY_PAID"
	REASON_REGISTRATION_CLOSED             ErrorReason = "REGISTRATION_CLOSED"
	REASON_RECONCILIATION_FAILED           ErrorReason = "RECONCILIATION_FAILED"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
	// Fields holds one human readable message per offending input field.
	Fields map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newRegistrationError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(fields map[string]string) *Error {
	err := newRegistrationError(REASON_VALIDATION_FAILED, "Registration is invalid", nil)
	err.Fields = fields
	return err
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewAttendeeAlreadyExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_ATTENDEE_ALREADY_EXISTS, message, cause)
}

func NewAttendeeDoesNotExistError(message string, cause error) *Error {
	return newRegistrationError(REASON_ATTENDEE_DOES_NOT_EXIST, message, cause)
}

func NewAttendeeAlreadyPaidError(id int64) *Error {
	return newRegistrationError(REASON_ATTENDEE_ALREADY_PAID, fmt.Sprintf("Attendee %d has already paid", id), nil)
}

func NewRegistrationIsClosedError(closedAt time.Time) *Error {
	return newRegistrationError(REASON_REGISTRATION_CLOSED, fmt.Sprintf("Registration closed at %s", closedAt.Format(time.RFC3339)), nil)
}

func NewReconciliationError(message string, cause error) *Error {
	return newRegistrationError(REASON_RECONCILIATION_FAILED, message, cause)
}

func NewTimeoutError(message string) *Error {
	return newRegistrationError(REASON_TIMEOUT, message, nil)
}

// HasReason reports whether err is a *Error with the given reason.
func HasReason(err error, reason ErrorReason) bool {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Reason == reason
	}
	return false
}
