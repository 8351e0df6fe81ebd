package payments

import "fmt"

type ErrorReason string

const (
	REASON_INVALID_ORDER_PARAMS ErrorReason = "INVALID_ORDER_PARAMS"
	REASON_REQUEST_FAILED       ErrorReason = "REQUEST_FAILED"
	REASON_PROVIDER_REJECTED    ErrorReason = "PROVIDER_REJECTED"
	REASON_AUTH_FAILED          ErrorReason = "AUTH_FAILED"
	REASON_NOT_FOUND            ErrorReason = "NOT_FOUND"
	REASON_TIMEOUT              ErrorReason = "TIMEOUT"
	REASON_INVALID_RESPONSE     ErrorReason = "INVALID_RESPONSE"
)

// Error is returned for every failed interaction with the payment provider.
// Message is short and safe to show to a client; provider detail stays in Cause.
type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newPaymentsError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewInvalidOrderParamsError(message string) *Error {
	return newPaymentsError(REASON_INVALID_ORDER_PARAMS, message, nil)
}

func NewRequestFailedError(message string, cause error) *Error {
	return newPaymentsError(REASON_REQUEST_FAILED, message, cause)
}

func NewProviderRejectedError(message string, cause error) *Error {
	return newPaymentsError(REASON_PROVIDER_REJECTED, message, cause)
}

func NewAuthFailedError(cause error) *Error {
	return newPaymentsError(REASON_AUTH_FAILED, "Payment provider authentication failed", cause)
}

func NewNotFoundError(message string, cause error) *Error {
	return newPaymentsError(REASON_NOT_FOUND, message, cause)
}

func NewTimeoutError(operation string) *Error {
	return newPaymentsError(REASON_TIMEOUT, fmt.Sprintf("%s timed out", operation), nil)
}

func NewInvalidResponseError(message string, cause error) *Error {
	return newPaymentsError(REASON_INVALID_RESPONSE, message, cause)
}
