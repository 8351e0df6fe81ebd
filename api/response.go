package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type attendeeJSON struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Company      string    `json:"company"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"`
	Expectations *string   `json:"expectations"`
	RegisteredAt time.Time `json:"registeredAt"`
	IsPaid       bool      `json:"isPaid"`
}

func attendeeToJSON(a registration.Attendee) attendeeJSON {
	return attendeeJSON{
		ID:           a.ID,
		Name:         a.Name,
		Company:      a.Company,
		Email:        a.Email,
		Phone:        a.Phone,
		Role:         string(a.Role),
		Expectations: a.Expectations,
		RegisteredAt: a.RegisteredAt,
		IsPaid:       a.IsPaid,
	}
}

type attendeeResponse struct {
	Success bool         `json:"success"`
	Data    attendeeJSON `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeError maps a domain error to its HTTP status. Only client safe text is
// written; the full error goes to the log.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := a.getLoggerOrBaseLogger(r.Context())

	var regErr *registration.Error
	if errors.As(err, &regErr) {
		switch regErr.Reason {
		case registration.REASON_VALIDATION_FAILED:
			logger.Warn("Invalid input", slog.Any("fields", regErr.Fields))
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Message: validationMessage(regErr.Fields),
				Errors:  regErr.Fields,
			})
			return
		case registration.REASON_ATTENDEE_ALREADY_EXISTS:
			logger.Warn("Duplicate registration", slog.String("error", err.Error()))
			writeJSON(w, http.StatusConflict, errorResponse{Message: "An attendee with this email is already registered"})
			return
		case registration.REASON_ATTENDEE_DOES_NOT_EXIST:
			logger.Warn("Attendee not found", slog.String("error", err.Error()))
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "Attendee not found"})
			return
		case registration.REASON_ATTENDEE_ALREADY_PAID:
			logger.Warn("Attendee already paid", slog.String("error", err.Error()))
			writeJSON(w, http.StatusConflict, errorResponse{Message: "This registration has already been paid for"})
			return
		case registration.REASON_REGISTRATION_CLOSED:
			logger.Warn("Registration closed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusForbidden, errorResponse{Message: "Registration is closed"})
			return
		}
	}

	var payErr *payments.Error
	if errors.As(err, &payErr) {
		logger.Error(fallback, slog.String("error", err.Error()), slog.String("reason", string(payErr.Reason)))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: fallback + ": " + payErr.Message})
		return
	}

	logger.Error(fallback, slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: fallback})
}

func validationMessage(fields map[string]string) string {
	messages := make([]string, 0, len(fields))
	for _, m := range fields {
		messages = append(messages, m)
	}
	slices.Sort(messages)
	return strings.Join(messages, "; ")
}
