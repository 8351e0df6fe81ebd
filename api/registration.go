package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/metrics"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
)

type registrationRequest struct {
	Name         string  `json:"name"`
	Company      string  `json:"company"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	Role         string  `json:"role"`
	Expectations *string `json:"expectations"`
}

func (a *API) postRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body registrationRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		logger.Warn("Invalid body for registration", slog.String("error", err.Error()))
		a.metrics.IncrementRegistration(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return
	}

	attendee, err := registration.AttemptRegistration(ctx, registration.Submission{
		Name:         body.Name,
		Company:      body.Company,
		Email:        body.Email,
		Phone:        body.Phone,
		Role:         body.Role,
		Expectations: body.Expectations,
	}, a.event, a.db)
	if err != nil {
		a.metrics.IncrementRegistration(registrationOutcome(err))
		a.writeError(w, r, err, "Failed to register")
		return
	}

	a.metrics.IncrementRegistration(metrics.OutcomeSuccess)
	logger.Info("Attendee registered", slog.Int64("attendeeId", attendee.ID))

	writeJSON(w, http.StatusCreated, attendeeResponse{
		Success: true,
		Data:    attendeeToJSON(attendee),
	})
}

func registrationOutcome(err error) string {
	var regErr *registration.Error
	if !errors.As(err, &regErr) {
		return metrics.OutcomeError
	}

	switch regErr.Reason {
	case registration.REASON_VALIDATION_FAILED:
		return metrics.OutcomeInvalid
	case registration.REASON_ATTENDEE_ALREADY_EXISTS:
		return metrics.OutcomeConflict
	case registration.REASON_REGISTRATION_CLOSED:
		return metrics.OutcomeClosed
	default:
		return metrics.OutcomeError
	}
}

type countResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Count int `json:"count"`
	} `json:"data"`
}

func (a *API) getAttendeesCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.db.GetAttendeesCount(r.Context())
	if err != nil {
		a.writeError(w, r, err, "Failed to count attendees")
		return
	}

	resp := countResponse{Success: true}
	resp.Data.Count = count
	writeJSON(w, http.StatusOK, resp)
}

type feeJSON struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

type eventJSON struct {
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Venue                 string     `json:"venue,omitempty"`
	City                  string     `json:"city,omitempty"`
	StartTime             *time.Time `json:"startTime,omitempty"`
	EndTime               *time.Time `json:"endTime,omitempty"`
	RegistrationCloseTime *time.Time `json:"registrationCloseTime,omitempty"`
	RegistrationOpen      bool       `json:"registrationOpen"`
	Fee                   feeJSON    `json:"fee"`
}

type eventResponse struct {
	Success bool      `json:"success"`
	Data    eventJSON `json:"data"`
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	e := a.event

	data := eventJSON{
		Name:                  e.Name,
		Description:           e.Description,
		Venue:                 e.Venue.Name,
		City:                  e.Venue.City,
		StartTime:             nonZeroTime(e.StartTime),
		EndTime:               nonZeroTime(e.EndTime),
		RegistrationCloseTime: e.RegistrationCloseTime,
		RegistrationOpen:      e.IsRegistrationOpen(time.Now()),
	}
	if e.RegistrationFee != nil {
		data.Fee = feeJSON{
			Amount:   e.RegistrationFee.Amount(),
			Currency: e.RegistrationFee.Currency().Code,
			Display:  e.RegistrationFee.Display(),
		}
	}

	writeJSON(w, http.StatusOK, eventResponse{Success: true, Data: data})
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
