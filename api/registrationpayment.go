package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/metrics"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
	"github.com/go-chi/chi/v5"
)

const (
	paymentVerifiedMessage  = "Payment verified successfully"
	paymentFailedMessage    = "Payment verification failed. Your registration is preserved; please try again."
	paymentCancelledMessage = "Payment cancelled, your registration is preserved"
	reconciliationWarning   = "payment confirmed but could not be matched to a registration; our team will reconcile it"

	emailSendTimeout = 5 * time.Second
)

type createOrderRequest struct {
	Amount     *float64          `json:"amount"`
	Currency   *string           `json:"currency"`
	Receipt    string            `json:"receipt"`
	Notes      map[string]string `json:"notes"`
	AttendeeID *int64            `json:"attendeeId"`
}

type orderJSON struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amountPaid"`
	AmountDue  int64             `json:"amountDue"`
	Currency   string            `json:"currency"`
	Status     string            `json:"status"`
	Receipt    string            `json:"receipt,omitempty"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  *time.Time        `json:"createdAt,omitempty"`
}

func orderToJSON(o payments.Order) orderJSON {
	return orderJSON{
		ID:         o.ID,
		Amount:     o.Amount,
		AmountPaid: o.AmountPaid,
		AmountDue:  o.AmountDue,
		Currency:   o.Currency,
		Status:     o.Status,
		Receipt:    o.Receipt,
		Attempts:   o.Attempts,
		Notes:      o.Notes,
		CreatedAt:  nonZeroTime(o.CreatedAt),
	}
}

type createOrderResponse struct {
	Success bool      `json:"success"`
	Order   orderJSON `json:"order"`
	KeyID   string    `json:"keyId"`
}

func (a *API) postCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body createOrderRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		logger.Warn("Invalid body for create order", slog.String("error", err.Error()))
		a.metrics.IncrementPaymentOrder(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return
	}

	if body.Currency != nil && a.event.RegistrationFee != nil && !strings.EqualFold(*body.Currency, a.event.RegistrationFee.Currency().Code) {
		logger.Warn("Ignoring client supplied currency", slog.String("clientCurrency", *body.Currency))
	}

	result, err := registration.CreateRegistrationOrder(ctx, registration.OrderRequest{
		AttendeeID:   body.AttendeeID,
		ClientAmount: body.Amount,
		Receipt:      body.Receipt,
		Notes:        body.Notes,
	}, a.event, a.db, a.gateway)
	if err != nil {
		a.metrics.IncrementPaymentOrder(orderOutcome(err))
		a.writeError(w, r, err, "Failed to create payment order")
		return
	}

	if result.ClientAmountIgnored {
		logger.Warn("Ignoring client supplied amount", slog.Float64("clientAmount", *body.Amount), slog.Int64("chargedMinorUnits", result.Order.Amount))
	}

	attrs := []any{slog.String("orderId", result.Order.ID), slog.String("receipt", result.Order.Receipt)}
	if result.Attendee != nil {
		attrs = append(attrs, slog.Int64("attendeeId", result.Attendee.ID))
	}
	logger.Info("Payment order created", attrs...)
	a.metrics.IncrementPaymentOrder(metrics.OutcomeSuccess)

	writeJSON(w, http.StatusOK, createOrderResponse{
		Success: true,
		Order:   orderToJSON(result.Order),
		KeyID:   a.gateway.KeyID(),
	})
}

func orderOutcome(err error) string {
	var regErr *registration.Error
	if errors.As(err, &regErr) {
		switch regErr.Reason {
		case registration.REASON_ATTENDEE_ALREADY_PAID:
			return metrics.OutcomeConflict
		case registration.REASON_ATTENDEE_DOES_NOT_EXIST, registration.REASON_VALIDATION_FAILED:
			return metrics.OutcomeInvalid
		}
	}
	return metrics.OutcomeError
}

type verifyPaymentRequest struct {
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	Signature  string `json:"signature"`
	AttendeeID *int64 `json:"attendeeId"`
}

type verifyPaymentData struct {
	Attendee attendeeJSON `json:"attendee"`
}

type verifyPaymentResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Warning string             `json:"warning,omitempty"`
	Data    *verifyPaymentData `json:"data,omitempty"`
}

func (a *API) postVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body verifyPaymentRequest
	if err := decodeBody(w, r, &body, false); err != nil {
		logger.Warn("Invalid body for payment verification", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return
	}

	attrs := []any{slog.String("orderId", body.OrderID), slog.String("paymentId", body.PaymentID)}
	if body.AttendeeID != nil {
		attrs = append(attrs, slog.Int64("attendeeId", *body.AttendeeID))
	}
	logger = logger.With(attrs...)

	result, err := registration.ConfirmRegistrationPayment(ctx, registration.PaymentConfirmation{
		OrderID:    body.OrderID,
		PaymentID:  body.PaymentID,
		Signature:  body.Signature,
		AttendeeID: body.AttendeeID,
	}, a.db, a.gateway)
	if err != nil {
		a.metrics.IncrementPaymentVerification(metrics.OutcomeError)
		logger.Error("Failed to confirm verified payment", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to verify payment"})
		return
	}

	switch {
	case result.State == registration.PAYMENT_FAILED:
		a.metrics.IncrementPaymentVerification(metrics.OutcomeMismatch)
		logger.Warn("Payment signature mismatch")
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: paymentFailedMessage})

	case result.Reconciliation != nil:
		a.metrics.IncrementPaymentVerification(metrics.OutcomeReconciliationFailed)
		logger.Error("Verified payment needs manual reconciliation", slog.String("error", result.Reconciliation.Error()))
		writeJSON(w, http.StatusOK, verifyPaymentResponse{
			Success: true,
			Message: paymentVerifiedMessage,
			Warning: reconciliationWarning,
		})

	default:
		a.metrics.IncrementPaymentVerification(metrics.OutcomeVerified)
		logger.Info("Payment verified", slog.Bool("newlyPaid", result.NewlyPaid))

		if result.NewlyPaid {
			a.sendPaymentConfirmationEmail(r, *result.Attendee)
		}

		writeJSON(w, http.StatusOK, verifyPaymentResponse{
			Success: true,
			Message: paymentVerifiedMessage,
			Data:    &verifyPaymentData{Attendee: attendeeToJSON(*result.Attendee)},
		})
	}
}

// sendPaymentConfirmationEmail never fails the request: the attendee has paid
// whether or not the email goes out.
func (a *API) sendPaymentConfirmationEmail(r *http.Request, attendee registration.Attendee) {
	if a.emailSender == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), emailSendTimeout)
	defer cancel()

	err := registration.SendPaymentConfirmationEmail(ctx, a.emailSender, a.settings.EmailFrom, attendee, a.event)
	if err != nil {
		a.getLoggerOrBaseLogger(r.Context()).Error("Failed to send payment confirmation email", slog.String("error", err.Error()), slog.Int64("attendeeId", attendee.ID))
	}
}

type cancelPaymentRequest struct {
	AttendeeID *int64 `json:"attendeeId"`
	OrderID    string `json:"orderId"`
}

func (a *API) postCancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body cancelPaymentRequest
	if err := decodeBody(w, r, &body, true); err != nil {
		logger.Warn("Invalid body for payment cancellation", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return
	}

	result, err := registration.CancelRegistrationPayment(ctx, body.AttendeeID, a.db)
	if err != nil {
		a.writeError(w, r, err, "Failed to cancel payment")
		return
	}

	a.metrics.IncrementPaymentCancellation()
	attrs := []any{slog.String("orderId", body.OrderID)}
	if result.Attendee != nil {
		attrs = append(attrs, slog.Int64("attendeeId", result.Attendee.ID))
	}
	logger.Info("Payment cancelled by visitor", attrs...)

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: paymentCancelledMessage})
}

type orderResponse struct {
	Success bool      `json:"success"`
	Order   orderJSON `json:"order"`
}

func (a *API) getPaymentOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.gateway.FetchOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch order")
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: orderToJSON(order)})
}

type paymentJSON struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"orderId,omitempty"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Method           string     `json:"method,omitempty"`
	Captured         bool       `json:"captured"`
	Email            string     `json:"email,omitempty"`
	Contact          string     `json:"contact,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorDescription string     `json:"errorDescription,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

type paymentResponse struct {
	Success bool        `json:"success"`
	Payment paymentJSON `json:"payment"`
}

func (a *API) getPaymentDetails(w http.ResponseWriter, r *http.Request) {
	p, err := a.gateway.FetchPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch payment")
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		Success: true,
		Payment: paymentJSON{
			ID:               p.ID,
			OrderID:          p.OrderID,
			Amount:           p.Amount,
			Currency:         p.Currency,
			Status:           p.Status,
			Method:           p.Method,
			Captured:         p.Captured,
			Email:            p.Email,
			Contact:          p.Contact,
			ErrorCode:        p.ErrorCode,
			ErrorDescription: p.ErrorDescription,
			CreatedAt:        nonZeroTime(p.CreatedAt),
		},
	})
}
