package registration

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/events"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/google/uuid"
)

type PaymentState string

const (
	PAYMENT_VERIFIED  PaymentState = "PAYMENT_VERIFIED"
	PAYMENT_FAILED    PaymentState = "PAYMENT_FAILED"
	PAYMENT_CANCELLED PaymentState = "PAYMENT_CANCELLED"
)

const (
	NoteAttendeeID  = "attendeeId"
	NoteName        = "name"
	NoteEmail       = "email"
	NotePhone       = "phone"
	NoteDescription = "description"
)

type OrderRequest struct {
	// AttendeeID ties the order to an existing registration. Without it the
	// order is still created, but the payment can only be reconciled by hand.
	AttendeeID *int64
	// ClientAmount is whatever amount the client claimed. It is never charged.
	ClientAmount *float64
	Receipt      string
	Notes        map[string]string
}

type CreatedOrder struct {
	Order               payments.Order
	Attendee            *Attendee
	ClientAmountIgnored bool
}

// CreateRegistrationOrder asks the gateway for an order charging the event's
// registration fee. The attendee stays unpaid whatever the outcome, so a failed
// order can be retried without registering again.
func CreateRegistrationOrder(ctx context.Context, req OrderRequest, event events.Event, repo Repository, gateway payments.Gateway) (CreatedOrder, error) {
	if event.RegistrationFee == nil {
		return CreatedOrder{}, payments.NewInvalidOrderParamsError("Registration fee is not configured")
	}

	fee := event.RegistrationFee.AsMajorUnits()
	result := CreatedOrder{
		ClientAmountIgnored: req.ClientAmount != nil && math.Abs(*req.ClientAmount-fee) > 1e-9,
	}

	notes := map[string]string{}
	maps.Copy(notes, req.Notes)
	notes[NoteDescription] = fmt.Sprintf("%s registration", event.Name)

	receipt := req.Receipt
	if req.AttendeeID != nil {
		attendee, err := repo.GetAttendee(ctx, *req.AttendeeID)
		if err != nil {
			return CreatedOrder{}, err
		}
		if attendee.IsPaid {
			return CreatedOrder{}, NewAttendeeAlreadyPaidError(attendee.ID)
		}

		receipt = attemptReceipt(attendee.ID, time.Now())
		notes[NoteAttendeeID] = strconv.FormatInt(attendee.ID, 10)
		notes[NoteName] = attendee.Name
		notes[NoteEmail] = attendee.Email
		notes[NotePhone] = attendee.Phone
		result.Attendee = &attendee
	} else if receipt == "" {
		receipt = "receipt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if fields := checkOrderNotes(req.Notes, notes); len(fields) > 0 {
		return CreatedOrder{}, NewValidationError(fields)
	}

	order, err := gateway.CreateOrder(ctx, payments.OrderParams{
		Amount:   fee,
		Currency: event.RegistrationFee.Currency().Code,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return CreatedOrder{}, err
	}

	result.Order = order
	return result, nil
}

// checkOrderNotes applies the provider's note limits to the caller's notes.
// The count includes the notes added for the attendee and event.
func checkOrderNotes(clientNotes, merged map[string]string) map[string]string {
	if len(merged) > payments.MaxNotes {
		reserved := len(merged) - len(clientNotes)
		return map[string]string{"notes": fmt.Sprintf("At most %d notes are allowed for this order", max(payments.MaxNotes-reserved, 0))}
	}
	for k, v := range clientNotes {
		if len(v) > payments.MaxNoteLength {
			return map[string]string{"notes": fmt.Sprintf("Note %q must be at most %d characters", k, payments.MaxNoteLength)}
		}
	}
	return nil
}

// attemptReceipt is unique per attempt so retries never collide on the
// provider's side.
func attemptReceipt(attendeeID int64, now time.Time) string {
	return fmt.Sprintf("receipt_%d_%d", attendeeID, now.UnixMilli())
}

type PaymentConfirmation struct {
	OrderID    string
	PaymentID  string
	Signature  string
	AttendeeID *int64
}

type ConfirmationResult struct {
	State    PaymentState
	Attendee *Attendee
	// NewlyPaid is true only for the confirmation that flipped the attendee to
	// paid, so a repeated callback does not repeat side effects.
	NewlyPaid bool
	// Reconciliation is set when the signature verified but no attendee could
	// be marked paid. The money is confirmed; the bookkeeping needs a human.
	Reconciliation *Error
}

// ConfirmRegistrationPayment verifies the gateway signature and, only on a
// match, marks the attendee paid. A mismatch is a normal PAYMENT_FAILED result
// and never touches the attendee.
func ConfirmRegistrationPayment(ctx context.Context, confirmation PaymentConfirmation, repo Repository, gateway payments.Gateway) (ConfirmationResult, error) {
	if !gateway.VerifySignature(confirmation.OrderID, confirmation.PaymentID, confirmation.Signature) {
		return ConfirmationResult{State: PAYMENT_FAILED}, nil
	}

	if confirmation.AttendeeID == nil {
		return ConfirmationResult{
			State:          PAYMENT_VERIFIED,
			Reconciliation: NewReconciliationError(fmt.Sprintf("Payment %q for order %q verified without an attendee id", confirmation.PaymentID, confirmation.OrderID), nil),
		}, nil
	}
	attendeeID := *confirmation.AttendeeID

	unresolved := func(err error) (ConfirmationResult, error) {
		if HasReason(err, REASON_ATTENDEE_DOES_NOT_EXIST) {
			return ConfirmationResult{
				State:          PAYMENT_VERIFIED,
				Reconciliation: NewReconciliationError(fmt.Sprintf("Payment %q for order %q verified but attendee %d does not exist", confirmation.PaymentID, confirmation.OrderID, attendeeID), err),
			}, nil
		}
		return ConfirmationResult{}, err
	}

	attendee, changed, err := repo.MarkAttendeePaid(ctx, attendeeID)
	if err != nil {
		return unresolved(err)
	}

	return ConfirmationResult{
		State:     PAYMENT_VERIFIED,
		Attendee:  &attendee,
		NewlyPaid: changed,
	}, nil
}

// CancelRegistrationPayment records that the visitor dismissed the checkout.
// The attendee, if any, is left exactly as it was.
func CancelRegistrationPayment(ctx context.Context, attendeeID *int64, repo Repository) (ConfirmationResult, error) {
	result := ConfirmationResult{State: PAYMENT_CANCELLED}
	if attendeeID == nil {
		return result, nil
	}

	attendee, err := repo.GetAttendee(ctx, *attendeeID)
	if err != nil {
		return ConfirmationResult{}, err
	}

	result.Attendee = &attendee
	return result, nil
}
