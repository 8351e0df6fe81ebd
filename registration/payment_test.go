package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ payments.Gateway = &mockGateway{}

type mockGateway struct {
	CreateOrderFunc     func(ctx context.Context, params payments.OrderParams) (payments.Order, error)
	VerifySignatureFunc func(orderID, paymentID, signature string) bool
	FetchOrderFunc      func(ctx context.Context, orderID string) (payments.Order, error)
	FetchPaymentFunc    func(ctx context.Context, paymentID string) (payments.Payment, error)
}

func (m *mockGateway) CreateOrder(ctx context.Context, params payments.OrderParams) (payments.Order, error) {
	return m.CreateOrderFunc(ctx, params)
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return m.VerifySignatureFunc(orderID, paymentID, signature)
}

func (m *mockGateway) FetchOrder(ctx context.Context, orderID string) (payments.Order, error) {
	return m.FetchOrderFunc(ctx, orderID)
}

func (m *mockGateway) FetchPayment(ctx context.Context, paymentID string) (payments.Payment, error) {
	return m.FetchPaymentFunc(ctx, paymentID)
}

func unpaidAttendee() Attendee {
	return Attendee{
		ID:      7,
		Name:    "Asha Rao",
		Company: "Rao Events",
		Email:   "asha@example.com",
		Phone:   "9876543210",
		Role:    ROLE_PLANNER,
	}
}

func recordingGateway(captured *payments.OrderParams) *mockGateway {
	return &mockGateway{
		CreateOrderFunc: func(ctx context.Context, params payments.OrderParams) (payments.Order, error) {
			*captured = params
			return payments.Order{ID: "order_1", Amount: 100000, Currency: "INR", Receipt: params.Receipt, Status: "created"}, nil
		},
	}
}

func TestCreateRegistrationOrder(t *testing.T) {
	t.Run("order for an attendee charges the configured fee", func(t *testing.T) {
		var params payments.OrderParams
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				assert.Equal(t, int64(7), id)
				return unpaidAttendee(), nil
			},
		}
		req := OrderRequest{
			AttendeeID:   ptr.Int64(7),
			ClientAmount: ptr.Float64(1),
			Notes:        map[string]string{NoteEmail: "spoofed@example.com", "source": "landing"},
		}

		result, err := CreateRegistrationOrder(context.Background(), req, openEvent(), repo, recordingGateway(&params))

		require.NoError(t, err)
		assert.Equal(t, 1000.0, params.Amount)
		assert.Equal(t, "INR", params.Currency)
		assert.True(t, strings.HasPrefix(params.Receipt, "receipt_7_"))
		assert.Equal(t, "7", params.Notes[NoteAttendeeID])
		assert.Equal(t, "Asha Rao", params.Notes[NoteName])
		assert.Equal(t, "asha@example.com", params.Notes[NoteEmail])
		assert.Equal(t, "9876543210", params.Notes[NotePhone])
		assert.Equal(t, "Wedding Fraternity Meetup registration", params.Notes[NoteDescription])
		assert.Equal(t, "landing", params.Notes["source"])
		assert.True(t, result.ClientAmountIgnored)
		assert.Equal(t, "order_1", result.Order.ID)
		require.NotNil(t, result.Attendee)
		assert.Equal(t, int64(7), result.Attendee.ID)
	})

	t.Run("matching client amount is not flagged", func(t *testing.T) {
		var params payments.OrderParams
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				return unpaidAttendee(), nil
			},
		}

		result, err := CreateRegistrationOrder(context.Background(), OrderRequest{AttendeeID: ptr.Int64(7), ClientAmount: ptr.Float64(1000)}, openEvent(), repo, recordingGateway(&params))

		require.NoError(t, err)
		assert.False(t, result.ClientAmountIgnored)
	})

	t.Run("already paid attendee gets no new order", func(t *testing.T) {
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				a := unpaidAttendee()
				a.IsPaid = true
				return a, nil
			},
		}
		gateway := &mockGateway{
			CreateOrderFunc: func(ctx context.Context, params payments.OrderParams) (payments.Order, error) {
				t.Fatal("CreateOrder should not be called")
				return payments.Order{}, nil
			},
		}

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{AttendeeID: ptr.Int64(7)}, openEvent(), repo, gateway)

		assert.True(t, HasReason(err, REASON_ATTENDEE_ALREADY_PAID))
	})

	t.Run("unknown attendee", func(t *testing.T) {
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				return Attendee{}, NewAttendeeDoesNotExistError("missing", nil)
			},
		}

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{AttendeeID: ptr.Int64(99)}, openEvent(), repo, &mockGateway{})

		assert.True(t, HasReason(err, REASON_ATTENDEE_DOES_NOT_EXIST))
	})

	t.Run("order without an attendee keeps the client receipt", func(t *testing.T) {
		var params payments.OrderParams

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{Receipt: "receipt_custom"}, openEvent(), &mockRepository{}, recordingGateway(&params))

		require.NoError(t, err)
		assert.Equal(t, "receipt_custom", params.Receipt)
		assert.NotContains(t, params.Notes, NoteAttendeeID)
	})

	t.Run("order without an attendee or receipt gets a generated receipt", func(t *testing.T) {
		var params payments.OrderParams

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{}, openEvent(), &mockRepository{}, recordingGateway(&params))

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(params.Receipt, "receipt_"))
		assert.Len(t, params.Receipt, 40)
	})

	t.Run("gateway error is returned", func(t *testing.T) {
		gateway := &mockGateway{
			CreateOrderFunc: func(ctx context.Context, params payments.OrderParams) (payments.Order, error) {
				return payments.Order{}, payments.NewRequestFailedError("down", errors.New("boom"))
			},
		}

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{}, openEvent(), &mockRepository{}, gateway)

		var payErr *payments.Error
		require.True(t, errors.As(err, &payErr))
		assert.Equal(t, payments.REASON_REQUEST_FAILED, payErr.Reason)
	})

	t.Run("notes over the provider limits are a validation error", func(t *testing.T) {
		tooMany := map[string]string{}
		for i := range payments.MaxNotes {
			tooMany[fmt.Sprintf("note%d", i)] = "x"
		}

		tests := []struct {
			name  string
			notes map[string]string
		}{
			{name: "too many once the description is added", notes: tooMany},
			{name: "value too long", notes: map[string]string{"venue": strings.Repeat("x", payments.MaxNoteLength+1)}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				gateway := &mockGateway{
					CreateOrderFunc: func(ctx context.Context, params payments.OrderParams) (payments.Order, error) {
						t.Fatal("CreateOrder should not be called")
						return payments.Order{}, nil
					},
				}

				_, err := CreateRegistrationOrder(context.Background(), OrderRequest{Notes: tt.notes}, openEvent(), &mockRepository{}, gateway)

				var regErr *Error
				require.True(t, errors.As(err, &regErr))
				assert.Equal(t, REASON_VALIDATION_FAILED, regErr.Reason)
				assert.Contains(t, regErr.Fields, "notes")
			})
		}
	})

	t.Run("missing fee", func(t *testing.T) {
		event := openEvent()
		event.RegistrationFee = nil

		_, err := CreateRegistrationOrder(context.Background(), OrderRequest{}, event, &mockRepository{}, &mockGateway{})

		var payErr *payments.Error
		require.True(t, errors.As(err, &payErr))
		assert.Equal(t, payments.REASON_INVALID_ORDER_PARAMS, payErr.Reason)
	})
}

func TestConfirmRegistrationPayment(t *testing.T) {
	verifying := func(valid bool) *mockGateway {
		return &mockGateway{
			VerifySignatureFunc: func(orderID, paymentID, signature string) bool {
				return valid
			},
		}
	}
	confirmation := PaymentConfirmation{
		OrderID:    "order_1",
		PaymentID:  "pay_1",
		Signature:  "sig",
		AttendeeID: ptr.Int64(7),
	}
	markingPaid := func(t *testing.T, changed bool) *mockRepository {
		return &mockRepository{
			MarkAttendeePaidFunc: func(ctx context.Context, id int64) (Attendee, bool, error) {
				assert.Equal(t, int64(7), id)
				a := unpaidAttendee()
				a.IsPaid = true
				return a, changed, nil
			},
		}
	}

	t.Run("verified payment marks the attendee paid", func(t *testing.T) {
		result, err := ConfirmRegistrationPayment(context.Background(), confirmation, markingPaid(t, true), verifying(true))

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_VERIFIED, result.State)
		require.NotNil(t, result.Attendee)
		assert.True(t, result.Attendee.IsPaid)
		assert.True(t, result.NewlyPaid)
		assert.Nil(t, result.Reconciliation)
	})

	t.Run("repeated confirmation is verified but not newly paid", func(t *testing.T) {
		result, err := ConfirmRegistrationPayment(context.Background(), confirmation, markingPaid(t, false), verifying(true))

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_VERIFIED, result.State)
		require.NotNil(t, result.Attendee)
		assert.True(t, result.Attendee.IsPaid)
		assert.False(t, result.NewlyPaid)
	})

	t.Run("signature mismatch never touches the attendee", func(t *testing.T) {
		repo := &mockRepository{
			MarkAttendeePaidFunc: func(ctx context.Context, id int64) (Attendee, bool, error) {
				t.Fatal("MarkAttendeePaid should not be called")
				return Attendee{}, false, nil
			},
		}

		result, err := ConfirmRegistrationPayment(context.Background(), confirmation, repo, verifying(false))

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_FAILED, result.State)
		assert.Nil(t, result.Attendee)
	})

	t.Run("verified payment without attendee id needs reconciliation", func(t *testing.T) {
		noID := confirmation
		noID.AttendeeID = nil

		result, err := ConfirmRegistrationPayment(context.Background(), noID, &mockRepository{}, verifying(true))

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_VERIFIED, result.State)
		require.NotNil(t, result.Reconciliation)
		assert.Equal(t, REASON_RECONCILIATION_FAILED, result.Reconciliation.Reason)
	})

	t.Run("verified payment for a missing attendee needs reconciliation", func(t *testing.T) {
		repo := &mockRepository{
			MarkAttendeePaidFunc: func(ctx context.Context, id int64) (Attendee, bool, error) {
				return Attendee{}, false, NewAttendeeDoesNotExistError("missing", nil)
			},
		}

		result, err := ConfirmRegistrationPayment(context.Background(), confirmation, repo, verifying(true))

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_VERIFIED, result.State)
		require.NotNil(t, result.Reconciliation)
		assert.True(t, HasReason(result.Reconciliation.Cause, REASON_ATTENDEE_DOES_NOT_EXIST))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		repo := &mockRepository{
			MarkAttendeePaidFunc: func(ctx context.Context, id int64) (Attendee, bool, error) {
				return Attendee{}, false, NewFailedToWriteError("write failed", errors.New("disk"))
			},
		}

		_, err := ConfirmRegistrationPayment(context.Background(), confirmation, repo, verifying(true))

		assert.True(t, HasReason(err, REASON_FAILED_TO_WRITE))
	})

	t.Run("duplicate callbacks report newly paid once", func(t *testing.T) {
		var mu sync.Mutex
		paid := false
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				t.Error("confirmation must not decide from a separate read")
				return Attendee{}, nil
			},
			MarkAttendeePaidFunc: func(ctx context.Context, id int64) (Attendee, bool, error) {
				mu.Lock()
				defer mu.Unlock()
				changed := !paid
				paid = true
				a := unpaidAttendee()
				a.IsPaid = true
				return a, changed, nil
			},
		}

		newlyPaid := make(chan bool, 4)
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := ConfirmRegistrationPayment(context.Background(), confirmation, repo, verifying(true))
				assert.NoError(t, err)
				newlyPaid <- result.NewlyPaid
			}()
		}
		wg.Wait()
		close(newlyPaid)

		count := 0
		for n := range newlyPaid {
			if n {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestCancelRegistrationPayment(t *testing.T) {
	t.Run("without attendee", func(t *testing.T) {
		result, err := CancelRegistrationPayment(context.Background(), nil, &mockRepository{})

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_CANCELLED, result.State)
		assert.Nil(t, result.Attendee)
	})

	t.Run("attendee is left unpaid", func(t *testing.T) {
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				return unpaidAttendee(), nil
			},
			UpdateAttendeePaymentStatusFunc: func(ctx context.Context, id int64, isPaid bool) (Attendee, error) {
				t.Fatal("UpdateAttendeePaymentStatus should not be called")
				return Attendee{}, nil
			},
		}

		result, err := CancelRegistrationPayment(context.Background(), ptr.Int64(7), repo)

		require.NoError(t, err)
		assert.Equal(t, PAYMENT_CANCELLED, result.State)
		require.NotNil(t, result.Attendee)
		assert.False(t, result.Attendee.IsPaid)
	})

	t.Run("unknown attendee", func(t *testing.T) {
		repo := &mockRepository{
			GetAttendeeFunc: func(ctx context.Context, id int64) (Attendee, error) {
				return Attendee{}, NewAttendeeDoesNotExistError("missing", nil)
			},
		}

		_, err := CancelRegistrationPayment(context.Background(), ptr.Int64(7), repo)

		assert.True(t, HasReason(err, REASON_ATTENDEE_DOES_NOT_EXIST))
	})
}
