package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
)

var noopLogger = slog.New(slog.DiscardHandler)

var _ DB = &mockDB{}

type mockDB struct {
	CreateAttendeeFunc              func(ctx context.Context, attendee registration.NewAttendee) (registration.Attendee, error)
	GetAttendeeFunc                 func(ctx context.Context, id int64) (registration.Attendee, error)
	GetAttendeeByEmailFunc          func(ctx context.Context, email string) (registration.Attendee, error)
	GetAllAttendeesFunc             func(ctx context.Context) ([]registration.Attendee, error)
	GetAttendeesCountFunc           func(ctx context.Context) (int, error)
	UpdateAttendeePaymentStatusFunc func(ctx context.Context, id int64, isPaid bool) (registration.Attendee, error)
	MarkAttendeePaidFunc            func(ctx context.Context, id int64) (registration.Attendee, bool, error)
}

func (m *mockDB) CreateAttendee(ctx context.Context, attendee registration.NewAttendee) (registration.Attendee, error) {
	return m.CreateAttendeeFunc(ctx, attendee)
}

func (m *mockDB) GetAttendee(ctx context.Context, id int64) (registration.Attendee, error) {
	return m.GetAttendeeFunc(ctx, id)
}

func (m *mockDB) GetAttendeeByEmail(ctx context.Context, email string) (registration.Attendee, error) {
	return m.GetAttendeeByEmailFunc(ctx, email)
}

func (m *mockDB) GetAllAttendees(ctx context.Context) ([]registration.Attendee, error) {
	return m.GetAllAttendeesFunc(ctx)
}

func (m *mockDB) GetAttendeesCount(ctx context.Context) (int, error) {
	return m.GetAttendeesCountFunc(ctx)
}

func (m *mockDB) UpdateAttendeePaymentStatus(ctx context.Context, id int64, isPaid bool) (registration.Attendee, error) {
	return m.UpdateAttendeePaymentStatusFunc(ctx, id, isPaid)
}

func (m *mockDB) MarkAttendeePaid(ctx context.Context, id int64) (registration.Attendee, bool, error) {
	return m.MarkAttendeePaidFunc(ctx, id)
}

var _ PaymentGateway = &mockGateway{}

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

func (m *mockGateway) KeyID() string {
	return "rzp_test_key"
}

var _ email.Sender = &mockEmailSender{}

type mockEmailSender struct {
	mu        sync.Mutex
	sent      []email.Email
	deadlines []time.Time
	err       error
}

func (m *mockEmailSender) SendEmail(ctx context.Context, e email.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	deadline, _ := ctx.Deadline()
	m.deadlines = append(m.deadlines, deadline)
	return m.err
}

// Deadlines holds the context deadline of each send, zero when there was none.
func (m *mockEmailSender) Deadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.deadlines...)
}

func (m *mockEmailSender) Sent() []email.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Email(nil), m.sent...)
}
