package payments

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Rhymond/go-money"
)

const (
	DefaultCurrency = money.INR

	maxReceiptLength = 40
	MaxNotes         = 15
	MaxNoteLength    = 256
)

type Gateway interface {
	CreateOrder(ctx context.Context, params OrderParams) (Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchOrder(ctx context.Context, orderID string) (Order, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
}

// OrderParams describes an order in major currency units (rupees, not paise).
type OrderParams struct {
	Amount   float64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID         string
	Amount     int64
	AmountPaid int64
	AmountDue  int64
	Currency   string
	Receipt    string
	Status     string
	Attempts   int
	Notes      map[string]string
	CreatedAt  time.Time
}

type Payment struct {
	ID               string
	OrderID          string
	Amount           int64
	Currency         string
	Status           string
	Method           string
	Captured         bool
	Email            string
	Contact          string
	ErrorCode        string
	ErrorDescription string
	CreatedAt        time.Time
}

// ToMinorUnits converts a major-unit amount into the provider's integer minor
// units using the currency's ISO 4217 fraction (x100 for INR).
func ToMinorUnits(amount float64, currency string) (*money.Money, error) {
	if currency == "" {
		currency = DefaultCurrency
	}

	cur := money.GetCurrency(currency)
	if cur == nil {
		return nil, NewInvalidOrderParamsError(fmt.Sprintf("Unknown currency %q", currency))
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, NewInvalidOrderParamsError("Amount must be greater than zero")
	}

	minor := math.Round(amount * math.Pow10(cur.Fraction))
	if minor > math.MaxInt64 {
		return nil, NewInvalidOrderParamsError("Amount is too large")
	}

	return money.New(int64(minor), cur.Code), nil
}

func (p OrderParams) validate() error {
	if len(p.Receipt) > maxReceiptLength {
		return NewInvalidOrderParamsError(fmt.Sprintf("Receipt must be at most %d characters", maxReceiptLength))
	}
	if len(p.Notes) > MaxNotes {
		return NewInvalidOrderParamsError(fmt.Sprintf("At most %d notes are allowed", MaxNotes))
	}
	for k, v := range p.Notes {
		if len(v) > MaxNoteLength {
			return NewInvalidOrderParamsError(fmt.Sprintf("Note %q must be at most %d characters", k, MaxNoteLength))
		}
	}
	return nil
}
