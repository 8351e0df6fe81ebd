package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	DefaultTimeout         = 10 * time.Second

	maxResponseSize = 1 << 20
	tracerName      = "github.com/bengaluru-wedding-fraternity/event-registration/payments"
)

var _ Gateway = &RazorpayClient{}

// RequestObserver is told about every provider call once it has finished.
type RequestObserver func(operation string, elapsed time.Duration, err error)

type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
	observer   RequestObserver
}

type Option func(*RazorpayClient)

func WithBaseURL(baseURL string) Option {
	return func(c *RazorpayClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTimeout bounds every provider call. A call that has not finished by then
// fails with REASON_TIMEOUT.
func WithTimeout(timeout time.Duration) Option {
	return func(c *RazorpayClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *RazorpayClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithRequestObserver(observer RequestObserver) Option {
	return func(c *RazorpayClient) {
		c.observer = observer
	}
}

func NewRazorpayClient(keyID string, keySecret string, opts ...Option) (*RazorpayClient, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay key id and key secret are required")
	}

	c := &RazorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   DefaultRazorpayBaseURL,
		timeout:   DefaultTimeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// KeyID is the public key the browser checkout needs. It is not a secret.
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, params OrderParams) (Order, error) {
	amount, err := ToMinorUnits(params.Amount, params.Currency)
	if err != nil {
		return Order{}, err
	}
	if err := params.validate(); err != nil {
		return Order{}, err
	}

	notes := params.Notes
	if notes == nil {
		notes = map[string]string{}
	}

	body := razorpayCreateOrderRequest{
		Amount:   amount.Amount(),
		Currency: amount.Currency().Code,
		Receipt:  params.Receipt,
		Notes:    notes,
	}

	var resp razorpayOrder
	err = c.do(ctx, "CreateOrder", http.MethodPost, "/orders", body, &resp)
	if err != nil {
		return Order{}, err
	}

	return resp.toOrder()
}

func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(c.keySecret, orderID, paymentID, signature)
}

func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, NewInvalidOrderParamsError("Order ID is required")
	}

	var resp razorpayOrder
	err := c.do(ctx, "FetchOrder", http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &resp)
	if err != nil {
		return Order{}, err
	}

	return resp.toOrder()
}

func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if paymentID == "" {
		return Payment{}, NewInvalidOrderParamsError("Payment ID is required")
	}

	var resp razorpayPayment
	err := c.do(ctx, "FetchPayment", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &resp)
	if err != nil {
		return Payment{}, err
	}

	return resp.toPayment()
}

func (c *RazorpayClient) do(ctx context.Context, operation string, method string, path string, reqBody any, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "razorpay."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, operation+" failed")
		}
		if c.observer != nil {
			c.observer(operation, time.Since(start), err)
		}
	}()

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return NewInvalidOrderParamsError("Order could not be encoded")
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return NewRequestFailedError("Failed to build payment provider request", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewTimeoutError(operation)
		}
		return NewRequestFailedError("Failed to reach payment provider", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewTimeoutError(operation)
		}
		return NewRequestFailedError("Failed to read payment provider response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return providerError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return NewInvalidResponseError("Payment provider returned an unreadable response", err)
	}

	return nil
}

type razorpayErrorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

func providerError(status int, payload []byte) *Error {
	var envelope razorpayErrorEnvelope
	_ = json.Unmarshal(payload, &envelope)
	cause := fmt.Errorf("razorpay returned %d: %s: %s", status, envelope.Error.Code, envelope.Error.Description)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthFailedError(cause)
	case status == http.StatusNotFound:
		return NewNotFoundError("Payment record was not found", cause)
	case status < http.StatusInternalServerError:
		return NewProviderRejectedError("Payment provider rejected the request", cause)
	default:
		return NewRequestFailedError("Payment provider is unavailable", cause)
	}
}

type razorpayCreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes"`
}

type razorpayOrder struct {
	ID         string          `json:"id"`
	Entity     string          `json:"entity"`
	Amount     int64           `json:"amount"`
	AmountPaid int64           `json:"amount_paid"`
	AmountDue  int64           `json:"amount_due"`
	Currency   string          `json:"currency"`
	Receipt    *string         `json:"receipt"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Notes      json.RawMessage `json:"notes"`
	CreatedAt  int64           `json:"created_at"`
}

func (o razorpayOrder) toOrder() (Order, error) {
	if o.ID == "" || (o.Entity != "" && o.Entity != "order") {
		return Order{}, NewInvalidResponseError("Payment provider returned an unexpected order", fmt.Errorf("id %q entity %q", o.ID, o.Entity))
	}

	notes, err := coerceNotes(o.Notes)
	if err != nil {
		return Order{}, NewInvalidResponseError("Payment provider returned unreadable order notes", err)
	}

	receipt := ""
	if o.Receipt != nil {
		receipt = *o.Receipt
	}

	return Order{
		ID:         o.ID,
		Amount:     o.Amount,
		AmountPaid: o.AmountPaid,
		AmountDue:  o.AmountDue,
		Currency:   o.Currency,
		Receipt:    receipt,
		Status:     o.Status,
		Attempts:   o.Attempts,
		Notes:      notes,
		CreatedAt:  unixOrZero(o.CreatedAt),
	}, nil
}

type razorpayPayment struct {
	ID               string  `json:"id"`
	Entity           string  `json:"entity"`
	OrderID          *string `json:"order_id"`
	Amount           int64   `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	Method           string  `json:"method"`
	Captured         bool    `json:"captured"`
	Email            string  `json:"email"`
	Contact          string  `json:"contact"`
	ErrorCode        *string `json:"error_code"`
	ErrorDescription *string `json:"error_description"`
	CreatedAt        int64   `json:"created_at"`
}

func (p razorpayPayment) toPayment() (Payment, error) {
	if p.ID == "" || (p.Entity != "" && p.Entity != "payment") {
		return Payment{}, NewInvalidResponseError("Payment provider returned an unexpected payment", fmt.Errorf("id %q entity %q", p.ID, p.Entity))
	}

	return Payment{
		ID:               p.ID,
		OrderID:          derefString(p.OrderID),
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           p.Status,
		Method:           p.Method,
		Captured:         p.Captured,
		Email:            p.Email,
		Contact:          p.Contact,
		ErrorCode:        derefString(p.ErrorCode),
		ErrorDescription: derefString(p.ErrorDescription),
		CreatedAt:        unixOrZero(p.CreatedAt),
	}, nil
}

// coerceNotes accepts the provider's notes object, which is sent as an empty
// JSON array when there are no notes and may carry numbers or booleans.
func coerceNotes(raw json.RawMessage) (map[string]string, error) {
	notes := map[string]string{}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return notes, nil
	}

	var values map[string]any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, err
	}

	for k, v := range values {
		switch val := v.(type) {
		case string:
			notes[k] = val
		case float64:
			notes[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			notes[k] = strconv.FormatBool(val)
		case nil:
			notes[k] = ""
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			notes[k] = string(encoded)
		}
	}

	return notes, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
