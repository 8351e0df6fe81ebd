package api

import (
	"log/slog"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/bengaluru-wedding-fraternity/event-registration/events"
	"github.com/bengaluru-wedding-fraternity/event-registration/metrics"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
	"github.com/prometheus/client_golang/prometheus"
)

type Environment int

const (
	LOCAL Environment = iota
	PROD
)

func (e Environment) String() string {
	switch e {
	case PROD:
		return "PROD"
	default:
		return "LOCAL"
	}
}

type DB interface {
	registration.Repository
}

// PaymentGateway is the gateway plus the public key id the browser checkout
// needs to open the order.
type PaymentGateway interface {
	payments.Gateway
	KeyID() string
}

type Settings struct {
	// EmailFrom is the sender of payment confirmation emails.
	EmailFrom string
	// AdminToken guards the operator endpoints. Empty disables them.
	AdminToken string
	// AllowedOrigins is the PROD CORS allow list.
	AllowedOrigins []string
	// Gatherer serves /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
}

type API struct {
	db          DB
	logger      *slog.Logger
	env         Environment
	event       events.Event
	gateway     PaymentGateway
	emailSender email.Sender
	metrics     *metrics.Metrics
	settings    Settings
}

func NewAPI(db DB, logger *slog.Logger, env Environment, event events.Event, gateway PaymentGateway, emailSender email.Sender, m *metrics.Metrics, settings Settings) *API {
	if settings.Gatherer == nil {
		settings.Gatherer = prometheus.DefaultGatherer
	}

	return &API{
		db:          db,
		logger:      logger,
		env:         env,
		event:       event,
		gateway:     gateway,
		emailSender: emailSender,
		metrics:     m,
		settings:    settings,
	}
}
