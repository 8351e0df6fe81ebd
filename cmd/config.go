package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/bengaluru-wedding-fraternity/event-registration/api"
	"github.com/bengaluru-wedding-fraternity/event-registration/events"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/ptr"
)

const (
	storeMemory = "memory"
	storeSQLite = "sqlite"
	storeDynamo = "dynamo"
)

type ServerSettings struct {
	Host string
	Port string
	Env  api.Environment

	StoreBackend    string
	SQLiteDSN       string
	DynamoTableName string
	DynamoEndpoint  string

	RazorpayKeyID              string
	RazorpayKeySecret          string
	RazorpayKeySecretParameter string
	RazorpayBaseURL            string
	GatewayTimeout             time.Duration

	AdminToken     string
	EmailFrom      string
	AllowedOrigins []string
}

func getServerSettingsFromEnv() (ServerSettings, error) {
	env, err := parseEnvironment(getEnvOrDefault("ENVIRONMENT", "LOCAL"))
	if err != nil {
		return ServerSettings{}, err
	}

	gatewayTimeout, err := time.ParseDuration(getEnvOrDefault("GATEWAY_TIMEOUT", payments.DefaultTimeout.String()))
	if err != nil {
		return ServerSettings{}, fmt.Errorf("invalid GATEWAY_TIMEOUT: %w", err)
	}

	settings := ServerSettings{
		Host: getEnvOrDefault("HOST", "0.0.0.0"),
		Port: getEnvOrDefault("PORT", "8080"),
		Env:  env,

		StoreBackend:    strings.ToLower(getEnvOrDefault("STORE_BACKEND", storeMemory)),
		SQLiteDSN:       getEnvOrDefault("SQLITE_DSN", "file:registrations.db?cache=shared"),
		DynamoTableName: getEnvOrDefault("DYNAMO_TABLE_NAME", "EventAttendees"),
		DynamoEndpoint:  getEnvOrDefault("DYNAMO_ENDPOINT", ""),

		RazorpayKeyID:              getEnvOrDefault("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:          getEnvOrDefault("RAZORPAY_KEY_SECRET", ""),
		RazorpayKeySecretParameter: getEnvOrDefault("RAZORPAY_KEY_SECRET_SSM_PARAMETER", ""),
		RazorpayBaseURL:            getEnvOrDefault("RAZORPAY_BASE_URL", payments.DefaultRazorpayBaseURL),
		GatewayTimeout:             gatewayTimeout,

		AdminToken:     getEnvOrDefault("ADMIN_TOKEN", ""),
		EmailFrom:      getEnvOrDefault("EMAIL_FROM", "registrations@example.com"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "")),
	}

	switch settings.StoreBackend {
	case storeMemory, storeSQLite, storeDynamo:
	default:
		return ServerSettings{}, fmt.Errorf("unknown STORE_BACKEND %q", settings.StoreBackend)
	}

	if settings.RazorpayKeyID == "" {
		return ServerSettings{}, fmt.Errorf("RAZORPAY_KEY_ID is required")
	}
	if settings.RazorpayKeySecret == "" && settings.RazorpayKeySecretParameter == "" {
		return ServerSettings{}, fmt.Errorf("RAZORPAY_KEY_SECRET or RAZORPAY_KEY_SECRET_SSM_PARAMETER is required")
	}

	return settings, nil
}

func parseEnvironment(s string) (api.Environment, error) {
	switch strings.ToUpper(s) {
	case "LOCAL":
		return api.LOCAL, nil
	case "PROD":
		return api.PROD, nil
	default:
		return api.LOCAL, fmt.Errorf("unknown ENVIRONMENT %q", s)
	}
}

func getEventFromEnv() (events.Event, error) {
	event := events.Event{
		Name:        getEnvOrDefault("EVENT_NAME", "Wedding Fraternity Meetup"),
		Description: getEnvOrDefault("EVENT_DESCRIPTION", ""),
		Venue: events.Venue{
			Name: getEnvOrDefault("EVENT_VENUE", ""),
			City: getEnvOrDefault("EVENT_CITY", "Bengaluru"),
		},
	}

	var err error
	if event.StartTime, err = parseOptionalTime("EVENT_START"); err != nil {
		return events.Event{}, err
	}
	if event.EndTime, err = parseOptionalTime("EVENT_END"); err != nil {
		return events.Event{}, err
	}

	closeTime, err := parseOptionalTime("REGISTRATION_CLOSE_TIME")
	if err != nil {
		return events.Event{}, err
	}
	if !closeTime.IsZero() {
		event.RegistrationCloseTime = ptr.Time(closeTime)
	}

	fee, err := strconv.ParseFloat(getEnvOrDefault("REGISTRATION_FEE", "1000"), 64)
	if err != nil {
		return events.Event{}, fmt.Errorf("invalid REGISTRATION_FEE: %w", err)
	}
	event.RegistrationFee, err = payments.ToMinorUnits(fee, getEnvOrDefault("REGISTRATION_CURRENCY", payments.DefaultCurrency))
	if err != nil {
		return events.Event{}, fmt.Errorf("invalid registration fee: %w", err)
	}

	return event, nil
}

func parseOptionalTime(key string) (time.Time, error) {
	v := getEnvOrDefault(key, "")
	if v == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s, expected RFC3339: %w", key, err)
	}
	return t, nil
}

type parameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func getRazorpayKeySecret(ctx context.Context, settings ServerSettings, client parameterGetter) (string, error) {
	if settings.RazorpayKeySecret != "" {
		return settings.RazorpayKeySecret, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(settings.RazorpayKeySecretParameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get razorpay key secret from ssm: %w", err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm parameter %q is empty", settings.RazorpayKeySecretParameter)
	}

	return aws.ToString(out.Parameter.Value), nil
}

// keyPrefix is the part of a key id that is safe to log.
func keyPrefix(keyID string) string {
	if len(keyID) <= 4 {
		return keyID
	}
	return keyID[:4] + "..."
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return defaultVal
}
