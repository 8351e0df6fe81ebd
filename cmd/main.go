package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/bengaluru-wedding-fraternity/event-registration/api"
	"github.com/bengaluru-wedding-fraternity/event-registration/dynamo"
	"github.com/bengaluru-wedding-fraternity/event-registration/memory"
	"github.com/bengaluru-wedding-fraternity/event-registration/metrics"
	"github.com/bengaluru-wedding-fraternity/event-registration/payments"
	"github.com/bengaluru-wedding-fraternity/event-registration/sqlstore"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	settings, err := getServerSettingsFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %s\n", err)
		os.Exit(1)
	}

	logger := newLogger(settings.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, settings); err != nil {
		logger.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(env api.Environment) *slog.Logger {
	if env == api.LOCAL {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func run(ctx context.Context, logger *slog.Logger, settings ServerSettings) error {
	awsCfg := sync.OnceValues(func() (aws.Config, error) {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to get aws config: %w", err)
		}
		return cfg, nil
	})

	event, err := getEventFromEnv()
	if err != nil {
		return err
	}

	db, closeDB, err := openStore(ctx, settings, awsCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDB(); err != nil {
			logger.Error("Failed to close store", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	keySecret, err := loadKeySecret(ctx, settings, awsCfg)
	if err != nil {
		return err
	}

	gateway, err := payments.NewRazorpayClient(settings.RazorpayKeyID, keySecret,
		payments.WithBaseURL(settings.RazorpayBaseURL),
		payments.WithTimeout(settings.GatewayTimeout),
		payments.WithRequestObserver(m.ObserveGatewayRequest),
	)
	if err != nil {
		return err
	}

	emailSender, err := createEmailSender(logger, settings.Env, awsCfg)
	if err != nil {
		return err
	}

	eventAPI := api.NewAPI(db, logger, settings.Env, event, gateway, emailSender, m, api.Settings{
		EmailFrom:      settings.EmailFrom,
		AdminToken:     settings.AdminToken,
		AllowedOrigins: settings.AllowedOrigins,
		Gatherer:       reg,
	})

	router, err := eventAPI.NewRouter()
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	s := &http.Server{
		Handler:           otelhttp.NewHandler(router, "event-registration"),
		Addr:              net.JoinHostPort(settings.Host, settings.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server",
		slog.String("addr", s.Addr),
		slog.String("env", settings.Env.String()),
		slog.String("store", settings.StoreBackend),
		slog.String("razorpayKey", keyPrefix(settings.RazorpayKeyID)),
		slog.Bool("adminEnabled", settings.AdminToken != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, settings ServerSettings, awsCfg func() (aws.Config, error)) (api.DB, func() error, error) {
	switch settings.StoreBackend {
	case storeSQLite:
		db, err := sqlstore.Open(ctx, settings.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil

	case storeDynamo:
		cfg, err := awsCfg()
		if err != nil {
			return nil, nil, err
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if settings.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(settings.DynamoEndpoint)
			}
		})
		// A custom endpoint is a local DynamoDB, which starts without tables.
		if settings.DynamoEndpoint != "" {
			err = dynamo.CreateTable(ctx, client, settings.DynamoTableName)
			if err != nil {
				return nil, nil, err
			}
		}
		return dynamo.NewDB(client, settings.DynamoTableName), noopClose, nil

	default:
		return memory.New(), noopClose, nil
	}
}

func loadKeySecret(ctx context.Context, settings ServerSettings, awsCfg func() (aws.Config, error)) (string, error) {
	if settings.RazorpayKeySecret != "" {
		return settings.RazorpayKeySecret, nil
	}

	cfg, err := awsCfg()
	if err != nil {
		return "", err
	}
	return getRazorpayKeySecret(ctx, settings, ssm.NewFromConfig(cfg))
}

func noopClose() error {
	return nil
}
