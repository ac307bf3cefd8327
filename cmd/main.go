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
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/idtoken"

	"meeting-registration/api"
	"meeting-registration/badgerdb"
	"meeting-registration/confirmation"
	"meeting-registration/dynamo"
	"meeting-registration/ledger"
	"meeting-registration/meeting"
	"meeting-registration/metrics"
	"meeting-registration/registration"
	"meeting-registration/telemetry"
)

const (
	serviceName     = "meeting-registration"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, appEnv, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	if cfg.OtelEnabled && cfg.OtelEndpoint != "" {
		logger.Info("tracing enabled", slog.String("endpoint", cfg.OtelEndpoint))
	}

	store, meetings, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	emailSender, err := createEmailSender(ctx, logger, appEnv)
	if err != nil {
		return fmt.Errorf("failed to create email sender: %w", err)
	}
	receipts := registration.NewReceiptSender(emailSender, cfg.EmailFrom, meetings, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	l, err := ledger.Open(ctx, store,
		ledger.WithLogger(logger),
		ledger.WithStoreTimeout(cfg.StoreTimeout),
		ledger.WithOnPaid(receipts.OnPaid),
	)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	scheduler := confirmation.New(l,
		confirmation.WithWorkers(cfg.ConfirmationWorkers),
		confirmation.WithRetry(cfg.ConfirmationMaxAttempts, cfg.ConfirmationRetryInterval),
		confirmation.WithLogger(logger),
		confirmation.WithMetrics(m),
	)

	service := registration.NewService(meetings, l, scheduler,
		registration.WithLogger(logger),
		registration.WithConfirmationDelay(cfg.ConfirmationDelay),
		registration.WithMetrics(m),
	)

	recovered, err := service.RecoverPendingConfirmations(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover pending confirmations: %w", err)
	}
	logger.Info("recovered pending confirmations", slog.Int("count", recovered))

	apiOpts := []api.Option{
		api.WithCurrency(cfg.Meeting.Currency),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}
	audience, err := resolveAdminAudience(ctx, cfg)
	if err != nil {
		return err
	}
	if audience != "" {
		validator, err := idtoken.NewValidator(ctx)
		if err != nil {
			return fmt.Errorf("failed to create id token validator: %w", err)
		}
		apiOpts = append(apiOpts, api.WithGoogleAuth(validator, audience, cfg.AdminDomain))
	}

	h, err := api.NewAPI(meetings, service, l, logger, appEnv, apiOpts...).Handler()
	if err != nil {
		return fmt.Errorf("error loading openapi document: %w", err)
	}

	s := &http.Server{
		Handler:           otelhttp.NewHandler(h, serviceName),
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		serverErr := s.Shutdown(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", slog.String("error", err.Error()))
		}
		return serverErr
	})

	return g.Wait()
}

// openStorage returns the ledger store and the meeting source for the configured backend.
func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (ledger.Store, meeting.Source, func(), error) {
	switch cfg.Storage {
	case StorageDynamo:
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to get aws config: %w", err)
		}
		otelaws.AppendMiddlewares(&awsCfg.APIOptions)
		db := dynamo.NewDB(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)

		return db, db, func() {}, nil
	default:
		db, err := badgerdb.Open(cfg.BadgerDir, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open badger: %w", err)
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close badger", slog.String("error", err.Error()))
			}
		}

		return db, meeting.NewStatic(cfg.Meeting.Window()), closeDB, nil
	}
}
