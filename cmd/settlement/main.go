package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"settlement/internal/app/finalize"
	"settlement/internal/app/fulfillment"
	"settlement/internal/app/notify"
	"settlement/internal/app/verification"
	"settlement/internal/config"
	"settlement/internal/domain"
	"settlement/internal/handler/http/checkout"
	"settlement/internal/handler/http/webhooks"
	kafka_handler "settlement/internal/handler/kafka"
	"settlement/internal/infrastructure/carrier"
	"settlement/internal/infrastructure/database"
	kafka_infra "settlement/internal/infrastructure/kafka"
	"settlement/internal/infrastructure/mailer"
	"settlement/internal/infrastructure/paymentprovider"
	"settlement/internal/locale"
	"settlement/internal/money"
	"settlement/internal/outbox"
	"settlement/internal/repository/inbox_repo"
	memory_inbox_repo "settlement/internal/repository/inbox_repo/memory"
	postgres_inbox_repo "settlement/internal/repository/inbox_repo/postgres"
	"settlement/internal/repository/order_repo"
	memory_order_repo "settlement/internal/repository/order_repo/memory"
	postgres_order_repo "settlement/internal/repository/order_repo/postgres"
	postgres_outbox_repo "settlement/internal/repository/outbox_repo/postgres"
	"settlement/internal/router"
	"settlement/internal/shipping"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Settlement Service failed", zap.Error(err))
	}
	appLogger.Info("Settlement Service stopped.")
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	appLogger.Info("Settlement Service starting...", zap.String("store_driver", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rates, err := money.ParseRates(cfg.Currency.Rates)
	if err != nil {
		return fmt.Errorf("invalid CURRENCY_RATES: %w", err)
	}
	rateTable := money.NewRateTable(cfg.Currency.Base, rates)

	var (
		db        *sql.DB
		orderRepo order_repo.OrderRepository
		inboxRepo inbox_repo.InboxRepository
	)
	outboxRepository := postgres_outbox_repo.NewOutboxRepository()

	switch cfg.StoreDriver {
	case "postgres":
		appLogger.Info("Waiting for database to be available...")
		db, err = database.ConnectWithRetry(ctx, cfg.GetDBConnectionString(), 10, 5*time.Second, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			} else {
				appLogger.Info("Database connection closed.")
			}
		}()

		appLogger.Info("Running database migrations...")
		if err := database.RunMigrations(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString(), appLogger); err != nil {
			return err
		}

		orderRepo = postgres_order_repo.NewOrderRepository(db, outboxRepository, appLogger.With(zap.String("component", "OrderRepository")))
		inboxRepo = postgres_inbox_repo.NewInboxRepository(db)
	case "memory":
		appLogger.Warn("Using in-memory store; orders are lost on restart and order events are not relayed")
		orderRepo = memory_order_repo.NewOrderRepository()
		inboxRepo = memory_inbox_repo.NewInboxRepository()
	}

	providerClient := paymentprovider.NewClient(cfg.Provider.BaseURL, cfg.Provider.SecretKey, cfg.Provider.Timeout,
		appLogger.With(zap.String("component", "PaymentProviderClient")))
	gate, err := verification.NewGate(providerClient, verification.Config{
		ReferencePattern: cfg.Provider.ReferencePattern,
		Attempts:         cfg.Provider.RetryAttempts,
		Backoff:          cfg.Provider.RetryBackoff,
		AttemptTimeout:   cfg.Provider.Timeout,
	}, appLogger.With(zap.String("component", "VerificationGate")))
	if err != nil {
		return err
	}

	var carrierRates shipping.CarrierRateProvider
	if cfg.Carrier.APIKey != "" {
		carrierRates = carrier.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.APIKey, cfg.Carrier.Timeout,
			appLogger.With(zap.String("component", "CarrierClient")))
	} else {
		appLogger.Warn("CARRIER_API_KEY not set, quoting from static rate tables only")
	}
	shippingResolver := shipping.NewResolver(carrierRates, rateTable, cfg.Checkout.WarehouseCountry, cfg.Carrier.Timeout,
		appLogger.With(zap.String("component", "ShippingResolver")))

	localeResolver := locale.NewResolver(cfg.Checkout.SupportedLocales, cfg.Checkout.DefaultLocale)

	mailClient := mailer.NewClient(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.From, cfg.Mailer.Timeout,
		appLogger.With(zap.String("component", "MailerClient")))
	dispatcher := notify.NewDispatcher(mailClient, orderRepo, notify.Config{
		AdminEmail:  cfg.Mailer.AdminEmail,
		AdminLocale: localeResolver.Default(),
		Timeout:     cfg.Mailer.Timeout,
	}, appLogger.With(zap.String("component", "NotificationDispatcher")))

	creator := finalize.NewCreator(orderRepo, gate, shippingResolver, localeResolver, dispatcher, finalize.Config{
		OrderEventsTopic: cfg.KafkaOrderEventsTopic,
		ItemWeightGrams:  cfg.Checkout.ItemWeightGrams,
		Timeout:          cfg.Checkout.FinalizeTimeout,
	}, appLogger.With(zap.String("component", "OrderCreator")))
	eventHandler := finalize.NewEventHandler(creator, inboxRepo, appLogger.With(zap.String("component", "ProviderEventHandler")))
	fulfillmentService := fulfillment.NewService(orderRepo, dispatcher, appLogger.With(zap.String("component", "FulfillmentService")))

	g, gctx := errgroup.WithContext(ctx)

	var eventSink webhooks.EventSink = webhooks.EventSinkFunc(func(ctx context.Context, event domain.ProviderEvent, _ []byte) error {
		return eventHandler.HandleProviderEvent(ctx, event)
	})

	if cfg.KafkaEnabled {
		brokers := cfg.GetKafkaBrokers()
		if err := kafka_infra.EnsureTopics(ctx, brokers, []string{cfg.KafkaProviderEventsTopic, cfg.KafkaOrderEventsTopic}, appLogger); err != nil {
			appLogger.Warn("Could not ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer := kafka_infra.NewProducer(brokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer kafkaProducer.Close()
		eventSink = kafka_infra.NewProviderEventPublisher(kafkaProducer, cfg.KafkaProviderEventsTopic)

		providerEvents := kafka_handler.NewProviderEventConsumer(eventHandler, appLogger.With(zap.String("component", "ProviderEventConsumer")))
		consumer := kafka_infra.NewConsumer(brokers, cfg.KafkaProviderEventsTopic, cfg.KafkaConsumerGroup,
			providerEvents.HandleMessage, appLogger.With(zap.String("component", "KafkaConsumer")))
		defer func() {
			if err := consumer.Close(); err != nil {
				appLogger.Error("Error closing Kafka consumer", zap.Error(err))
			}
		}()
		g.Go(func() error { return consumer.Consume(gctx) })

		if db != nil {
			processor := outbox.NewProcessor(db, outboxRepository, kafkaProducer, cfg.OutboxPollInterval, cfg.OutboxPollTimeout,
				cfg.OutboxBatchSize, appLogger.With(zap.String("component", "OutboxProcessor")))
			g.Go(func() error { return processor.Start(gctx) })
			appLogger.Info("Transactional Outbox sender started.")
		}
	} else {
		appLogger.Warn("Kafka disabled, provider events are handled in the webhook request")
	}

	handler := router.NewRouter(router.Deps{
		Finalizer:        creator,
		Quoter:           shippingResolver,
		QuoteLimiter:     checkout.NewIPRateLimiter(cfg.HTTPLimit.QuoteRPS, cfg.HTTPLimit.QuoteBurst),
		EventSink:        eventSink,
		WebhookSecret:    cfg.Provider.WebhookSecret,
		WebhookTolerance: cfg.Provider.WebhookTolerance,
		Fulfillment:      fulfillmentService,
		AdminJWTSecret:   cfg.Admin.JWTSecret,
		CORSOrigins:      cfg.Admin.CORSOrigins,
		RequestTimeout:   cfg.Checkout.FinalizeTimeout + 10*time.Second,
	}, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Checkout.FinalizeTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		appLogger.Info("Settlement Service listening", zap.String("address", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down Settlement Service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Mailer.Timeout+5*time.Second)
	defer cancel()
	if err := dispatcher.Wait(drainCtx); err != nil {
		appLogger.Warn("Pending notifications abandoned at shutdown", zap.Error(err))
	}
	return runErr
}
