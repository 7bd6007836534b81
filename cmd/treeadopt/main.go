/**
 * @description
 * Entry point for the tree-adoption backend. It loads configuration, connects
 * Firestore, the checkout ledger, Redis and RabbitMQ, builds the services and
 * serves the HTTP API until SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/spf13/cobra: root command and flags.
 * - github.com/joho/godotenv: optional .env loading.
 * - cloud.google.com/go/firestore, github.com/jackc/pgx/v5, github.com/redis/go-redis/v9:
 *   storage clients.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/Samarth40/tree-adoption-sub000/internal/api"
	"github.com/Samarth40/tree-adoption-sub000/internal/app"
	"github.com/Samarth40/tree-adoption-sub000/internal/catalog"
	"github.com/Samarth40/tree-adoption-sub000/internal/config"
	"github.com/Samarth40/tree-adoption-sub000/internal/metrics"
	"github.com/Samarth40/tree-adoption-sub000/internal/session"
	"github.com/Samarth40/tree-adoption-sub000/internal/store"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aiclient"
	"github.com/Samarth40/tree-adoption-sub000/pkg/aptosclient"
	"github.com/Samarth40/tree-adoption-sub000/pkg/rabbitmq"
	"github.com/Samarth40/tree-adoption-sub000/pkg/stripeclient"
)

func main() {
	var envFile, configDir string

	root := &cobra.Command{
		Use:           "treeadopt",
		Short:         "Tree adoption backend: payments, adoption records, community and dashboard APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, configDir)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")
	root.Flags().StringVar(&configDir, "config-dir", ".", "directory searched for app.env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("service exited", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile, configDir string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	boot := logger.With("component", "bootstrap")

	if err := godotenv.Load(envFile); err != nil {
		boot.Info("no env file loaded", "path", envFile)
	}

	cfg, err := config.LoadConfig(configDir, logger)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	boot.Info("starting tree-adoption service", "port", cfg.ServerPort)

	// Firestore holds trees, adoptions, users and community content.
	if strings.TrimSpace(cfg.FirebaseProjectID) == "" {
		return errors.New("FIREBASE_PROJECT_ID must be configured")
	}
	var fsOpts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		fsOpts = append(fsOpts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	fsClient, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, fsOpts...)
	if err != nil {
		return fmt.Errorf("firestore client init failed: %w", err)
	}
	defer fsClient.Close()
	documents := store.NewFirestoreRepository(fsClient)

	// The checkout ledger and event outbox live in Postgres.
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must be configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database url parse failed: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer dbpool.Close()
	ledger := store.NewPostgresCheckoutRepository(dbpool, cfg.EventsExchange)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("checkout ledger schema failed: %w", err)
	}
	boot.Info("database connected")

	redisClient := connectRedis(ctx, cfg.RedisURL, boot)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		boot.Warn("rabbitmq url missing; events will be logged only", "env", "RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
		boot.Warn("rabbitmq producer unavailable; using fallback", "error", err)
	} else {
		publisher = producer
		boot.Info("rabbitmq producer connected")
	}
	defer publisher.Close()

	m := metrics.New()

	var payments app.PaymentProvider
	var webhooks api.WebhookParser
	if cfg.StripeSecretKey != "" {
		stripeClient := stripeclient.NewClient(stripeclient.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, logger)
		payments = stripeClient
		webhooks = stripeClient
	}

	var insights app.InsightGenerator
	if cfg.AIAPIKey != "" {
		insights = aiclient.NewClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
	} else {
		boot.Warn("ai api key missing; tree insights disabled", "env", "AI_API_KEY")
	}
	var mints app.MintVerifier
	if cfg.NFTContractAddress != "" {
		mints = aptosclient.NewClient(cfg.AptosNodeURL)
	}

	recorder := app.NewRecorder(documents, documents, documents, ledger, m, logger)
	checkout := app.NewCheckoutService(payments, documents, ledger, recorder, app.CheckoutConfig{
		Currency:    cfg.PaymentCurrency,
		MetadataTag: cfg.PaymentMetadataTag,
	}, m, logger)
	reconciler := app.NewReconciler(payments, ledger, recorder, cfg.ReconcilePendingAfter(), m, logger)
	community := app.NewCommunityService(documents, logger)
	dashboard := app.NewDashboardService(documents, documents, documents, insights, mints, cfg.NFTContractAddress, logger)

	if cfg.SeedTrees {
		species, err := catalog.Load()
		if err != nil {
			return fmt.Errorf("species catalog load failed: %w", err)
		}
		if _, err := dashboard.SeedTrees(ctx, species); err != nil {
			boot.Warn("tree seeding failed", "error", err)
		}
	}

	var sessionStore session.Store = session.NewMemoryStore()
	var throttle app.PaymentThrottle
	if redisClient != nil {
		sessionStore = session.NewRedisStore(redisClient, cfg.RedisKeyPrefix)
		throttle = app.NewRedisPaymentThrottle(redisClient, cfg.RedisKeyPrefix, cfg.PaymentIntentRateLimitPerMinute, time.Minute)
	} else {
		boot.Warn("redis unavailable; sessions kept in memory and payment throttling disabled")
	}
	verifier := session.NewFirebaseVerifier(cfg.FirebaseProjectID, cfg.FirebaseJWKSURL)
	sessions := session.NewManager(sessionStore, verifier, documents, cfg.SessionTTL(), logger)

	gate, err := app.NewGate(cfg.GatePassword)
	if err != nil {
		return fmt.Errorf("gate init failed: %w", err)
	}

	var scheduler *app.Scheduler
	if payments != nil {
		scheduler = app.NewScheduler(reconciler, cfg.ReconcileSchedule, logger)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("reconcile scheduler start failed: %w", err)
		}
	} else {
		boot.Warn("stripe secret key missing; payments and reconciliation disabled", "env", "STRIPE_SECRET_KEY")
	}

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		app.NewOutboxDispatcher(ledger, publisher, m, logger).Run(dispatcherCtx)
	}()

	handlers := api.NewHandlers(api.Deps{
		Checkout:             checkout,
		Reconciler:           reconciler,
		Community:            community,
		Dashboard:            dashboard,
		Sessions:             sessions,
		Gate:                 gate,
		Throttle:             throttle,
		Webhooks:             webhooks,
		Logger:               logger,
		StripePublishableKey: cfg.StripePublishableKey,
	})

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.Routes(handlers, api.RouterConfig{
			AllowedOrigins: cfg.AllowedOrigins(),
			Metrics:        m,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "component", "http", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	}
	logger.Info("shutdown started", "component", "http")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "component", "http", "error", err)
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	stopDispatcher()
	<-dispatcherDone

	logger.Info("shutdown complete", "component", "http")
	return nil
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(ctx context.Context, url string, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(url) == "" {
		logger.Warn("redis url missing", "env", "REDIS_URL")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("redis url parse failed", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
