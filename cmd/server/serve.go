package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ai-image-editor-backend/internal/config"
	"ai-image-editor-backend/internal/database"
	"ai-image-editor-backend/internal/events"
	"ai-image-editor-backend/internal/gemini"
	"ai-image-editor-backend/internal/handlers"
	"ai-image-editor-backend/internal/inference"
	"ai-image-editor-backend/internal/middleware"
	"ai-image-editor-backend/internal/minio"
	"ai-image-editor-backend/internal/replicate"
	"ai-image-editor-backend/internal/services"
	"ai-image-editor-backend/internal/stripe"
	"ai-image-editor-backend/internal/supabase"
)

const (
	maxOutputBytes  = 50 << 20
	shutdownTimeout = 15 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := config.NewLogger(cfg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.AutoMigrate {
		migrator, err := database.NewMigrator(cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		err = migrator.Run(ctx)
		migrator.Close()
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	store, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}

	fetcher := inference.NewHTTPFetcher(cfg.InferenceTimeout, maxOutputBytes)
	provider, err := newProvider(ctx, cfg, fetcher)
	if err != nil {
		return err
	}

	publisher, closePublisher := newPublisher(cfg, log)
	defer closePublisher()

	stripeClient := stripe.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	storage := services.NewStorageService(store, cfg.InputBucket, cfg.OutputBucket, cfg.SignedURLTTL, cfg.PublicURLs)

	checkoutService := services.NewCheckoutService(dbClient, storage, stripeClient, publisher, log, services.CheckoutOptions{
		AmountCents:     cfg.PriceInCents,
		Currency:        cfg.Currency,
		ProductName:     cfg.ProductName,
		SuccessURL:      cfg.CheckoutSuccessURL,
		CancelURL:       cfg.CheckoutCancelURL,
		StrictWriteBack: cfg.StrictSessionWriteBack,
	})
	paymentService := services.NewPaymentService(stripeClient, dbClient, publisher, log)
	generationService := services.NewGenerationService(dbClient, storage, provider, fetcher, publisher, log, services.GenerationOptions{
		InputURLTTL:      cfg.InputURLTTL(),
		InferenceTimeout: cfg.InferenceTimeout,
		PipelineTimeout:  cfg.PipelineTimeout,
		ReservationLease: cfg.ReservationLease(),
	})
	projectService := services.NewProjectService(dbClient, storage, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", handlers.NewHealthHandler(dbClient).Health)

	api := router.Group("/api/v1")

	// Webhook (no auth, verified by signature)
	api.POST("/webhooks/stripe", handlers.NewWebhookHandler(paymentService).HandleStripeWebhook)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.SupabaseJWTSecret, log))

	authed.POST("/checkout", handlers.NewCheckoutHandler(checkoutService, cfg.MaxUploadBytes).CreateCheckout)
	authed.POST("/generate", handlers.NewGenerateHandler(generationService, cfg.MaxUploadBytes).Generate)

	projectsHandler := handlers.NewProjectsHandler(projectService)
	authed.GET("/projects", projectsHandler.ListProjects)
	authed.GET("/projects/:project_id", projectsHandler.GetProject)
	authed.DELETE("/projects/:project_id", projectsHandler.DeleteProject)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.PipelineTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"storage":  cfg.StorageBackend,
			"provider": provider.Name(),
		}).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (services.ArtifactStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		store, err := minio.NewStorageClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBuckets(ctx, cfg.InputBucket, cfg.OutputBucket); err != nil {
			return nil, err
		}
		return store, nil
	default:
		client, err := supabase.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		return supabase.NewStorageClient(client), nil
	}
}

func newProvider(ctx context.Context, cfg *config.Config, fetcher *inference.HTTPFetcher) (services.Provider, error) {
	switch cfg.InferenceProvider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, fetcher)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return replicate.NewClient(cfg.ReplicateBaseURL, cfg.ReplicateAPIToken, cfg.ReplicateModel, cfg.InferenceTimeout, maxOutputBytes), nil
	}
}

// newPublisher connects to the broker when AMQP_URL is set. Without a broker,
// or when the connection fails, lifecycle events are dropped.
func newPublisher(cfg *config.Config, log logrus.FieldLogger) (events.Publisher, func()) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, func() {}
	}

	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.WithError(err).Warn("event broker unavailable, lifecycle events disabled")
		return events.Nop{}, func() {}
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("failed to close event publisher")
		}
	}
}
