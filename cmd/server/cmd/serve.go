package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/middleware"
	"github.com/alphauslabs/buckshot/cmd/server/service"
	"github.com/alphauslabs/buckshot/internal/aggregator"
	"github.com/alphauslabs/buckshot/internal/config"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/database/sqlite"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/dispatcher"
	"github.com/alphauslabs/buckshot/internal/executor"
	"github.com/alphauslabs/buckshot/internal/health"
	"github.com/alphauslabs/buckshot/internal/platform"
	_ "github.com/alphauslabs/buckshot/internal/platform/youtube" // Register YouTube provider
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/alphauslabs/buckshot/internal/storage"
	"github.com/alphauslabs/buckshot/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	Long:  `Start the API server together with the upload dispatcher, health monitor and reconciler.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting buckshot server...")

	ctx := context.Background()

	// Load configuration from environment variables.
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("Loaded configuration: db=%s, queue=%s, storage=%s, platform=%s, worker=%s",
		cfg.Database.Provider, cfg.Queue.Provider, cfg.Storage.Provider, cfg.Platform.Provider, cfg.WorkerID)

	store, q, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	source, closeSource, err := openSource(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeSource()

	cipher, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	provider, err := platform.NewProvider(ctx, platform.ProviderConfig{
		Provider:        cfg.Platform.Provider,
		ProviderOptions: map[string]string{"category_id": cfg.Platform.CategoryID},
	})
	if err != nil {
		return fmt.Errorf("failed to create platform provider: %w", err)
	}
	log.Printf("Initialized %s platform provider", cfg.Platform.Provider)

	registry := pool.NewRegistry(store, cipher, pool.Options{
		StrikeThreshold: cfg.Pool.StrikeThreshold,
		AutoDeleteAfter: cfg.Pool.AutoDeleteAfter,
	})
	ring := health.NewRing(cfg.WorkerID, cfg.Health.Peers)
	monitor := health.New(registry, store, provider, cipher, ring, health.Options{
		UploadLimitCooldown: cfg.Health.UploadLimitCooldown,
		ProjectBanThreshold: cfg.Pool.ProjectBanThreshold,
	})
	agg := aggregator.New(store, source)
	decomp := decomposer.New(store, registry, q, cfg.Executor.MaxAttempts)

	exec := executor.New(store, cipher, source, provider, monitor, agg, q, executor.Options{
		WorkerID:            cfg.WorkerID,
		UploadTimeout:       cfg.Executor.UploadTimeout,
		RetryBaseDelay:      cfg.Executor.RetryBaseDelay,
		RetryMaxDelay:       cfg.Executor.RetryMaxDelay,
		UploadLimitCooldown: cfg.Health.UploadLimitCooldown,
	})
	disp := dispatcher.New(q, exec, dispatcher.Options{
		Concurrency:      cfg.Dispatcher.Concurrency,
		BatchSize:        cfg.Queue.BatchSize,
		PollInterval:     cfg.Queue.PollInterval,
		Visibility:       cfg.Queue.VisibilityTimeout,
		UploadsPerSecond: cfg.Dispatcher.UploadsPerSecond,
		RetryBaseDelay:   cfg.Executor.RetryBaseDelay,
		RetryMaxDelay:    cfg.Executor.RetryMaxDelay,
	})
	reconciler := service.NewReconciler(store, q, agg, registry, cfg.Reconciler.StaleAfter)
	uploadService := service.NewUploadService(store, registry, decomp, monitor)

	if cfg.TemplatesPath != "" {
		file, err := config.LoadTemplateFile(cfg.TemplatesPath)
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
		if _, err := uploadService.SeedTemplates(ctx, file); err != nil {
			return err
		}
	}

	origins := cfg.AllowedOrigins
	log.Printf("CORS allowed origins: %v", origins)
	cors := middleware.CORS(origins)

	mux := http.NewServeMux()
	path, handler := uploadService.Handler()
	mux.Handle(path, cors(handler))
	log.Printf("Registered %s handler at path: %s (with CORS)", service.ServiceName, path)

	mux.Handle("/health", cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})))
	log.Println("Health check endpoint: /health (with CORS)")

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In-flight uploads outlive the signal until the shutdown deadline.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	disp.Start(workCtx)
	reconciler.Start(sigCtx, cfg.Reconciler.Interval)
	monitor.Start(sigCtx, cfg.Health.CheckInterval)
	log.Printf("Background workers started: concurrency=%d, reconcile=%s, health=%s",
		cfg.Dispatcher.Concurrency, cfg.Reconciler.Interval, cfg.Health.CheckInterval)

	go func() {
		log.Printf("Server listening on %s", addr)
		log.Println("Available endpoints:")
		for _, p := range service.Procedures {
			log.Printf("  • POST %s%s", path, p)
		}
		log.Printf("  • GET  /health")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	reconciler.Stop()

	stopped := make(chan struct{})
	go func() {
		disp.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Println("Shutdown deadline reached, aborting in-flight uploads")
		cancelWork()
		<-stopped
	}

	log.Println("Server stopped")
	return nil
}

// openStore connects the configured database and the queue that shares it.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, queue.Queue, error) {
	var (
		store   database.Store
		spanner *database.Client
	)
	switch cfg.Database.Provider {
	case "spanner":
		client, err := database.NewClient(ctx, cfg.Database.ProjectID, cfg.Database.Instance, cfg.Database.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database client: %w", err)
		}
		log.Printf("Connected to database: %s/%s/%s",
			cfg.Database.ProjectID, cfg.Database.Instance, cfg.Database.Database)
		store, spanner = client, client
	case "sqlite":
		s, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Printf("Opened sqlite database: %s", cfg.Database.Path)
		store = s
	default:
		return nil, nil, fmt.Errorf("unsupported database provider: %s", cfg.Database.Provider)
	}

	switch cfg.Queue.Provider {
	case "spanner":
		log.Printf("Using spanner queue (max deliveries %d)", cfg.Queue.MaxDeliveries)
		return store, queue.NewSpanner(spanner.Spanner(), cfg.Queue.MaxDeliveries), nil
	case "memory":
		log.Println("Using in-memory queue; pending work is recovered by the reconciler after restart")
		return store, queue.NewMemory(cfg.Queue.MaxDeliveries), nil
	default:
		store.Close()
		return nil, nil, fmt.Errorf("unsupported queue provider: %s", cfg.Queue.Provider)
	}
}

// openSource returns the configured video store and its closer.
func openSource(ctx context.Context, cfg config.StorageConfig) (storage.Source, func(), error) {
	switch cfg.Provider {
	case "gcs":
		gcs, err := storage.NewGCS(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		log.Printf("Reading source videos from gs://%s", cfg.Bucket)
		return gcs, func() { gcs.Close() }, nil
	case "dir":
		log.Printf("Reading source videos from %s", cfg.Dir)
		return storage.NewDir(cfg.Dir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
