package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/api"
	"github.com/dvloznov/receipt-validator/internal/config"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/gcsuploader"
	infraBQ "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/dvloznov/receipt-validator/internal/media"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/dvloznov/receipt-validator/internal/rendition"
	"github.com/dvloznov/receipt-validator/internal/settlement"
	"github.com/rs/zerolog"
)

const (
	jobRetention     = 24 * time.Hour
	jobPruneInterval = 10 * time.Minute
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(config.DefaultName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.WithLevel(log, cfg.Logging.Level)

	ctx := context.Background()

	// Outbound calls share one client; a zero timeout waits on slow upstreams.
	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}

	adminClient := admin.NewClient(cfg.Admin.BaseURL, httpClient, admin.NewStageTracker(admin.DefaultTrackerCapacity), log)
	mediaClient := media.NewClient(cfg.Media.BaseURL, cfg.Media.Token, httpClient)

	storageClient, err := gcsuploader.NewClient(ctx, cfg.Storage.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storageClient.Close()
	publisher := rendition.NewPublisher(gcsuploader.NewStore(storageClient, cfg.Storage.Bucket), cfg.Storage.CDNBaseURL)

	genaiClient, err := pipeline.NewGeminiClient(ctx, cfg.Model.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	extractor := pipeline.NewGeminiReceiptExtractor(genaiClient, cfg.Model.Name)

	audit, closeAudit := newAuditRecorder(ctx, cfg.Audit, log)
	defer closeAudit()

	ingester := pipeline.NewReceiptIngester(pipeline.IngestDeps{
		Admin:     adminClient,
		Media:     mediaClient,
		Publisher: publisher,
		Extractor: extractor,
		Model:     cfg.Model.Name,
		Audit:     audit,
	}, log)

	verifier := gateway.NewVerifier(gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, httpClient))
	settler := settlement.NewService(verifier, adminClient, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore).WithLogger(log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Jobs.Workers).Msg("Starting payment verification workers")
	if err := jobQueue.Start(workerCtx, settler.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	go pruneJobs(workerCtx, jobStore, log)

	handler := api.NewRouter(api.Deps{
		Ingester:   ingester,
		Extractor:  extractor,
		Settler:    settler,
		Publisher:  jobQueue,
		JobStore:   jobStore,
		MaxRetries: cfg.Jobs.MaxRetries,
		APIKey:     cfg.Server.APIKey,
		Logger:     log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

// pruneJobs drops finished jobs older than jobRetention once per jobPruneInterval.
func pruneJobs(ctx context.Context, store *inmemory.Store, log zerolog.Logger) {
	ticker := time.NewTicker(jobPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(ctx, time.Now().Add(-jobRetention)); n > 0 {
				log.Debug().Int("pruned", n).Msg("Pruned finished jobs")
			}
		}
	}
}

// newAuditRecorder returns the BigQuery audit repository when configured, or a no-op recorder.
func newAuditRecorder(ctx context.Context, cfg config.AuditConfig, log zerolog.Logger) (pipeline.AuditRecorder, func()) {
	if !cfg.Enabled() {
		log.Info().Msg("Extraction audit disabled")
		return pipeline.NoopAuditRecorder{}, func() {}
	}

	repo, err := infraBQ.NewExtractionAuditRepository(ctx, cfg.Project, cfg.Dataset, cfg.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction audit repository")
	}
	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Str("dataset", cfg.Dataset).Msg("Failed to ensure extraction audit table")
	}

	log.Info().Str("project", cfg.Project).Str("dataset", cfg.Dataset).Msg("Extraction audit enabled")
	return repo, func() {
		if err := repo.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close extraction audit repository")
		}
	}
}
