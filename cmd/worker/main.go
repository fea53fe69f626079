package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/config"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/dvloznov/receipt-validator/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/dvloznov/receipt-validator/internal/settlement"
)

const pollInterval = 500 * time.Millisecond

// Worker settles a batch of payments read as CSV rows: paymentId,requestId[,channel].
func main() {
	filePath := flag.String("file", "", "CSV file with paymentId,requestId[,channel] rows (default stdin)")
	flag.Parse()

	// Initialize logger
	log := logger.New()

	cfg, err := config.Load(config.DefaultName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.WithLevel(log, cfg.Logging.Level)

	var in io.Reader = os.Stdin
	if *filePath != "" {
		f, err := os.Open(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to open batch file")
		}
		defer f.Close()
		in = f
	}

	batch, err := parseBatch(in, cfg.Jobs.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read batch")
	}
	if len(batch) == 0 {
		log.Warn().Msg("Empty batch, nothing to settle")
		return
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}
	verifier := gateway.NewVerifier(gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, httpClient))
	adminClient := admin.NewClient(cfg.Admin.BaseURL, httpClient, admin.NewStageTracker(admin.DefaultTrackerCapacity), log)
	settler := settlement.NewService(verifier, adminClient, log)

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore).WithLogger(log)

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := jobQueue.Start(ctx, settler.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("jobs", len(batch)).Int("workers", cfg.Jobs.Workers).Msg("Settling batch")

	// Repeated rows coalesce into one job.
	enqueued := make(map[string]struct{}, len(batch))
	for _, job := range batch {
		if err := jobQueue.PublishVerifyPayment(ctx, job); err != nil {
			log.Error().Err(err).Str("payment_id", job.PaymentID).Msg("Failed to enqueue job")
			continue
		}
		enqueued[job.JobID] = struct{}{}
	}

	results, err := waitForJobs(ctx, jobStore, len(enqueued))
	if err != nil {
		log.Error().Err(err).Msg("Batch interrupted")
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	failed := 0
	for _, job := range results {
		if job.Status == jobs.JobStatusFailed {
			failed++
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", job.PaymentID, job.RequestID, job.Status, job.PaymentStatus, job.Error)
	}

	log.Info().Int("total", len(results)).Int("failed", failed).Msg("Batch finished")
	if failed > 0 {
		os.Exit(1)
	}
}

// parseBatch reads paymentId,requestId[,channel] rows. Blank lines and rows starting with # are skipped.
func parseBatch(r io.Reader, maxRetries int) ([]*jobs.VerifyPaymentJob, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var batch []*jobs.VerifyPaymentJob
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 2 || len(record) > 3 {
			return nil, fmt.Errorf("line %d: expected 2 or 3 fields, got %d", line, len(record))
		}

		job := &jobs.VerifyPaymentJob{
			PaymentID:  strings.TrimSpace(record[0]),
			RequestID:  strings.TrimSpace(record[1]),
			Channel:    gateway.ChannelMercadoPago,
			MaxRetries: maxRetries,
		}
		if len(record) == 3 && strings.TrimSpace(record[2]) != "" {
			job.Channel = strings.TrimSpace(record[2])
		}
		if job.PaymentID == "" || job.RequestID == "" {
			return nil, fmt.Errorf("line %d: payment id and request id are required", line)
		}
		if !gateway.ValidChannel(job.Channel) {
			return nil, fmt.Errorf("line %d: %w: %s", line, gateway.ErrUnknownChannel, job.Channel)
		}
		batch = append(batch, job)
	}
}

// waitForJobs polls the store until every job reached a final status.
func waitForJobs(ctx context.Context, store jobs.JobStore, total int) ([]*jobs.VerifyPaymentJob, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		list, err := store.ListJobs(ctx, jobs.JobFilter{})
		if err != nil {
			return nil, err
		}
		if len(list) >= total && allFinished(list) {
			return list, nil
		}

		select {
		case <-ctx.Done():
			return list, ctx.Err()
		case <-ticker.C:
		}
	}
}

func allFinished(list []*jobs.VerifyPaymentJob) bool {
	for _, job := range list {
		if job.Status != jobs.JobStatusCompleted && job.Status != jobs.JobStatusFailed {
			return false
		}
	}
	return true
}
