package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/config"
	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/gcsuploader"
	infraBQ "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/dvloznov/receipt-validator/internal/rendition"
	"github.com/dvloznov/receipt-validator/internal/settlement"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log)
	case "render":
		runRender(log)
	case "publish":
		runPublish(log)
	case "verify":
		runVerify(log)
	case "settle":
		runSettle(log)
	case "audit-init":
		runAuditInit(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Validator CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze      Extract a transaction record from a local receipt image")
	fmt.Println("  render       Write the thumbnail and full-size renditions of an image locally")
	fmt.Println("  publish      Upload the renditions of a local image to object storage")
	fmt.Println("  verify       Look up a payment at the gateway without touching any request")
	fmt.Println("  settle       Verify a payment and write the result to its request record")
	fmt.Println("  audit-init   Create the BigQuery extraction audit table")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(log zerolog.Logger) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(config.DefaultName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg, logger.WithLevel(log, cfg.Logging.Level)
}

func readFile(log zerolog.Logger, path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
	}
	return data
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runAnalyze(log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a receipt image")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	cfg, log := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := pipeline.NewGeminiClient(ctx, cfg.Model.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	extractor := pipeline.NewGeminiReceiptExtractor(client, cfg.Model.Name)

	envelope := pipeline.AnalyzeImage(ctx, extractor, readFile(log, *filePath))
	printJSON(envelope)

	if envelope.Success {
		report := pipeline.CheckCompleteness(envelope.Data)
		fmt.Printf("\nCompleteness: %.0f%%", report.Completeness)
		if len(report.MissingFields) > 0 {
			fmt.Printf(" (missing: %s)", strings.Join(report.MissingFields, ", "))
		}
		fmt.Println()
	}
}

func runRender(log zerolog.Logger) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a source image")
	outDir := fs.String("out", ".", "Directory for the rendered files")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	small, original, err := rendition.Render(readFile(log, *filePath))
	if err != nil {
		log.Fatal().Err(err).Msg("Render failed")
	}

	base := strings.TrimSuffix(filepath.Base(*filePath), filepath.Ext(*filePath))
	for suffix, data := range map[string][]byte{"small": small, "original": original} {
		path := filepath.Join(*outDir, base+"-"+suffix+".jpg")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write rendition")
		}
		fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
	}
}

func runPublish(log zerolog.Logger) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a source image")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	cfg, log := loadConfig(log)

	ctx := logger.WithContext(context.Background(), log)

	client, err := gcsuploader.NewClient(ctx, cfg.Storage.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer client.Close()

	store := gcsuploader.NewStore(client, cfg.Storage.Bucket)
	publisher := rendition.NewPublisher(store, cfg.Storage.CDNBaseURL)

	urls, err := publisher.Publish(ctx, readFile(log, *filePath))
	if err != nil {
		log.Fatal().Err(err).Msg("Publish failed")
	}

	cdnBase := strings.TrimRight(cfg.Storage.CDNBaseURL, "/") + "/"
	fmt.Printf("Small:    %s (%s)\n", urls.Small, store.URI(strings.TrimPrefix(urls.Small, cdnBase)))
	fmt.Printf("Original: %s (%s)\n", urls.Original, store.URI(strings.TrimPrefix(urls.Original, cdnBase)))
}

func runVerify(log zerolog.Logger) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	paymentID := fs.String("id", "", "Gateway payment id or COELSA id")
	channel := fs.String("channel", gateway.ChannelMercadoPago, "Payment channel (mercadopago or coelsa)")
	fs.Parse(os.Args[2:])

	if *paymentID == "" {
		log.Fatal().Msg("Error: -id is required")
	}

	cfg, log := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}
	verifier := gateway.NewVerifier(gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, httpClient))

	payment, err := verifier.Verify(ctx, *paymentID, *channel)
	if err != nil {
		log.Fatal().Err(err).Str("payment_id", *paymentID).Msg("Verification failed")
	}

	printJSON(payment.Raw)
	fmt.Printf("\nStatus: %s (%s)\n", payment.Status, domain.StatusLabel(payment.Status))
}

func runSettle(log zerolog.Logger) {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	paymentID := fs.String("id", "", "Gateway payment id or COELSA id")
	requestID := fs.String("request-id", "", "Request record id to update")
	channel := fs.String("channel", gateway.ChannelMercadoPago, "Payment channel (mercadopago or coelsa)")
	fs.Parse(os.Args[2:])

	if *paymentID == "" || *requestID == "" {
		log.Fatal().Msg("Usage: cli settle -id ID -request-id ID [-channel coelsa]")
	}

	cfg, log := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}
	verifier := gateway.NewVerifier(gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, httpClient))
	adminClient := admin.NewClient(cfg.Admin.BaseURL, httpClient, admin.NewStageTracker(admin.DefaultTrackerCapacity), log)

	outcome, err := settlement.NewService(verifier, adminClient, log).Settle(ctx, *paymentID, *requestID, *channel)
	if err != nil {
		log.Fatal().Err(err).Msg("Settlement failed")
	}

	printJSON(outcome)
}

func runAuditInit(log zerolog.Logger) {
	fs := flag.NewFlagSet("audit-init", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(log)
	if !cfg.Audit.Enabled() {
		log.Fatal().Msg("BIGQUERY_PROJECT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := infraBQ.NewExtractionAuditRepository(ctx, cfg.Audit.Project, cfg.Audit.Dataset, cfg.Audit.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction audit repository")
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction audit table")
	}

	fmt.Printf("Extraction audit table ready in %s.%s\n", cfg.Audit.Project, cfg.Audit.Dataset)
}
