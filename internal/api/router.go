// Package api assembles the HTTP surface of the receipt validator.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/receipt-validator/internal/api/handlers"
	"github.com/dvloznov/receipt-validator/internal/api/middleware"
	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Ingester   handlers.Ingester
	Extractor  pipeline.ReceiptExtractor
	Settler    handlers.Settler
	Publisher  jobs.Publisher
	JobStore   jobs.JobStore
	MaxRetries int
	APIKey     string
	Logger     zerolog.Logger
}

// NewRouter builds the route table wrapped in the middleware chain.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger

	receiptsHandler := handlers.NewReceiptsHandler(deps.Ingester, log)
	imageHandler := handlers.NewImageHandler(deps.Extractor, log)
	paymentsHandler := handlers.NewPaymentsHandler(deps.Settler, deps.Publisher, deps.MaxRetries, log)
	jobsHandler := handlers.NewJobsHandler(deps.JobStore, log)

	mux := http.NewServeMux()

	// Receipt endpoints
	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Ingest(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/image", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			imageHandler.Analyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Payment endpoints
	mux.HandleFunc("/api/payments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			paymentsHandler.Status(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/payments/notify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			paymentsHandler.Notify(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(deps.APIKey)(mux),
				),
			),
		),
	)
}
