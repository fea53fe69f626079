package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/receipt-validator/internal/api/middleware"
	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxWebhookBody bounds the inbound messaging webhook payload.
const maxWebhookBody = 1 << 20

// MessageReceiptProcessed is returned after a receipt went through every stage.
const MessageReceiptProcessed = "Receipt processed successfully"

// Ingester runs the receipt ingest flow.
type Ingester interface {
	Ingest(ctx context.Context, phone, imageRef string, body json.RawMessage) (*pipeline.PipelineState, error)
}

// ReceiptsHandler handles receipt ingest webhooks.
type ReceiptsHandler struct {
	ingester Ingester
	log      zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(ingester Ingester, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		ingester: ingester,
		log:      log,
	}
}

// IngestResponse is the body of a successful ingest.
type IngestResponse struct {
	Message         string                    `json:"message"`
	Data            *domain.TransactionRecord `json:"data"`
	Amount          decimal.NullDecimal       `json:"amount"`
	Date            *string                   `json:"date"`
	Sender          *string                   `json:"sender"`
	SenderCUIT      *string                   `json:"sender_cuit"`
	SenderCVU       *string                   `json:"sender_cvu"`
	OperationNumber *string                   `json:"operationNumber"`
	RequestID       string                    `json:"requestId"`
}

// Ingest handles POST /api/receipts?phone=
func (h *ReceiptsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error(), CodeValidation)
		return
	}

	var req struct {
		Image string `json:"image"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			middleware.WriteErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error(), CodeValidation)
			return
		}
	}

	if phone == "" {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, "Phone number is required", "", CodeValidation)
		return
	}
	if req.Image == "" {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, "Image is required", "", CodeValidation)
		return
	}

	state, err := h.ingester.Ingest(r.Context(), phone, req.Image, json.RawMessage(body))
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	record := state.Extraction.Record
	resp := IngestResponse{
		Message:         MessageReceiptProcessed,
		Data:            record,
		Amount:          record.Amount,
		Date:            record.Date,
		OperationNumber: record.OperationNumber,
		RequestID:       state.RequestID,
	}
	if record.Sender != nil {
		resp.Sender = record.Sender.Name
		resp.SenderCUIT = record.Sender.TaxID
		resp.SenderCVU = record.Sender.AccountRef
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *ReceiptsHandler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		h.log.Error().
			Err(err).
			Str("http_request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("Receipt ingest failed")
		middleware.WriteErrorDetails(w, http.StatusInternalServerError, "Failed to process receipt", err.Error(), CodeInternal)
		return
	}

	failure := failureForStage(stageErr.Stage)
	h.log.Error().
		Err(stageErr.Err).
		Str("stage", string(stageErr.Stage)).
		Str("code", failure.code).
		Str("http_request_id", middleware.RequestIDFromContext(r.Context())).
		Msg(failure.message)
	middleware.WriteErrorDetails(w, http.StatusInternalServerError, failure.message, stageErr.Err.Error(), failure.code)
}
