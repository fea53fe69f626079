package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/api/middleware"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/dvloznov/receipt-validator/internal/settlement"
	"github.com/rs/zerolog"
)

// Settler verifies a payment and writes the result to its request record.
type Settler interface {
	Settle(ctx context.Context, paymentID, requestID, channel string) (*settlement.Outcome, error)
}

// PaymentsHandler handles payment status lookups and gateway callbacks.
type PaymentsHandler struct {
	settler    Settler
	publisher  jobs.Publisher
	maxRetries int
	log        zerolog.Logger
}

// NewPaymentsHandler creates a new payments handler.
func NewPaymentsHandler(settler Settler, publisher jobs.Publisher, maxRetries int, log zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		settler:    settler,
		publisher:  publisher,
		maxRetries: maxRetries,
		log:        log,
	}
}

// paymentParams are shared by the synchronous and the queued flows.
type paymentParams struct {
	CoelsaID  string `json:"coelsaId"`
	RequestID string `json:"requestId"`
	Channel   string `json:"channel"`
}

// validate defaults the channel and returns a user-facing message for bad input.
func (p *paymentParams) validate() string {
	if p.Channel == "" {
		p.Channel = gateway.ChannelMercadoPago
	}
	switch {
	case p.CoelsaID == "":
		return "Coelsa ID is required"
	case p.RequestID == "":
		return "Request ID is required"
	case !gateway.ValidChannel(p.Channel):
		return "Invalid channel"
	}
	return ""
}

// Status handles GET /api/payments?coelsaId=&requestId=&channel=
func (h *PaymentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := paymentParams{
		CoelsaID:  query.Get("coelsaId"),
		RequestID: query.Get("requestId"),
		Channel:   query.Get("channel"),
	}
	if msg := params.validate(); msg != "" {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, msg, "", CodeValidation)
		return
	}

	outcome, err := h.settler.Settle(r.Context(), params.CoelsaID, params.RequestID, params.Channel)
	if err != nil {
		message, code := classifySettleError(err)
		h.log.Error().
			Err(err).
			Str("payment_id", params.CoelsaID).
			Str("request_id", params.RequestID).
			Str("channel", params.Channel).
			Str("code", code).
			Msg(message)
		middleware.WriteErrorDetails(w, http.StatusInternalServerError, message, err.Error(), code)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, outcome)
}

// maxNotifyBody bounds a payment callback payload.
const maxNotifyBody = 64 << 10

// Notify handles POST /api/payments/notify
func (h *PaymentsHandler) Notify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNotifyBody)
	var params paymentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error(), CodeValidation)
		return
	}
	if msg := params.validate(); msg != "" {
		middleware.WriteErrorDetails(w, http.StatusBadRequest, msg, "", CodeValidation)
		return
	}

	job := &jobs.VerifyPaymentJob{
		PaymentID:  params.CoelsaID,
		RequestID:  params.RequestID,
		Channel:    params.Channel,
		MaxRetries: h.maxRetries,
	}

	if err := h.publisher.PublishVerifyPayment(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("request_id", params.RequestID).Msg("Failed to enqueue verification job")
		middleware.WriteErrorDetails(w, http.StatusInternalServerError, "Failed to enqueue verification job", err.Error(), CodeInternal)
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("payment_id", params.CoelsaID).
		Str("request_id", params.RequestID).
		Msg("Verification job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"request_id": params.RequestID,
		"status":     string(job.Status),
	})
}

func classifySettleError(err error) (message, code string) {
	switch {
	case errors.Is(err, admin.ErrReconciliationWrite):
		return "Failed to update request", CodeReconciliationWrite
	case errors.Is(err, gateway.ErrNotFound):
		return "Payment not found", CodeNotFound
	default:
		return "Failed to validate payment", CodeGatewayLookup
	}
}
