package admin

import (
	"encoding/json"
	"time"

	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/shopspring/decimal"
)

// Stage orders the writes a request record goes through.
type Stage int

const (
	StageExtraction Stage = iota + 1
	StageSettlement
)

const (
	actorSystem = "receipt-validator"

	channelLabelMercadoPago = "Mercado Pago"
	channelLabelCoelsa      = "Coelsa"
)

// Receipt holds the published rendition URLs of a receipt image.
type Receipt struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// GatewayValidation summarizes a gateway confirmation on the request record.
type GatewayValidation struct {
	Status  string    `json:"status"`
	Date    time.Time `json:"date"`
	Payer   string    `json:"payer"`
	Details string    `json:"details"`
}

// RequestPatch is a partial update of a request record.
// History carries only the entries to append, never the full log.
type RequestPatch struct {
	Status          string             `json:"status,omitempty"`
	RequestID       string             `json:"requestId,omitempty"`
	Amount          *decimal.Decimal   `json:"amount,omitempty"`
	Platform        *string            `json:"platform,omitempty"`
	OperationNumber *string            `json:"operationNumber,omitempty"`
	CoelsaID        *string            `json:"coelsaId,omitempty"`
	Channel         string             `json:"channel,omitempty"`
	PaymentDate     string             `json:"paymentDate,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Receipt         *Receipt           `json:"receipt,omitempty"`
	GPTAnalysis     json.RawMessage    `json:"gptAnalysis,omitempty"`
	MPValidation    *GatewayValidation `json:"mpValidation,omitempty"`
	Error           string             `json:"error,omitempty"`

	History   []domain.HistoryEntry `json:"history"`
	UpdatedAt time.Time             `json:"updatedAt"`

	stage Stage
}

// Stage reports which stage of the record lifecycle the patch belongs to.
func (p *RequestPatch) Stage() Stage {
	return p.stage
}

// ExtractionSucceededPatch marks the record validated with the extracted fields.
// analysis is embedded verbatim for audit.
func ExtractionSucceededPatch(record *domain.TransactionRecord, analysis json.RawMessage, receipt Receipt) *RequestPatch {
	p := &RequestPatch{
		Status:          domain.RequestStatusValidated,
		Platform:        record.Platform,
		OperationNumber: record.OperationNumber,
		CoelsaID:        record.GatewayID,
		Receipt:         &receipt,
		GPTAnalysis:     auditPayload(analysis),
		History: []domain.HistoryEntry{{
			Date:   time.Now().UTC(),
			Action: domain.ActionReceiptValidated,
			Actor:  actorSystem,
		}},
		stage: StageExtraction,
	}
	if record.Amount.Valid {
		amount := record.Amount.Decimal
		p.Amount = &amount
	}
	return p
}

// ExtractionFailedPatch marks the record rejected with a diagnostic error.
func ExtractionFailedPatch(reason string) *RequestPatch {
	return &RequestPatch{
		Status: domain.RequestStatusRejected,
		Error:  reason,
		History: []domain.HistoryEntry{{
			Date:    time.Now().UTC(),
			Action:  domain.ActionReceiptRejected,
			Actor:   actorSystem,
			Details: map[string]string{"error": reason},
		}},
		stage: StageExtraction,
	}
}

// PaymentApprovedPatch records a gateway-approved payment on requestID.
// The full gateway payload is kept in the history entry.
func PaymentApprovedPatch(requestID, channel, paymentID string, payment *domain.GatewayPayment) *RequestPatch {
	now := time.Now().UTC()
	amount := payment.TransactionAmount
	id := paymentID
	return &RequestPatch{
		Status:      payment.Status,
		RequestID:   requestID,
		Amount:      &amount,
		CoelsaID:    &id,
		Channel:     channel,
		PaymentDate: payment.DateApproved,
		Notes:       "Request updated with gateway confirmation. " + channelLabel(channel),
		MPValidation: &GatewayValidation{
			Status:  domain.RequestStatusValidated,
			Date:    now,
			Payer:   payment.Payer.Email,
			Details: "Payment validated",
		},
		History: []domain.HistoryEntry{{
			Date:    now,
			Action:  domain.ActionPaymentProcessed,
			Actor:   payment.Payer.Email,
			Details: gatewayPayload(payment),
		}},
		stage: StageSettlement,
	}
}

// PaymentRejectedPatch records a gateway payment that did not settle.
func PaymentRejectedPatch(channel string, payment *domain.GatewayPayment) *RequestPatch {
	return &RequestPatch{
		Status:  payment.Status,
		Channel: channel,
		Notes:   "Request updated with gateway response.",
		History: []domain.HistoryEntry{{
			Date:    time.Now().UTC(),
			Action:  domain.ActionPaymentRejected,
			Actor:   payment.Payer.Email,
			Details: gatewayPayload(payment),
		}},
		stage: StageSettlement,
	}
}

func channelLabel(channel string) string {
	if channel == "coelsa" {
		return channelLabelCoelsa
	}
	return channelLabelMercadoPago
}

func gatewayPayload(p *domain.GatewayPayment) interface{} {
	if len(p.Raw) > 0 && json.Valid(p.Raw) {
		return p.Raw
	}
	return p
}

// auditPayload keeps valid JSON as is and quotes anything else.
func auditPayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}
