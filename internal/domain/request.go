package domain

import "time"

// Request record statuses set by this service.
const (
	RequestStatusValidated = "validated"
	RequestStatusRejected  = "rejected"
)

// History actions appended to request records.
const (
	ActionReceiptValidated = "receipt validated"
	ActionReceiptRejected  = "receipt rejected"
	ActionPaymentProcessed = "payment processed"
	ActionPaymentRejected  = "payment rejected"
)

// HistoryEntry is one append-only audit entry of a request record.
type HistoryEntry struct {
	Date    time.Time   `json:"date"`
	Action  string      `json:"action"`
	Actor   string      `json:"actor"`
	Details interface{} `json:"details,omitempty"`
}
