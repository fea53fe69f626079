package pipeline

import (
	"encoding/json"
	"time"

	"github.com/dvloznov/receipt-validator/internal/domain"
)

// ExtractionResult is a successful extraction.
type ExtractionResult struct {
	Record      *domain.TransactionRecord
	RawOutput   string // cleaned model JSON
	Model       string
	ExtractedAt time.Time
}

// RawJSON returns the model output for embedding in audit payloads.
func (r *ExtractionResult) RawJSON() json.RawMessage {
	return json.RawMessage(r.RawOutput)
}

// ExtractionError is a failed extraction. Its message is the underlying cause.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func newExtractionError(err error) *ExtractionError {
	return &ExtractionError{Reason: err.Error(), Err: err}
}

// AnalysisEnvelope is the outcome of a standalone image analysis.
type AnalysisEnvelope struct {
	Success     bool                      `json:"success"`
	Data        *domain.TransactionRecord `json:"data,omitempty"`
	Error       string                    `json:"error,omitempty"`
	ExtractedAt time.Time                 `json:"extractedAt"`
}
