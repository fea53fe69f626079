package pipeline

import (
	"context"

	infra "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/rendition"
)

// ReceiptExtractor turns a receipt image into a TransactionRecord.
// This interface enables mocking and testing of the model call.
type ReceiptExtractor interface {
	// Extract returns a complete record or an *ExtractionError, never a partial record.
	Extract(ctx context.Context, image []byte) (*ExtractionResult, error)
}

// ImagePublisher publishes display renditions of a receipt image.
type ImagePublisher interface {
	Publish(ctx context.Context, raw []byte) (*rendition.URLs, error)
}

// AuditRecorder stores one row per extraction attempt.
type AuditRecorder interface {
	RecordExtraction(ctx context.Context, row *infra.ExtractionRunRow) error
}

// NoopAuditRecorder discards audit rows. Used when no audit table is configured.
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) RecordExtraction(ctx context.Context, row *infra.ExtractionRunRow) error {
	return nil
}
