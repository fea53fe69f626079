package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ExtractionRunRow is one extraction attempt of a receipt image.
type ExtractionRunRow struct {
	RunID     string              `bigquery:"run_id"`     // REQUIRED
	RequestID bigquery.NullString `bigquery:"request_id"` // NULLABLE, empty for standalone analysis

	ModelName    string              `bigquery:"model_name"`    // REQUIRED
	Status       string              `bigquery:"status"`        // REQUIRED, SUCCESS or FAILED
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	RawJSON      bigquery.NullJSON    `bigquery:"raw_json"`     // NULLABLE
	GatewayID    bigquery.NullString  `bigquery:"gateway_id"`   // NULLABLE
	Completeness bigquery.NullFloat64 `bigquery:"completeness"` // NULLABLE, 0-100

	ExtractedOn civil.Date `bigquery:"extracted_on"` // REQUIRED, partition column
	StartedTS   time.Time  `bigquery:"started_ts"`   // REQUIRED
	FinishedTS  time.Time  `bigquery:"finished_ts"`  // REQUIRED
}
