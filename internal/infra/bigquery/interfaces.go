package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

const (
	// DefaultDatasetID is the dataset holding audit tables.
	DefaultDatasetID = "receipts"

	// DefaultExtractionsTable is the extraction audit table.
	DefaultExtractionsTable = "receipt_extractions"
)

// ExtractionAuditRepository is the BigQuery implementation of the extraction
// audit log. It holds a shared BigQuery client.
type ExtractionAuditRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewExtractionAuditRepository creates a repository writing to projectID.datasetID.tableID.
func NewExtractionAuditRepository(ctx context.Context, projectID, datasetID, tableID string, opts ...option.ClientOption) (*ExtractionAuditRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExtractionAuditRepository: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	if tableID == "" {
		tableID = DefaultExtractionsTable
	}
	return &ExtractionAuditRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *ExtractionAuditRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordExtraction inserts one extraction audit row.
func (r *ExtractionAuditRepository) RecordExtraction(ctx context.Context, row *ExtractionRunRow) error {
	return InsertExtractionRunWithClient(ctx, r.client, r.tableRef(), row)
}

// EnsureTable creates the audit table when it does not exist yet.
func (r *ExtractionAuditRepository) EnsureTable(ctx context.Context) error {
	return EnsureExtractionTableWithClient(ctx, r.client, r.datasetID, r.tableID)
}

func (r *ExtractionAuditRepository) tableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, r.tableID)
}
