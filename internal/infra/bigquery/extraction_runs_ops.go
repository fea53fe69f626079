package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// InsertExtractionRunWithClient inserts row into table using the provided client.
// Uses DML INSERT to avoid streaming buffer issues.
func InsertExtractionRunWithClient(ctx context.Context, client *bigquery.Client, table string, row *ExtractionRunRow) error {
	q := client.Query(`
		INSERT INTO ` + table + ` (
			run_id, request_id, model_name, status, error_message,
			raw_json, gateway_id, completeness,
			extracted_on, started_ts, finished_ts
		)
		VALUES (
			@run_id, @request_id, @model_name, @status, @error_message,
			@raw_json, @gateway_id, @completeness,
			@extracted_on, @started_ts, @finished_ts
		)
	`)
	q.Parameters = extractionRunParams(row)

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertExtractionRun: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertExtractionRun: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertExtractionRun: job error: %w", err)
	}

	return nil
}

func extractionRunParams(row *ExtractionRunRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "request_id", Value: row.RequestID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "raw_json", Value: row.RawJSON},
		{Name: "gateway_id", Value: row.GatewayID},
		{Name: "completeness", Value: row.Completeness},
		{Name: "extracted_on", Value: row.ExtractedOn},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "finished_ts", Value: row.FinishedTS},
	}
}

// ExtractionRunSchema is the table schema inferred from ExtractionRunRow.
func ExtractionRunSchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(ExtractionRunRow{})
	if err != nil {
		return nil, fmt.Errorf("ExtractionRunSchema: %w", err)
	}
	return schema, nil
}

// EnsureExtractionTableWithClient creates datasetID.tableID, partitioned by
// extracted_on, unless it already exists.
func EnsureExtractionTableWithClient(ctx context.Context, client *bigquery.Client, datasetID, tableID string) error {
	table := client.Dataset(datasetID).Table(tableID)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureExtractionTable: reading metadata: %w", err)
	}

	schema, err := ExtractionRunSchema()
	if err != nil {
		return err
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "extracted_on",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureExtractionTable: creating table: %w", err)
	}
	return nil
}
