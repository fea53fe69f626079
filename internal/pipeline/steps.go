package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-validator/internal/admin"
	infra "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/dvloznov/receipt-validator/internal/media"
	"github.com/dvloznov/receipt-validator/internal/rendition"
	"github.com/google/uuid"
)

// PipelineStep represents a single step in the ingest pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Phone       string
	ImageRef    string
	WebhookBody json.RawMessage

	RequestID  string
	Image      []byte
	Renditions *rendition.URLs
	Extraction *ExtractionResult

	extractStarted time.Time
}

// StageError reports the stage at which the ingest flow stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Step 1: CreateRequestStep registers the webhook with the administration service.
type CreateRequestStep struct {
	Admin admin.Reconciler
}

func (s *CreateRequestStep) Execute(ctx context.Context, state *PipelineState) error {
	requestID, err := s.Admin.CreateRequest(ctx, state.Phone, state.WebhookBody)
	if err != nil {
		return &StageError{Stage: StageCreate, Err: err}
	}
	state.RequestID = requestID
	log := logger.FromContext(ctx)
	log.Info().Str("request_id", requestID).Msg("request created")
	return nil
}

// Step 2: DownloadImageStep fetches the image bytes from the media store.
type DownloadImageStep struct {
	Media media.Downloader
	Admin admin.Reconciler
}

func (s *DownloadImageStep) Execute(ctx context.Context, state *PipelineState) error {
	image, err := s.Media.Download(ctx, state.ImageRef)
	if err != nil {
		rejectRequest(ctx, s.Admin, state, err)
		return &StageError{Stage: StageDownload, Err: err}
	}
	state.Image = image
	log := logger.FromContext(ctx)
	log.Debug().Int("bytes", len(image)).Msg("image downloaded")
	return nil
}

// Step 3: PublishImageStep uploads the thumbnail and full-size renditions.
type PublishImageStep struct {
	Publisher ImagePublisher
	Admin     admin.Reconciler
}

func (s *PublishImageStep) Execute(ctx context.Context, state *PipelineState) error {
	urls, err := s.Publisher.Publish(ctx, state.Image)
	if err != nil {
		var pubErr *rendition.PublishError
		if errors.As(err, &pubErr) && pubErr.Partial() {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Msg("one rendition uploaded, the other failed")
		}
		rejectRequest(ctx, s.Admin, state, err)
		return &StageError{Stage: StagePublish, Err: err}
	}
	state.Renditions = urls
	return nil
}

// Step 4: ExtractReceiptStep runs the receipt extractor on the image.
type ExtractReceiptStep struct {
	Extractor ReceiptExtractor
	Model     string // recorded on failed audit rows
	Admin     admin.Reconciler
	Audit     AuditRecorder
}

func (s *ExtractReceiptStep) Execute(ctx context.Context, state *PipelineState) error {
	started := time.Now()
	state.extractStarted = started
	result, err := s.Extractor.Extract(ctx, state.Image)
	if err != nil {
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			extErr = newExtractionError(err)
		}
		recordAudit(ctx, s.Audit, failedRun(state.RequestID, s.Model, extErr, started))
		rejectRequest(ctx, s.Admin, state, extErr)
		return &StageError{Stage: StageExtract, Err: extErr}
	}
	state.Extraction = result
	return nil
}

// Step 5: RecordExtractionStep writes the extraction audit row. Never fails.
type RecordExtractionStep struct {
	Audit AuditRecorder
}

func (s *RecordExtractionStep) Execute(ctx context.Context, state *PipelineState) error {
	recordAudit(ctx, s.Audit, succeededRun(state.RequestID, state.Extraction, state.extractStarted))
	return nil
}

// Step 6: ApplyExtractionStep marks the request validated with the extracted fields.
type ApplyExtractionStep struct {
	Admin admin.Reconciler
}

func (s *ApplyExtractionStep) Execute(ctx context.Context, state *PipelineState) error {
	receipt := admin.Receipt{}
	if state.Renditions != nil {
		receipt.URL = state.Renditions.Original
		receipt.ThumbnailURL = state.Renditions.Small
	}
	patch := admin.ExtractionSucceededPatch(state.Extraction.Record, state.Extraction.RawJSON(), receipt)
	if err := s.Admin.UpdateRequest(ctx, state.RequestID, patch); err != nil {
		return &StageError{Stage: StageUpdate, Err: err}
	}
	log := logger.FromContext(ctx)
	log.Info().Str("request_id", state.RequestID).Msg("request validated")
	return nil
}

// rejectRequest marks the request rejected after a failed stage. Best effort.
func rejectRequest(ctx context.Context, reconciler admin.Reconciler, state *PipelineState, cause error) {
	if reconciler == nil || state.RequestID == "" {
		return
	}
	log := logger.FromContext(ctx)
	if err := reconciler.UpdateRequest(ctx, state.RequestID, admin.ExtractionFailedPatch(cause.Error())); err != nil {
		log.Error().Err(err).Str("request_id", state.RequestID).Msg("failed to mark request rejected")
		return
	}
	log.Info().Str("request_id", state.RequestID).Msg("request rejected")
}

func recordAudit(ctx context.Context, audit AuditRecorder, row *infra.ExtractionRunRow) {
	if audit == nil {
		return
	}
	if err := audit.RecordExtraction(ctx, row); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", row.RunID).Msg("failed to record extraction audit row")
	}
}

func succeededRun(requestID string, result *ExtractionResult, started time.Time) *infra.ExtractionRunRow {
	if started.IsZero() {
		started = result.ExtractedAt
	}
	report := CheckCompleteness(result.Record)
	row := &infra.ExtractionRunRow{
		RunID:        uuid.NewString(),
		RequestID:    nullString(requestID),
		ModelName:    result.Model,
		Status:       RunStatusSuccess,
		RawJSON:      bigquery.NullJSON{JSONVal: result.RawOutput, Valid: result.RawOutput != ""},
		Completeness: bigquery.NullFloat64{Float64: report.Completeness, Valid: true},
		ExtractedOn:  civil.DateOf(result.ExtractedAt),
		StartedTS:    started.UTC(),
		FinishedTS:   result.ExtractedAt,
	}
	if result.Record.GatewayID != nil {
		row.GatewayID = nullString(*result.Record.GatewayID)
	}
	return row
}

func failedRun(requestID, model string, cause error, started time.Time) *infra.ExtractionRunRow {
	if model == "" {
		model = DefaultModelName
	}
	msg := truncateUTF8(cause.Error(), maxAuditErrorLen)
	finished := time.Now().UTC()
	return &infra.ExtractionRunRow{
		RunID:        uuid.NewString(),
		RequestID:    nullString(requestID),
		ModelName:    model,
		Status:       RunStatusFailed,
		ErrorMessage: nullString(msg),
		ExtractedOn:  civil.DateOf(finished),
		StartedTS:    started.UTC(),
		FinishedTS:   finished,
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
