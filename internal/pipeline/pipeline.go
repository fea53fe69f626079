package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/dvloznov/receipt-validator/internal/media"
	"github.com/rs/zerolog"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// IngestDeps are the collaborators of the receipt ingest flow.
type IngestDeps struct {
	Admin     admin.Reconciler
	Media     media.Downloader
	Publisher ImagePublisher
	Extractor ReceiptExtractor
	Model     string
	Audit     AuditRecorder
}

// NewReceiptIngestionPipeline creates the standard 6-step receipt ingest pipeline:
// create request, download, publish, extract, audit, update request.
func NewReceiptIngestionPipeline(deps IngestDeps) *Pipeline {
	audit := deps.Audit
	if audit == nil {
		audit = NoopAuditRecorder{}
	}
	return NewPipeline(
		&CreateRequestStep{Admin: deps.Admin},
		&DownloadImageStep{Media: deps.Media, Admin: deps.Admin},
		&PublishImageStep{Publisher: deps.Publisher, Admin: deps.Admin},
		&ExtractReceiptStep{Extractor: deps.Extractor, Model: deps.Model, Admin: deps.Admin, Audit: audit},
		&RecordExtractionStep{Audit: audit},
		&ApplyExtractionStep{Admin: deps.Admin},
	)
}

// ReceiptIngester runs the ingest pipeline for one inbound webhook at a time.
type ReceiptIngester struct {
	pipeline *Pipeline
	logger   zerolog.Logger
}

// NewReceiptIngester creates a ReceiptIngester over the standard pipeline.
func NewReceiptIngester(deps IngestDeps, log zerolog.Logger) *ReceiptIngester {
	return &ReceiptIngester{
		pipeline: NewReceiptIngestionPipeline(deps),
		logger:   log,
	}
}

// Ingest processes one receipt: every failure is a *StageError, and the
// returned state holds whatever was produced before it.
func (r *ReceiptIngester) Ingest(ctx context.Context, phone, imageRef string, body json.RawMessage) (*PipelineState, error) {
	log := r.logger.With().Str("phone", phone).Str("image_ref", imageRef).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		Phone:       phone,
		ImageRef:    imageRef,
		WebhookBody: body,
	}

	start := time.Now()
	if err := r.pipeline.Execute(ctx, state); err != nil {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			log.Error().
				Err(stageErr.Err).
				Str("stage", string(stageErr.Stage)).
				Str("request_id", state.RequestID).
				Msg("receipt ingest failed")
			return state, stageErr
		}
		log.Error().Err(err).Str("request_id", state.RequestID).Msg("receipt ingest failed")
		return state, err
	}

	log.Info().
		Str("request_id", state.RequestID).
		Dur("duration", time.Since(start)).
		Msg("receipt ingested")
	return state, nil
}

// AnalyzeImage extracts a record from image and wraps the outcome in an envelope.
// A failed extraction is reported in the envelope, not as an error.
func AnalyzeImage(ctx context.Context, extractor ReceiptExtractor, image []byte) *AnalysisEnvelope {
	result, err := extractor.Extract(ctx, image)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("receipt analysis failed")
		return &AnalysisEnvelope{
			Success:     false,
			Error:       err.Error(),
			ExtractedAt: time.Now().UTC(),
		}
	}
	return &AnalysisEnvelope{
		Success:     true,
		Data:        result.Record,
		ExtractedAt: result.ExtractedAt,
	}
}
