package handlers_test

import (
	"context"
	"encoding/json"

	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/dvloznov/receipt-validator/internal/settlement"
)

// MockIngester is a mock implementation of handlers.Ingester.
type MockIngester struct {
	IngestFunc func(ctx context.Context, phone, imageRef string, body json.RawMessage) (*pipeline.PipelineState, error)
	Calls      int
}

func (m *MockIngester) Ingest(ctx context.Context, phone, imageRef string, body json.RawMessage) (*pipeline.PipelineState, error) {
	m.Calls++
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, phone, imageRef, body)
	}
	return &pipeline.PipelineState{Phone: phone, ImageRef: imageRef, RequestID: "req-1"}, nil
}

// MockExtractor is a mock implementation of pipeline.ReceiptExtractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error)
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
	return m.ExtractFunc(ctx, image)
}

// MockSettler is a mock implementation of handlers.Settler.
type MockSettler struct {
	SettleFunc func(ctx context.Context, paymentID, requestID, channel string) (*settlement.Outcome, error)
	Calls      int
}

func (m *MockSettler) Settle(ctx context.Context, paymentID, requestID, channel string) (*settlement.Outcome, error) {
	m.Calls++
	return m.SettleFunc(ctx, paymentID, requestID, channel)
}

// MockPublisher is a mock implementation of jobs.Publisher.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.VerifyPaymentJob) error
	Published   []*jobs.VerifyPaymentJob
}

func (m *MockPublisher) PublishVerifyPayment(ctx context.Context, job *jobs.VerifyPaymentJob) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, job); err != nil {
			return err
		}
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	m.Published = append(m.Published, job)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}
