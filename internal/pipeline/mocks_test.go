package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dvloznov/receipt-validator/internal/admin"
	infra "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/dvloznov/receipt-validator/internal/rendition"
)

// MockReconciler is a mock implementation of admin.Reconciler that records patches.
type MockReconciler struct {
	CreateRequestFunc func(ctx context.Context, phone string, body json.RawMessage) (string, error)
	UpdateRequestFunc func(ctx context.Context, requestID string, patch *admin.RequestPatch) error

	mu      sync.Mutex
	Patches []*admin.RequestPatch
}

func (m *MockReconciler) CreateRequest(ctx context.Context, phone string, body json.RawMessage) (string, error) {
	if m.CreateRequestFunc != nil {
		return m.CreateRequestFunc(ctx, phone, body)
	}
	return "req-1", nil
}

func (m *MockReconciler) UpdateRequest(ctx context.Context, requestID string, patch *admin.RequestPatch) error {
	m.mu.Lock()
	m.Patches = append(m.Patches, patch)
	m.mu.Unlock()
	if m.UpdateRequestFunc != nil {
		return m.UpdateRequestFunc(ctx, requestID, patch)
	}
	return nil
}

// Statuses returns the status of every recorded patch in order.
func (m *MockReconciler) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Patches))
	for _, p := range m.Patches {
		out = append(out, p.Status)
	}
	return out
}

// MockDownloader is a mock implementation of media.Downloader.
type MockDownloader struct {
	DownloadFunc func(ctx context.Context, imageRef string) ([]byte, error)
}

func (m *MockDownloader) Download(ctx context.Context, imageRef string) ([]byte, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, imageRef)
	}
	return make([]byte, 1024), nil
}

// MockPublisher is a mock implementation of pipeline.ImagePublisher.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, raw []byte) (*rendition.URLs, error)
	Calls       int
}

func (m *MockPublisher) Publish(ctx context.Context, raw []byte) (*rendition.URLs, error) {
	m.Calls++
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, raw)
	}
	return &rendition.URLs{
		Small:    "https://cdn.example.com/small/id.jpg",
		Original: "https://cdn.example.com/original/id.jpg",
	}, nil
}

// MockExtractor is a mock implementation of pipeline.ReceiptExtractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error)
}

func (m *MockExtractor) Extract(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, image)
	}
	return nil, errors.New("extractor not configured")
}

// MockAudit is a mock implementation of pipeline.AuditRecorder.
type MockAudit struct {
	Err  error
	Rows []*infra.ExtractionRunRow
}

func (m *MockAudit) RecordExtraction(ctx context.Context, row *infra.ExtractionRunRow) error {
	m.Rows = append(m.Rows, row)
	return m.Err
}
