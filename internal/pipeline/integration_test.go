package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/dvloznov/receipt-validator/internal/media"
	"github.com/dvloznov/receipt-validator/internal/pipeline"
	"github.com/dvloznov/receipt-validator/internal/rendition"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func juanPerezResult() *pipeline.ExtractionResult {
	return &pipeline.ExtractionResult{
		Record: &domain.TransactionRecord{
			Amount:          decimal.NewNullDecimal(decimal.NewFromInt(15000)),
			Sender:          &domain.Party{Name: strPtr("Juan Perez")},
			OperationNumber: strPtr("120013543417"),
			TransactionType: domain.DefaultTransactionType,
			Status:          domain.DefaultExtractionStatus,
		},
		RawOutput:   `{"amount":15000,"sender":{"name":"Juan Perez"},"operationNumber":"120013543417","gatewayId":null}`,
		Model:       "gemini-test",
		ExtractedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
}

type ingestFixture struct {
	admin     *MockReconciler
	media     *MockDownloader
	publisher *MockPublisher
	extractor *MockExtractor
	audit     *MockAudit
}

func newFixture() *ingestFixture {
	return &ingestFixture{
		admin:     &MockReconciler{},
		media:     &MockDownloader{},
		publisher: &MockPublisher{},
		extractor: &MockExtractor{
			ExtractFunc: func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
				return juanPerezResult(), nil
			},
		},
		audit: &MockAudit{},
	}
}

func (f *ingestFixture) ingester() *pipeline.ReceiptIngester {
	return pipeline.NewReceiptIngester(pipeline.IngestDeps{
		Admin:     f.admin,
		Media:     f.media,
		Publisher: f.publisher,
		Extractor: f.extractor,
		Audit:     f.audit,
	}, zerolog.Nop())
}

func TestIngest_HappyPath(t *testing.T) {
	f := newFixture()
	var gotPhone, gotRef string
	var gotImageLen int
	f.admin.CreateRequestFunc = func(ctx context.Context, phone string, body json.RawMessage) (string, error) {
		gotPhone = phone
		return "req-42", nil
	}
	f.media.DownloadFunc = func(ctx context.Context, imageRef string) ([]byte, error) {
		gotRef = imageRef
		return make([]byte, 1024), nil
	}
	f.extractor.ExtractFunc = func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
		gotImageLen = len(image)
		return juanPerezResult(), nil
	}

	state, err := f.ingester().Ingest(context.Background(), "5491122334455", "media/abc123", json.RawMessage(`{"image":"media/abc123"}`))
	require.NoError(t, err)

	assert.Equal(t, "5491122334455", gotPhone)
	assert.Equal(t, "media/abc123", gotRef)
	assert.Equal(t, 1024, gotImageLen)
	assert.Equal(t, 1, f.publisher.Calls)
	assert.Equal(t, "req-42", state.RequestID)

	require.Len(t, f.admin.Patches, 1)
	patch := f.admin.Patches[0]
	assert.Equal(t, domain.RequestStatusValidated, patch.Status)
	require.NotNil(t, patch.Amount)
	assert.True(t, patch.Amount.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, "https://cdn.example.com/original/id.jpg", patch.Receipt.URL)
	assert.Nil(t, patch.CoelsaID)
	assert.Len(t, patch.History, 1)

	record := state.Extraction.Record
	assert.Equal(t, "Juan Perez", record.SenderName())
	assert.Equal(t, "120013543417", *record.OperationNumber)
	assert.Nil(t, record.GatewayID)

	require.Len(t, f.audit.Rows, 1)
	assert.Equal(t, pipeline.RunStatusSuccess, f.audit.Rows[0].Status)
	assert.Equal(t, "req-42", f.audit.Rows[0].RequestID.StringVal)
}

func TestIngest_ExtractionFailureNeverValidates(t *testing.T) {
	f := newFixture()
	f.extractor.ExtractFunc = func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
		return nil, errors.New("vision model exploded")
	}

	_, err := f.ingester().Ingest(context.Background(), "5491122334455", "media/abc123", nil)
	require.Error(t, err)

	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, pipeline.StageExtract, stageErr.Stage)
	assert.Equal(t, "vision model exploded", stageErr.Err.Error())

	var extErr *pipeline.ExtractionError
	assert.True(t, errors.As(err, &extErr))

	assert.NotContains(t, f.admin.Statuses(), domain.RequestStatusValidated)
	assert.Equal(t, []string{domain.RequestStatusRejected}, f.admin.Statuses())
	assert.Equal(t, "vision model exploded", f.admin.Patches[0].Error)

	require.Len(t, f.audit.Rows, 1)
	assert.Equal(t, pipeline.RunStatusFailed, f.audit.Rows[0].Status)
}

func TestIngest_CreateFailureAbortsBeforeImageWork(t *testing.T) {
	f := newFixture()
	downloaded := false
	f.admin.CreateRequestFunc = func(ctx context.Context, phone string, body json.RawMessage) (string, error) {
		return "", admin.ErrAdminUnavailable
	}
	f.media.DownloadFunc = func(ctx context.Context, imageRef string) ([]byte, error) {
		downloaded = true
		return nil, nil
	}

	_, err := f.ingester().Ingest(context.Background(), "1", "media/x", nil)
	require.Error(t, err)

	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, pipeline.StageCreate, stageErr.Stage)
	assert.ErrorIs(t, err, admin.ErrAdminUnavailable)
	assert.False(t, downloaded)
	assert.Equal(t, 0, f.publisher.Calls)
	assert.Empty(t, f.admin.Patches)
}

func TestIngest_StageFailuresRejectRequest(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *ingestFixture)
		wantStage pipeline.Stage
		wantIs    error
	}{
		{
			name: "download",
			setup: func(f *ingestFixture) {
				f.media.DownloadFunc = func(ctx context.Context, imageRef string) ([]byte, error) {
					return nil, &media.DownloadError{StatusCode: 404, Status: "404 Not Found"}
				}
			},
			wantStage: pipeline.StageDownload,
			wantIs:    media.ErrUpstreamUnavailable,
		},
		{
			name: "publish",
			setup: func(f *ingestFixture) {
				f.publisher.PublishFunc = func(ctx context.Context, raw []byte) (*rendition.URLs, error) {
					return nil, &rendition.PublishError{SmallErr: errors.New("bucket gone")}
				}
			},
			wantStage: pipeline.StagePublish,
			wantIs:    rendition.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			_, err := f.ingester().Ingest(context.Background(), "1", "media/x", nil)
			require.Error(t, err)

			var stageErr *pipeline.StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tt.wantStage, stageErr.Stage)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, []string{domain.RequestStatusRejected}, f.admin.Statuses())
		})
	}
}

func TestIngest_UpdateFailure(t *testing.T) {
	f := newFixture()
	f.admin.UpdateRequestFunc = func(ctx context.Context, requestID string, patch *admin.RequestPatch) error {
		return admin.ErrReconciliationWrite
	}

	state, err := f.ingester().Ingest(context.Background(), "1", "media/x", nil)
	require.Error(t, err)

	var stageErr *pipeline.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, pipeline.StageUpdate, stageErr.Stage)
	assert.ErrorIs(t, err, admin.ErrReconciliationWrite)
	assert.NotNil(t, state.Extraction)
	assert.Len(t, f.admin.Patches, 1)
}

func TestIngest_AuditFailureIsIgnored(t *testing.T) {
	f := newFixture()
	f.audit.Err = errors.New("bigquery down")

	_, err := f.ingester().Ingest(context.Background(), "1", "media/x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RequestStatusValidated}, f.admin.Statuses())
}

func TestAnalyzeImage(t *testing.T) {
	ok := &MockExtractor{ExtractFunc: func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
		return juanPerezResult(), nil
	}}
	env := pipeline.AnalyzeImage(context.Background(), ok, []byte("img"))
	assert.True(t, env.Success)
	assert.Equal(t, "Juan Perez", env.Data.SenderName())
	assert.Empty(t, env.Error)

	failing := &MockExtractor{ExtractFunc: func(ctx context.Context, image []byte) (*pipeline.ExtractionResult, error) {
		return nil, &pipeline.ExtractionError{Reason: "unsupported image type"}
	}}
	env = pipeline.AnalyzeImage(context.Background(), failing, []byte("img"))
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Equal(t, "unsupported image type", env.Error)
	assert.False(t, env.ExtractedAt.IsZero())

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"data"`)
}
