package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/receipt-validator/internal/admin"
	infra "github.com/dvloznov/receipt-validator/internal/infra/bigquery"
	"github.com/dvloznov/receipt-validator/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingAudit struct{}

func (failingAudit) RecordExtraction(ctx context.Context, row *infra.ExtractionRunRow) error {
	return errors.New("insert failed")
}

type fakeReconciler struct {
	requestID string
}

func (f *fakeReconciler) CreateRequest(ctx context.Context, phone string, body json.RawMessage) (string, error) {
	return f.requestID, nil
}

func (f *fakeReconciler) UpdateRequest(ctx context.Context, requestID string, patch *admin.RequestPatch) error {
	return nil
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"mid rune", "aé", 2, "a"},
		{"rune boundary", "aé", 3, "aé"},
		{"four byte rune", "x😀", 3, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateUTF8(tt.in, tt.n))
		})
	}
}

func TestFailedRun_ErrorMessageStaysValidUTF8(t *testing.T) {
	// one ASCII byte shifts every two-byte rune across the limit
	cause := errors.New("x" + strings.Repeat("ñ", maxAuditErrorLen))

	row := failedRun("req-1", "", cause, time.Now())

	require.True(t, row.ErrorMessage.Valid)
	assert.True(t, utf8.ValidString(row.ErrorMessage.StringVal))
	assert.LessOrEqual(t, len(row.ErrorMessage.StringVal), maxAuditErrorLen)
	assert.Equal(t, maxAuditErrorLen-1, len(row.ErrorMessage.StringVal))
	assert.Equal(t, DefaultModelName, row.ModelName)
	assert.Equal(t, RunStatusFailed, row.Status)
}

func TestRecordAudit_LogsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	recordAudit(ctx, failingAudit{}, &infra.ExtractionRunRow{RunID: "run-1"})

	assert.Contains(t, buf.String(), "failed to record extraction audit row")
	assert.Contains(t, buf.String(), "run-1")
}

func TestCreateRequestStep_LogsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	step := &CreateRequestStep{Admin: &fakeReconciler{requestID: "req-42"}}
	state := &PipelineState{Phone: "5491100000000"}

	require.NoError(t, step.Execute(ctx, state))

	assert.Equal(t, "req-42", state.RequestID)
	assert.Contains(t, buf.String(), "request created")
	assert.Contains(t, buf.String(), "req-42")
}
