package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/api/handlers"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/dvloznov/receipt-validator/internal/settlement"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedOutcome() *settlement.Outcome {
	return &settlement.Outcome{
		Message:     settlement.MessageUpdated,
		DateCreated: "05/10/2023 12:30:00",
		PayerEmail:  "payer@example.com",
		Status:      "Aprobado",
	}
}

func TestPaymentsHandler_Status_Success(t *testing.T) {
	settler := &MockSettler{
		SettleFunc: func(ctx context.Context, paymentID, requestID, channel string) (*settlement.Outcome, error) {
			assert.Equal(t, "123", paymentID)
			assert.Equal(t, "req-1", requestID)
			assert.Equal(t, gateway.ChannelMercadoPago, channel)
			return approvedOutcome(), nil
		},
	}
	h := handlers.NewPaymentsHandler(settler, &MockPublisher{}, 0, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/payments?coelsaId=123&requestId=req-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"message": "Request updated successfully",
		"date_created": "05/10/2023 12:30:00",
		"payer_email": "payer@example.com",
		"status": "Aprobado"
	}`, rec.Body.String())
}

func TestPaymentsHandler_Status_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing coelsa id", "?requestId=req-1", "Coelsa ID is required"},
		{"missing request id", "?coelsaId=123", "Request ID is required"},
		{"unknown channel", "?coelsaId=123&requestId=req-1&channel=paypal", "Invalid channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &MockSettler{}
			h := handlers.NewPaymentsHandler(settler, &MockPublisher{}, 0, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/payments"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Zero(t, settler.Calls)
		})
	}
}

func TestPaymentsHandler_Status_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		code    string
	}{
		{
			name:    "gateway lookup",
			err:     &gateway.LookupError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"},
			message: "Failed to validate payment",
			code:    handlers.CodeGatewayLookup,
		},
		{
			name:    "not found",
			err:     fmt.Errorf("coelsa 123: %w", gateway.ErrNotFound),
			message: "Payment not found",
			code:    handlers.CodeNotFound,
		},
		{
			name:    "reconciliation write",
			err:     fmt.Errorf("settle request req-1: %w", admin.ErrReconciliationWrite),
			message: "Failed to update request",
			code:    handlers.CodeReconciliationWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &MockSettler{
				SettleFunc: func(ctx context.Context, paymentID, requestID, channel string) (*settlement.Outcome, error) {
					return nil, tt.err
				},
			}
			h := handlers.NewPaymentsHandler(settler, &MockPublisher{}, 0, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/payments?coelsaId=123&requestId=req-1&channel=coelsa", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t,
				`{"error":"`+tt.message+`","details":"`+tt.err.Error()+`","code":"`+tt.code+`"}`,
				rec.Body.String())
		})
	}
}

func TestPaymentsHandler_Notify(t *testing.T) {
	publisher := &MockPublisher{}
	h := handlers.NewPaymentsHandler(&MockSettler{}, publisher, 2, zerolog.Nop())

	body := `{"coelsaId":"WGRXJE27GO0PJ05EN7MYQL","requestId":"req-1","channel":"coelsa"}`
	rec := httptest.NewRecorder()
	h.Notify(rec, httptest.NewRequest(http.MethodPost, "/api/payments/notify", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job_id":"job-1","request_id":"req-1","status":"pending"}`, rec.Body.String())

	require.Len(t, publisher.Published, 1)
	job := publisher.Published[0]
	assert.Equal(t, "WGRXJE27GO0PJ05EN7MYQL", job.PaymentID)
	assert.Equal(t, gateway.ChannelCoelsa, job.Channel)
	assert.Equal(t, 2, job.MaxRetries)
}

func TestPaymentsHandler_Notify_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		publishErr error
		wantStatus int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"missing request id", `{"coelsaId":"1"}`, nil, http.StatusBadRequest},
		{"unknown channel", `{"coelsaId":"1","requestId":"r","channel":"cash"}`, nil, http.StatusBadRequest},
		{"queue closed", `{"coelsaId":"1","requestId":"r"}`, errors.New("queue is closed"), http.StatusInternalServerError},
		{"oversized body", `{"coelsaId":"1","requestId":"r","padding":"` + strings.Repeat("x", 128<<10) + `"}`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &MockPublisher{
				PublishFunc: func(ctx context.Context, job *jobs.VerifyPaymentJob) error {
					return tt.publishErr
				},
			}
			h := handlers.NewPaymentsHandler(&MockSettler{}, publisher, 0, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Notify(rec, httptest.NewRequest(http.MethodPost, "/api/payments/notify", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, publisher.Published)
		})
	}
}
