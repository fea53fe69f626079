package admin

import (
	"encoding/json"
	"testing"

	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchBuilders_AppendOneEntry(t *testing.T) {
	payment := &domain.GatewayPayment{
		Status:            "approved",
		TransactionAmount: decimal.RequireFromString("1500.50"),
		DateApproved:      "2023-10-05T15:30:00.000-04:00",
		Payer:             domain.Payer{Email: "payer@example.com"},
		Raw:               json.RawMessage(`{"id":1,"status":"approved"}`),
	}

	patches := map[string]*RequestPatch{
		"extraction ok":     ExtractionSucceededPatch(&domain.TransactionRecord{}, nil, Receipt{}),
		"extraction failed": ExtractionFailedPatch("model timeout"),
		"payment approved":  PaymentApprovedPatch("req-1", "coelsa", "ABCDEFGHIJKLMNOPQRSTUV", payment),
		"payment rejected":  PaymentRejectedPatch("mercadopago", payment),
	}

	for name, p := range patches {
		t.Run(name, func(t *testing.T) {
			assert.Len(t, p.History, 1)
		})
	}
}

func TestPaymentApprovedPatch(t *testing.T) {
	payment := &domain.GatewayPayment{
		Status:            "approved",
		TransactionAmount: decimal.RequireFromString("1500.50"),
		DateApproved:      "2023-10-05T15:30:00.000-04:00",
		Payer:             domain.Payer{Email: "payer@example.com"},
		Raw:               json.RawMessage(`{"id":1,"status":"approved"}`),
	}

	p := PaymentApprovedPatch("req-1", "coelsa", "ABCDEFGHIJKLMNOPQRSTUV", payment)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, StageSettlement, p.Stage())
	assert.Equal(t, "2023-10-05T15:30:00.000-04:00", p.PaymentDate)
	assert.Equal(t, "payer@example.com", p.MPValidation.Payer)
	assert.Contains(t, p.Notes, "Coelsa")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded struct {
		Amount  json.RawMessage `json:"amount"`
		History []struct {
			Action  string          `json:"action"`
			Actor   string          `json:"actor"`
			Details json.RawMessage `json:"details"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1500.5", string(decoded.Amount))
	require.Len(t, decoded.History, 1)
	assert.Equal(t, domain.ActionPaymentProcessed, decoded.History[0].Action)
	assert.Equal(t, "payer@example.com", decoded.History[0].Actor)
	assert.JSONEq(t, `{"id":1,"status":"approved"}`, string(decoded.History[0].Details))
}

func TestPaymentRejectedPatch(t *testing.T) {
	p := PaymentRejectedPatch("mercadopago", &domain.GatewayPayment{Status: "rejected"})
	assert.Equal(t, "rejected", p.Status)
	assert.Nil(t, p.Amount)
	assert.Equal(t, domain.ActionPaymentRejected, p.History[0].Action)
}

func TestExtractionSucceededPatch_NullAmountOmitted(t *testing.T) {
	p := ExtractionSucceededPatch(&domain.TransactionRecord{}, json.RawMessage("not json"), Receipt{})
	assert.Nil(t, p.Amount)
	assert.Equal(t, `"not json"`, string(p.GPTAnalysis))
	assert.Equal(t, StageExtraction, p.Stage())
}
