package pipeline

import (
	"testing"

	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckCompleteness(t *testing.T) {
	full := &domain.TransactionRecord{
		Amount:          decimal.NewNullDecimal(decimal.NewFromInt(1)),
		Date:            strp("01/01/2024"),
		Sender:          &domain.Party{Name: strp("A")},
		Receiver:        &domain.Party{Name: strp("B")},
		OperationNumber: strp("1"),
	}
	report := CheckCompleteness(full)
	assert.True(t, report.IsValid)
	assert.Empty(t, report.MissingFields)
	assert.Equal(t, 100.0, report.Completeness)

	partial := &domain.TransactionRecord{
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(1)),
		Sender: &domain.Party{},
	}
	report = CheckCompleteness(partial)
	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"date", "senderName", "receiverName", "operationNumber"}, report.MissingFields)
	assert.InDelta(t, 20.0, report.Completeness, 0.001)
}
