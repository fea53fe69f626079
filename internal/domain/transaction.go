package domain

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, both to the administration service and to API callers.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	// DefaultTransactionType is used when the receipt does not name the operation.
	DefaultTransactionType = "Transferencia"

	// DefaultExtractionStatus is the provisional status attached at extraction time.
	// It is never a settlement truth; the gateway status supersedes it.
	DefaultExtractionStatus = "completed"

	// GatewayIDLength is the fixed length of a cross-gateway reconciliation id.
	GatewayIDLength = 22
)

// Party is one side of a transfer as printed on the receipt.
// Every field is nullable and serialized even when nil.
type Party struct {
	Name       *string `json:"name"`
	TaxID      *string `json:"taxId"`      // CUIT/CUIL
	AccountRef *string `json:"accountRef"` // CVU/CBU
}

// TransactionRecord is the structured view of one receipt image.
// It is produced once per image and never mutated afterwards.
type TransactionRecord struct {
	Amount          decimal.NullDecimal `json:"amount"`
	Currency        *string             `json:"currency"`
	Date            *string             `json:"date"` // verbatim as printed
	Sender          *Party              `json:"sender"`
	Receiver        *Party              `json:"receiver"`
	OperationNumber *string             `json:"operationNumber"`
	GatewayID       *string             `json:"gatewayId"`
	TransactionType string              `json:"transactionType"`
	Platform        *string             `json:"platform"`
	Status          string              `json:"status"`
}

// SenderName returns the sender name or "" when unknown.
func (r *TransactionRecord) SenderName() string {
	if r.Sender == nil {
		return ""
	}
	return deref(r.Sender.Name)
}

// SenderTaxID returns the sender CUIT/CUIL or "" when unknown.
func (r *TransactionRecord) SenderTaxID() string {
	if r.Sender == nil {
		return ""
	}
	return deref(r.Sender.TaxID)
}

// SenderAccountRef returns the sender CVU/CBU or "" when unknown.
func (r *TransactionRecord) SenderAccountRef() string {
	if r.Sender == nil {
		return ""
	}
	return deref(r.Sender.AccountRef)
}

// ValidGatewayID reports whether s is exactly GatewayIDLength ASCII letters or digits.
func ValidGatewayID(s string) bool {
	if len(s) != GatewayIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
