package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// GatewayStatusApproved is the only gateway status treated as settled.
const GatewayStatusApproved = "approved"

const (
	labelApproved = "Aprobado"
	labelRejected = "Rechazado"
)

// Payer identifies who paid, as reported by the gateway.
type Payer struct {
	Email string `json:"email"`
}

// TransactionDetails carries the cross-gateway reference of a payment.
type TransactionDetails struct {
	TransactionID string `json:"transaction_id"`
}

// GatewayPayment is a read-only payment as returned by the payment gateway.
// Raw keeps the untouched gateway JSON for audit replay.
type GatewayPayment struct {
	ID                 json.Number        `json:"id"`
	Status             string             `json:"status"`
	TransactionAmount  decimal.Decimal    `json:"transaction_amount"`
	DateApproved       string             `json:"date_approved"`
	DateCreated        string             `json:"date_created"`
	Payer              Payer              `json:"payer"`
	TransactionDetails TransactionDetails `json:"transaction_details"`

	Raw json.RawMessage `json:"-"`
}

// Approved reports whether the gateway settled the payment.
func (p *GatewayPayment) Approved() bool {
	return p.Status == GatewayStatusApproved
}

// StatusLabel maps a gateway status to the user-facing label.
// Only "approved" is "Aprobado"; everything else is "Rechazado".
func StatusLabel(gatewayStatus string) string {
	if gatewayStatus == GatewayStatusApproved {
		return labelApproved
	}
	return labelRejected
}
