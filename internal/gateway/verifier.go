package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-validator/internal/domain"
)

// Verification channels.
const (
	ChannelMercadoPago = "mercadopago"
	ChannelCoelsa      = "coelsa"
)

// SearchWindow is how far around now a reconciliation search looks.
const SearchWindow = 24 * time.Hour

// PaymentSource is the gateway API the verifier reads from.
type PaymentSource interface {
	GetPayment(ctx context.Context, id string) (*domain.GatewayPayment, error)
	SearchPayments(ctx context.Context, begin, end time.Time) ([]*domain.GatewayPayment, error)
}

// PaymentVerifier resolves a payment id on a channel.
type PaymentVerifier interface {
	Verify(ctx context.Context, id, channel string) (*domain.GatewayPayment, error)
}

// Verifier picks the lookup strategy for each channel.
type Verifier struct {
	source PaymentSource
	now    func() time.Time
}

// NewVerifier creates a Verifier reading from source.
func NewVerifier(source PaymentSource) *Verifier {
	return &Verifier{source: source, now: time.Now}
}

// WithClock replaces the clock used to center the search window.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// ValidChannel reports whether channel is supported.
func ValidChannel(channel string) bool {
	return channel == ChannelMercadoPago || channel == ChannelCoelsa
}

// Verify looks the payment up directly on mercadopago, or searches the
// [now-24h, now+24h] creation window on coelsa and matches the transaction id.
func (v *Verifier) Verify(ctx context.Context, id, channel string) (*domain.GatewayPayment, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	switch channel {
	case ChannelMercadoPago:
		p, err := v.source.GetPayment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get payment %s: %w", id, err)
		}
		return p, nil

	case ChannelCoelsa:
		now := v.now()
		results, err := v.source.SearchPayments(ctx, now.Add(-SearchWindow), now.Add(SearchWindow))
		if err != nil {
			return nil, fmt.Errorf("search payments: %w", err)
		}
		for _, p := range results {
			if p.TransactionDetails.TransactionID == id {
				return p, nil
			}
		}
		return nil, fmt.Errorf("%w: transaction id %s not in coelsa results", ErrNotFound, id)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}
