// Package settlement verifies a payment at the gateway and writes the
// gateway-confirmed status to the request record.
package settlement

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-validator/internal/admin"
	"github.com/dvloznov/receipt-validator/internal/domain"
	"github.com/dvloznov/receipt-validator/internal/gateway"
	"github.com/dvloznov/receipt-validator/internal/timefmt"
	"github.com/rs/zerolog"
)

// MessageUpdated is returned once the request record holds the gateway result.
const MessageUpdated = "Request updated successfully"

// Outcome is the user-facing result of a settlement.
type Outcome struct {
	Message     string `json:"message"`
	DateCreated string `json:"date_created"`
	PayerEmail  string `json:"payer_email"`
	Status      string `json:"status"`
}

// Service settles request records against gateway payments.
type Service struct {
	verifier gateway.PaymentVerifier
	admin    admin.Reconciler
	logger   zerolog.Logger
}

// NewService creates a settlement Service.
func NewService(verifier gateway.PaymentVerifier, reconciler admin.Reconciler, logger zerolog.Logger) *Service {
	return &Service{verifier: verifier, admin: reconciler, logger: logger}
}

// Settle verifies paymentID on channel and patches requestID with the result.
// Gateway errors are returned as is; a failed write matches admin.ErrReconciliationWrite.
func (s *Service) Settle(ctx context.Context, paymentID, requestID, channel string) (*Outcome, error) {
	log := s.logger.With().
		Str("payment_id", paymentID).
		Str("request_id", requestID).
		Str("channel", channel).
		Logger()

	payment, err := s.verifier.Verify(ctx, paymentID, channel)
	if err != nil {
		log.Error().Err(err).Msg("payment verification failed")
		return nil, err
	}

	var patch *admin.RequestPatch
	if payment.Approved() {
		patch = admin.PaymentApprovedPatch(requestID, channel, paymentID, payment)
	} else {
		patch = admin.PaymentRejectedPatch(channel, payment)
	}

	if err := s.admin.UpdateRequest(ctx, requestID, patch); err != nil {
		log.Error().Err(err).Str("gateway_status", payment.Status).Msg("failed to update request")
		return nil, fmt.Errorf("settle request %s: %w", requestID, err)
	}

	dateCreated := ""
	if payment.DateApproved != "" {
		dateCreated, err = timefmt.ToArgentineTime(payment.DateApproved)
		if err != nil {
			log.Warn().Err(err).Str("date_approved", payment.DateApproved).Msg("unparseable approval date")
			dateCreated = ""
		}
	}

	log.Info().Str("gateway_status", payment.Status).Msg("request settled")

	return &Outcome{
		Message:     MessageUpdated,
		DateCreated: dateCreated,
		PayerEmail:  payment.Payer.Email,
		Status:      domain.StatusLabel(payment.Status),
	}, nil
}
