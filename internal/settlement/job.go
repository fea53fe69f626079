package settlement

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-validator/internal/jobs"
)

// HandleJob is the jobs.JobHandler for gateway callback verification jobs.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	j, ok := job.(*jobs.VerifyPaymentJob)
	if !ok {
		return fmt.Errorf("HandleJob: unsupported job type %s", job.GetType())
	}

	out, err := s.Settle(ctx, j.PaymentID, j.RequestID, j.Channel)
	if err != nil {
		return err
	}
	j.PaymentStatus = out.Status
	return nil
}
