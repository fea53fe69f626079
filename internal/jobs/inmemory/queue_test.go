package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.VerifyPaymentJob {
	t.Helper()
	var job *jobs.VerifyPaymentJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.VerifyPaymentJob)
		j.PaymentStatus = "Aprobado"
		return nil
	}))

	job := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "mercadopago"}
	require.NoError(t, q.PublishVerifyPayment(ctx, job))
	assert.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "Aprobado", done.PaymentStatus)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_NoRetryByDefault(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("payment not found")
	}))

	job := &jobs.VerifyPaymentJob{PaymentID: "X", Channel: "coelsa"}
	require.NoError(t, q.PublishVerifyPayment(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "payment not found", failed.Error)
	assert.Equal(t, 0, failed.RetryCount)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishVerifyPayment(context.Background(), &jobs.VerifyPaymentJob{})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), ErrQueueClosed)
}

func TestQueue_CoalescesDuplicateCallbacks(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)

	first := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "mercadopago"}
	require.NoError(t, q.PublishVerifyPayment(context.Background(), first))

	dup := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "mercadopago"}
	require.NoError(t, q.PublishVerifyPayment(context.Background(), dup))
	assert.Equal(t, first.JobID, dup.JobID)

	other := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-2", Channel: "mercadopago"}
	require.NoError(t, q.PublishVerifyPayment(context.Background(), other))
	assert.NotEqual(t, first.JobID, other.JobID)

	list, err := store.ListJobs(context.Background(), jobs.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RepublishAfterCompletion(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error { return nil }))

	first := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "coelsa"}
	require.NoError(t, q.PublishVerifyPayment(ctx, first))
	waitForStatus(t, store, first.JobID, jobs.JobStatusCompleted)

	second := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "coelsa"}
	require.NoError(t, q.PublishVerifyPayment(ctx, second))
	assert.NotEqual(t, first.JobID, second.JobID)

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesWhenConfigured(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store).WithRetryBackoff(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("gateway timeout")
		}
		return nil
	}))

	job := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "mercadopago", MaxRetries: 2}
	require.NoError(t, q.PublishVerifyPayment(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_WorkersDoNotWriteCallerJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.VerifyPaymentJob).PaymentStatus = "Aprobado"
		return nil
	}))

	job := &jobs.VerifyPaymentJob{PaymentID: "123", RequestID: "req-1", Channel: "mercadopago"}
	require.NoError(t, q.PublishVerifyPayment(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "Aprobado", done.PaymentStatus)

	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Empty(t, job.PaymentStatus)
	assert.Nil(t, job.StartedAt)

	require.NoError(t, q.Stop(context.Background()))
}
