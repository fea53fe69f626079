package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/receipt-validator/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultWorkers is used when the queue is created with no worker count.
	DefaultWorkers = 5

	// DefaultRetryBackoff is the delay before the first retry; later retries wait linearly longer.
	DefaultRetryBackoff = time.Second
)

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is an in-memory verification queue backed by a buffered channel.
// A callback for a payment that already has a job pending or running for the
// same request is coalesced into that job. Jobs do not survive a restart.
type Queue struct {
	jobChan   chan *jobs.VerifyPaymentJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	closed    bool

	// inflight maps a payment/request/channel key to its unfinished job id.
	inflightMu sync.Mutex
	inflight   map[string]string

	retryBackoff time.Duration
	logger       zerolog.Logger
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishVerifyPayment blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:      make(chan *jobs.VerifyPaymentJob, bufferSize),
		closeChan:    make(chan struct{}),
		store:        store,
		workers:      workers,
		inflight:     make(map[string]string),
		retryBackoff: DefaultRetryBackoff,
		logger:       zerolog.Nop(),
	}
}

// WithLogger sets the logger used for job lifecycle events.
func (q *Queue) WithLogger(log zerolog.Logger) *Queue {
	q.logger = log
	return q
}

// WithRetryBackoff overrides the base retry delay.
func (q *Queue) WithRetryBackoff(d time.Duration) *Queue {
	q.retryBackoff = d
	return q
}

func jobKey(job *jobs.VerifyPaymentJob) string {
	return job.Channel + "|" + job.PaymentID + "|" + job.RequestID
}

// PublishVerifyPayment implements the Publisher interface.
// A duplicate of an unfinished job is not enqueued; job is filled with the existing id and status.
func (q *Queue) PublishVerifyPayment(ctx context.Context, job *jobs.VerifyPaymentJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	key := jobKey(job)
	q.inflightMu.Lock()
	if existingID, ok := q.inflight[key]; ok {
		q.inflightMu.Unlock()
		job.JobID = existingID
		job.Status = jobs.JobStatusPending
		if q.store != nil {
			if existing, err := q.store.GetJob(ctx, existingID); err == nil {
				*job = *existing
			}
		}
		q.logger.Info().
			Str("job_id", existingID).
			Str("payment_id", job.PaymentID).
			Str("request_id", job.RequestID).
			Msg("duplicate verification coalesced")
		return nil
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	q.inflight[key] = job.JobID
	q.inflightMu.Unlock()

	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := q.enqueue(ctx, job); err != nil {
		q.release(job)
		return err
	}
	return nil
}

// enqueue saves job and hands it to the workers without the duplicate check.
func (q *Queue) enqueue(ctx context.Context, job *jobs.VerifyPaymentJob) error {
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// workers own the queued copy; the caller keeps reading job
	queued := *job
	select {
	case q.jobChan <- &queued:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

func (q *Queue) release(job *jobs.VerifyPaymentJob) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	if q.inflight[jobKey(job)] == job.JobID {
		delete(q.inflight, jobKey(job))
	}
}

// Start implements the Consumer interface.
// Jobs are handled concurrently by the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job. Failed jobs are retried only when MaxRetries is set.
func (q *Queue) processJob(ctx context.Context, job *jobs.VerifyPaymentJob, handler jobs.JobHandler) {
	log := q.logger.With().
		Str("job_id", job.JobID).
		Str("payment_id", job.PaymentID).
		Str("request_id", job.RequestID).
		Str("channel", job.Channel).
		Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.release(job)
		log.Info().Str("payment_status", job.PaymentStatus).Dur("duration", completedAt.Sub(now)).Msg("verification completed")

	case job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff := time.Duration(job.RetryCount) * q.retryBackoff
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("verification failed, retrying")

		retry := *job
		time.AfterFunc(backoff, func() {
			retry.Status = jobs.JobStatusPending
			retry.StartedAt = nil
			retry.CompletedAt = nil
			if err := q.enqueue(ctx, &retry); err != nil {
				q.release(&retry)
				log.Error().Err(err).Msg("failed to re-enqueue verification")
			}
		})

	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		q.release(job)
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("verification failed")
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
