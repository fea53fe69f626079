package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by stores for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeVerifyPayment represents a gateway payment verification job.
	JobTypeVerifyPayment JobType = "verify_payment"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// VerifyPaymentJob verifies a payment at the gateway and settles the request record.
type VerifyPaymentJob struct {
	JobID string `json:"job_id"`

	// PaymentID is the gateway or COELSA id to verify.
	PaymentID string `json:"payment_id"`
	RequestID string `json:"request_id"`
	Channel   string `json:"channel"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PaymentStatus is the user-facing label once verified.
	PaymentStatus string `json:"payment_status,omitempty"`
	Error         string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	// MaxRetries is 0 unless configured: a verification is conclusive.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *VerifyPaymentJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *VerifyPaymentJob) GetType() JobType {
	return JobTypeVerifyPayment
}

// GetStatus implements the Job interface.
func (j *VerifyPaymentJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishVerifyPayment publishes a payment verification job.
	PublishVerifyPayment(ctx context.Context, job *VerifyPaymentJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *VerifyPaymentJob) error
	GetJob(ctx context.Context, jobID string) (*VerifyPaymentJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*VerifyPaymentJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// RequestID filters jobs by request record id.
	RequestID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
