package queue

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultMaxRetries is how many times a failed job is pushed back before it
// is parked on the dead-letter list
const DefaultMaxRetries = 3

const failedPrefix = "failed:"

// Job is one queued unit of work. The payload is opaque to the queue.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// JobHandler processes a job popped from a queue
type JobHandler func(ctx context.Context, job Job) error

// EnqueueOption configures a job before it is pushed
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// withJobID pins the job ID so tests can follow a job through the queue
func withJobID(id string) EnqueueOption {
	return func(j *Job) {
		j.ID = id
	}
}
