package job

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle marker the jobs API reports for a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether polling should stop. Values the API may add
// later are treated like pending.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome is how a submission cycle ended, as seen by the client.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeSubmitError Outcome = "submit_error"
	OutcomePollError   Outcome = "poll_error"
)

// DefaultLease is added to the submission time to produce Request.TTL.
const DefaultLease = 60 * time.Second

var ErrNoItems = errors.New("job: no items to submit")

// Request is the body posted to the job-creation endpoint.
type Request struct {
	Directive      string `json:"directive"`
	Items          []any  `json:"items"`
	TTL            int64  `json:"ttl"`
	Status         Status `json:"status"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// NewRequest builds a pending request expiring lease after now. Each request
// gets a fresh idempotency key.
func NewRequest(directive string, items []any, now time.Time, lease time.Duration) (Request, error) {
	if len(items) == 0 {
		return Request{}, ErrNoItems
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return Request{
		Directive:      directive,
		Items:          items,
		TTL:            now.Add(lease).Unix(),
		Status:         StatusPending,
		IdempotencyKey: uuid.New().String(),
	}, nil
}

// Snapshot is a job document as returned by the API. Everything except the
// id and status is passed through untouched.
type Snapshot map[string]any

func (s Snapshot) Status() Status {
	v, _ := s["status"].(string)
	return Status(v)
}

func (s Snapshot) ID() string {
	v, _ := s["id"].(string)
	return v
}

// Completion records the end of one submission cycle. It is what gets
// journaled and published to completion sinks.
type Completion struct {
	JobID       string   `json:"job_id"`
	Directive   string   `json:"directive"`
	Outcome     Outcome  `json:"outcome"`
	Status      Status   `json:"status"`
	Polls       int      `json:"polls"`
	Snapshot    Snapshot `json:"snapshot,omitempty"`
	CompletedAt int64    `json:"completed_at"`
}
