package asyncjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultDeadline     = 60 * time.Second
)

var (
	ErrSubmit = errors.New("asyncjob: job submission failed")
	ErrClosed = errors.New("asyncjob: controller closed")
)

// JobAPI is the remote jobs service the controller drives.
type JobAPI interface {
	CreateJob(ctx context.Context, req job.Request) (job.Snapshot, error)
	GetJobByID(ctx context.Context, id string) (job.Snapshot, error)
}

// Controller tracks one submitted job at a time from creation to a single
// completion callback. A new Submit discards any cycle still in flight.
type Controller struct {
	api        JobAPI
	onComplete func(Result)
	onError    func(job.Outcome, error)
	log        *logrus.Entry
	now        func() time.Time
	interval   time.Duration
	deadline   time.Duration
	lease      time.Duration
	limits     Limits

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	mu     sync.Mutex
	state  State
	ticket *ticket
	done   chan struct{}
	closed bool
}

type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithDeadline sets the client-side limit on how long a job is polled,
// independent of the job's ttl.
func WithDeadline(d time.Duration) Option {
	return func(c *Controller) { c.deadline = d }
}

func WithLease(d time.Duration) Option {
	return func(c *Controller) { c.lease = d }
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Controller) { c.log = l }
}

// WithErrorHandler receives transport failures, which never reach the
// completion callback.
func WithErrorHandler(fn func(job.Outcome, error)) Option {
	return func(c *Controller) { c.onError = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(api JobAPI, onComplete func(Result), opts ...Option) *Controller {
	c := &Controller{
		api:        api,
		onComplete: onComplete,
		log:        logrus.NewEntry(logrus.StandardLogger()),
		now:        time.Now,
		interval:   DefaultPollInterval,
		deadline:   DefaultDeadline,
		lease:      job.DefaultLease,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	c.limits = LimitsFor(c.interval, c.deadline)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit creates a job and starts polling it. The creation call runs on the
// caller's goroutine; its failure is returned here and the completion
// callback is not invoked for this cycle.
func (c *Controller) Submit(ctx context.Context, directive string, items []any) error {
	req, err := job.NewRequest(directive, items, c.now(), c.lease)
	if err != nil {
		return err
	}

	st, err := c.dispatch(Event{Kind: EventSubmit, Directive: directive})
	if err != nil {
		return err
	}
	cycle := st.Cycle
	c.log.WithFields(logrus.Fields{
		"directive":       directive,
		"cycle":           cycle,
		"items":           len(items),
		"idempotency_key": req.IdempotencyKey,
	}).Debug("submitting job")

	snap, err := c.api.CreateJob(ctx, req)
	if err != nil {
		c.dispatch(Event{Kind: EventCreateFailed, Cycle: cycle, Err: err})
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	st, _ = c.dispatch(Event{Kind: EventCreated, Cycle: cycle, Snapshot: snap})
	if st.Cycle == cycle && st.Outcome == job.OutcomeSubmitError {
		return fmt.Errorf("%w: %w", ErrSubmit, ErrMissingJobID)
	}
	return nil
}

// Wait blocks until the current cycle has ended and its callback returned.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close abandons any cycle in flight without notifying and stops polling.
// It must not be called from the completion callback.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.dispatch(Event{Kind: EventStop})
	c.cancel()
	c.loops.Wait()
}

// dispatch applies ev under the lock. A Submit after Close is refused in the
// same critical section that would start the cycle.
func (c *Controller) dispatch(ev Event) (State, error) {
	c.mu.Lock()
	if ev.Kind == EventSubmit && c.closed {
		st := c.state
		c.mu.Unlock()
		return st, ErrClosed
	}
	prev := c.state
	next, effects := Transition(prev, ev, c.limits)
	c.state = next

	var deferred []Effect
	for _, e := range effects {
		switch e.Kind {
		case EffectArm:
			c.ticket = schedule(c.ctx, &c.loops, c.interval, c.poll(next.Cycle, next.JobID))
		case EffectDisarm:
			if c.ticket != nil {
				c.ticket.Stop()
				c.ticket = nil
			}
		case EffectCreate:
			// performed by Submit
		default:
			deferred = append(deferred, e)
		}
	}

	var finished chan struct{}
	switch {
	case ev.Kind == EventSubmit:
		if c.done != nil {
			close(c.done)
		}
		c.done = make(chan struct{})
	case prev.IsPending() && !next.IsPending():
		finished, c.done = c.done, nil
	}
	c.mu.Unlock()

	for _, e := range deferred {
		c.apply(next, e)
	}
	if finished != nil {
		close(finished)
	}
	return next, nil
}

func (c *Controller) apply(s State, e Effect) {
	log := c.log.WithFields(logrus.Fields{
		"directive": s.Directive,
		"cycle":     s.Cycle,
		"job_id":    s.JobID,
	})
	switch e.Kind {
	case EffectNotify:
		if e.Result.Outcome == job.OutcomeTimedOut {
			log.WithFields(logrus.Fields{
				"polls":  e.Result.Polls,
				"status": e.Result.Snapshot.Status(),
			}).Warn("job took too long, giving up")
		} else {
			log.WithField("status", e.Result.Snapshot.Status()).Info("job finished")
		}
		if c.onComplete != nil {
			c.onComplete(e.Result)
		}
	case EffectReport:
		switch e.Outcome {
		case job.OutcomeSubmitError:
			log.WithError(e.Err).Error("failed to create job")
		default:
			log.WithError(e.Err).Error("polling failed")
		}
		if c.onError != nil {
			c.onError(e.Outcome, e.Err)
		}
	}
}

func (c *Controller) poll(cycle uint64, id string) func(ctx context.Context) {
	return func(ctx context.Context) {
		snap, err := c.api.GetJobByID(ctx, id)
		if err != nil {
			// disarmed while the request was in flight
			if ctx.Err() != nil {
				return
			}
			c.dispatch(Event{Kind: EventPollFailed, Cycle: cycle, Err: err})
			return
		}
		c.dispatch(Event{Kind: EventPolled, Cycle: cycle, Snapshot: snap})
	}
}
