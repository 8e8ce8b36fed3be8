package asyncjob

import (
	"errors"
	"time"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

// Phase is where the controller is within a submission cycle.
type Phase int

const (
	Idle Phase = iota
	Submitting
	Polling
)

func (p Phase) String() string {
	switch p {
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	default:
		return "idle"
	}
}

var ErrMissingJobID = errors.New("asyncjob: create response has no job id")

// State is an immutable snapshot of the controller. Outcome holds how the
// most recent cycle ended and is empty while a cycle is in flight.
type State struct {
	Phase     Phase
	Cycle     uint64
	Directive string
	JobID     string
	PollCount int
	Last      job.Snapshot
	Outcome   job.Outcome
}

func (s State) IsPending() bool { return s.Phase != Idle }

// Limits bounds a polling cycle.
type Limits struct {
	MaxPolls int
}

// LimitsFor returns the poll budget for a deadline: ceil(deadline / interval).
func LimitsFor(interval, deadline time.Duration) Limits {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	n := int(deadline / interval)
	if deadline%interval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return Limits{MaxPolls: n}
}

type EventKind int

const (
	EventSubmit EventKind = iota
	EventCreated
	EventCreateFailed
	EventPolled
	EventPollFailed
	EventStop
)

// Event is an input to Transition. Cycle must match the state's cycle for
// every kind except EventSubmit and EventStop.
type Event struct {
	Kind      EventKind
	Cycle     uint64
	Directive string
	Snapshot  job.Snapshot
	Err       error
}

type EffectKind int

const (
	EffectCreate EffectKind = iota
	EffectArm
	EffectDisarm
	EffectNotify
	EffectReport
)

// Effect is work the controller must carry out after a transition.
type Effect struct {
	Kind    EffectKind
	Result  Result
	Outcome job.Outcome
	Err     error
}

// Result is delivered to the completion callback once per cycle.
type Result struct {
	Outcome  job.Outcome
	JobID    string
	Polls    int
	Snapshot job.Snapshot
}

// Completion converts r into the event published to sinks.
func (r Result) Completion(directive string, at time.Time) job.Completion {
	return job.Completion{
		JobID:       r.JobID,
		Directive:   directive,
		Outcome:     r.Outcome,
		Status:      r.Snapshot.Status(),
		Polls:       r.Polls,
		Snapshot:    r.Snapshot,
		CompletedAt: at.Unix(),
	}
}

// Transition is the controller's state machine. It has no side effects.
func Transition(s State, ev Event, lim Limits) (State, []Effect) {
	switch ev.Kind {
	case EventSubmit:
		var effects []Effect
		if s.Phase == Polling {
			effects = append(effects, Effect{Kind: EffectDisarm})
		}
		next := State{Phase: Submitting, Cycle: s.Cycle + 1, Directive: ev.Directive}
		return next, append(effects, Effect{Kind: EffectCreate})

	case EventStop:
		if s.Phase == Idle {
			return s, nil
		}
		next := s
		next.Phase = Idle
		if s.Phase == Polling {
			return next, []Effect{{Kind: EffectDisarm}}
		}
		return next, nil
	}

	if ev.Cycle != s.Cycle {
		return s, nil
	}

	switch ev.Kind {
	case EventCreated:
		if s.Phase != Submitting {
			return s, nil
		}
		id := ev.Snapshot.ID()
		if id == "" {
			return failed(s, job.OutcomeSubmitError, ErrMissingJobID, false)
		}
		next := s
		next.JobID = id
		next.PollCount = 0
		next.Last = ev.Snapshot
		if st := ev.Snapshot.Status(); st.IsTerminal() {
			next.Phase = Idle
			next.Outcome = job.Outcome(st)
			return next, []Effect{notify(next, 0)}
		}
		next.Phase = Polling
		return next, []Effect{{Kind: EffectArm}}

	case EventCreateFailed:
		if s.Phase != Submitting {
			return s, nil
		}
		return failed(s, job.OutcomeSubmitError, ev.Err, false)

	case EventPolled:
		if s.Phase != Polling {
			return s, nil
		}
		next := s
		next.Last = ev.Snapshot
		if st := ev.Snapshot.Status(); st.IsTerminal() {
			next.Phase = Idle
			next.Outcome = job.Outcome(st)
			return next, []Effect{{Kind: EffectDisarm}, notify(next, s.PollCount+1)}
		}
		next.PollCount++
		if next.PollCount >= lim.MaxPolls {
			next.Phase = Idle
			next.Outcome = job.OutcomeTimedOut
			return next, []Effect{{Kind: EffectDisarm}, notify(next, next.PollCount)}
		}
		return next, nil

	case EventPollFailed:
		if s.Phase != Polling {
			return s, nil
		}
		return failed(s, job.OutcomePollError, ev.Err, true)
	}
	return s, nil
}

func failed(s State, outcome job.Outcome, err error, armed bool) (State, []Effect) {
	next := s
	next.Phase = Idle
	next.Outcome = outcome
	var effects []Effect
	if armed {
		effects = append(effects, Effect{Kind: EffectDisarm})
	}
	return next, append(effects, Effect{Kind: EffectReport, Outcome: outcome, Err: err})
}

// notify builds the completion effect; polls is the number of status
// requests issued during the cycle.
func notify(s State, polls int) Effect {
	return Effect{Kind: EffectNotify, Result: Result{
		Outcome:  s.Outcome,
		JobID:    s.JobID,
		Polls:    polls,
		Snapshot: s.Last,
	}}
}
