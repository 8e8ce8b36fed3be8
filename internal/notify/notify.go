package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

// Sink receives one event per finished submission cycle.
type Sink interface {
	Publish(ctx context.Context, c job.Completion) error
	Close() error
}

// Open builds the sink named by cfg.Kind. Completions are always logged; the
// configured broker, if any, is added on top.
func Open(ctx context.Context, cfg config.Notify, log *logrus.Entry) (Sink, error) {
	logSink := NewLogSink(log)
	var (
		s   Sink
		err error
	)
	switch cfg.Kind {
	case "", "log":
		return logSink, nil
	case "nats":
		s, err = NewNATSSink(cfg.URL, cfg.Target)
	case "redis":
		s, err = NewRedisSink(cfg.URL, cfg.Target)
	case "sqs":
		s, err = NewSQSSink(ctx, cfg.Target)
	default:
		return nil, fmt.Errorf("notify: unknown sink kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("notify: open %s: %w", cfg.Kind, err)
	}
	return Multi{logSink, s}, nil
}

type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

func (l *LogSink) Publish(_ context.Context, c job.Completion) error {
	entry := l.log.WithFields(logrus.Fields{
		"job_id":    c.JobID,
		"directive": c.Directive,
		"outcome":   c.Outcome,
		"status":    c.Status,
		"polls":     c.Polls,
	})
	if c.Outcome == job.OutcomeCompleted {
		entry.Info("Published completion")
	} else {
		entry.Warn("Published completion")
	}
	return nil
}

func (l *LogSink) Close() error { return nil }

// Multi fans a completion out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, c job.Completion) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
