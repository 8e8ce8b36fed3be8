package asyncjob

import (
	"context"
	"sync"
	"time"
)

// ticket is a cancellable fixed-interval task. The task runs on a single
// goroutine, so a slow tick delays the next one instead of overlapping it.
type ticket struct {
	cancel context.CancelFunc
}

// schedule starts task every interval until the ticket is stopped or parent
// is cancelled. wg tracks the loop goroutine.
func schedule(parent context.Context, wg *sync.WaitGroup, interval time.Duration, task func(ctx context.Context)) *ticket {
	ctx, cancel := context.WithCancel(parent)
	t := &ticket{cancel: cancel}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.loop(ctx, interval, task)
	}()
	return t
}

func (t *ticket) loop(ctx context.Context, interval time.Duration, task func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// cancel may race with the tick
			if ctx.Err() != nil {
				return
			}
			task(ctx)
		}
	}
}

// Stop cancels future ticks. It does not wait, so it is safe to call from
// inside the task.
func (t *ticket) Stop() {
	t.cancel()
}
