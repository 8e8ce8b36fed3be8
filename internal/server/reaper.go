package server

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

// Reaper deletes jobs whose ttl passed more than Grace ago, the way the
// hosted table expires items some time after their ttl.
type Reaper struct {
	store    storage.JobStore
	interval time.Duration
	grace    time.Duration
	log      *logrus.Entry
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewReaper(store storage.JobStore, interval, grace time.Duration, log *logrus.Entry) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		store:    store,
		interval: interval,
		grace:    grace,
		log:      log,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Reaper) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			r.log.Debug("reaper: shutting down")
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Reaper) reap() int64 {
	n, err := r.store.DeleteExpired(r.now().Add(-r.grace))
	if err != nil {
		r.log.WithError(err).Error("reaper: delete expired jobs")
		return 0
	}
	if n > 0 {
		r.log.WithField("count", n).Info("reaper: expired jobs removed")
	}
	return n
}

func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
}
