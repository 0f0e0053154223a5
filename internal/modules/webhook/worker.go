package webhook

import (
	"context"
	"time"
)

// Worker periodically replays deferred events so an event that beat its booking is applied
// even when no further verify call arrives.
type Worker struct {
	service  *Service
	interval time.Duration
	batch    int
	loggerf  func(format string, args ...interface{})
}

func NewWorker(service *Service, interval time.Duration, batch int, loggerf func(format string, args ...interface{})) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Worker{service: service, interval: interval, batch: batch, loggerf: loggerf}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.loggerf("level=info msg=webhook_replay_worker_started interval=%s batch=%d", w.interval, w.batch)
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.loggerf("level=info msg=webhook_replay_worker_stopped")
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if _, err := w.service.ReplayDeferred(ctx, w.batch); err != nil && ctx.Err() == nil {
		w.loggerf("level=warn msg=webhook_replay_tick_failed err=%v", err)
	}
}
