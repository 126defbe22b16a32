package redisq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
)

// Handler processes a claimed job. Returning nil acknowledges the job;
// returning an error reschedules it with backoff (or fails it terminally once
// attempts are exhausted). Handlers that settle a job themselves via
// Queue.MoveToFailed may return nil or an error; the worker skips the
// acknowledgement either way.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// Worker drives a Queue with a fixed number of concurrent fetch loops plus a
// janitor that promotes delayed jobs and reclaims stalled ones.
type Worker struct {
	q           *Queue
	h           Handler
	concurrency int
	grace       time.Duration
}

// NewWorker builds a Worker. Concurrency below 1 is clamped to 1.
func NewWorker(q *Queue, h Handler, concurrency int, grace time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Worker{q: q, h: h, concurrency: concurrency, grace: grace}
}

// Run blocks until ctx is cancelled, then drains: fetch loops stop claiming
// new jobs and in-flight handlers get the grace period before their context
// is cancelled. Always returns nil after a clean drain.
func (w *Worker) Run(ctx context.Context) error {
	// Handlers run on a context that outlives ctx by the grace period, so a
	// shutdown signal does not abort work that is about to settle.
	handlerCtx, cancelHandlers := context.WithCancel(context.Background())
	defer cancelHandlers()

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.fetchLoop(ctx, handlerCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.janitorLoop(ctx)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.grace):
		slog.Warn("worker drain exceeded grace period, cancelling handlers",
			slog.String("queue", w.q.Name()),
			slog.Duration("grace", w.grace))
		cancelHandlers()
		<-done
	}
	slog.Info("worker stopped", slog.String("queue", w.q.Name()))
	return nil
}

func (w *Worker) fetchLoop(ctx, handlerCtx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.q.promoteDelayed(ctx, 64); err != nil && ctx.Err() == nil {
			slog.Error("promote delayed jobs", slog.String("queue", w.q.Name()), slog.Any("error", err))
		}
		job, err := w.q.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("fetch job", slog.String("queue", w.q.Name()), slog.Any("error", err))
			w.sleep(ctx, w.q.opts.PollInterval)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.q.opts.PollInterval)
			continue
		}
		w.process(handlerCtx, job)
	}
}

func (w *Worker) janitorLoop(ctx context.Context) {
	interval := w.q.opts.StallTimeout / 2
	if interval < w.q.opts.PollInterval {
		interval = w.q.opts.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := w.q.reclaimStalled(ctx, 64)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("reclaim stalled jobs", slog.String("queue", w.q.Name()), slog.Any("error", err))
				}
				continue
			}
			if len(ids) > 0 {
				slog.Warn("requeued stalled jobs",
					slog.String("queue", w.q.Name()),
					slog.Int("count", len(ids)))
			}
		}
	}
}

func (w *Worker) process(handlerCtx context.Context, job *Job) {
	w.q.fanout.active(job)
	observability.JobsActive.WithLabelValues(w.q.Name()).Inc()
	defer observability.JobsActive.WithLabelValues(w.q.Name()).Dec()

	start := time.Now()
	// Bound each attempt by the stall timeout so a hung handler cannot hold
	// the claim past its deadline while the janitor re-dispatches the job.
	attemptCtx, cancel := context.WithTimeout(handlerCtx, w.q.opts.StallTimeout)
	err := w.h.Handle(attemptCtx, job)
	cancel()
	observability.JobHandleDuration.WithLabelValues(w.q.Name()).Observe(time.Since(start).Seconds())

	if job.settled {
		return
	}
	if err == nil {
		if ackErr := w.q.complete(context.WithoutCancel(handlerCtx), job); ackErr != nil {
			slog.Error("ack completed job",
				slog.String("queue", w.q.Name()),
				slog.String("job_id", job.ID),
				slog.Any("error", ackErr))
		}
		return
	}
	failed, retryErr := w.q.retryOrFail(context.WithoutCancel(handlerCtx), job, err)
	if retryErr != nil {
		slog.Error("reschedule job",
			slog.String("queue", w.q.Name()),
			slog.String("job_id", job.ID),
			slog.Any("error", retryErr))
		return
	}
	if failed {
		slog.Warn("job exhausted attempts",
			slog.String("queue", w.q.Name()),
			slog.String("job_id", job.ID),
			slog.Int("attempts", job.Attempts),
			slog.String("reason", err.Error()))
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
