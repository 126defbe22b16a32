// Package redisq implements a durable multi-class priority job queue on
// Redis.
//
// Jobs of equal priority dispatch in enqueue order; across classes the
// lowest priority value wins whenever a worker frees up. Delivery is
// at-least-once: an active job whose stall deadline lapses is returned to
// its waiting list by the janitor. Transient handler failures reschedule
// with exponential backoff until attempts are exhausted, at which point the
// job lands in the failed retention list and subscribers observe a failed
// event (the dead-letter path).
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
)

// Options configures a Queue. Zero values fall back to the defaults below.
type Options struct {
	Name          string
	MaxAttempts   int
	BackoffBase   time.Duration
	KeepCompleted int
	KeepFailed    int
	StallTimeout  time.Duration
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "orders"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.KeepCompleted <= 0 {
		o.KeepCompleted = 500
	}
	if o.KeepFailed <= 0 {
		o.KeepFailed = 10
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	return o
}

// Queue is a handle on one named queue. Safe for concurrent use.
type Queue struct {
	rdb  redis.UniversalClient
	opts Options
	base string

	fanout *fanout

	scriptEnqueue  *redis.Script
	scriptFetch    *redis.Script
	scriptPromote  *redis.Script
	scriptRetry    *redis.Script
	scriptComplete *redis.Script
	scriptFail     *redis.Script
	scriptReclaim  *redis.Script
}

// New constructs a Queue on the given Redis client.
func New(rdb redis.UniversalClient, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		rdb:            rdb,
		opts:           opts,
		base:           "redisq:" + opts.Name,
		fanout:         newFanout(),
		scriptEnqueue:  redis.NewScript(enqueueScript),
		scriptFetch:    redis.NewScript(fetchScript),
		scriptPromote:  redis.NewScript(promoteScript),
		scriptRetry:    redis.NewScript(retryScript),
		scriptComplete: redis.NewScript(completeScript),
		scriptFail:     redis.NewScript(failScript),
		scriptReclaim:  redis.NewScript(reclaimScript),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.opts.Name }

// Subscribe registers a lifecycle subscriber. Events for a given job are
// delivered sequentially; distinct jobs may deliver concurrently.
func (q *Queue) Subscribe(s Subscriber) { q.fanout.add(s) }

func (q *Queue) jobKey(id string) string { return q.base + ":job:" + id }
func (q *Queue) waitKey(p int) string    { return q.base + ":wait:" + strconv.Itoa(p) }
func (q *Queue) priosKey() string        { return q.base + ":prios" }
func (q *Queue) delayedKey() string      { return q.base + ":delayed" }
func (q *Queue) activeKey() string       { return q.base + ":active" }
func (q *Queue) completedKey() string    { return q.base + ":completed" }
func (q *Queue) failedKey() string       { return q.base + ":failed" }

// Enqueue adds a job with the given priority class (lower dispatches
// earlier) and returns its id.
func (q *Queue) Enqueue(ctx context.Context, payload []byte, priority int) (string, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "redisq.Enqueue")
	defer span.End()
	if len(payload) == 0 {
		return "", errors.New("op=queue.enqueue: empty payload")
	}
	id := newJobID()
	keys := []string{q.jobKey(id), q.waitKey(priority), q.priosKey()}
	err := q.scriptEnqueue.Run(ctx, q.rdb, keys,
		id, payload, priority, q.opts.MaxAttempts, time.Now().UnixMilli()).Err()
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	job := &Job{ID: id, Payload: payload, Priority: priority, MaxAttempts: q.opts.MaxAttempts}
	q.fanout.waiting(job)
	observability.EnqueueJob(q.opts.Name, priority)
	return id, nil
}

// fetch claims the next job or returns (nil, nil) when every class is empty.
func (q *Queue) fetch(ctx context.Context) (*Job, error) {
	deadline := time.Now().Add(q.opts.StallTimeout).UnixMilli()
	res, err := q.scriptFetch.Run(ctx, q.rdb, []string{q.priosKey(), q.activeKey()}, q.base, deadline).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=queue.fetch: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 6 {
		return nil, fmt.Errorf("op=queue.fetch: unexpected reply %T", res)
	}
	job := &Job{
		ID:           toString(vals[0]),
		Payload:      []byte(toString(vals[1])),
		Priority:     toInt(vals[2]),
		Attempts:     toInt(vals[3]),
		MaxAttempts:  toInt(vals[4]),
		FailedReason: toString(vals[5]),
	}
	return job, nil
}

// promoteDelayed moves up to limit due delayed jobs back to waiting.
func (q *Queue) promoteDelayed(ctx context.Context, limit int) (int, error) {
	n, err := q.scriptPromote.Run(ctx, q.rdb, []string{q.delayedKey(), q.priosKey()},
		q.base, time.Now().UnixMilli(), limit).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("op=queue.promote: %w", err)
	}
	return n, nil
}

// backoffDelay computes the delay before re-dispatching after the given
// failed attempt number: base * 2^(attempt-1).
func (q *Queue) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	return q.opts.BackoffBase << shift
}

// retryOrFail reschedules a transiently failed job with backoff, or fails it
// terminally when attempts are exhausted. Reports whether the job failed.
func (q *Queue) retryOrFail(ctx context.Context, job *Job, cause error) (failed bool, err error) {
	delay := q.backoffDelay(job.Attempts)
	readyAt := time.Now().Add(delay).UnixMilli()
	reason := cause.Error()
	res, err := q.scriptRetry.Run(ctx, q.rdb,
		[]string{q.activeKey(), q.delayedKey(), q.failedKey()},
		q.base, job.ID, readyAt, reason, q.opts.KeepFailed).Text()
	if err != nil {
		return false, fmt.Errorf("op=queue.retry: %w", err)
	}
	if res == StateFailed {
		job.FailedReason = reason
		q.fanout.failed(job, reason)
		observability.JobsFailedTotal.WithLabelValues(q.opts.Name).Inc()
		return true, nil
	}
	observability.JobsRetriedTotal.WithLabelValues(q.opts.Name).Inc()
	slog.Debug("job scheduled for retry",
		slog.String("queue", q.opts.Name),
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
		slog.Duration("delay", delay))
	return false, nil
}

// complete acknowledges a successfully handled job.
func (q *Queue) complete(ctx context.Context, job *Job) error {
	err := q.scriptComplete.Run(ctx, q.rdb, []string{q.activeKey(), q.completedKey()},
		q.base, job.ID, q.opts.KeepCompleted).Err()
	if err != nil {
		return fmt.Errorf("op=queue.complete: %w", err)
	}
	q.fanout.completed(job)
	observability.JobsCompletedTotal.WithLabelValues(q.opts.Name).Inc()
	return nil
}

// MoveToFailed short-circuits remaining retries and fails the job
// terminally. Handlers call this for business failures that must not burn
// retry attempts.
func (q *Queue) MoveToFailed(ctx context.Context, job *Job, reason string) error {
	err := q.scriptFail.Run(ctx, q.rdb, []string{q.activeKey(), q.failedKey()},
		q.base, job.ID, reason, q.opts.KeepFailed).Err()
	if err != nil {
		return fmt.Errorf("op=queue.move_to_failed: %w", err)
	}
	job.settled = true
	job.FailedReason = reason
	q.fanout.failed(job, reason)
	observability.JobsFailedTotal.WithLabelValues(q.opts.Name).Inc()
	return nil
}

// reclaimStalled requeues jobs whose stall deadline passed and emits
// stalled events for them.
func (q *Queue) reclaimStalled(ctx context.Context, limit int) ([]string, error) {
	res, err := q.scriptReclaim.Run(ctx, q.rdb, []string{q.activeKey(), q.priosKey()},
		q.base, time.Now().UnixMilli(), limit).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=queue.reclaim: %w", err)
	}
	for _, id := range res {
		job, loadErr := q.loadJob(ctx, id)
		if loadErr != nil {
			slog.Warn("stalled job vanished before load", slog.String("job_id", id), slog.Any("error", loadErr))
			continue
		}
		q.fanout.stalled(job)
		observability.JobsStalledTotal.WithLabelValues(q.opts.Name).Inc()
	}
	return res, nil
}

// loadJob reads a job hash.
func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	vals, err := q.rdb.HMGet(ctx, q.jobKey(id), "payload", "priority", "attempts", "max_attempts", "reason").Result()
	if err != nil {
		return nil, fmt.Errorf("op=queue.load_job: %w", err)
	}
	if len(vals) < 5 || vals[0] == nil {
		return nil, fmt.Errorf("op=queue.load_job: job %s missing", id)
	}
	return &Job{
		ID:           id,
		Payload:      []byte(toString(vals[0])),
		Priority:     toInt(vals[1]),
		Attempts:     toInt(vals[2]),
		MaxAttempts:  toInt(vals[3]),
		FailedReason: toString(vals[4]),
	}, nil
}

// Counts reports how many jobs sit in each lifecycle state, for
// observability and tests.
func (q *Queue) Counts(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	prios, err := q.rdb.ZRange(ctx, q.priosKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("op=queue.counts: %w", err)
	}
	var waiting int64
	for _, p := range prios {
		pi, convErr := strconv.Atoi(p)
		if convErr != nil {
			continue
		}
		n, lErr := q.rdb.LLen(ctx, q.waitKey(pi)).Result()
		if lErr != nil {
			return nil, fmt.Errorf("op=queue.counts: %w", lErr)
		}
		waiting += n
	}
	out[StateWaiting] = waiting
	if out[StateDelayed], err = q.rdb.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return nil, fmt.Errorf("op=queue.counts: %w", err)
	}
	if out[StateActive], err = q.rdb.ZCard(ctx, q.activeKey()).Result(); err != nil {
		return nil, fmt.Errorf("op=queue.counts: %w", err)
	}
	if out[StateCompleted], err = q.rdb.LLen(ctx, q.completedKey()).Result(); err != nil {
		return nil, fmt.Errorf("op=queue.counts: %w", err)
	}
	if out[StateFailed], err = q.rdb.LLen(ctx, q.failedKey()).Result(); err != nil {
		return nil, fmt.Errorf("op=queue.counts: %w", err)
	}
	return out, nil
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	case []byte:
		i, _ := strconv.Atoi(string(n))
		return i
	default:
		return 0
	}
}
