package redisq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts Options) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	if opts.Name == "" {
		opts.Name = "test"
	}
	return New(rdb, opts), rdb
}

type recordingSubscriber struct {
	mu      sync.Mutex
	events  []string
	reasons map[string]string
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{reasons: map[string]string{}}
}

func (r *recordingSubscriber) record(ev, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev+":"+id)
}

func (r *recordingSubscriber) OnWaiting(j *Job)   { r.record("waiting", j.ID) }
func (r *recordingSubscriber) OnActive(j *Job)    { r.record("active", j.ID) }
func (r *recordingSubscriber) OnCompleted(j *Job) { r.record("completed", j.ID) }
func (r *recordingSubscriber) OnStalled(j *Job)   { r.record("stalled", j.ID) }

func (r *recordingSubscriber) OnFailed(j *Job, reason string) {
	r.mu.Lock()
	r.reasons[j.ID] = reason
	r.mu.Unlock()
	r.record("failed", j.ID)
}

func (r *recordingSubscriber) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingSubscriber) reasonFor(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reasons[id]
}

func TestEnqueueFetchFIFOWithinClass(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, []byte(fmt.Sprintf("job-%d", i)), 10)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < 3; i++ {
		job, err := q.fetch(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.Equal(t, ids[i], job.ID)
		require.Equal(t, []byte(fmt.Sprintf("job-%d", i)), job.Payload)
		require.Equal(t, 1, job.Attempts)
	}

	job, err := q.fetch(ctx)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestFetchLowerPriorityClassWins(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte("standard-1"), 10)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, []byte("standard-2"), 10)
	require.NoError(t, err)
	vipID, err := q.Enqueue(ctx, []byte("vip"), 1)
	require.NoError(t, err)

	job, err := q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, vipID, job.ID)
	require.Equal(t, 1, job.Priority)

	job, err = q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("standard-1"), job.Payload)
}

func TestRetrySchedulesExponentialBackoff(t *testing.T) {
	q, rdb := newTestQueue(t, Options{BackoffBase: 2 * time.Second, MaxAttempts: 5})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)

	job, err := q.fetch(ctx)
	require.NoError(t, err)

	before := time.Now()
	failed, err := q.retryOrFail(ctx, job, errors.New("transient"))
	require.NoError(t, err)
	require.False(t, failed)

	score, err := rdb.ZScore(ctx, q.delayedKey(), id).Result()
	require.NoError(t, err)
	readyAt := time.UnixMilli(int64(score))
	delay := readyAt.Sub(before)
	require.InDelta(t, (2 * time.Second).Seconds(), delay.Seconds(), 0.5)

	// Not yet due, so promotion is a no-op.
	n, err := q.promoteDelayed(ctx, 64)
	require.NoError(t, err)
	require.Zero(t, n)

	state, err := rdb.HGet(ctx, q.jobKey(id), "state").Result()
	require.NoError(t, err)
	require.Equal(t, StateDelayed, state)
}

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	q, _ := newTestQueue(t, Options{BackoffBase: 2 * time.Second})
	require.Equal(t, 2*time.Second, q.backoffDelay(1))
	require.Equal(t, 4*time.Second, q.backoffDelay(2))
	require.Equal(t, 8*time.Second, q.backoffDelay(3))
	require.Equal(t, 16*time.Second, q.backoffDelay(4))
}

func TestRetryExhaustionMovesToFailed(t *testing.T) {
	q, rdb := newTestQueue(t, Options{MaxAttempts: 2, BackoffBase: time.Millisecond})
	sub := newRecordingSubscriber()
	q.Subscribe(sub)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)

	job, err := q.fetch(ctx)
	require.NoError(t, err)
	failed, err := q.retryOrFail(ctx, job, errors.New("boom 1"))
	require.NoError(t, err)
	require.False(t, failed)

	time.Sleep(5 * time.Millisecond)
	n, err := q.promoteDelayed(ctx, 64)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err = q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, job.Attempts)

	failed, err = q.retryOrFail(ctx, job, errors.New("boom 2"))
	require.NoError(t, err)
	require.True(t, failed)

	members, err := rdb.LRange(ctx, q.failedKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{id}, members)
	require.Equal(t, "boom 2", sub.reasonFor(id))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts[StateFailed])
	require.EqualValues(t, 0, counts[StateWaiting])
	require.EqualValues(t, 0, counts[StateActive])
}

func TestCompletedRetentionTrims(t *testing.T) {
	q, rdb := newTestQueue(t, Options{KeepCompleted: 2})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, []byte("p"), 10)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < 3; i++ {
		job, err := q.fetch(ctx)
		require.NoError(t, err)
		require.NoError(t, q.complete(ctx, job))
	}

	members, err := rdb.LRange(ctx, q.completedKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 2)
	// Oldest completion is evicted along with its hash.
	exists, err := rdb.Exists(ctx, q.jobKey(ids[0])).Result()
	require.NoError(t, err)
	require.Zero(t, exists)
	exists, err = rdb.Exists(ctx, q.jobKey(ids[2])).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, exists)
}

func TestMoveToFailedBypassesRemainingAttempts(t *testing.T) {
	q, rdb := newTestQueue(t, Options{MaxAttempts: 5})
	sub := newRecordingSubscriber()
	q.Subscribe(sub)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)

	job, err := q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)

	require.NoError(t, q.MoveToFailed(ctx, job, "Insufficient stock"))
	require.True(t, job.settled)
	require.Equal(t, "Insufficient stock", job.FailedReason)
	require.Equal(t, "Insufficient stock", sub.reasonFor(id))

	state, err := rdb.HGet(ctx, q.jobKey(id), "state").Result()
	require.NoError(t, err)
	require.Equal(t, StateFailed, state)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, counts[StateFailed])
	require.EqualValues(t, 0, counts[StateDelayed])
}

func TestReclaimStalledRequeues(t *testing.T) {
	q, _ := newTestQueue(t, Options{StallTimeout: 10 * time.Millisecond})
	sub := newRecordingSubscriber()
	q.Subscribe(sub)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)

	job, err := q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)

	time.Sleep(20 * time.Millisecond)
	ids, err := q.reclaimStalled(ctx, 64)
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)
	require.Contains(t, sub.snapshot(), "stalled:"+id)

	// Redelivered with the attempt counter carried over.
	job, err = q.fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.Equal(t, 2, job.Attempts)
}

func TestWorkerProcessesJobs(t *testing.T) {
	q, _ := newTestQueue(t, Options{PollInterval: 5 * time.Millisecond})
	sub := newRecordingSubscriber()
	q.Subscribe(sub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int32
	h := HandlerFunc(func(_ context.Context, _ *Job) error {
		handled.Add(1)
		return nil
	})
	w := NewWorker(q, h, 2, time.Second)

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(ctx, []byte(fmt.Sprintf("job-%d", i)), 10)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return handled.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	counts, err := q.Counts(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 4, counts[StateCompleted])
}

func TestWorkerRetriesTransientFailure(t *testing.T) {
	q, _ := newTestQueue(t, Options{
		PollInterval: 5 * time.Millisecond,
		BackoffBase:  time.Millisecond,
		MaxAttempts:  5,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	h := HandlerFunc(func(_ context.Context, _ *Job) error {
		if calls.Add(1) == 1 {
			return errors.New("payment gateway timeout - please retry")
		}
		return nil
	})
	w := NewWorker(q, h, 1, time.Second)

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	_, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, cErr := q.Counts(context.Background())
		return cErr == nil && counts[StateCompleted] == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 2, calls.Load())
	cancel()
	<-done
}

func TestSubscriberSeesLifecycle(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	sub := newRecordingSubscriber()
	q.Subscribe(sub)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte("p"), 10)
	require.NoError(t, err)
	job, err := q.fetch(ctx)
	require.NoError(t, err)
	q.fanout.active(job)
	require.NoError(t, q.complete(ctx, job))

	require.Equal(t, []string{"waiting:" + id, "active:" + id, "completed:" + id}, sub.snapshot())
}
