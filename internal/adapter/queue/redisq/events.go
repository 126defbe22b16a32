package redisq

import "sync"

// Subscriber observes job lifecycle transitions. Implementations must not
// block for long; events for one job are delivered sequentially from the
// goroutine driving that job.
type Subscriber interface {
	OnWaiting(job *Job)
	OnActive(job *Job)
	OnCompleted(job *Job)
	OnFailed(job *Job, reason string)
	OnStalled(job *Job)
}

// NopSubscriber is a Subscriber with empty methods, intended for embedding
// so observers only implement the events they care about.
type NopSubscriber struct{}

func (NopSubscriber) OnWaiting(*Job)        {}
func (NopSubscriber) OnActive(*Job)         {}
func (NopSubscriber) OnCompleted(*Job)      {}
func (NopSubscriber) OnFailed(*Job, string) {}
func (NopSubscriber) OnStalled(*Job)        {}

type fanout struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func newFanout() *fanout { return &fanout{} }

func (f *fanout) add(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
}

func (f *fanout) snapshot() []Subscriber {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Subscriber(nil), f.subs...)
}

func (f *fanout) waiting(j *Job) {
	for _, s := range f.snapshot() {
		s.OnWaiting(j)
	}
}

func (f *fanout) active(j *Job) {
	for _, s := range f.snapshot() {
		s.OnActive(j)
	}
}

func (f *fanout) completed(j *Job) {
	for _, s := range f.snapshot() {
		s.OnCompleted(j)
	}
}

func (f *fanout) failed(j *Job, reason string) {
	for _, s := range f.snapshot() {
		s.OnFailed(j, reason)
	}
}

func (f *fanout) stalled(j *Job) {
	for _, s := range f.snapshot() {
		s.OnStalled(j)
	}
}
