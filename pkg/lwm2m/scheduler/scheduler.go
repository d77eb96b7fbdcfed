// Package scheduler is a thin, single-threaded cooperative job queue:
// a monotonic-time priority queue supporting one-shot and retryable
// jobs, with idempotent cancellation by handle. Exactly one job body
// runs at a time, on whatever goroutine calls RunDue; every other
// component in the session core assumes it is driven from that same
// goroutine, so the queue itself carries no locking.
package scheduler

import (
	"container/heap"
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Handle is a stable job identifier. The zero Handle never matches a
// real job, so it doubles as a "no job scheduled" sentinel.
type Handle string

// JobFunc is a one-shot job body.
type JobFunc func(ctx context.Context)

// RetryableFunc is a retryable job body. Returning a non-nil error asks
// the scheduler to re-enqueue the job under its backoff policy;
// returning nil dismisses it.
type RetryableFunc func(ctx context.Context) error

// job is the value model described for the scheduler: a deadline, a
// stable handle, an optional backoff policy, and the closure to run.
// Cancellation never removes a job from the heap directly — it sets
// the tombstone so a concurrent heap mutation is never required.
type job struct {
	when      time.Time
	handle    Handle
	tombstone bool
	retry     RetryableFunc
	once      JobFunc
	boff      backoff.BackOff
	index     int
}

type jobQueue []*job

func (q jobQueue) Len() int            { return len(q) }
func (q jobQueue) Less(i, j int) bool  { return q[i].when.Before(q[j].when) }
func (q jobQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index, q[j].index = i, j }
func (q *jobQueue) Push(x interface{}) {
	n := x.(*job)
	n.index = len(*q)
	*q = append(*q, n)
}
func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Scheduler is a monotonic-time job queue. Not safe for concurrent use
// from multiple goroutines; see the package doc comment.
type Scheduler struct {
	queue   jobQueue
	byHandle map[Handle]*job
	now     func() time.Time
	newBackoff func() backoff.BackOff
}

// New returns an empty Scheduler. nowFn lets tests substitute a fake
// clock; pass nil to use time.Now.
func New(nowFn func() time.Time) *Scheduler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Scheduler{
		byHandle:   make(map[Handle]*job),
		now:        nowFn,
		newBackoff: DefaultBackoffPolicy,
	}
}

// DefaultBackoffPolicy is the standard exponential-backoff policy used
// by activation and registration retries, analogous to the original's
// ANJAY_SERVER_RETRYABLE_BACKOFF.
func DefaultBackoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 3 * time.Second
	b.MaxInterval = 2 * time.Minute
	b.MaxElapsedTime = 0 // retry indefinitely; give-up is a domain decision, not the backoff's
	b.Multiplier = 2
	return b
}

// ScheduleOnce enqueues a one-shot job to run at or after when.
func (s *Scheduler) ScheduleOnce(when time.Time, fn JobFunc) Handle {
	j := &job{when: when, handle: Handle(uuid.NewString()), once: fn}
	s.insert(j)
	return j.handle
}

// ScheduleRetryable enqueues a retryable job to run first at when; on
// error it is automatically re-enqueued using its own backoff.BackOff
// instance, created fresh from the scheduler's policy.
func (s *Scheduler) ScheduleRetryable(when time.Time, fn RetryableFunc) Handle {
	j := &job{when: when, handle: Handle(uuid.NewString()), retry: fn, boff: s.newBackoff()}
	s.insert(j)
	return j.handle
}

func (s *Scheduler) insert(j *job) {
	s.byHandle[j.handle] = j
	heap.Push(&s.queue, j)
}

// Cancel tombstones handle if it is still pending. Idempotent: cancelling
// an unknown or already-fired handle is a no-op, never an error.
func (s *Scheduler) Cancel(handle Handle) {
	if handle == "" {
		return
	}
	if j, ok := s.byHandle[handle]; ok {
		j.tombstone = true
		delete(s.byHandle, handle)
	}
}

// Pending reports whether handle still names an un-fired, uncancelled job.
func (s *Scheduler) Pending(handle Handle) bool {
	if handle == "" {
		return false
	}
	_, ok := s.byHandle[handle]
	return ok
}

// Len returns the number of live (non-tombstoned) jobs.
func (s *Scheduler) Len() int { return len(s.byHandle) }

// RunDue pops and runs every job whose deadline has passed as of now(),
// in deadline order. Retryable jobs that return an error are
// re-enqueued under their backoff policy; one-shot jobs and retryable
// jobs that return nil are dropped after running. Returns the number
// of job bodies actually invoked.
func (s *Scheduler) RunDue(ctx context.Context) int {
	ran := 0
	now := s.now()
	for s.queue.Len() > 0 && !s.queue[0].when.After(now) {
		j := heap.Pop(&s.queue).(*job)
		if j.tombstone {
			continue
		}
		delete(s.byHandle, j.handle)
		ran++

		if j.once != nil {
			j.once(ctx)
			continue
		}

		if err := j.retry(ctx); err != nil {
			next := j.boff.NextBackOff()
			if next == backoff.Stop {
				continue
			}
			j.when = now.Add(next)
			j.tombstone = false
			s.insert(j)
		}
	}
	return ran
}

// NextDeadline returns the time of the earliest pending job and true,
// or the zero time and false if the queue is empty. Callers typically
// use this to size a timer/select wakeup.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	for s.queue.Len() > 0 && s.queue[0].tombstone {
		heap.Pop(&s.queue)
	}
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].when, true
}
