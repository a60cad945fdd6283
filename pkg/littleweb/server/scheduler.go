package server

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
)

// Scheduler tracks active worker counts per queue and enforces the
// per-queue and global concurrency limits (spec.md §4.4). All state is
// guarded by a single lock, matching the spec's "each guarded by a
// lock" framing for a small, infrequently-contended structure.
type Scheduler struct {
	mu           sync.Mutex
	active       map[QueueName]int
	limits       Limits
	pollInterval time.Duration
	stopping     bool
}

// NewScheduler constructs a Scheduler enforcing limits.
func NewScheduler(limits Limits, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Scheduler{active: map[QueueName]int{}, limits: limits, pollInterval: pollInterval}
}

// Acquire blocks until a slot is free on q and the global total, per
// spec.md §4.4's waitForQueueToBeAvailable: it spins at pollInterval,
// aborting on ctx cancellation or shutdown.
func (s *Scheduler) Acquire(ctx context.Context, q QueueName) error {
	for {
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			return lwerr.ErrShutdownInProgress
		}
		if s.hasRoomLocked(q) {
			s.active[q]++
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Scheduler) hasRoomLocked(q QueueName) bool {
	if max, ok := s.limits.MaxPerQueue[q]; ok && max >= 0 && s.active[q] >= max {
		return false
	}
	if s.limits.MaxTotal >= 0 && s.totalLocked() >= s.limits.MaxTotal {
		return false
	}
	return true
}

func (s *Scheduler) totalLocked() int {
	total := 0
	for _, n := range s.active {
		total += n
	}
	return total
}

// Release frees one slot on q.
func (s *Scheduler) Release(q QueueName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[q] > 0 {
		s.active[q]--
	}
}

// Hop moves one slot's ownership from "from" to "to",
// waiting on "to" exactly as Acquire does (spec.md §4.4 step 9). The
// "from" slot is released before waiting so it does not hold capacity
// hostage while the hop is pending.
func (s *Scheduler) Hop(ctx context.Context, from, to QueueName) error {
	s.Release(from)
	return s.Acquire(ctx, to)
}

// Stopping reports whether Shutdown has been called.
func (s *Scheduler) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Shutdown marks the scheduler as stopping; subsequent and in-flight
// Acquire calls fail with lwerr.ErrShutdownInProgress.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

// ActiveCount returns the current worker count for q, for diagnostics.
func (s *Scheduler) ActiveCount(q QueueName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[q]
}
