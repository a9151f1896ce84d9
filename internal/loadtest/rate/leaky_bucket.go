// Package rate paces iterations for open-model executors.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket releases iterations at a fixed rate.
//
// Each call to Next claims the next free slot on a schedule spaced 1/rate
// apart. A caller that falls behind gets a slot at the current time rather
// than a backlog of past slots, so a slow target never causes a burst.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	mu       sync.Mutex
	rate     float64
	interval time.Duration
	next     time.Time

	released atomic.Int64
	waited   atomic.Int64
}

// NewLeakyBucket returns a bucket releasing rate iterations per second.
// Non-positive rates are treated as 1.
func NewLeakyBucket(rate float64) *LeakyBucket {
	lb := &LeakyBucket{}
	lb.SetRate(rate)
	return lb
}

// Next claims a slot and returns when it starts. The result is never in the
// past relative to the call.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	slot := lb.next
	if slot.Before(now) {
		slot = now
	}
	lb.next = slot.Add(lb.interval)

	lb.released.Add(1)
	lb.waited.Add(int64(slot.Sub(now)))
	return slot
}

// Wait blocks until the next slot or until ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Next())
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetRate changes the rate. The schedule restarts from now so slots claimed
// at the old rate are not replayed.
func (lb *LeakyBucket) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.rate = rate
	lb.interval = time.Duration(float64(time.Second) / rate)
	lb.next = time.Now()
}

// Rate returns the current rate in iterations per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats reports how many slots were released and the total time callers
// were asked to wait.
func (lb *LeakyBucket) Stats() Stats {
	return Stats{
		Rate:     lb.Rate(),
		Released: lb.released.Load(),
		Waited:   time.Duration(lb.waited.Load()),
	}
}

// Stats is a point-in-time view of a LeakyBucket.
type Stats struct {
	Rate     float64       `json:"rate"`
	Released int64         `json:"released"`
	Waited   time.Duration `json:"waited"`
}
