package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// bucketStore keeps a bounded ring of time buckets. Requests are counted
// lock-free between buckets; cut snapshots the interval and starts a new one.
type bucketStore struct {
	mu      sync.RWMutex
	ring    []*TimeBucket
	head    int
	count   int
	lastCut time.Time

	requests atomic.Int64
	failures atomic.Int64
}

func newBucketStore(max int) *bucketStore {
	if max <= 0 {
		max = 3600
	}
	return &bucketStore{ring: make([]*TimeBucket, max), lastCut: time.Now()}
}

func (s *bucketStore) record(success bool) {
	s.requests.Add(1)
	if !success {
		s.failures.Add(1)
	}
}

// cut closes the current interval. b carries the cumulative fields; the
// interval fields are filled in here.
func (s *bucketStore) cut(b *TimeBucket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.requests.Swap(0)
	failures := s.failures.Swap(0)

	secs := b.Timestamp.Sub(s.lastCut).Seconds()
	if secs <= 0 {
		secs = 1
	}
	b.IntervalRequests = requests
	b.IntervalRPS = float64(requests) / secs
	if requests > 0 {
		b.IntervalErrorRate = float64(failures) / float64(requests)
	}

	s.ring[s.head] = b
	s.head = (s.head + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.lastCut = b.Timestamp
}

// buckets returns the retained buckets oldest first.
func (s *bucketStore) buckets() []*TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}
	out := make([]*TimeBucket, s.count)
	start := (s.head - s.count + len(s.ring)) % len(s.ring)
	for i := range out {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out
}

// steadyStateRPS averages interval RPS over steady-phase buckets.
func (s *bucketStore) steadyStateRPS() (float64, int) {
	var sum float64
	var n int
	for _, b := range s.buckets() {
		if b.Phase == PhaseSteady {
			sum += b.IntervalRPS
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func (s *bucketStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = make([]*TimeBucket, len(s.ring))
	s.head, s.count = 0, 0
	s.lastCut = time.Now()
	s.requests.Store(0)
	s.failures.Store(0)
}
