package loadtest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

// VUScheduler owns the VU pool of a run: it spawns, scales and stops VUs and
// shares one HTTP client between them.
type VUScheduler struct {
	workload *Workload
	metrics  *metrics.Engine
	logger   *zap.Logger

	client    *http.Client
	transport *http.Transport

	vus      map[int]*VirtualUser
	vusMu    sync.RWMutex
	nextVUID atomic.Int32
	baseSeed int64

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownWg   sync.WaitGroup
}

// NewVUScheduler creates a scheduler. A nil logger disables logging.
func NewVUScheduler(workload *Workload, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig, logger *zap.Logger) *VUScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, transport := NewHTTPClient(httpConfig, workload.Target.Token)

	baseSeed := workload.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	return &VUScheduler{
		workload:   workload,
		metrics:    metricsEngine,
		logger:     logger,
		client:     client,
		transport:  transport,
		vus:        make(map[int]*VirtualUser),
		baseSeed:   baseSeed,
		shutdownCh: make(chan struct{}),
	}
}

// vuSeed gives every VU its own reproducible stream.
func (s *VUScheduler) vuSeed(id int) int64 {
	seed := s.baseSeed + int64(id)*1_000_003
	if seed == 0 {
		seed = 1
	}
	return seed
}

// SpawnVU creates an idle VU and adds it to the pool. The caller runs it.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.workload, s.client, s.metrics, xray.NewRand(s.vuSeed(id)))
	vu.Logger = s.logger

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUCount returns the number of VUs that have not stopped.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// runningVUs returns the VUs not asked to stop, in spawn order.
func (s *VUScheduler) runningVUs() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	out := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if !vu.Stopping() {
			out = append(out, vu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StopAllVUs requests every VU to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// RemoveVU drops a VU from the pool, marking it stopped.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	if vu, ok := s.vus[id]; ok {
		vu.MarkStopped()
		delete(s.vus, id)
	}
}

// WaitForAllVUs waits for every VU to stop and returns how many did not
// within timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 || !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// RunVU loops iteration, think time, iteration until the VU is stopped, ctx
// is done or the scheduler shuts down. It blocks; Go runs it in a goroutine
// that Shutdown waits for.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser) {
	defer s.RemoveVU(vu.ID)
	defer vu.MarkStopped()

	s.logger.Debug("vu started", zap.Int("vu", vu.ID))
	defer s.logger.Debug("vu stopped", zap.Int("vu", vu.ID), zap.Int64("iterations", vu.GetIteration()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		default:
		}

		if vu.Stopping() {
			return
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.Stopping() {
				return
			}
			s.logger.Error("iteration failed", zap.Int("vu", vu.ID), zap.Error(err))
			return
		}

		vu.Think(ctx)
	}
}

// Go starts RunVU in a new goroutine.
func (s *VUScheduler) Go(ctx context.Context, vu *VirtualUser) {
	s.Track(func() { s.RunVU(ctx, vu) })
}

// Track runs fn in a goroutine that Shutdown waits for.
func (s *VUScheduler) Track(fn func()) {
	s.shutdownWg.Add(1)
	go func() {
		defer s.shutdownWg.Done()
		fn()
	}()
}

// Done is closed when Shutdown starts.
func (s *VUScheduler) Done() <-chan struct{} {
	return s.shutdownCh
}

// ScaleVUs spawns or stops VUs until target are running. New VUs are handed
// to onSpawn, which is expected to start them. Stopped VUs are the most
// recently spawned. It returns the number of running VUs.
func (s *VUScheduler) ScaleVUs(target int, onSpawn func(*VirtualUser)) int {
	running := s.runningVUs()

	switch {
	case target > len(running):
		for i := len(running); i < target; i++ {
			vu := s.SpawnVU()
			if onSpawn != nil {
				onSpawn(vu)
			}
		}
	case target < len(running):
		for _, vu := range running[target:] {
			vu.RequestStop()
		}
	}

	s.UpdateMetrics()
	return len(s.runningVUs())
}

// UpdateMetrics publishes the active VU count.
func (s *VUScheduler) UpdateMetrics() {
	s.metrics.SetActiveVUs(s.GetActiveVUCount())
}

// Shutdown stops every VU and waits up to timeout for their goroutines. It
// reports whether they all exited. Safe to call more than once.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.StopAllVUs()

	done := make(chan struct{})
	go func() {
		s.shutdownWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	clean := true
	select {
	case <-done:
	case <-timer.C:
		clean = false
		s.logger.Warn("VUs still running after graceful stop", zap.Duration("timeout", timeout))
	}

	s.transport.CloseIdleConnections()
	s.UpdateMetrics()
	return clean
}

// Client returns the shared HTTP client.
func (s *VUScheduler) Client() *http.Client {
	return s.client
}
