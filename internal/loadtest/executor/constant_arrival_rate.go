package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wesleyorama2/xrayperf/internal/loadtest"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/rate"
)

// ConstantArrivalRate starts iterations at a fixed rate regardless of how
// long they take (open model). Iterations run on a pool of VUs that grows
// from PreAllocatedVUs up to MaxVUs; when every VU is busy the iteration is
// dropped and counted. VUs do not think between iterations.
type ConstantArrivalRate struct {
	config    *Config
	state     runState
	scheduler *loadtest.VUScheduler
	bucket    *rate.LeakyBucket

	pool    chan *loadtest.VirtualUser
	all     []*loadtest.VirtualUser
	allMu   sync.Mutex
	dropped atomic.Int64

	wg sync.WaitGroup
}

// NewConstantArrivalRate returns a constant-arrival-rate executor.
func NewConstantArrivalRate() *ConstantArrivalRate {
	return &ConstantArrivalRate{}
}

func (e *ConstantArrivalRate) Type() Type { return TypeConstantArrivalRate }

// Init binds c. Missing pool sizes default to one VU per iteration per second.
func (e *ConstantArrivalRate) Init(_ context.Context, c *Config) error {
	if err := checkType(c, TypeConstantArrivalRate); err != nil {
		return err
	}
	if c.PreAllocatedVUs <= 0 {
		c.PreAllocatedVUs = int(c.Rate + 0.5)
		if c.PreAllocatedVUs < 1 {
			c.PreAllocatedVUs = 1
		}
	}
	if c.MaxVUs < c.PreAllocatedVUs {
		c.MaxVUs = c.PreAllocatedVUs
	}
	e.config = c
	return nil
}

func (e *ConstantArrivalRate) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	e.scheduler = scheduler
	e.bucket = rate.NewLeakyBucket(e.config.Rate)
	e.pool = make(chan *loadtest.VirtualUser, e.config.MaxVUs)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.state.begin(scheduler, cancel)
	defer e.state.end()

	for i := 0; i < e.config.PreAllocatedVUs; i++ {
		e.pool <- e.spawn()
	}
	scheduler.UpdateMetrics()
	metricsEngine.SetPhase(metrics.PhaseSteady)

	for {
		if err := e.bucket.Wait(runCtx); err != nil {
			break
		}

		vu := e.acquire()
		if vu == nil {
			e.dropped.Add(1)
			continue
		}

		e.wg.Add(1)
		scheduler.Track(func() {
			defer e.wg.Done()
			e.iterate(runCtx, vu)
		})
	}

	err := waitGroup(&e.wg, e.config.GracefulStop)

	e.allMu.Lock()
	for _, vu := range e.all {
		scheduler.RemoveVU(vu.ID)
	}
	e.allMu.Unlock()

	scheduler.UpdateMetrics()
	metricsEngine.SetPhase(metrics.PhaseDone)
	return err
}

func (e *ConstantArrivalRate) spawn() *loadtest.VirtualUser {
	vu := e.scheduler.SpawnVU()
	e.allMu.Lock()
	e.all = append(e.all, vu)
	e.allMu.Unlock()
	return vu
}

// acquire returns an idle VU, spawning one if the pool is below MaxVUs, or
// nil when every VU is busy.
func (e *ConstantArrivalRate) acquire() *loadtest.VirtualUser {
	select {
	case vu := <-e.pool:
		return vu
	default:
	}

	e.allMu.Lock()
	full := len(e.all) >= e.config.MaxVUs
	e.allMu.Unlock()
	if full {
		return nil
	}

	vu := e.spawn()
	e.scheduler.UpdateMetrics()
	return vu
}

func (e *ConstantArrivalRate) iterate(ctx context.Context, vu *loadtest.VirtualUser) {
	// Errors here are a cancelled run; request failures are recorded as samples.
	_ = vu.RunIteration(ctx)
	e.pool <- vu
}

func (e *ConstantArrivalRate) GetProgress() float64 { return e.state.progress(e.config.Duration) }

func (e *ConstantArrivalRate) GetActiveVUs() int { return e.state.activeVUs() }

func (e *ConstantArrivalRate) GetStats() *Stats {
	s := e.state.stats(e.config.Duration)
	s.TargetVUs = e.config.MaxVUs
	s.Rate = e.config.Rate
	s.Dropped = e.dropped.Load()
	return s
}

func (e *ConstantArrivalRate) Stop() { e.state.stop() }

var _ Executor = (*ConstantArrivalRate)(nil)
