package executor

import (
	"context"
	"sync"

	"github.com/wesleyorama2/xrayperf/internal/loadtest"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

// ConstantVUs runs a fixed number of VUs for a duration. Each VU loops
// request, think time, request (closed model), so throughput follows
// response times.
type ConstantVUs struct {
	config *Config
	state  runState
	wg     sync.WaitGroup
}

// NewConstantVUs returns a constant-vus executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

func (e *ConstantVUs) Type() Type { return TypeConstantVUs }

func (e *ConstantVUs) Init(_ context.Context, c *Config) error {
	if err := checkType(c, TypeConstantVUs); err != nil {
		return err
	}
	e.config = c
	return nil
}

// Run starts all VUs at once and stops them when the duration elapses.
// Requests still in flight at that point are abandoned.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.state.begin(scheduler, cancel)
	defer e.state.end()

	metricsEngine.SetPhase(metrics.PhaseSteady)

	scheduler.ScaleVUs(e.config.VUs, func(vu *loadtest.VirtualUser) {
		e.wg.Add(1)
		scheduler.Track(func() {
			defer e.wg.Done()
			scheduler.RunVU(runCtx, vu)
		})
	})

	<-runCtx.Done()
	scheduler.StopAllVUs()
	err := waitGroup(&e.wg, e.config.GracefulStop)

	scheduler.UpdateMetrics()
	metricsEngine.SetPhase(metrics.PhaseDone)
	return err
}

func (e *ConstantVUs) GetProgress() float64 { return e.state.progress(e.config.Duration) }

func (e *ConstantVUs) GetActiveVUs() int { return e.state.activeVUs() }

func (e *ConstantVUs) GetStats() *Stats {
	s := e.state.stats(e.config.Duration)
	s.TargetVUs = e.config.VUs
	return s
}

func (e *ConstantVUs) Stop() { e.state.stop() }

var _ Executor = (*ConstantVUs)(nil)
