package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/xrayperf/internal/loadtest"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

// rampTick is how often the VU count is re-evaluated while ramping.
const rampTick = 100 * time.Millisecond

// RampingVUs moves the VU count linearly from one stage target to the next.
//
// Example stages:
//
//	{"duration": "30s", "target": 20}   ramp from 0 to 20 VUs
//	{"duration": "5m",  "target": 20}   hold
//	{"duration": "30s", "target": 0}    ramp down
//
// VUs removed during a ramp-down finish their current request first.
type RampingVUs struct {
	config *Config
	state  runState
	wg     sync.WaitGroup

	targetVUs    atomic.Int32
	currentStage atomic.Int32
}

// NewRampingVUs returns a ramping-vus executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

func (e *RampingVUs) Type() Type { return TypeRampingVUs }

func (e *RampingVUs) Init(_ context.Context, c *Config) error {
	if err := checkType(c, TypeRampingVUs); err != nil {
		return err
	}
	e.config = c
	return nil
}

func (e *RampingVUs) Run(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine) error {
	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	defer cancel()

	e.state.begin(scheduler, cancel)
	defer e.state.end()
	start := time.Now()

	ticker := time.NewTicker(rampTick)
	defer ticker.Stop()

	e.adjust(runCtx, scheduler, metricsEngine, 0)
	for done := false; !done; {
		select {
		case <-runCtx.Done():
			done = true
		case <-ticker.C:
			e.adjust(runCtx, scheduler, metricsEngine, time.Since(start))
		}
	}

	scheduler.StopAllVUs()
	err := waitGroup(&e.wg, e.config.GracefulStop)

	scheduler.UpdateMetrics()
	metricsEngine.SetPhase(metrics.PhaseDone)
	return err
}

func (e *RampingVUs) adjust(ctx context.Context, scheduler *loadtest.VUScheduler, metricsEngine *metrics.Engine, elapsed time.Duration) {
	target, stage := TargetAt(e.config.Stages, elapsed)
	e.targetVUs.Store(int32(target))
	e.currentStage.Store(int32(stage))

	scheduler.ScaleVUs(target, func(vu *loadtest.VirtualUser) {
		e.wg.Add(1)
		scheduler.Track(func() {
			defer e.wg.Done()
			scheduler.RunVU(ctx, vu)
		})
	})
	metricsEngine.SetPhase(PhaseAt(e.config.Stages, stage))
}

// TargetAt interpolates the VU target elapsed into the profile and returns
// it with the index of the current stage. Past the last stage it returns
// the last target.
func TargetAt(stages []Stage, elapsed time.Duration) (int, int) {
	var stageStart time.Duration
	prev := 0

	for i, s := range stages {
		stageEnd := stageStart + s.Duration
		if elapsed < stageEnd {
			p := float64(elapsed-stageStart) / float64(s.Duration)
			if p < 0 {
				p = 0
			}
			return int(float64(prev) + float64(s.Target-prev)*p + 0.5), i
		}
		prev = s.Target
		stageStart = stageEnd
	}

	if len(stages) == 0 {
		return 0, 0
	}
	return stages[len(stages)-1].Target, len(stages) - 1
}

// PhaseAt classifies a stage by the direction it moves the VU count.
func PhaseAt(stages []Stage, idx int) metrics.Phase {
	if idx < 0 || idx >= len(stages) {
		return metrics.PhaseSteady
	}

	prev := 0
	if idx > 0 {
		prev = stages[idx-1].Target
	}

	switch target := stages[idx].Target; {
	case target > prev:
		return metrics.PhaseRampUp
	case target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

func (e *RampingVUs) GetProgress() float64 { return e.state.progress(e.config.TotalDuration()) }

func (e *RampingVUs) GetActiveVUs() int { return e.state.activeVUs() }

func (e *RampingVUs) GetStats() *Stats {
	s := e.state.stats(e.config.TotalDuration())
	s.TargetVUs = int(e.targetVUs.Load())
	s.CurrentStage = int(e.currentStage.Load())
	s.TotalStages = len(e.config.Stages)
	return s
}

func (e *RampingVUs) Stop() { e.state.stop() }

var _ Executor = (*RampingVUs)(nil)
