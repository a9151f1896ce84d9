// Package executor provides the load profiles a run can follow.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wesleyorama2/xrayperf/internal/loadtest"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

// Type identifies an executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs moves the VU count through stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypeConstantArrivalRate starts iterations at a fixed rate, independent
	// of response times.
	TypeConstantArrivalRate Type = "constant-arrival-rate"
)

// ErrGracefulStopExceeded is returned by Run when VUs were still busy after
// the graceful stop period.
var ErrGracefulStopExceeded = errors.New("VUs still running after graceful stop")

// Executor drives a VU scheduler according to a load profile.
type Executor interface {
	Type() Type

	// Init validates and binds the configuration. It is called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run blocks until the profile completes, ctx is cancelled or Stop is
	// called.
	Run(ctx context.Context, scheduler *loadtest.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns how far through the profile the run is, from 0 to 1.
	GetProgress() float64

	GetActiveVUs() int

	GetStats() *Stats

	// Stop ends the run early.
	Stop()
}

// Config is the load profile in executor terms.
type Config struct {
	Type Type

	VUs      int
	Duration time.Duration
	Stages   []Stage

	Rate            float64
	PreAllocatedVUs int
	MaxVUs          int

	GracefulStop time.Duration
}

// Stage is one step of a ramping profile.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Stats is a point-in-time view of an executor.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	CurrentStage int `json:"currentStage"`
	TotalStages  int `json:"totalStages"`

	// Rate and Dropped apply to arrival-rate executors. Dropped counts
	// iterations skipped because every VU was busy.
	Rate    float64 `json:"rate,omitempty"`
	Dropped int64   `json:"dropped,omitempty"`
}

// Validate checks the fields the executor type needs.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		for _, s := range c.Stages {
			if s.Duration <= 0 {
				return &ValidationError{Field: "stages", Message: "stage duration must be > 0"}
			}
			if s.Target < 0 {
				return &ValidationError{Field: "stages", Message: "stage target must be >= 0"}
			}
		}
	case TypeConstantArrivalRate:
		if c.Rate <= 0 {
			return &ValidationError{Field: "rate", Message: "rate must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
	case "":
		return &ValidationError{Field: "executor", Message: "executor type is required"}
	default:
		return &ValidationError{Field: "executor", Message: "unknown executor type: " + string(c.Type)}
	}
	return nil
}

// TotalDuration is the planned length of the profile.
func (c *Config) TotalDuration() time.Duration {
	if c.Type == TypeRampingVUs {
		var total time.Duration
		for _, s := range c.Stages {
			total += s.Duration
		}
		return total
	}
	return c.Duration
}

// ValidationError reports an invalid executor field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

func checkType(c *Config, want Type) error {
	if c.Type != want {
		return fmt.Errorf("invalid config type: expected %s, got %s", want, c.Type)
	}
	return c.Validate()
}

// waitGroup waits for wg, giving up after timeout.
func waitGroup(wg *sync.WaitGroup, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrGracefulStopExceeded
	}
}

// runState is the part of an executor that progress reporting reads while
// Run is in progress.
type runState struct {
	mu        sync.RWMutex
	startTime time.Time
	scheduler *loadtest.VUScheduler
	running   bool
	cancel    context.CancelFunc
}

func (r *runState) begin(scheduler *loadtest.VUScheduler, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = time.Now()
	r.scheduler = scheduler
	r.running = true
	r.cancel = cancel
}

func (r *runState) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *runState) stop() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *runState) elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startTime.IsZero() {
		return 0
	}
	return time.Since(r.startTime)
}

func (r *runState) progress(total time.Duration) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		if r.startTime.IsZero() {
			return 0
		}
		return 1
	}
	if total <= 0 {
		return 1
	}
	p := float64(time.Since(r.startTime)) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

func (r *runState) activeVUs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.scheduler == nil {
		return 0
	}
	return r.scheduler.GetActiveVUCount()
}

// stats fills the fields every executor reports.
func (r *runState) stats(total time.Duration) *Stats {
	r.mu.RLock()
	start := r.startTime
	r.mu.RUnlock()

	return &Stats{
		StartTime:     start,
		Elapsed:       r.elapsed(),
		TotalDuration: total,
		ActiveVUs:     r.activeVUs(),
	}
}
