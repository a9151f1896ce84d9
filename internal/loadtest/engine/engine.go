// Package engine runs a configured workload end to end: it wires the
// workload, scheduler, executor and metrics together and evaluates
// thresholds on the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/executor"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

// Engine runs one load test.
//
// Example usage:
//
//	cfg, _ := config.Load("config.json")
//	eng, _ := engine.NewEngine(cfg, engine.WithLogger(logger))
//	result, _ := eng.Run(ctx)
//	fmt.Println(result.Passed)
type Engine struct {
	config     *config.Config
	logger     *zap.Logger
	observers  []metrics.Observer
	httpConfig loadtest.HTTPClientConfig
	templates  []*xray.Template
	thresholds []config.Threshold

	mu        sync.RWMutex
	running   bool
	metrics   *metrics.Engine
	executor  executor.Executor
	scheduler *loadtest.VUScheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver adds a metrics observer, such as a PrometheusObserver.
func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// TestResult is the outcome of a run.
type TestResult struct {
	RunID    string `json:"runId"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	Executor string `json:"executor"`

	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Interrupted is set when the run was cancelled before its profile ended.
	// An interrupted run never passes.
	Interrupted bool `json:"interrupted,omitempty"`

	Metrics       *metrics.Snapshot       `json:"metrics"`
	Templates     []metrics.TemplateStats `json:"templates"`
	TimeSeries    []*metrics.TimeBucket   `json:"timeSeries,omitempty"`
	Phases        []metrics.PhaseChange   `json:"phases,omitempty"`
	Throughput    ThroughputStats         `json:"throughput"`
	ExecutorStats *executor.Stats         `json:"executorStats,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	Error string `json:"error,omitempty"`
}

// ThroughputStats summarizes requests per second across the time series.
type ThroughputStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// NewEngine validates cfg and prepares a run. cfg is not modified after
// this call returns.
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	templates, err := xray.Select(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	thresholds, err := cfg.Thresholds.Parse()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:     cfg,
		logger:     zap.NewNop(),
		httpConfig: loadtest.HTTPClientConfigFrom(cfg.HTTP),
		templates:  templates,
		thresholds: thresholds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) workload() *loadtest.Workload {
	think := loadtest.ThinkTime{}
	if t := e.config.ThinkTime; t != nil {
		think = loadtest.ThinkTime{Min: t.Min.Std(), Max: t.Max.Std()}
	}

	return &loadtest.Workload{
		Name:      e.config.Name,
		Target:    e.config.Target,
		Templates: e.templates,
		Builder:   xray.NewBuilder(xray.NewNameGenerator(xray.NewRand(e.config.Seed)), e.config.Fixtures),
		ThinkTime: think,
		UserAgent: e.config.HTTP.UserAgent,
		Seed:      e.config.Seed,
	}
}

// Run executes the load profile and blocks until it completes or ctx is
// cancelled. A cancelled run still returns a result covering what ran.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	exec, err := executor.FromLoad(e.config.Load)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	metricsConfig := metrics.DefaultEngineConfig()
	metricsConfig.Observers = e.observers
	metricsEngine := metrics.NewEngineWithConfig(metricsConfig)
	defer metricsEngine.Stop()

	scheduler := loadtest.NewVUScheduler(e.workload(), metricsEngine, e.httpConfig, logger)

	e.mu.Lock()
	e.metrics = metricsEngine
	e.executor = exec
	e.scheduler = scheduler
	e.mu.Unlock()

	keys := make([]string, len(e.templates))
	for i, t := range e.templates {
		keys[i] = t.Key
	}
	logger.Info("run started",
		zap.String("name", e.config.Name),
		zap.String("target", e.config.Target.BaseURL),
		zap.String("executor", string(exec.Type())),
		zap.Strings("templates", keys),
		zap.Duration("duration", e.config.Load.TotalDuration()),
	)

	startTime := time.Now()
	runErr := exec.Run(ctx, scheduler, metricsEngine)
	if errors.Is(runErr, executor.ErrGracefulStopExceeded) {
		logger.Warn("graceful stop exceeded", zap.Duration("graceful_stop", e.config.Load.GracefulStop.Std()))
		runErr = nil
	}
	scheduler.Shutdown(e.config.Load.GracefulStop.Std())
	metricsEngine.Stop()
	endTime := time.Now()

	snapshot := metricsEngine.GetSnapshot()
	timeSeries := metricsEngine.GetTimeSeries()
	thresholdResults := EvaluateThresholds(e.thresholds, snapshot)
	// Thresholds on a partial run say nothing about the full profile.
	interrupted := ctx.Err() != nil

	result := &TestResult{
		RunID:         runID,
		Name:          e.config.Name,
		Target:        e.config.Target.BaseURL,
		Executor:      string(exec.Type()),
		StartTime:     startTime,
		EndTime:       endTime,
		Duration:      endTime.Sub(startTime),
		Interrupted:   interrupted,
		Metrics:       snapshot,
		Templates:     metricsEngine.GetTemplateStats(),
		TimeSeries:    timeSeries,
		Phases:        metricsEngine.GetPhaseHistory(),
		Throughput:    Throughput(timeSeries),
		ExecutorStats: exec.GetStats(),
		Passed:        runErr == nil && !interrupted && AllPassed(thresholdResults),
		Thresholds:    thresholdResults,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if dropped := result.ExecutorStats.Dropped; dropped > 0 {
		logger.Warn("iterations dropped, raise max_vus", zap.Int64("dropped", dropped))
	}
	logger.Info("run finished",
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Int64("failures", snapshot.FailedRequests),
		zap.Duration("elapsed", result.Duration),
		zap.Bool("passed", result.Passed),
		zap.Bool("interrupted", result.Interrupted),
	)

	return result, runErr
}

// Throughput summarizes the per-interval request rate of a time series.
// Intervals before the first request are skipped.
func Throughput(series []*metrics.TimeBucket) ThroughputStats {
	var rps []float64
	for _, b := range series {
		if b.TotalRequests == 0 {
			continue
		}
		rps = append(rps, b.IntervalRPS)
	}
	if len(rps) == 0 {
		return ThroughputStats{}
	}

	data := stats.Float64Data(rps)
	var t ThroughputStats
	t.Mean, _ = data.Mean()
	t.Median, _ = data.Median()
	t.StdDev, _ = data.StandardDeviation()
	t.P95, _ = data.Percentile(95)
	t.Min, _ = data.Min()
	t.Max, _ = data.Max()
	return t
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends a running test early. Run still returns a result.
func (e *Engine) Stop() {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec != nil {
		exec.Stop()
	}
}

// GetProgress returns the run's progress from 0 to 1.
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return 0
	}
	return e.executor.GetProgress()
}

// GetMetrics returns a live snapshot, or nil before Run starts.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metrics == nil {
		return nil
	}
	return e.metrics.GetSnapshot()
}

// GetExecutorStats returns the executor's live stats, or nil before Run starts.
func (e *Engine) GetExecutorStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return nil
	}
	return e.executor.GetStats()
}

// GetConfig returns the run configuration.
func (e *Engine) GetConfig() *config.Config {
	return e.config
}

// Templates returns the templates the run draws from.
func (e *Engine) Templates() []*xray.Template {
	return e.templates
}
