package perf

import (
	"context"
	"io"
	"os"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/report"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

type (
	Config          = config.Config
	Target          = config.Target
	LoadProfile     = config.LoadProfile
	Stage           = config.StageConfig
	ThinkTime       = config.ThinkTimeConfig
	HTTPConfig      = config.HTTPConfig
	Thresholds      = config.ThresholdsConfig
	Duration        = config.Duration
	Fixtures        = xray.Fixtures
	TestResult      = engine.TestResult
	ThresholdResult = engine.ThresholdResult
	Snapshot        = metrics.Snapshot
	TemplateStats   = metrics.TemplateStats
	Option          = engine.Option
)

const (
	ExecutorConstantVUs         = config.ExecutorConstantVUs
	ExecutorRampingVUs          = config.ExecutorRampingVUs
	ExecutorConstantArrivalRate = config.ExecutorConstantArrivalRate
)

var (
	WithLogger   = engine.WithLogger
	WithObserver = engine.WithObserver
)

// LoadConfig reads a JSON (comments allowed) or YAML configuration and fills
// the target from XRAYPERF_BASE_URL and XRAYPERF_TOKEN when set.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Templates lists the keys of every request template.
func Templates() []string {
	return xray.Keys()
}

// Runner runs one load test.
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and prepares a run.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	eng, err := engine.NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run blocks until the load profile ends or ctx is cancelled. A cancelled
// run still returns its partial result, marked Interrupted.
func (r *Runner) Run(ctx context.Context) (*TestResult, error) {
	return r.engine.Run(ctx)
}

// Metrics returns the metrics collected so far.
func (r *Runner) Metrics() *Snapshot {
	return r.engine.GetMetrics()
}

// Progress is the fraction of the load profile completed, from 0 to 1.
func (r *Runner) Progress() float64 {
	return r.engine.GetProgress()
}

// RunTest is NewRunner followed by Run.
func RunTest(ctx context.Context, cfg *Config, opts ...Option) (*TestResult, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// WriteHTML writes a self-contained HTML report to path.
func WriteHTML(result *TestResult, path string) error {
	return report.GenerateHTML(result, path)
}

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *TestResult) error {
	return report.WriteJSON(w, result)
}
