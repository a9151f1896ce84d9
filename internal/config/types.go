// Package config loads and validates xrayperf run configuration.
package config

import (
	"strings"
	"time"

	"github.com/wesleyorama2/xrayperf/internal/xray"
)

// Config is the root configuration of a run.
//
// Example:
//
//	{
//	  // Target environment
//	  "base_url": "https://acme.jfrog.io",
//	  "token": "eyJ2ZXIiOiIy...",
//	  "load": {"executor": "constant-vus", "vus": 20, "duration": "5m"},
//	  "think_time": {"min": "1s", "max": "2s"},
//	  "templates": ["create-repo", "scan-status"]
//	}
type Config struct {
	Target `yaml:",inline"`

	// Name labels the run in reports.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Seed makes template selection and generated names reproducible. 0 seeds from the clock.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	Load LoadProfile `json:"load,omitempty" yaml:"load,omitempty"`

	// ThinkTime is the pause after each request. Nil means the default 1s to 2s;
	// an explicit zero range disables it.
	ThinkTime *ThinkTimeConfig `json:"think_time,omitempty" yaml:"think_time,omitempty"`

	HTTP HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`

	Fixtures xray.Fixtures `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`

	// Templates restricts the workload to these template keys. Empty means all.
	Templates []string `json:"templates,omitempty" yaml:"templates,omitempty"`

	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Target is the environment under test. It is read once and never mutated.
type Target struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Token   string `json:"token" yaml:"token"`
}

// URL joins the base URL and an API path.
func (t Target) URL(path string) string {
	return strings.TrimRight(t.BaseURL, "/") + path
}

// Redacted describes the target without revealing the token.
func (t Target) Redacted() string {
	token := "<unset>"
	if t.Token != "" {
		token = "<redacted>"
	}
	return t.BaseURL + " (token " + token + ")"
}

// Executor names.
const (
	ExecutorConstantVUs         = "constant-vus"
	ExecutorRampingVUs          = "ramping-vus"
	ExecutorConstantArrivalRate = "constant-arrival-rate"
)

// Executors lists the supported executor names.
var Executors = []string{ExecutorConstantVUs, ExecutorRampingVUs, ExecutorConstantArrivalRate}

// LoadProfile describes the load profile.
type LoadProfile struct {
	Executor string   `json:"executor,omitempty" yaml:"executor,omitempty"`
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages drive ramping-vus.
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Rate, PreAllocatedVUs and MaxVUs drive constant-arrival-rate.
	Rate            float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	PreAllocatedVUs int     `json:"pre_allocated_vus,omitempty" yaml:"pre_allocated_vus,omitempty"`
	MaxVUs          int     `json:"max_vus,omitempty" yaml:"max_vus,omitempty"`

	// GracefulStop bounds how long running VUs get to finish after the load ends.
	GracefulStop Duration `json:"graceful_stop,omitempty" yaml:"graceful_stop,omitempty"`
}

// StageConfig is one step of a ramping profile.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
}

// TotalDuration returns the explicit duration, or the sum of stage durations.
func (l LoadProfile) TotalDuration() time.Duration {
	if l.Duration > 0 {
		return l.Duration.Std()
	}
	var total time.Duration
	for _, s := range l.Stages {
		total += s.Duration.Std()
	}
	return total
}

// ThinkTimeConfig bounds the uniform random pause between requests.
type ThinkTimeConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	InsecureSkipVerify  bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	MaxIdleConnsPerHost int      `json:"max_idle_conns_per_host,omitempty" yaml:"max_idle_conns_per_host,omitempty"`
	MaxConnsPerHost     int      `json:"max_conns_per_host,omitempty" yaml:"max_conns_per_host,omitempty"`
	UserAgent           string   `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// ThresholdsConfig holds pass/fail expressions per metric,
// e.g. "p95 < 500ms" or "rate < 0.05".
type ThresholdsConfig struct {
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`
	HTTPReqFailed   []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`
	HTTPReqs        []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultVUs          = 10
	DefaultDuration     = time.Minute
	DefaultThinkMin     = time.Second
	DefaultThinkMax     = 2 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultGracefulStop = 30 * time.Second
	DefaultIdleConns    = 100
	DefaultUserAgent    = "xrayperf/1.0"
)

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "xray-perf"
	}

	l := &c.Load
	if l.Executor == "" {
		l.Executor = ExecutorConstantVUs
		if len(l.Stages) > 0 {
			l.Executor = ExecutorRampingVUs
		}
	}
	if l.Executor == ExecutorConstantVUs && l.VUs == 0 {
		l.VUs = DefaultVUs
	}
	if l.Duration == 0 && len(l.Stages) == 0 {
		l.Duration = Duration(DefaultDuration)
	}
	if l.Executor == ExecutorConstantArrivalRate {
		if l.PreAllocatedVUs == 0 {
			l.PreAllocatedVUs = DefaultVUs
		}
		if l.MaxVUs == 0 {
			l.MaxVUs = l.PreAllocatedVUs
		}
	}
	if l.GracefulStop == 0 {
		l.GracefulStop = Duration(DefaultGracefulStop)
	}

	if c.ThinkTime == nil {
		c.ThinkTime = &ThinkTimeConfig{Min: Duration(DefaultThinkMin), Max: Duration(DefaultThinkMax)}
	}

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(DefaultTimeout)
	}
	if c.HTTP.MaxIdleConnsPerHost == 0 {
		c.HTTP.MaxIdleConnsPerHost = DefaultIdleConns
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}

	c.Fixtures = c.Fixtures.WithDefaults()
}
