// Package metrics aggregates request samples into latency histograms,
// counters and a per-second time series.
package metrics

import "time"

// Sample is the outcome of one request.
type Sample struct {
	// Name is the template label the request is reported under.
	Name string `json:"name"`

	// StatusCode is 0 when no response was received.
	StatusCode int           `json:"statusCode"`
	Latency    time.Duration `json:"latency"`
	Success    bool          `json:"success"`
	Bytes      int64         `json:"bytes"`

	// Message is the full failure message, empty on success.
	Message string `json:"message,omitempty"`

	// Detail is a short form of Message used to group failures.
	Detail string `json:"detail,omitempty"`
}

// Phase is a stage of the load profile.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// PhaseChange records when a phase was entered.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// LatencyStats summarizes a latency histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Snapshot is a point-in-time view of the whole run.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes"`
	Latency         LatencyStats  `json:"latency"`
	RPS             float64       `json:"rps"`
	SteadyStateRPS  float64       `json:"steadyStateRps"`
	ErrorRate       float64       `json:"errorRate"`
	ActiveVUs       int           `json:"activeVUs"`
	CurrentPhase    Phase         `json:"currentPhase"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}

// TemplateStats summarizes the samples of one template.
type TemplateStats struct {
	Name        string        `json:"name"`
	Requests    int64         `json:"requests"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	ErrorRate   float64       `json:"errorRate"`
	Bytes       int64         `json:"bytes"`
	Latency     LatencyStats  `json:"latency"`
	StatusCodes map[int]int64 `json:"statusCodes"`
	Errors      []ErrorCount  `json:"errors,omitempty"`
}

// ErrorCount is how often a failure detail was seen.
type ErrorCount struct {
	Detail string `json:"detail"`
	Count  int64  `json:"count"`
}

// TimeBucket holds the metrics of one bucket interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// BucketInterval is the time-series resolution (default 1s).
	BucketInterval time.Duration

	// MaxBuckets bounds the retained time series (default 3600).
	MaxBuckets int

	// HistogramMin and HistogramMax bound recorded latencies, in microseconds.
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int

	// MaxDistinctErrors bounds the failure details kept per template.
	MaxDistinctErrors int

	// Observers receive every sample as it is recorded.
	Observers []Observer
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:    time.Second,
		MaxBuckets:        3600,
		HistogramMin:      1,
		HistogramMax:      3600000000, // 1 hour
		HistogramSigFigs:  3,
		MaxDistinctErrors: 20,
	}
}
