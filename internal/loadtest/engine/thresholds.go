package engine

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

// ThresholdResult is the evaluation of one threshold.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// EvaluateThresholds checks every threshold against the final snapshot.
func EvaluateThresholds(thresholds []config.Threshold, snapshot *metrics.Snapshot) []ThresholdResult {
	if len(thresholds) == 0 {
		return nil
	}

	results := make([]ThresholdResult, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluate(t, snapshot))
	}
	return results
}

func evaluate(t config.Threshold, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: t.Metric, Expression: t.Expression}

	actual, ok := actualValue(t, snapshot)
	if !ok {
		result.Message = fmt.Sprintf("%s does not support %q", t.Metric, t.Stat)
		return result
	}

	result.Value = formatValue(t, actual)
	result.Passed = t.Passed(actual)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", t.Stat, result.Value, t.Op, formatValue(t, t.Value))
	}
	return result
}

func actualValue(t config.Threshold, s *metrics.Snapshot) (float64, bool) {
	switch t.Metric {
	case config.MetricReqDuration:
		var d time.Duration
		switch t.Stat {
		case "min":
			d = s.Latency.Min
		case "max":
			d = s.Latency.Max
		case "avg":
			d = s.Latency.Mean
		case "med", "p50":
			d = s.Latency.P50
		case "p90":
			d = s.Latency.P90
		case "p95":
			d = s.Latency.P95
		case "p99":
			d = s.Latency.P99
		default:
			return 0, false
		}
		return float64(d), true

	case config.MetricReqFailed:
		if t.Stat == "rate" {
			return s.ErrorRate, true
		}

	case config.MetricReqs:
		switch t.Stat {
		case "count":
			return float64(s.TotalRequests), true
		case "rate":
			return s.RPS, true
		}
	}
	return 0, false
}

func formatValue(t config.Threshold, v float64) string {
	switch {
	case t.Metric == config.MetricReqDuration:
		return time.Duration(v).String()
	case t.Metric == config.MetricReqs && t.Stat == "count":
		return fmt.Sprintf("%.0f", v)
	case t.Metric == config.MetricReqFailed:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// AllPassed reports whether every threshold passed.
func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
