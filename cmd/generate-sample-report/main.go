// Command generate-sample-report writes an HTML report from synthetic data,
// for previewing report layout changes without running a load test.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/executor"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/report"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

func main() {
	result := createSampleTestResult(time.Now())

	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := report.GenerateHTML(result, outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func createSampleTestResult(now time.Time) *engine.TestResult {
	const seconds = 120

	return &engine.TestResult{
		RunID:     uuid.NewString(),
		Name:      "Xray nightly soak",
		Target:    "https://xray.example.com (token: ****abcd)",
		Executor:  "ramping-vus",
		StartTime: now.Add(-seconds * time.Second),
		EndTime:   now,
		Duration:  seconds * time.Second,
		Passed:    false,
		Metrics: &metrics.Snapshot{
			TotalRequests:   5847,
			SuccessRequests: 5731,
			FailedRequests:  116,
			TotalBytes:      12582912,
			RPS:             48.73,
			SteadyStateRPS:  52.1,
			ErrorRate:       0.0198,
			ActiveVUs:       0,
			CurrentPhase:    metrics.PhaseDone,
			Elapsed:         seconds * time.Second,
			Latency: metrics.LatencyStats{
				Min:    8 * time.Millisecond,
				Max:    892 * time.Millisecond,
				Mean:   47 * time.Millisecond,
				StdDev: 38 * time.Millisecond,
				P50:    39 * time.Millisecond,
				P90:    89 * time.Millisecond,
				P95:    124 * time.Millisecond,
				P99:    287 * time.Millisecond,
				Count:  5847,
			},
		},
		Templates:  createSampleTemplates(5847),
		TimeSeries: createSampleTimeSeries(now, seconds),
		Throughput: engine.ThroughputStats{
			Mean: 48.7, Median: 49.0, StdDev: 9.8, P95: 51.6, Min: 1, Max: 52,
		},
		ExecutorStats: &executor.Stats{
			StartTime:     now.Add(-seconds * time.Second),
			Elapsed:       seconds * time.Second,
			TotalDuration: seconds * time.Second,
			TargetVUs:     0,
			CurrentStage:  3,
			TotalStages:   3,
		},
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_duration", Expression: "p95 < 200ms", Passed: true, Value: "124ms"},
			{Metric: "http_req_duration", Expression: "p99 < 500ms", Passed: true, Value: "287ms"},
			{Metric: "http_req_failed", Expression: "rate < 0.01", Passed: false, Value: "0.0198"},
			{Metric: "http_reqs", Expression: "rate > 40", Passed: true, Value: "48.73"},
		},
	}
}

// createSampleTemplates spreads total requests across the catalog. Create
// Watch carries most of the failures so the breakdown has something to show.
func createSampleTemplates(total int64) []metrics.TemplateStats {
	catalog := xray.Catalog()
	per := total / int64(len(catalog))

	stats := make([]metrics.TemplateStats, 0, len(catalog))
	for i, t := range catalog {
		failures := int64(2)
		var errs []metrics.ErrorCount
		if t.Key == "create-watch" {
			failures = 104
			errs = []metrics.ErrorCount{
				{Detail: `400: {"error":"Watch name already exists"}`, Count: 71},
				{Detail: `500: {"errors":[{"status":500,"message":"internal error"}]}`, Count: 31},
				{Detail: "request failed: context deadline exceeded", Count: 2},
			}
		} else {
			errs = []metrics.ErrorCount{{Detail: "request failed: connection reset by peer", Count: 2}}
		}

		base := time.Duration(20+i*9) * time.Millisecond
		codes := map[int]int64{t.Expected[0]: per - failures}
		if t.Key == "create-watch" {
			codes[400] = 71
			codes[500] = 31
			codes[0] = 2
		} else {
			codes[0] = failures
		}

		stats = append(stats, metrics.TemplateStats{
			Name:      t.Name,
			Requests:  per,
			Successes: per - failures,
			Failures:  failures,
			ErrorRate: float64(failures) / float64(per),
			Bytes:     per * 2150,
			Latency: metrics.LatencyStats{
				Min:   base / 3,
				Max:   base * 12,
				Mean:  base,
				P50:   base * 9 / 10,
				P90:   base * 2,
				P95:   base * 5 / 2,
				P99:   base * 6,
				Count: per,
			},
			StatusCodes: codes,
			Errors:      errs,
		})
	}
	return stats
}

func createSampleTimeSeries(now time.Time, seconds int) []*metrics.TimeBucket {
	buckets := make([]*metrics.TimeBucket, seconds)
	baseTime := now.Add(-time.Duration(seconds) * time.Second)

	rampUpEnd := 20
	steadyEnd := seconds - 20

	for i := 0; i < seconds; i++ {
		var phase metrics.Phase
		var vus int
		var rps float64

		switch {
		case i < rampUpEnd:
			phase = metrics.PhaseRampUp
			progress := float64(i) / float64(rampUpEnd)
			vus = int(progress * 10)
			rps = progress * 50
		case i < steadyEnd:
			phase = metrics.PhaseSteady
			vus = 10
			rps = 48 + float64(i%5) - 2
		default:
			phase = metrics.PhaseRampDown
			progress := float64(seconds-i) / float64(rampUpEnd)
			vus = int(progress * 10)
			rps = progress * 50
		}

		if vus < 1 {
			vus = 1
		}
		if rps < 1 {
			rps = 1
		}

		buckets[i] = &metrics.TimeBucket{
			Timestamp:         baseTime.Add(time.Duration(i) * time.Second),
			TotalRequests:     int64(float64(i) * 48.7),
			TotalSuccesses:    int64(float64(i) * 47.7),
			TotalFailures:     int64(float64(i) * 1.0),
			TotalBytes:        int64(float64(i) * 104857),
			IntervalRequests:  int64(rps),
			IntervalRPS:       rps,
			IntervalErrorRate: 0.015 + float64(i%3)*0.005,
			LatencyP50:        time.Duration(35+i%10) * time.Millisecond,
			LatencyP95:        time.Duration(110+i%30) * time.Millisecond,
			LatencyP99:        time.Duration(250+i%50) * time.Millisecond,
			ActiveVUs:         vus,
			Phase:             phase,
		}
	}

	return buckets
}
