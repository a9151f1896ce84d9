package output

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/executor"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDurationShort(tt.duration); got != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatNumber(tt.number); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", formatBytes(1024*1024*1024))
}

func TestStripANSIAndPad(t *testing.T) {
	colored := "\033[32mok\033[0m"
	assert.Equal(t, "ok", stripANSI(colored))
	assert.Equal(t, colored+"   ", padVisible(colored, 5))
	assert.Equal(t, "✓ a ", padVisible("✓ a", 4))
	assert.Equal(t, "toolong", padVisible("toolong", 3))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", renderProgressBar(0.5, 10))
	assert.Equal(t, "[░░░░]", renderProgressBar(-1, 4))
	assert.Equal(t, "[████]", renderProgressBar(2, 4))
}

func newBufferOutput(cfg ConsoleOutputConfig) (*ConsoleOutput, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg.Writer = &buf
	cfg.NoColor = true
	return NewConsoleOutput(cfg), &buf
}

func TestConsoleOutput_NotATerminal(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{TestName: "xray"})
	assert.False(t, c.IsTTY())

	c.Update(&LiveStats{Progress: 0.5})
	assert.Empty(t, buf.String(), "Update must not redraw when piped")
}

func TestConsoleOutput_PrintHeader(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{
		TestName:     "nightly",
		Target:       "https://acme.jfrog.io",
		ExecutorType: "constant-vus",
	})
	c.PrintHeader()

	out := buf.String()
	assert.Contains(t, out, "nightly - Running [constant-vus]")
	assert.Contains(t, out, "Target: https://acme.jfrog.io")
	assert.NotContains(t, out, "\033[")
}

func TestConsoleOutput_QuietPrintsNothingLive(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{TestName: "q", Quiet: true, ForceTTY: true})
	c.PrintHeader()
	c.Update(&LiveStats{})
	c.PrintNonInteractiveUpdate(&LiveStats{})
	assert.Empty(t, buf.String())
}

func TestConsoleOutput_UpdateRedraws(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{TestName: "tty", ForceTTY: true})
	require.True(t, c.IsTTY())

	stats := &LiveStats{
		Progress:      0.25,
		Elapsed:       15 * time.Second,
		Remaining:     45 * time.Second,
		ActiveVUs:     8,
		TargetVUs:     10,
		CurrentRPS:    12.5,
		TotalRequests: 1500,
		Errors:        3,
		ErrorRate:     0.002,
		LatencyP95:    120 * time.Millisecond,
		CurrentPhase:  "ramp-up",
		CurrentStage:  1,
		TotalStages:   3,
	}
	c.Update(stats)

	first := buf.String()
	assert.Contains(t, first, "25%")
	assert.Contains(t, first, "ramp-up (1/3)")
	assert.Contains(t, first, "8 / 10")
	assert.Contains(t, first, "1,500")
	assert.Contains(t, first, "120ms")
	assert.NotContains(t, first, "\033[", "first draw has nothing to clear")

	buf.Reset()
	c.Update(stats)
	assert.True(t, strings.HasPrefix(buf.String(), "\033["), "second draw clears the first")
}

func TestConsoleOutput_UpdateShowsArrivalRate(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{ForceTTY: true})
	c.Update(&LiveStats{Rate: 20, Dropped: 7})
	assert.Contains(t, buf.String(), "20.0/s")
	assert.Contains(t, buf.String(), "Dropped:     7")
}

func TestConsoleOutput_PrintNonInteractiveUpdate(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{})
	c.PrintNonInteractiveUpdate(&LiveStats{
		Progress:      0.5,
		Elapsed:       30 * time.Second,
		ActiveVUs:     4,
		TotalRequests: 120,
		CurrentRPS:    4,
		Errors:        6,
		ErrorRate:     0.05,
		LatencyP95:    250 * time.Millisecond,
		Dropped:       2,
	})

	assert.Equal(t,
		"[30.0s] Progress: 50% | VUs: 4 | Reqs: 120 | RPS: 4.0 | Errors: 6 (5.0%) | P95: 250ms | Dropped: 2\n",
		buf.String())
}

func sampleResult(passed bool) *engine.TestResult {
	return &engine.TestResult{
		RunID:    "7d3c9c1e-0000-4000-8000-000000000000",
		Name:     "nightly",
		Executor: "constant-vus",
		Duration: 90 * time.Second,
		Metrics: &metrics.Snapshot{
			TotalRequests:   1000,
			SuccessRequests: 950,
			FailedRequests:  50,
			ErrorRate:       0.05,
			RPS:             11.1,
			TotalBytes:      2048,
			Latency: metrics.LatencyStats{
				Min: 5 * time.Millisecond,
				P50: 40 * time.Millisecond,
				P95: 180 * time.Millisecond,
				Max: 2 * time.Second,
			},
		},
		Templates: []metrics.TemplateStats{
			{Name: "Create Repo", Requests: 500, Successes: 500},
			{
				Name: "Apply Watch", Requests: 500, Successes: 450, Failures: 50, ErrorRate: 0.1,
				Errors: []metrics.ErrorCount{
					{Detail: "Apply Watch failed: 404 watch not found", Count: 40},
					{Detail: "transport: connection reset by peer", Count: 10},
				},
			},
		},
		ExecutorStats: &executor.Stats{Dropped: 3},
		Passed:        passed,
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_failed", Expression: "rate < 0.01", Passed: false, Value: "0.0500", Message: "rate 0.0500 is not < 0.0100"},
		},
	}
}

func TestConsoleOutput_PrintSummary(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{TopErrors: 1})
	c.PrintSummary(sampleResult(false))

	out := buf.String()
	assert.Contains(t, out, "nightly - Failed ✗")
	assert.Contains(t, out, "Total Reqs:    1,000")
	assert.Contains(t, out, "Success Rate:  95.0%")
	assert.Contains(t, out, "Dropped:       3")
	assert.Contains(t, out, "Create Repo")
	assert.Contains(t, out, "10.0%")
	assert.Contains(t, out, "Top Errors:")
	assert.Contains(t, out, "Apply Watch failed: 404 watch not found")
	assert.NotContains(t, out, "connection reset", "only the top error is listed")
	assert.Contains(t, out, "... 1 more")
	assert.Contains(t, out, "✗ http_req_failed rate < 0.01 (actual: 0.0500)")
	assert.Contains(t, out, "rate 0.0500 is not < 0.0100")
	assert.NotContains(t, out, "\033[")
}

func TestConsoleOutput_PrintSummaryInterrupted(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{})
	result := sampleResult(false)
	result.Interrupted = true
	c.PrintSummary(result)
	assert.Contains(t, buf.String(), "Interrupted ⚠")
	assert.NotContains(t, buf.String(), "Failed ✗")
}

func TestConsoleOutput_PrintSummaryQuietInterrupted(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{Quiet: true})
	result := sampleResult(false)
	result.Interrupted = true
	c.PrintSummary(result)
	assert.Equal(t, "INTERRUPTED\n", buf.String())
}

func TestConsoleOutput_PrintSummaryQuiet(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{Quiet: true})
	c.PrintSummary(sampleResult(false))
	assert.Equal(t, "FAILED\n", buf.String())

	buf.Reset()
	c.PrintSummary(sampleResult(true))
	assert.Equal(t, "PASSED\n", buf.String())
}

func TestConsoleOutput_PrintSummaryNil(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{})
	c.PrintSummary(nil)
	assert.Contains(t, buf.String(), "No results available")
}

func TestStatsFromMetrics(t *testing.T) {
	t.Run("before the run", func(t *testing.T) {
		stats := StatsFromMetrics(nil, 0, nil)
		assert.Equal(t, "initializing", stats.CurrentPhase)
	})

	t.Run("with executor stats", func(t *testing.T) {
		snapshot := &metrics.Snapshot{
			Elapsed:        20 * time.Second,
			ActiveVUs:      5,
			RPS:            9.5,
			TotalRequests:  190,
			FailedRequests: 2,
			ErrorRate:      2.0 / 190,
			CurrentPhase:   metrics.PhaseSteady,
			Latency:        metrics.LatencyStats{P95: 80 * time.Millisecond, Mean: 30 * time.Millisecond},
		}
		exec := &executor.Stats{
			Elapsed:       20 * time.Second,
			TotalDuration: time.Minute,
			TargetVUs:     5,
			CurrentStage:  2,
			TotalStages:   3,
		}

		stats := StatsFromMetrics(snapshot, 1.0/3, exec)
		assert.Equal(t, 40*time.Second, stats.Remaining)
		assert.Equal(t, 5, stats.TargetVUs)
		assert.Equal(t, int64(190), stats.TotalRequests)
		assert.Equal(t, int64(2), stats.Errors)
		assert.Equal(t, "steady", stats.CurrentPhase)
		assert.Equal(t, 2, stats.CurrentStage)
	})

	t.Run("estimates remaining from progress", func(t *testing.T) {
		stats := StatsFromMetrics(&metrics.Snapshot{Elapsed: 10 * time.Second}, 0.5, nil)
		assert.Equal(t, 10*time.Second, stats.Remaining)
	})
}

type fakeSource struct {
	mu    sync.Mutex
	polls int
}

func (f *fakeSource) GetMetrics() *metrics.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return &metrics.Snapshot{TotalRequests: int64(f.polls)}
}

func (f *fakeSource) GetProgress() float64 { return 0.5 }

func (f *fakeSource) GetExecutorStats() *executor.Stats { return nil }

func TestConsoleOutput_Watch(t *testing.T) {
	c, buf := newBufferOutput(ConsoleOutputConfig{UpdateInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	c.Watch(ctx, &fakeSource{})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "Progress: 50%")
}
