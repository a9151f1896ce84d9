// Package output renders live progress and the final summary of a load
// test on the console.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/executor"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

// Cursor control for the TTY redraw.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleChar       = "━"
	boxHorizontal  = "─"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 56
	boxWidth  = 55
)

// LiveStats is what the live display shows on each refresh.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int
	TotalStages  int

	// Rate and Dropped are set for arrival-rate runs.
	Rate    float64
	Dropped int64
}

// Source is polled for live stats. *engine.Engine implements it.
type Source interface {
	GetMetrics() *metrics.Snapshot
	GetProgress() float64
	GetExecutorStats() *executor.Stats
}

var _ Source = (*engine.Engine)(nil)

// ConsoleOutput writes the live display and summary of one run.
type ConsoleOutput struct {
	testName       string
	target         string
	executorType   string
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	colors         *ColorScheme
	quiet          bool
	topErrors      int
	barWidth       int

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig configures a ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName       string
	Target         string
	ExecutorType   string
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool

	// TopErrors is how many failure messages to list per template (default 3).
	TopErrors int
}

// NewConsoleOutput returns a console writer. Colors are used only on a
// terminal that supports them unless forced.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = time.Second
	}
	if config.TopErrors <= 0 {
		config.TopErrors = 3
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)

	var colors *ColorScheme
	switch {
	case config.NoColor:
		colors = NoColorScheme()
	case config.ForceColors || (isTTY && supportsColors()):
		colors = ForcedColorScheme()
	default:
		colors = NoColorScheme()
	}

	barWidth := terminalWidth(config.Writer) - 40
	barWidth = max(10, min(40, barWidth))

	return &ConsoleOutput{
		testName:       config.TestName,
		target:         config.Target,
		executorType:   config.ExecutorType,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		colors:         colors,
		quiet:          config.Quiet,
		topErrors:      config.TopErrors,
		barWidth:       barWidth,
	}
}

// IsTTY reports whether the live display redraws in place.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Rule.Sprint(strings.Repeat(ruleChar, ruleWidth))
	title := c.testName + " - Running"
	if c.executorType != "" {
		title += " [" + c.executorType + "]"
	}

	c.writeln(rule)
	c.writeln(c.colors.Title.Sprint(title))
	if c.target != "" {
		c.writeln(c.colors.Dim.Sprint("Target: " + c.target))
	}
	c.writeln(rule)
	c.writeln("")
}

// Watch refreshes the display from src every update interval until ctx is
// done. On a terminal the display is redrawn in place; otherwise one line
// is printed per refresh.
func (c *ConsoleOutput) Watch(ctx context.Context, src Source) {
	if c.quiet {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := StatsFromMetrics(src.GetMetrics(), src.GetProgress(), src.GetExecutorStats())
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display. It does nothing unless the output is a
// terminal.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display. c.mu must be held.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	cs := c.colors
	var lines []string

	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		cs.Success.Sprint(renderProgressBar(stats.Progress, c.barWidth)),
		cs.Title.Sprintf("%.0f%%", stats.Progress*100),
		cs.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))))

	phase := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, "Stage:    "+cs.Phase.Sprint(phase))
	lines = append(lines, "")

	lines = append(lines, cs.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", cs.Value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	reqs := "Requests:    " + cs.Value.Sprint(formatNumber(stats.TotalRequests))
	lines = append(lines, c.formatBoxRow(vus, reqs))

	errColor := cs.rateColor(stats.ErrorRate)
	rps := "RPS:     " + cs.Success.Sprintf("%.1f", stats.CurrentRPS)
	errs := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors), errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rps, errs))

	p95 := "P95:     " + cs.Latency.Sprint(formatDurationShort(stats.LatencyP95))
	avg := "Avg:         " + cs.Latency.Sprint(formatDurationShort(stats.LatencyAvg))
	lines = append(lines, c.formatBoxRow(p95, avg))

	if stats.Rate > 0 {
		target := fmt.Sprintf("Target:  %s/s", cs.Value.Sprintf("%.1f", stats.Rate))
		dropColor := cs.Success
		if stats.Dropped > 0 {
			dropColor = cs.Warn
		}
		dropped := "Dropped:     " + dropColor.Sprint(formatNumber(stats.Dropped))
		lines = append(lines, c.formatBoxRow(target, dropped))
	}

	lines = append(lines, cs.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow lays out two columns inside the stats box.
func (c *ConsoleOutput) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s %s %s %s",
		border, padVisible(left, colWidth), border, padVisible(right, colWidth), border)
}

// PrintNonInteractiveUpdate prints a one-line status for piped output.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95))
	if stats.Dropped > 0 {
		line += fmt.Sprintf(" | Dropped: %d", stats.Dropped)
	}
	c.writeln(line)
}

// PrintSummary prints the final result. In quiet mode only PASSED, FAILED
// or INTERRUPTED is printed.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	cs := c.colors

	c.mu.Lock()
	defer c.mu.Unlock()

	if result == nil {
		c.writeln(cs.Error.Sprint("No results available"))
		return
	}

	if c.quiet {
		switch {
		case result.Interrupted:
			c.writeln(cs.Warn.Sprint("INTERRUPTED"))
		case result.Passed:
			c.writeln(cs.Success.Sprint("PASSED"))
		default:
			c.writeln(cs.Error.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	status, statusColor := "Completed ✓", cs.Success
	switch {
	case result.Interrupted:
		status, statusColor = "Interrupted ⚠", cs.Warn
	case !result.Passed:
		status, statusColor = "Failed ✗", cs.Error
	}

	rule := cs.Rule.Sprint(strings.Repeat(ruleChar, ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(cs.Title.Sprint(result.Name) + " - " + statusColor.Sprint(status))
	c.writeln(rule)
	c.writeln("")

	c.writeln("Run ID:        " + cs.Dim.Sprint(result.RunID))
	c.writeln("Duration:      " + cs.Value.Sprint(formatDuration(result.Duration)))
	if m := result.Metrics; m != nil {
		c.writeln("Total Reqs:    " + cs.Value.Sprint(formatNumber(m.TotalRequests)))
		c.writeln("Success Rate:  " + cs.rateColor(m.ErrorRate).Sprintf("%.1f%%", (1-m.ErrorRate)*100))
		c.writeln("Throughput:    " + cs.Value.Sprintf("%.1f req/s", m.RPS) +
			cs.Dim.Sprintf(" (median %.1f, p95 %.1f)", result.Throughput.Median, result.Throughput.P95))
		c.writeln("Data:          " + cs.Value.Sprint(formatBytes(m.TotalBytes)))
	}
	if s := result.ExecutorStats; s != nil && s.Dropped > 0 {
		c.writeln("Dropped:       " + cs.Warn.Sprint(formatNumber(s.Dropped)) + cs.Dim.Sprint(" iterations (all VUs busy)"))
	}
	c.writeln("")

	if m := result.Metrics; m != nil {
		c.writeln(cs.Title.Sprint("Latency Distribution:"))
		for _, row := range []struct {
			label string
			value time.Duration
		}{
			{"Min", m.Latency.Min},
			{"P50", m.Latency.P50},
			{"P90", m.Latency.P90},
			{"P95", m.Latency.P95},
			{"P99", m.Latency.P99},
			{"Max", m.Latency.Max},
		} {
			c.writeln(fmt.Sprintf("  %-10s %s", row.label+":", formatDurationShort(row.value)))
		}
		c.writeln("")
	}

	if len(result.Templates) > 0 {
		c.printTemplates(result.Templates)
	}

	if len(result.Thresholds) > 0 {
		c.writeln(cs.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := cs.SuccessIcon()
			if !t.Passed {
				icon = cs.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
			if !t.Passed && t.Message != "" {
				c.writeln("      " + cs.Dim.Sprint(t.Message))
			}
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(cs.Error.Sprint("Error: " + result.Error))
		c.writeln("")
	}
}

// printTemplates prints the per-template table followed by the most
// frequent failures of each failing template. c.mu must be held.
func (c *ConsoleOutput) printTemplates(templates []metrics.TemplateStats) {
	cs := c.colors

	nameWidth := len("Template")
	for _, t := range templates {
		nameWidth = max(nameWidth, utf8.RuneCountInString(t.Name))
	}

	c.writeln(cs.Title.Sprint("Templates:"))
	c.writeln(cs.Dim.Sprintf("    %-*s %8s %8s %7s %9s %9s", nameWidth, "Template", "Reqs", "Fail", "Err%", "P50", "P95"))

	for _, t := range templates {
		icon := cs.SuccessIcon()
		if t.Failures > 0 {
			icon = cs.ErrorIcon()
		}
		c.writeln(fmt.Sprintf("  %s %-*s %8s %s %s %9s %9s",
			icon,
			nameWidth, t.Name,
			formatNumber(t.Requests),
			cs.rateColor(t.ErrorRate).Sprintf("%8s", formatNumber(t.Failures)),
			cs.rateColor(t.ErrorRate).Sprintf("%6.1f%%", t.ErrorRate*100),
			formatDurationShort(t.Latency.P50),
			formatDurationShort(t.Latency.P95)))
	}
	c.writeln("")

	var failing []metrics.TemplateStats
	for _, t := range templates {
		if len(t.Errors) > 0 {
			failing = append(failing, t)
		}
	}
	if len(failing) == 0 {
		return
	}

	c.writeln(cs.Title.Sprint("Top Errors:"))
	for _, t := range failing {
		c.writeln("  " + cs.Highlight.Sprint(t.Name))
		for i, e := range t.Errors {
			if i == c.topErrors {
				c.writeln(cs.Dim.Sprintf("    ... %d more", len(t.Errors)-i))
				break
			}
			c.writeln(fmt.Sprintf("    %s %s", cs.Error.Sprintf("%6s×", formatNumber(e.Count)), truncate(e.Detail, 100)))
		}
	}
	c.writeln("")
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromMetrics builds the live display from a metrics snapshot and the
// executor's stats. Either may be nil before the run starts.
func StatsFromMetrics(snapshot *metrics.Snapshot, progress float64, exec *executor.Stats) *LiveStats {
	stats := &LiveStats{Progress: progress, CurrentPhase: "initializing"}
	if exec != nil {
		stats.TargetVUs = exec.TargetVUs
		stats.CurrentStage = exec.CurrentStage
		stats.TotalStages = exec.TotalStages
		stats.Rate = exec.Rate
		stats.Dropped = exec.Dropped
	}
	if snapshot == nil {
		return stats
	}

	stats.Elapsed = snapshot.Elapsed
	stats.ActiveVUs = snapshot.ActiveVUs
	stats.CurrentRPS = snapshot.RPS
	stats.TotalRequests = snapshot.TotalRequests
	stats.Errors = snapshot.FailedRequests
	stats.ErrorRate = snapshot.ErrorRate
	stats.LatencyP95 = snapshot.Latency.P95
	stats.LatencyAvg = snapshot.Latency.Mean
	stats.CurrentPhase = string(snapshot.CurrentPhase)

	switch {
	case exec != nil && exec.TotalDuration > 0:
		stats.Remaining = max(0, exec.TotalDuration-exec.Elapsed)
	case progress > 0 && progress < 1:
		stats.Remaining = time.Duration(float64(stats.Elapsed) * (1 - progress) / progress)
	}
	return stats
}
