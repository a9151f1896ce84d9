// Package report writes run results as a single-file HTML report or as JSON.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

const (
	chartWidth  = 600
	chartHeight = 160
)

// ReportData is what the HTML template renders.
type ReportData struct {
	*engine.TestResult
	Charts []Chart
}

// Chart is one time-series line drawn as inline SVG.
type Chart struct {
	Title  string
	Unit   string
	Points string
	Max    float64
	Last   float64
	Width  int
	Height int
}

// GenerateHTML renders result and writes it to outputPath, creating the
// parent directory if needed.
func GenerateHTML(result *engine.TestResult, outputPath string) error {
	html, err := GenerateHTMLString(result)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := writeFile(outputPath, []byte(html)); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders result as a self-contained HTML page.
func GenerateHTMLString(result *engine.TestResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	tmpl, err := template.New("report").
		Funcs(sprig.HtmlFuncMap()).
		Funcs(templateFuncs()).
		Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := ReportData{
		TestResult: result,
		Charts:     buildCharts(result.TimeSeries),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// DefaultPath names a report file after the run, e.g.
// "xrayperf-nightly-run-20260102-150405.html".
func DefaultPath(testName, ext string, now time.Time) string {
	name := strings.ToLower(strings.TrimSpace(testName))
	name = strings.NewReplacer(" ", "-", "/", "-", "\\", "-").Replace(name)
	if name == "" {
		name = "run"
	}
	return fmt.Sprintf("xrayperf-%s-%s.%s", name, now.Format("20060102-150405"), strings.TrimPrefix(ext, "."))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func buildCharts(series []*metrics.TimeBucket) []Chart {
	if len(series) < 2 {
		return nil
	}
	return []Chart{
		newChart("Requests per second", "req/s", series, func(b *metrics.TimeBucket) float64 { return b.IntervalRPS }),
		newChart("P95 latency", "ms", series, func(b *metrics.TimeBucket) float64 {
			return float64(b.LatencyP95.Microseconds()) / 1000
		}),
		newChart("Error rate", "%", series, func(b *metrics.TimeBucket) float64 { return b.IntervalErrorRate * 100 }),
		newChart("Active VUs", "VUs", series, func(b *metrics.TimeBucket) float64 { return float64(b.ActiveVUs) }),
	}
}

// newChart scales the series into an SVG polyline with the origin at the
// bottom left.
func newChart(title, unit string, series []*metrics.TimeBucket, value func(*metrics.TimeBucket) float64) Chart {
	values := make([]float64, len(series))
	peak := 0.0
	for i, b := range series {
		values[i] = value(b)
		peak = max(peak, values[i])
	}

	scale := 1.0
	if peak > 0 {
		scale = chartHeight / peak
	}
	step := float64(chartWidth) / float64(len(values)-1)

	points := make([]string, len(values))
	for i, v := range values {
		x := float64(i) * step
		y := chartHeight - v*scale
		points[i] = strconv.FormatFloat(x, 'f', 1, 64) + "," + strconv.FormatFloat(y, 'f', 1, 64)
	}

	return Chart{
		Title:  title,
		Unit:   unit,
		Points: strings.Join(points, " "),
		Max:    peak,
		Last:   values[len(values)-1],
		Width:  chartWidth,
		Height: chartHeight,
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"percent":        percent,
		"successRate":    successRate,
		"statusCodes":    statusCodes,
		"rateClass":      rateClass,
		"topErrors":      topErrors,
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		mins, secs := int(d.Minutes()), int(d.Seconds())%60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours, mins := int(d.Hours()), int(d.Minutes())%60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	var sb strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// formatLatency keeps three significant digits.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		ms := float64(d.Microseconds()) / 1000
		switch {
		case ms < 10:
			return fmt.Sprintf("%.2fms", ms)
		case ms < 100:
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	}
	if s := d.Seconds(); s < 10 {
		return fmt.Sprintf("%.2fs", s)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// percent formats a 0..1 ratio.
func percent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests) * 100
}

// statusCodes lists a status distribution in code order, e.g. "200 × 40".
// Code 0 means no response was received.
func statusCodes(codes map[int]int64) []string {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)

	out := make([]string, len(keys))
	for i, code := range keys {
		label := strconv.Itoa(code)
		if code == 0 {
			label = "no response"
		}
		out[i] = label + " × " + formatNumber(codes[code])
	}
	return out
}

func rateClass(errorRate float64) string {
	switch {
	case errorRate > 0.05:
		return "fail"
	case errorRate > 0:
		return "warn"
	default:
		return "pass"
	}
}

func topErrors(n int, errs []metrics.ErrorCount) []metrics.ErrorCount {
	if len(errs) <= n {
		return errs
	}
	return errs[:n]
}
