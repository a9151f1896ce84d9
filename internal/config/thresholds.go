package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Threshold metric names.
const (
	MetricReqDuration = "http_req_duration"
	MetricReqFailed   = "http_req_failed"
	MetricReqs        = "http_reqs"
)

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

// thresholdStats lists the statistics each metric supports.
var thresholdStats = map[string][]string{
	MetricReqDuration: {"min", "max", "avg", "med", "p50", "p90", "p95", "p99"},
	MetricReqFailed:   {"rate"},
	MetricReqs:        {"count", "rate"},
}

// Threshold is a parsed pass/fail expression such as "p95 < 500ms".
type Threshold struct {
	Metric     string
	Expression string
	Stat       string
	Op         string

	// Value is in nanoseconds for http_req_duration and unitless otherwise.
	Value float64
}

// ParseThreshold parses expr for the given metric.
func ParseThreshold(metric, expr string) (Threshold, error) {
	stats, ok := thresholdStats[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown metric %q", metric)
	}

	m := thresholdPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q: want \"<stat> <op> <value>\"", expr)
	}

	t := Threshold{Metric: metric, Expression: expr, Stat: m[1], Op: m[2]}
	if !contains(stats, t.Stat) {
		return Threshold{}, fmt.Errorf("%s does not support %q (use one of %s)", metric, t.Stat, strings.Join(stats, ", "))
	}

	if metric == MetricReqDuration {
		d, err := ParseDuration(m[3])
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid threshold %q: %w", expr, err)
		}
		t.Value = float64(d)
		return t, nil
	}

	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q: %w", expr, err)
	}
	t.Value = v
	return t, nil
}

// Passed reports whether actual satisfies the threshold.
func (t Threshold) Passed(actual float64) bool {
	switch t.Op {
	case "<":
		return actual < t.Value
	case "<=":
		return actual <= t.Value
	case ">":
		return actual > t.Value
	case ">=":
		return actual >= t.Value
	case "==":
		return actual == t.Value
	case "!=":
		return actual != t.Value
	}
	return false
}

// Parse parses every expression. A nil receiver has no thresholds.
func (c *ThresholdsConfig) Parse() ([]Threshold, error) {
	if c == nil {
		return nil, nil
	}

	var out []Threshold
	errs := &ValidationErrors{}
	for _, group := range c.groups() {
		for i, expr := range group.exprs {
			t, err := ParseThreshold(group.metric, expr)
			if err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", group.metric, i), err.Error())
				continue
			}
			out = append(out, t)
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return out, nil
}

type thresholdGroup struct {
	metric string
	exprs  []string
}

func (c *ThresholdsConfig) groups() []thresholdGroup {
	return []thresholdGroup{
		{MetricReqDuration, c.HTTPReqDuration},
		{MetricReqFailed, c.HTTPReqFailed},
		{MetricReqs, c.HTTPReqs},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
