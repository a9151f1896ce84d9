package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/wesleyorama2/xrayperf/internal/xray"
)

// ValidationError is a problem with one config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every problem found in a config.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return "invalid config: " + e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid config (%d errors):", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Add records a problem with field.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any problem was recorded.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the config after defaults have been applied. It returns
// *ValidationErrors listing every problem, or nil.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(c.Target, errs)
	validateLoad(&c.Load, errs)
	validateThinkTime(c.ThinkTime, errs)

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must not be negative")
	}

	for i, key := range c.Templates {
		if _, ok := xray.Lookup(key); !ok {
			errs.Add(fmt.Sprintf("templates[%d]", i), unknownName("template", key, xray.Keys()))
		}
	}

	validateFixtures(c.Fixtures, errs)

	if _, err := c.Thresholds.Parse(); err != nil {
		if ve, ok := err.(*ValidationErrors); ok {
			errs.Errors = append(errs.Errors, ve.Errors...)
		} else {
			errs.Add("thresholds", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t Target, errs *ValidationErrors) {
	if t.BaseURL == "" {
		errs.Add("base_url", "is required (set it in the config file or "+EnvBaseURL+")")
	} else if u, err := url.Parse(t.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs.Add("base_url", fmt.Sprintf("%q is not an http(s) URL", t.BaseURL))
	}

	if t.Token == "" {
		errs.Add("token", "is required (set it in the config file or "+EnvToken+")")
	}
}

func validateLoad(l *LoadProfile, errs *ValidationErrors) {
	switch l.Executor {
	case ExecutorConstantVUs:
		if l.VUs <= 0 {
			errs.Add("load.vus", "must be greater than 0")
		}
		if l.Duration <= 0 {
			errs.Add("load.duration", "must be greater than 0")
		}
	case ExecutorRampingVUs:
		if len(l.Stages) == 0 {
			errs.Add("load.stages", "ramping-vus needs at least one stage")
		}
		for i, s := range l.Stages {
			if s.Duration <= 0 {
				errs.Add(fmt.Sprintf("load.stages[%d].duration", i), "must be greater than 0")
			}
			if s.Target < 0 {
				errs.Add(fmt.Sprintf("load.stages[%d].target", i), "must not be negative")
			}
		}
	case ExecutorConstantArrivalRate:
		if l.Rate <= 0 {
			errs.Add("load.rate", "must be greater than 0")
		}
		if l.Duration <= 0 {
			errs.Add("load.duration", "must be greater than 0")
		}
		if l.PreAllocatedVUs <= 0 {
			errs.Add("load.pre_allocated_vus", "must be greater than 0")
		}
		if l.MaxVUs < l.PreAllocatedVUs {
			errs.Add("load.max_vus", "must be at least pre_allocated_vus")
		}
	default:
		errs.Add("load.executor", unknownName("executor", l.Executor, Executors))
	}

	if l.GracefulStop < 0 {
		errs.Add("load.graceful_stop", "must not be negative")
	}
}

func validateThinkTime(t *ThinkTimeConfig, errs *ValidationErrors) {
	if t == nil {
		return
	}
	if t.Min < 0 {
		errs.Add("think_time.min", "must not be negative")
	}
	if t.Max < t.Min {
		errs.Add("think_time.max", fmt.Sprintf("must be at least min (%s)", t.Min))
	}
}

func validateFixtures(f xray.Fixtures, errs *ValidationErrors) {
	dates := []struct{ field, value string }{
		{"fixtures.apply_start", f.ApplyStart},
		{"fixtures.apply_end", f.ApplyEnd},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, d.value); err != nil {
			errs.Add(d.field, fmt.Sprintf("%q is not an RFC 3339 timestamp", d.value))
		}
	}
	for i, p := range f.ViolationPaths {
		if !strings.HasPrefix(p, "/") {
			errs.Add(fmt.Sprintf("fixtures.violation_paths[%d]", i), "must start with /")
		}
	}
}

// unknownName builds an "unknown X" message with a did-you-mean hint.
func unknownName(kind, name string, valid []string) string {
	msg := fmt.Sprintf("unknown %s %q", kind, name)
	if s := suggest(name, valid); s != "" {
		return msg + fmt.Sprintf(", did you mean %q?", s)
	}
	return msg + " (valid: " + strings.Join(valid, ", ") + ")"
}

// suggest returns the closest candidate to name, or "". It matches name as a
// fuzzy pattern first, then each candidate as a pattern inside name, which
// catches typos that add characters.
func suggest(name string, candidates []string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if matches := fuzzy.Find(name, candidates); len(matches) > 0 {
		return matches[0].Str
	}

	best := ""
	for _, c := range candidates {
		if len(fuzzy.Find(c, []string{name})) > 0 && len(c) > len(best) {
			best = c
		}
	}
	return best
}
