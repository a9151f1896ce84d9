package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/xrayperf/internal/config"
)

// configOptions are the flags that override the config file.
type configOptions struct {
	path string

	name      string
	executor  string
	vus       int
	duration  string
	stages    string
	rate      float64
	preAlloc  int
	maxVUs    int
	thinkMin  string
	thinkMax  string
	templates []string
	seed      int64
	timeout   string
	insecure  bool
}

func (o *configOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.path, "config", "c", config.DefaultPath, "Configuration file (JSON with comments, or YAML)")
	f.StringVar(&o.name, "name", "", "Run name used in reports")
	f.StringVar(&o.executor, "executor", "", "Executor: "+strings.Join(config.Executors, ", "))
	f.IntVar(&o.vus, "vus", 0, "Number of virtual users")
	f.StringVar(&o.duration, "duration", "", "Test duration (e.g. 5m, 30s)")
	f.StringVar(&o.stages, "stages", "", "Ramping stages as 'duration:target,...' (e.g. 30s:10,2m:10,30s:0)")
	f.Float64Var(&o.rate, "rate", 0, "Iterations per second for constant-arrival-rate")
	f.IntVar(&o.preAlloc, "pre-allocated-vus", 0, "VUs started up front for constant-arrival-rate")
	f.IntVar(&o.maxVUs, "max-vus", 0, "VU ceiling for constant-arrival-rate")
	f.StringVar(&o.thinkMin, "think-min", "", "Minimum pause between requests")
	f.StringVar(&o.thinkMax, "think-max", "", "Maximum pause between requests")
	f.StringSliceVar(&o.templates, "templates", nil, "Template keys to run (default: all)")
	f.Int64Var(&o.seed, "seed", 0, "Seed for template selection and generated names (0 uses the clock)")
	f.StringVar(&o.timeout, "timeout", "", "Per-request timeout")
	f.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
}

// load reads the config file, applies .env, environment and flag
// overrides, fills defaults and validates. A missing default config file
// is not an error: the target can come from the environment alone.
func (o *configOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.path)
	if err != nil {
		if cmd.Flags().Changed("config") || !missing(o.path) {
			return nil, err
		}
		cfg = &config.Config{}
	}

	if err := config.LoadDotEnv(filepath.Dir(o.path)); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := o.apply(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// apply copies every flag the user set onto cfg.
func (o *configOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	l := &cfg.Load

	if changed("name") {
		cfg.Name = o.name
	}
	if changed("executor") {
		l.Executor = o.executor
	}
	if changed("vus") {
		l.VUs = o.vus
	}
	if changed("duration") {
		d, err := config.ParseDuration(o.duration)
		if err != nil {
			return fmt.Errorf("--duration: %w", err)
		}
		l.Duration = config.Duration(d)
	}
	if changed("stages") {
		stages, err := parseStages(o.stages)
		if err != nil {
			return fmt.Errorf("--stages: %w", err)
		}
		l.Stages = stages
		if !changed("duration") {
			l.Duration = 0
		}
		if !changed("executor") {
			l.Executor = config.ExecutorRampingVUs
		}
	}
	if changed("rate") {
		l.Rate = o.rate
		if !changed("executor") && !changed("stages") {
			l.Executor = config.ExecutorConstantArrivalRate
		}
	}
	if changed("pre-allocated-vus") {
		l.PreAllocatedVUs = o.preAlloc
	}
	if changed("max-vus") {
		l.MaxVUs = o.maxVUs
	}

	if changed("think-min") || changed("think-max") {
		think := config.ThinkTimeConfig{
			Min: config.Duration(config.DefaultThinkMin),
			Max: config.Duration(config.DefaultThinkMax),
		}
		if cfg.ThinkTime != nil {
			think = *cfg.ThinkTime
		}
		for _, f := range []struct {
			flag  string
			value string
			dst   *config.Duration
		}{
			{"think-min", o.thinkMin, &think.Min},
			{"think-max", o.thinkMax, &think.Max},
		} {
			if !changed(f.flag) {
				continue
			}
			d, err := config.ParseDuration(f.value)
			if err != nil {
				return fmt.Errorf("--%s: %w", f.flag, err)
			}
			*f.dst = config.Duration(d)
		}
		cfg.ThinkTime = &think
	}

	if changed("templates") {
		cfg.Templates = o.templates
	}
	if changed("seed") {
		cfg.Seed = o.seed
	}
	if changed("timeout") {
		d, err := config.ParseDuration(o.timeout)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		cfg.HTTP.Timeout = config.Duration(d)
	}
	if changed("insecure") {
		cfg.HTTP.InsecureSkipVerify = o.insecure
	}
	return nil
}

// parseStages parses "30s:10,2m:10,30s:0".
func parseStages(s string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idx := strings.LastIndex(part, ":")
		if idx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target', got %q", i+1, part)
		}

		d, err := time.ParseDuration(part[:idx])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration %q: %w", i+1, part[:idx], err)
		}
		target, err := strconv.Atoi(part[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target %q: %w", i+1, part[idx+1:], err)
		}

		stages = append(stages, config.StageConfig{Duration: config.Duration(d), Target: target})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	return stages, nil
}
