package executor

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/xrayperf/internal/config"
)

// ConfigFromLoad converts the load section of a run configuration.
func ConfigFromLoad(l config.LoadProfile) *Config {
	c := &Config{
		Type:            Type(l.Executor),
		VUs:             l.VUs,
		Duration:        l.Duration.Std(),
		Rate:            l.Rate,
		PreAllocatedVUs: l.PreAllocatedVUs,
		MaxVUs:          l.MaxVUs,
		GracefulStop:    l.GracefulStop.Std(),
	}
	for _, s := range l.Stages {
		c.Stages = append(c.Stages, Stage{Duration: s.Duration.Std(), Target: s.Target})
	}
	return c
}

// New returns the executor for c.Type, initialized with c.
func New(c *Config) (Executor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.GracefulStop <= 0 {
		c.GracefulStop = config.DefaultGracefulStop
	}

	var e Executor
	switch c.Type {
	case TypeConstantVUs:
		e = NewConstantVUs()
	case TypeRampingVUs:
		e = NewRampingVUs()
	case TypeConstantArrivalRate:
		e = NewConstantArrivalRate()
	default:
		return nil, fmt.Errorf("unknown executor type: %s", c.Type)
	}

	if err := e.Init(context.Background(), c); err != nil {
		return nil, err
	}
	return e, nil
}

// FromLoad builds the executor for a load section.
func FromLoad(l config.LoadProfile) (Executor, error) {
	return New(ConfigFromLoad(l))
}
