// Package loadtest drives virtual users against an Artifactory and Xray
// deployment.
package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/xray"
)

// VUState is the lifecycle state of a virtual user.
type VUState int32

const (
	VUStateIdle VUState = iota
	VUStateRunning
	VUStateStopping
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Recorder receives one sample per request.
type Recorder interface {
	Record(metrics.Sample)
}

// ThinkTime bounds the uniform random pause after each iteration.
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// Next draws a pause in [Min, Max).
func (t ThinkTime) Next(r xray.Rand) time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(r.Int63n(int64(t.Max-t.Min)))
}

// Workload is what every virtual user of a run executes. It is built once
// and shared read-only.
type Workload struct {
	Name      string
	Target    config.Target
	Templates []*xray.Template
	Builder   *xray.Builder
	ThinkTime ThinkTime
	UserAgent string

	// Seed derives each VU's random source. 0 seeds from the clock.
	Seed int64
}

// Result is the outcome of one request: a sample, and the error that made it
// fail if it did. Aborted is set when the run was cancelled mid-request; such
// results are not recorded.
type Result struct {
	Template *xray.Template
	Sample   metrics.Sample
	Err      error
	Aborted  bool
}

// VirtualUser is one simulated client. It owns its random source; everything
// else it touches is either immutable or safe for concurrent use.
type VirtualUser struct {
	ID         int
	Workload   *Workload
	HTTPClient *http.Client
	Metrics    Recorder
	Logger     *zap.Logger

	rng       xray.Rand
	state     atomic.Int32
	iteration atomic.Int64
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}
	doneOnce  sync.Once
}

// NewVirtualUser creates an idle VU. The client must add the bearer token;
// see NewHTTPClient.
func NewVirtualUser(id int, workload *Workload, client *http.Client, recorder Recorder, rng xray.Rand) *VirtualUser {
	return &VirtualUser{
		ID:         id,
		Workload:   workload,
		HTTPClient: client,
		Metrics:    recorder,
		Logger:     zap.NewNop(),
		rng:        rng,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns how many iterations the VU has started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration picks a template uniformly at random, sends it and records
// exactly one sample. Request failures are recorded, not returned; the only
// errors are a stopped VU and a cancelled ctx.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return fmt.Errorf("VU %d is %s", vu.ID, vu.GetState())
	}
	defer vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	if len(vu.Workload.Templates) == 0 {
		return fmt.Errorf("VU %d has no templates", vu.ID)
	}

	vu.iteration.Add(1)
	tmpl := vu.Workload.Templates[vu.rng.Intn(len(vu.Workload.Templates))]

	res := vu.Execute(ctx, tmpl)
	if res.Aborted {
		return ctx.Err()
	}
	vu.log(res)
	vu.Metrics.Record(res.Sample)
	return nil
}

// Execute sends one request built from tmpl and classifies the response.
func (vu *VirtualUser) Execute(ctx context.Context, tmpl *xray.Template) (res Result) {
	start := time.Now()
	res = Result{Template: tmpl, Sample: metrics.Sample{Name: tmpl.Name}}

	defer func() {
		if r := recover(); r != nil {
			res = vu.fail(res, start, fmt.Errorf("%s failed: panic: %v", tmpl.Name, r))
		}
	}()

	req, err := tmpl.Build(vu.Workload.Builder)
	if err != nil {
		return vu.fail(res, start, err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, vu.Workload.Target.URL(req.Path), body)
	if err != nil {
		return vu.fail(res, start, fmt.Errorf("%s: build request: %w", tmpl.Name, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if vu.Workload.UserAgent != "" {
		httpReq.Header.Set("User-Agent", vu.Workload.UserAgent)
	}

	resp, err := vu.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			res.Aborted = true
			res.Err = ctx.Err()
			return res
		}
		return vu.fail(res, start, &xray.TransportError{Template: tmpl.Name, Err: err})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	res.Sample.StatusCode = resp.StatusCode
	res.Sample.Bytes = int64(len(respBody))
	if err != nil {
		if ctx.Err() != nil {
			res.Aborted = true
			res.Err = ctx.Err()
			return res
		}
		return vu.fail(res, start, &xray.TransportError{Template: tmpl.Name, Err: fmt.Errorf("read body: %w", err)})
	}
	res.Sample.Latency = time.Since(start)

	if err := tmpl.Classify(resp.StatusCode, respBody); err != nil {
		res.Err = err
		res.Sample.Message = err.Error()
		var statusErr *xray.UnexpectedStatusError
		if errors.As(err, &statusErr) {
			res.Sample.Detail = statusErr.Detail
		}
		return res
	}

	res.Sample.Success = true
	return res
}

func (vu *VirtualUser) fail(res Result, start time.Time, err error) Result {
	res.Err = err
	res.Sample.Success = false
	res.Sample.Latency = time.Since(start)
	res.Sample.Message = err.Error()

	var transportErr *xray.TransportError
	if errors.As(err, &transportErr) {
		res.Sample.Detail = transportDetail(transportErr.Err)
	}
	return res
}

// transportDetail drops the request URL so faults on generated paths group
// under one detail.
func transportDetail(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "transport: " + urlErr.Op + ": " + urlErr.Err.Error()
	}
	return "transport: " + err.Error()
}

func (vu *VirtualUser) log(res Result) {
	if res.Err == nil {
		return
	}

	fields := []zap.Field{zap.Int("vu", vu.ID), zap.String("template", res.Template.Name)}

	var transportErr *xray.TransportError
	var statusErr *xray.UnexpectedStatusError
	switch {
	case errors.As(res.Err, &transportErr):
		vu.Logger.Warn("transport fault", append(fields, zap.Error(transportErr.Err))...)
	case errors.As(res.Err, &statusErr):
		vu.Logger.Debug("unexpected status", append(fields,
			zap.Int("status", statusErr.StatusCode),
			zap.String("detail", statusErr.Detail))...)
	default:
		vu.Logger.Error("request failed", append(fields, zap.Error(res.Err))...)
	}
}

// Think sleeps for a random think time. It returns early when the VU is
// stopped or ctx is done.
func (vu *VirtualUser) Think(ctx context.Context) {
	d := vu.Workload.ThinkTime.Next(vu.rng)
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-vu.stopCh:
	case <-timer.C:
	}
}

// RequestStop asks the VU to stop after its current iteration.
func (vu *VirtualUser) RequestStop() {
	for {
		s := vu.state.Load()
		if VUState(s) == VUStateStopping || VUState(s) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(s, int32(VUStateStopping)) {
			vu.stopOnce.Do(func() { close(vu.stopCh) })
			return
		}
	}
}

// Stopping reports whether a stop was requested.
func (vu *VirtualUser) Stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// MarkStopped records that the VU's goroutine has exited.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.stopOnce.Do(func() { close(vu.stopCh) })
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}

// WaitForStop waits up to timeout for MarkStopped.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}
