package engine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/xray/xraytest"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Target: config.Target{BaseURL: baseURL, Token: "test-token"},
		Seed:   11,
		Load: config.LoadProfile{
			Executor: config.ExecutorConstantVUs,
			VUs:      3,
			Duration: config.Duration(400 * time.Millisecond),
		},
		ThinkTime: &config.ThinkTimeConfig{
			Min: config.Duration(5 * time.Millisecond),
			Max: config.Duration(10 * time.Millisecond),
		},
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	_, err := NewEngine(&config.Config{})
	require.Error(t, err)

	var verr *config.ValidationErrors
	assert.ErrorAs(t, err, &verr)
}

func TestNewEngine_UnknownTemplate(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Templates = []string{"create-repos"}

	_, err := NewEngine(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "create-repo"?`)
}

func TestEngine_Run(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Thresholds = &config.ThresholdsConfig{
		HTTPReqFailed: []string{"rate < 0.01"},
		HTTPReqs:      []string{"count > 10"},
	}

	core, logs := observer.New(zapcore.InfoLevel)
	eng, err := NewEngine(cfg, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Len(t, eng.Templates(), 7)
	assert.Equal(t, 0.0, eng.GetProgress())

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "xray-perf", result.Name)
	assert.Equal(t, "constant-vus", result.Executor)
	assert.False(t, result.Interrupted)
	assert.True(t, result.Passed, "thresholds: %+v", result.Thresholds)
	require.Len(t, result.Thresholds, 2)

	assert.Greater(t, result.Metrics.TotalRequests, int64(10))
	assert.Equal(t, int64(0), result.Metrics.FailedRequests)
	assert.GreaterOrEqual(t, result.Duration, 400*time.Millisecond)

	var perTemplate int64
	for _, ts := range result.Templates {
		perTemplate += ts.Requests
		assert.Zero(t, ts.Failures, ts.Name)
	}
	assert.Equal(t, result.Metrics.TotalRequests, perTemplate)

	for _, call := range server.Calls() {
		assert.Equal(t, "Bearer test-token", call.Authorization)
		assert.Equal(t, "application/json", call.ContentType)
	}

	assert.Equal(t, 1, logs.FilterMessage("run started").Len())
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
	assert.False(t, eng.IsRunning())
}

func TestEngine_RunRecordsFailuresPerTemplate(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()
	server.Respond(http.MethodPost, "/xray/api/v1/applyWatch", http.StatusOK, `{"info":"applied"}`)

	cfg := testConfig(server.URL)
	cfg.Templates = []string{"apply-watch", "verify-repo"}
	cfg.Thresholds = &config.ThresholdsConfig{HTTPReqFailed: []string{"rate < 0.05"}}

	eng, err := NewEngine(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Passed)

	stats := map[string]metrics.TemplateStats{}
	for _, ts := range result.Templates {
		stats[ts.Name] = ts
	}
	require.Contains(t, stats, "Apply Watch")
	require.Contains(t, stats, "Verify Repo")

	apply := stats["Apply Watch"]
	assert.Equal(t, apply.Requests, apply.Failures)
	require.NotEmpty(t, apply.Errors)
	assert.Equal(t, `200 {"info":"applied"}`, apply.Errors[0].Detail)
	assert.Zero(t, stats["Verify Repo"].Failures)
}

func TestEngine_RunCancelled(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Load.Duration = config.Duration(time.Hour)

	eng, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := eng.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, result.Interrupted)
	assert.False(t, result.Passed)
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
}

func TestEngine_Stop(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Load.Duration = config.Duration(time.Hour)

	eng, err := NewEngine(cfg)
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		eng.Stop()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := eng.Run(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestEngine_ArrivalRate(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Load = config.LoadProfile{
		Executor:        config.ExecutorConstantArrivalRate,
		Rate:            40,
		Duration:        config.Duration(500 * time.Millisecond),
		PreAllocatedVUs: 2,
		MaxVUs:          8,
	}

	eng, err := NewEngine(cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 20, result.Metrics.TotalRequests, 8)
	assert.Equal(t, "constant-arrival-rate", result.Executor)
}

func TestEngine_PrometheusObserver(t *testing.T) {
	server := xraytest.NewServer()
	defer server.Close()

	reg := prometheus.NewRegistry()
	eng, err := NewEngine(testConfig(server.URL), WithObserver(metrics.NewPrometheusObserver(reg)))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "xrayperf_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(result.Metrics.TotalRequests), total)
}
