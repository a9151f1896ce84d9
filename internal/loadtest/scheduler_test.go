package loadtest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
)

func newCountingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newTestScheduler(t *testing.T, w *Workload) (*VUScheduler, *metrics.Engine) {
	t.Helper()
	m := metrics.NewEngine()
	t.Cleanup(m.Stop)
	return NewVUScheduler(w, m, DefaultHTTPClientConfig(), nil), m
}

func TestVUScheduler_SpawnVU(t *testing.T) {
	s, _ := newTestScheduler(t, testWorkload(t, "http://127.0.0.1:1"))

	a := s.SpawnVU()
	b := s.SpawnVU()

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Same(t, a, s.GetVU(1))
	assert.Equal(t, 2, s.GetActiveVUCount())
	assert.Same(t, s.Client(), a.HTTPClient)
}

func TestVUScheduler_SeedsAreDistinctAndReproducible(t *testing.T) {
	w := testWorkload(t, "http://127.0.0.1:1")
	w.Seed = 42

	s1, _ := newTestScheduler(t, w)
	s2, _ := newTestScheduler(t, w)

	assert.Equal(t, s1.vuSeed(3), s2.vuSeed(3))
	assert.NotEqual(t, s1.vuSeed(1), s1.vuSeed(2))
}

func TestVUScheduler_RunVU(t *testing.T) {
	server, hits := newCountingServer(t, http.StatusOK)
	s, m := newTestScheduler(t, testWorkload(t, server.URL, "verify-repo"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	vu := s.SpawnVU()
	s.RunVU(ctx, vu)

	assert.Equal(t, VUStateStopped, vu.GetState())
	assert.Greater(t, hits.Load(), int64(0))

	snap := m.GetSnapshot()
	assert.Greater(t, snap.TotalRequests, int64(0))
	assert.Equal(t, snap.TotalRequests, snap.SuccessRequests)
	assert.LessOrEqual(t, snap.TotalRequests, hits.Load())
}

func TestVUScheduler_ThinkTimePacesIterations(t *testing.T) {
	server, hits := newCountingServer(t, http.StatusOK)
	w := testWorkload(t, server.URL, "verify-repo")
	w.ThinkTime = ThinkTime{Min: 100 * time.Millisecond, Max: 100 * time.Millisecond}
	s, _ := newTestScheduler(t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	s.RunVU(ctx, s.SpawnVU())

	assert.LessOrEqual(t, hits.Load(), int64(3))
	assert.GreaterOrEqual(t, hits.Load(), int64(2))
}

func TestVUScheduler_FailuresDoNotStopTheVU(t *testing.T) {
	server, _ := newCountingServer(t, http.StatusInternalServerError)
	s, m := newTestScheduler(t, testWorkload(t, server.URL, "create-policy"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s.RunVU(ctx, s.SpawnVU())

	snap := m.GetSnapshot()
	assert.Greater(t, snap.FailedRequests, int64(1))
	assert.Equal(t, int64(0), snap.SuccessRequests)

	stats := m.GetTemplateStats()
	require.Len(t, stats, 1)
	assert.Equal(t, snap.FailedRequests, stats[0].StatusCodes[http.StatusInternalServerError])
}

func TestVUScheduler_TransportFaultsDoNotStopTheVU(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(server.Close)
	s, m := newTestScheduler(t, testWorkload(t, server.URL, "get-violations"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	vu := s.SpawnVU()
	s.RunVU(ctx, vu)

	assert.Equal(t, VUStateStopped, vu.GetState())
	assert.Greater(t, hits.Load(), int64(1))

	snap := m.GetSnapshot()
	assert.Greater(t, snap.FailedRequests, int64(1))
	assert.Equal(t, int64(0), snap.SuccessRequests)

	stats := m.GetTemplateStats()
	require.Len(t, stats, 1)
	assert.Equal(t, snap.FailedRequests, stats[0].StatusCodes[0])
	require.NotEmpty(t, stats[0].Errors)
	assert.True(t, strings.HasPrefix(stats[0].Errors[0].Detail, "transport: Post: "), stats[0].Errors[0].Detail)
}

func TestVUScheduler_TransportFaultsGroupAcrossGeneratedPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	s, m := newTestScheduler(t, testWorkload(t, baseURL, "create-repo"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	s.RunVU(ctx, s.SpawnVU())

	stats := m.GetTemplateStats()
	require.Len(t, stats, 1)
	assert.Greater(t, stats[0].Failures, int64(1))

	require.Len(t, stats[0].Errors, 1, "every refused connection shares one detail")
	detail := stats[0].Errors[0]
	assert.Equal(t, stats[0].Failures, detail.Count)
	assert.True(t, strings.HasPrefix(detail.Detail, "transport: Put: "), detail.Detail)
	assert.NotContains(t, detail.Detail, "perf-docker-")
}

func TestTransportDetail(t *testing.T) {
	err := &url.Error{Op: "Put", URL: "http://h/artifactory/api/repositories/perf-docker-abc123", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "transport: Put: unexpected EOF", transportDetail(err))
	assert.Equal(t, "transport: boom", transportDetail(errors.New("boom")))
}

func TestVUScheduler_ScaleVUs(t *testing.T) {
	server, _ := newCountingServer(t, http.StatusOK)
	w := testWorkload(t, server.URL, "verify-repo")
	w.ThinkTime = ThinkTime{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	s, m := newTestScheduler(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := func(vu *VirtualUser) { s.Go(ctx, vu) }

	assert.Equal(t, 5, s.ScaleVUs(5, start))
	assert.Equal(t, 5, m.GetActiveVUs())

	assert.Equal(t, 2, s.ScaleVUs(2, start))
	assert.Eventually(t, func() bool { return s.GetActiveVUCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	// Stopping VUs are not counted twice.
	assert.Equal(t, 2, s.ScaleVUs(2, start))

	assert.Equal(t, 4, s.ScaleVUs(4, start))
	assert.True(t, s.Shutdown(2*time.Second))
	assert.Equal(t, 0, s.GetActiveVUCount())
	assert.Equal(t, 0, m.GetActiveVUs())
}

func TestVUScheduler_ShutdownIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, testWorkload(t, "http://127.0.0.1:1"))

	assert.True(t, s.Shutdown(time.Second))
	assert.True(t, s.Shutdown(time.Second))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
}

func TestVUScheduler_WaitForAllVUs(t *testing.T) {
	s, _ := newTestScheduler(t, testWorkload(t, "http://127.0.0.1:1"))

	a := s.SpawnVU()
	s.SpawnVU()
	a.MarkStopped()

	assert.Equal(t, 1, s.WaitForAllVUs(50*time.Millisecond))

	s.RemoveVU(2)
	assert.Equal(t, 0, s.WaitForAllVUs(50*time.Millisecond))
}

func TestHTTPClientConfigFrom(t *testing.T) {
	cfg := HTTPClientConfigFrom(config.HTTPConfig{
		Timeout:             config.Duration(5 * time.Second),
		MaxIdleConnsPerHost: 2000,
		MaxConnsPerHost:     50,
		InsecureSkipVerify:  true,
	})

	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2000, cfg.MaxIdleConnsPerHost)
	assert.Equal(t, 2000, cfg.MaxIdleConns)
	assert.Equal(t, 50, cfg.MaxConnsPerHost)
	assert.True(t, cfg.InsecureSkipVerify)

	defaults := HTTPClientConfigFrom(config.HTTPConfig{})
	assert.Equal(t, config.DefaultTimeout, defaults.Timeout)
}

func TestNewHTTPClient_NoTokenSendsNoAuthorization(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client, _ := NewHTTPClient(DefaultHTTPClientConfig(), "")
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth)
}
