// Package xraytest provides an in-process stand-in for the Artifactory and
// Xray endpoints the workload calls.
package xraytest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Call is one request the server received.
type Call struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          string
}

// Handler answers every catalog endpoint with its success status. Individual
// routes can be overridden with Respond.
type Handler struct {
	// Latency delays every response.
	Latency time.Duration

	// FailEvery makes every Nth request answer 500. Zero disables it.
	FailEvery int64

	// Record keeps each request for Calls.
	Record bool

	requests atomic.Int64

	mu        sync.Mutex
	calls     []Call
	overrides map[string]response
}

type response struct {
	status int
	body   string
}

// NewHandler returns a handler with no overrides that does not record.
func NewHandler() *Handler {
	return &Handler{overrides: make(map[string]response)}
}

// Respond makes method and path return status and body. A path ending in
// "/" matches every path under it.
func (h *Handler) Respond(method, path string, status int, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overrides[method+" "+path] = response{status, body}
}

// Calls returns every request recorded so far.
func (h *Handler) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// Requests is the number of requests served.
func (h *Handler) Requests() int64 {
	return h.requests.Load()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	n := h.requests.Add(1)

	h.mu.Lock()
	if h.Record {
		h.calls = append(h.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          string(body),
		})
	}
	resp, ok := h.lookup(r.Method, r.URL.Path)
	h.mu.Unlock()

	if !ok {
		resp = defaultResponse(r.Method, r.URL.Path)
	}
	if h.FailEvery > 0 && n%h.FailEvery == 0 {
		resp = response{http.StatusInternalServerError, `{"errors":[{"status":500,"message":"injected failure"}]}`}
	}

	if h.Latency > 0 {
		select {
		case <-time.After(h.Latency):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (h *Handler) lookup(method, path string) (response, bool) {
	if resp, ok := h.overrides[method+" "+path]; ok {
		return resp, true
	}
	for key, resp := range h.overrides {
		m, prefix, _ := strings.Cut(key, " ")
		if m == method && strings.HasSuffix(prefix, "/") && strings.HasPrefix(path, prefix) {
			return resp, true
		}
	}
	return response{}, false
}

// Server is a recording Handler behind an httptest server.
type Server struct {
	*httptest.Server
	*Handler
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	h := NewHandler()
	h.Record = true
	return &Server{Server: httptest.NewServer(h), Handler: h}
}

func defaultResponse(method, path string) response {
	switch {
	case method == http.MethodPut && strings.HasPrefix(path, "/artifactory/api/repositories/"):
		return response{http.StatusOK, `{"info":"repository created"}`}
	case method == http.MethodGet && path == "/artifactory/api/repositories":
		return response{http.StatusOK, `[{"key":"perf-test-docker-local","type":"LOCAL"}]`}
	case method == http.MethodPost && path == "/xray/api/v1/artifact/status":
		return response{http.StatusOK, `{"overall":{"status":"DONE"}}`}
	case method == http.MethodPost && path == "/xray/api/v2/policies":
		return response{http.StatusCreated, `{"info":"Policy created"}`}
	case method == http.MethodPost && path == "/xray/api/v2/watches":
		return response{http.StatusCreated, `{"info":"Watch created"}`}
	case method == http.MethodPost && path == "/xray/api/v1/applyWatch":
		return response{http.StatusAccepted, `{"info":"apply watch started"}`}
	case method == http.MethodPost && path == "/xray/api/v1/violations":
		return response{http.StatusOK, `{"total_violations":0,"violations":[]}`}
	default:
		return response{http.StatusNotFound, `{"errors":[{"status":404,"message":"Not found"}]}`}
	}
}
