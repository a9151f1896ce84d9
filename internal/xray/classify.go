package xray

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wesleyorama2/xrayperf/pkg/jsonpath"
)

// maxBodyInMessage caps how much of a response body ends up in a failure message.
const maxBodyInMessage = 4096

// errorDetailPaths locate the human readable error in Artifactory and Xray
// error bodies, most specific first.
var errorDetailPaths = []string{
	"$.errors[0].message",
	"$.error",
	"$.message",
	"$.errors[0]",
}

// UnexpectedStatusError reports a response whose status code is outside the
// template's expected set.
type UnexpectedStatusError struct {
	Template   string
	StatusCode int
	Body       string

	// Detail is a short description of the failure used to group errors in
	// summaries. It comes from the JSON error body when there is one.
	Detail string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Template, e.StatusCode, truncate(e.Body, maxBodyInMessage))
}

// TransportError reports a request that produced no usable response:
// connection failures, timeouts and truncated bodies.
type TransportError struct {
	Template string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: transport error: %v", e.Template, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Classify returns nil when statusCode is expected by the template, and an
// *UnexpectedStatusError carrying the response body otherwise.
func (t *Template) Classify(statusCode int, body []byte) error {
	if t.Expected.Contains(statusCode) {
		return nil
	}
	return &UnexpectedStatusError{
		Template:   t.Name,
		StatusCode: statusCode,
		Body:       string(body),
		Detail:     ErrorDetail(statusCode, body),
	}
}

// ErrorDetail extracts a one line description of a failed response.
func ErrorDetail(statusCode int, body []byte) string {
	if detail, ok := jsonpath.First(string(body), errorDetailPaths...); ok {
		return fmt.Sprintf("%d %s", statusCode, truncate(firstLine(detail), 120))
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Sprintf("%d %s", statusCode, truncate(firstLine(text), 120))
	}
	return fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
