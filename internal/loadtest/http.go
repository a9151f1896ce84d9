package loadtest

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/wesleyorama2/xrayperf/internal/config"
)

// HTTPClientConfig tunes the client shared by all VUs.
type HTTPClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	InsecureSkipVerify  bool
}

// DefaultHTTPClientConfig returns settings sized for a few hundred VUs.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             config.DefaultTimeout,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: config.DefaultIdleConns,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,
	}
}

// HTTPClientConfigFrom maps the user facing http section onto client settings.
func HTTPClientConfigFrom(c config.HTTPConfig) HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	if c.Timeout.Std() > 0 {
		cfg.Timeout = c.Timeout.Std()
	}
	if c.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.MaxIdleConnsPerHost
		if cfg.MaxIdleConns < c.MaxIdleConnsPerHost {
			cfg.MaxIdleConns = c.MaxIdleConnsPerHost
		}
	}
	cfg.MaxConnsPerHost = c.MaxConnsPerHost
	cfg.InsecureSkipVerify = c.InsecureSkipVerify
	return cfg
}

func newTransport(cfg HTTPClientConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in for self-signed test instances
	}
}

// NewHTTPClient returns a client that sends token as a bearer credential on
// every request, along with the transport underneath it so callers can close
// idle connections.
func NewHTTPClient(cfg HTTPClientConfig, token string) (*http.Client, *http.Transport) {
	transport := newTransport(cfg)

	var rt http.RoundTripper = transport
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	return &http.Client{Transport: rt, Timeout: cfg.Timeout}, transport
}
