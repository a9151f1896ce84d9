// Command mock-xray serves the Artifactory and Xray endpoints xrayperf calls,
// so a run can be pointed at localhost without a real instance.
//
//	go run ./scripts/mock-xray -addr :8081 -latency 20ms -fail-every 50
//	XRAYPERF_BASE_URL=http://localhost:8081 XRAYPERF_TOKEN=x xrayperf run
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/xrayperf/internal/logging"
	"github.com/wesleyorama2/xrayperf/internal/xray/xraytest"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	latency := flag.Duration("latency", 0, "delay added to every response")
	failEvery := flag.Int64("fail-every", 0, "answer every Nth request with 500 (0 disables)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	handler := xraytest.NewHandler()
	handler.Latency = *latency
	handler.FailEvery = *failEvery

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5*time.Second + *latency,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("mock xray listening",
		zap.String("addr", *addr),
		zap.Duration("latency", *latency),
		zap.Int64("fail_every", *failEvery),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("mock xray stopped", zap.Int64("requests", handler.Requests()))
}
