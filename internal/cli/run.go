package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/metrics"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/output"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/report"
	"github.com/wesleyorama2/xrayperf/internal/logging"
)

type runOptions struct {
	configOptions

	jsonOutput  bool
	htmlOutput  bool
	outputPath  string
	quiet       bool
	noColor     bool
	metricsAddr string
	logLevel    string
	logFormat   string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against Xray and Artifactory",
		Long: `Run virtual users that each pick a random template per iteration, send it,
record the outcome and pause for the think time.

Config file mode:
  xrayperf run --config config.json

Overriding the profile:
  xrayperf run --executor ramping-vus --stages "30s:10,2m:10,30s:0"

Arrival rate mode:
  xrayperf run --rate 20 --duration 5m --max-vus 100

The target comes from base_url and token in the config file, or from
XRAYPERF_BASE_URL and XRAYPERF_TOKEN (a .env file next to the config is read).
The command exits non-zero when a threshold fails or the run errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	opts.configOptions.register(cmd)

	f := cmd.Flags()
	f.BoolVar(&opts.jsonOutput, "json", false, "Write the result as JSON (to stdout unless --output is set)")
	f.BoolVar(&opts.htmlOutput, "html", false, "Write an HTML report")
	f.StringVarP(&opts.outputPath, "output", "o", "", "Report path; without an extension both .html and .json are written")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress, print only PASSED or FAILED")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")

	return cmd
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	logger, err := logging.New(logging.Options{
		Level:  opts.logLevel,
		Format: opts.logFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}

	var metricsServer *http.Server
	var metricsListener net.Listener
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engineOpts = append(engineOpts, engine.WithObserver(metrics.NewPrometheusObserver(reg)))

		metricsListener, err = net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", zap.String("addr", metricsListener.Addr().String()))
	}

	eng, err := engine.NewEngine(cfg, engineOpts...)
	if err != nil {
		if metricsListener != nil {
			_ = metricsListener.Close()
		}
		return err
	}

	// JSON on stdout must stay parseable, so the console moves to stderr.
	jsonToStdout := opts.jsonOutput && opts.outputPath == ""
	consoleWriter := cmd.OutOrStdout()
	if jsonToStdout {
		consoleWriter = cmd.ErrOrStderr()
	}

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:     cfg.Name,
		Target:       cfg.Target.Redacted(),
		ExecutorType: cfg.Load.Executor,
		Writer:       consoleWriter,
		Quiet:        opts.quiet,
		NoColor:      opts.noColor,
	})
	console.PrintHeader()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	done, finish := context.WithCancel(gctx)
	defer finish()

	var result *engine.TestResult
	g.Go(func() error {
		defer finish()
		var runErr error
		result, runErr = eng.Run(gctx)
		return runErr
	})
	g.Go(func() error {
		console.Watch(done, eng)
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-done.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	if result == nil {
		if runErr == nil {
			runErr = errors.New("run produced no result")
		}
		return runErr
	}

	console.PrintSummary(result)

	if err := writeReports(cmd.OutOrStdout(), consoleWriter, result, opts); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return runErr
	}
	if result.Interrupted {
		return ErrInterrupted
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// writeReports writes the JSON and HTML outputs selected by the flags and
// the --output extension. Paths written are announced on notices.
func writeReports(stdout, notices io.Writer, result *engine.TestResult, opts *runOptions) error {
	path := opts.outputPath
	ext := strings.ToLower(filepath.Ext(path))
	wantJSON := opts.jsonOutput || ext == ".json"
	wantHTML := opts.htmlOutput || ext == ".html"

	var errs []error
	writeHTML := func(p string) {
		if err := report.GenerateHTML(result, p); err != nil {
			errs = append(errs, err)
			return
		}
		fmt.Fprintf(notices, "Report: %s\n", p)
	}
	writeJSON := func(p string) {
		if err := report.GenerateJSON(result, p); err != nil {
			errs = append(errs, err)
			return
		}
		fmt.Fprintf(notices, "Results written to: %s\n", p)
	}

	switch {
	case path != "" && ext == "" && !opts.jsonOutput && !opts.htmlOutput:
		writeHTML(path + ".html")
		writeJSON(path + ".json")
	default:
		if wantJSON {
			switch {
			case path == "":
				if err := report.WriteJSON(stdout, result); err != nil {
					errs = append(errs, err)
				}
			case ext == ".html":
				writeJSON(strings.TrimSuffix(path, filepath.Ext(path)) + ".json")
			default:
				writeJSON(path)
			}
		}
		if wantHTML {
			switch {
			case path == "":
				writeHTML(report.DefaultPath(result.Name, "html", time.Now()))
			case ext == ".html":
				writeHTML(path)
			default:
				writeHTML(strings.TrimSuffix(path, filepath.Ext(path)) + ".html")
			}
		}
	}

	return errors.Join(errs...)
}
