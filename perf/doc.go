// Package perf runs xrayperf load tests from Go code.
//
// It exposes the same engine the xrayperf command uses:
//
//	cfg, err := perf.LoadConfig("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := perf.RunTest(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Requests: %d\n", result.Metrics.TotalRequests)
//	fmt.Printf("P95: %v\n", result.Metrics.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Building a configuration
//
//	cfg := &perf.Config{
//	    Target: perf.Target{BaseURL: "https://xray.example.com", Token: token},
//	    Load: perf.LoadProfile{
//	        Executor: perf.ExecutorRampingVUs,
//	        Stages: []perf.Stage{
//	            {Duration: perf.Duration(30 * time.Second), Target: 10},
//	            {Duration: perf.Duration(2 * time.Minute), Target: 10},
//	            {Duration: perf.Duration(30 * time.Second), Target: 0},
//	        },
//	    },
//	    Templates: []string{"scan-status", "get-violations"},
//	}
//
// # Watching a run
//
// NewRunner gives access to live metrics while the run is in progress:
//
//	runner, err := perf.NewRunner(cfg, perf.WithLogger(logger))
//	go func() {
//	    for range time.Tick(time.Second) {
//	        fmt.Printf("RPS: %.1f\n", runner.Metrics().RPS)
//	    }
//	}()
//	result, err := runner.Run(ctx)
//
// Results can be written with WriteHTML and WriteJSON.
package perf
