//go:build ignore

// Stress test runner with built-in profiling support.
// It runs the engine in-process against a mock Xray handler while sampling
// goroutines and memory, then reports leaks and writes pprof profiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/wesleyorama2/xrayperf/internal/config"
	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
	"github.com/wesleyorama2/xrayperf/internal/xray/xraytest"
)

func main() {
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write memory profile to file")
	goroutineProfile := flag.String("goroutineprofile", "", "write goroutine profile to file")
	monitorInterval := flag.Duration("monitor-interval", 10*time.Second, "interval for monitoring stats")
	vus := flag.Int("vus", 200, "virtual users")
	duration := flag.Duration("duration", time.Minute, "test duration")
	latency := flag.Duration("latency", 5*time.Millisecond, "mock response latency")
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("xrayperf Stress Test with Profiling")
	fmt.Println("========================================")
	fmt.Println()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Printf("✓ CPU profiling enabled: %s\n", *cpuProfile)
	}

	handler := xraytest.NewHandler()
	handler.Latency = *latency
	server := httptest.NewServer(handler)
	defer server.Close()

	var initialStats runtime.MemStats
	runtime.ReadMemStats(&initialStats)
	initialGoroutines := runtime.NumGoroutine()

	fmt.Printf("Initial state:\n")
	fmt.Printf("  Goroutines: %d\n", initialGoroutines)
	fmt.Printf("  Memory Allocated: %.2f MB\n", float64(initialStats.Alloc)/1024/1024)
	fmt.Println()

	stopMonitor := make(chan struct{})
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		ticker := time.NewTicker(*monitorInterval)
		defer ticker.Stop()

		fmt.Println("Time\t\tGoroutines\tMemAlloc(MB)\tSys(MB)\t\tNumGC\tRequests")
		for {
			select {
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				fmt.Printf("%s\t%d\t\t%.2f\t\t%.2f\t\t%d\t%d\n",
					time.Now().Format("15:04:05"),
					runtime.NumGoroutine(),
					float64(m.Alloc)/1024/1024,
					float64(m.Sys)/1024/1024,
					m.NumGC,
					handler.Requests(),
				)
			case <-stopMonitor:
				return
			}
		}
	}()

	cfg := &config.Config{
		Target: config.Target{BaseURL: server.URL, Token: "stress"},
		Name:   "stress",
		Load: config.LoadProfile{
			Executor: config.ExecutorConstantVUs,
			VUs:      *vus,
			Duration: config.Duration(*duration),
		},
		ThinkTime: &config.ThinkTimeConfig{
			Min: config.Duration(10 * time.Millisecond),
			Max: config.Duration(50 * time.Millisecond),
		},
	}

	eng, err := engine.NewEngine(cfg)
	if err != nil {
		log.Fatal(err)
	}

	startTime := time.Now()
	result, err := eng.Run(context.Background())
	elapsed := time.Since(startTime)

	close(stopMonitor)
	<-monitorDone

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("Test Completed")
	fmt.Println("========================================")
	fmt.Printf("Duration: %s\n", elapsed)
	if result != nil && result.Metrics != nil {
		fmt.Printf("Requests: %d (%.1f/s, p95 %s)\n",
			result.Metrics.TotalRequests, result.Metrics.RPS, result.Metrics.Latency.P95)
	}
	fmt.Println()

	// Let idle connections drain before counting goroutines.
	server.CloseClientConnections()
	time.Sleep(500 * time.Millisecond)

	var finalStats runtime.MemStats
	runtime.ReadMemStats(&finalStats)
	finalGoroutines := runtime.NumGoroutine()

	fmt.Printf("Final state:\n")
	fmt.Printf("  Goroutines: %d (delta: %+d)\n", finalGoroutines, finalGoroutines-initialGoroutines)
	fmt.Printf("  Memory Allocated: %.2f MB (delta: %+.2f MB)\n",
		float64(finalStats.Alloc)/1024/1024,
		(float64(finalStats.Alloc)-float64(initialStats.Alloc))/1024/1024)
	fmt.Printf("  Total GC Runs: %d\n", finalStats.NumGC-initialStats.NumGC)
	fmt.Println()

	if finalGoroutines > initialGoroutines+5 {
		fmt.Printf("⚠ WARNING: Possible goroutine leak detected! (+%d goroutines)\n", finalGoroutines-initialGoroutines)
	} else {
		fmt.Println("✓ No goroutine leaks detected")
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		fmt.Printf("✓ Memory profile written to: %s\n", *memProfile)
	}

	if *goroutineProfile != "" {
		f, err := os.Create(*goroutineProfile)
		if err != nil {
			log.Fatal("could not create goroutine profile: ", err)
		}
		defer f.Close()
		if err := pprof.Lookup("goroutine").WriteTo(f, 0); err != nil {
			log.Fatal("could not write goroutine profile: ", err)
		}
		fmt.Printf("✓ Goroutine profile written to: %s\n", *goroutineProfile)
	}

	if err != nil {
		fmt.Printf("✗ Test failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Test completed successfully!")
}
