package metrics

import (
	"fmt"
	"testing"
	"time"
)

var benchLatencies = []time.Duration{
	1 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// BenchmarkEngine_Record measures recording one successful sample.
func BenchmarkEngine_Record(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.Record(Sample{
			Name:       "Scan Status",
			StatusCode: 200,
			Latency:    benchLatencies[i%len(benchLatencies)],
			Success:    true,
			Bytes:      1024,
		})
	}
}

// BenchmarkEngine_Record_Parallel is the VU case: many goroutines recording
// into a handful of templates.
func BenchmarkEngine_Record_Parallel(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	names := make([]string, 7)
	for i := range names {
		names[i] = fmt.Sprintf("template-%d", i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			engine.Record(Sample{
				Name:       names[i%len(names)],
				StatusCode: 200,
				Latency:    benchLatencies[i%len(benchLatencies)],
				Success:    true,
				Bytes:      512,
			})
			i++
		}
	})
}

// BenchmarkEngine_Record_Failures exercises the distinct error table.
func BenchmarkEngine_Record_Failures(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.Record(Sample{
			Name:       "Create Watch",
			StatusCode: 400,
			Latency:    benchLatencies[i%len(benchLatencies)],
			Detail:     fmt.Sprintf("400: watch %d already exists", i%20),
		})
	}
}

// BenchmarkEngine_GetSnapshot measures building a snapshot with data present.
func BenchmarkEngine_GetSnapshot(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 0; i < 10000; i++ {
		engine.Record(Sample{Name: "Get Violations", StatusCode: 200, Latency: benchLatencies[i%len(benchLatencies)], Success: true})
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = engine.GetSnapshot()
	}
}
