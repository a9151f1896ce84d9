package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// otherErrors collects failure details beyond EngineConfig.MaxDistinctErrors.
const otherErrors = "(other errors)"

// Observer is notified of every recorded sample and VU count change.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveSample(Sample)
	ObserveActiveVUs(int)
}

// Engine aggregates samples from all virtual users.
//
// Counters are atomic; histograms are guarded by mutexes since
// hdrhistogram is not safe for concurrent writes. A background goroutine
// cuts a time bucket every BucketInterval until Stop is called.
type Engine struct {
	config EngineConfig

	latency   *hdrhistogram.Histogram
	latencyMu sync.Mutex

	templates   map[string]*templateRecorder
	templatesMu sync.RWMutex

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	activeVUs atomic.Int32

	phase        Phase
	phaseHistory []PhaseChange
	phaseMu      sync.RWMutex

	store     *bucketStore
	startTime atomic.Pointer[time.Time]

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewEngine returns an Engine with the default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig returns an Engine and starts its bucket emitter.
func NewEngineWithConfig(config EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.MaxDistinctErrors <= 0 {
		config.MaxDistinctErrors = defaults.MaxDistinctErrors
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:    config,
		latency:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		templates: make(map[string]*templateRecorder),
		phase:     PhaseInit,
		store:     newBucketStore(config.MaxBuckets),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	e.markStart()

	go e.runEmitter(ctx)
	return e
}

// Record adds one sample.
func (e *Engine) Record(s Sample) {
	micros := e.clamp(s.Latency)

	e.latencyMu.Lock()
	_ = e.latency.RecordValue(micros)
	e.latencyMu.Unlock()

	e.template(s.Name).record(s, micros, e.config.MaxDistinctErrors)

	e.total.Add(1)
	e.bytes.Add(s.Bytes)
	if s.Success {
		e.succeeded.Add(1)
	} else {
		e.failed.Add(1)
	}
	e.store.record(s.Success)

	for _, o := range e.config.Observers {
		o.ObserveSample(s)
	}
}

func (e *Engine) clamp(d time.Duration) int64 {
	micros := d.Microseconds()
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

func (e *Engine) template(name string) *templateRecorder {
	e.templatesMu.RLock()
	r, ok := e.templates[name]
	e.templatesMu.RUnlock()
	if ok {
		return r
	}

	e.templatesMu.Lock()
	defer e.templatesMu.Unlock()
	if r, ok = e.templates[name]; !ok {
		r = newTemplateRecorder(name, e.config)
		e.templates[name] = r
	}
	return r
}

// SetPhase marks a phase transition. Repeated calls with the same phase are ignored.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.phase == phase {
		return
	}
	e.phase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.total.Load(),
	})
}

// GetPhase returns the current phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// GetPhaseHistory returns every phase change in order.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	out := make([]PhaseChange, len(e.phaseHistory))
	copy(out, e.phaseHistory)
	return out
}

// SetActiveVUs updates the active VU gauge.
func (e *Engine) SetActiveVUs(n int) {
	e.activeVUs.Store(int32(n))
	for _, o := range e.config.Observers {
		o.ObserveActiveVUs(n)
	}
}

// GetActiveVUs returns the active VU gauge.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *Engine) runEmitter(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.latencyMu.Lock()
	p50 := micros(e.latency.ValueAtQuantile(50))
	p95 := micros(e.latency.ValueAtQuantile(95))
	p99 := micros(e.latency.ValueAtQuantile(99))
	e.latencyMu.Unlock()

	e.store.cut(&TimeBucket{
		Timestamp:      time.Now(),
		TotalRequests:  e.total.Load(),
		TotalSuccesses: e.succeeded.Load(),
		TotalFailures:  e.failed.Load(),
		TotalBytes:     e.bytes.Load(),
		LatencyP50:     p50,
		LatencyP95:     p95,
		LatencyP99:     p99,
		ActiveVUs:      e.GetActiveVUs(),
		Phase:          e.GetPhase(),
	})
}

// GetSnapshot returns the current totals. RPS is the steady-state rate when
// the run had a steady phase, the overall rate otherwise.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyMu.Lock()
	latency := summarize(e.latency)
	e.latencyMu.Unlock()

	start := *e.startTime.Load()
	elapsed := time.Since(start)
	total := e.total.Load()
	failed := e.failed.Load()

	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	steady, n := e.store.steadyStateRPS()
	if n > 0 {
		rps = steady
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.succeeded.Load(),
		FailedRequests:  failed,
		TotalBytes:      e.bytes.Load(),
		Latency:         latency,
		RPS:             rps,
		SteadyStateRPS:  steady,
		ErrorRate:       errorRate,
		ActiveVUs:       e.GetActiveVUs(),
		CurrentPhase:    e.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       start,
		Timestamp:       time.Now(),
	}
}

// GetTemplateStats returns per-template statistics sorted by name.
func (e *Engine) GetTemplateStats() []TemplateStats {
	e.templatesMu.RLock()
	recorders := make([]*templateRecorder, 0, len(e.templates))
	for _, r := range e.templates {
		recorders = append(recorders, r)
	}
	e.templatesMu.RUnlock()

	out := make([]TemplateStats, 0, len(recorders))
	for _, r := range recorders {
		out = append(out, r.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetTimeSeries returns the retained time buckets oldest first.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.store.buckets()
}

// Stop halts the emitter and cuts a final bucket. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		<-e.done
		e.emitBucket()
	})
}

// Reset clears all recorded data.
func (e *Engine) Reset() {
	e.latencyMu.Lock()
	e.latency.Reset()
	e.latencyMu.Unlock()

	e.templatesMu.Lock()
	e.templates = make(map[string]*templateRecorder)
	e.templatesMu.Unlock()

	e.total.Store(0)
	e.succeeded.Store(0)
	e.failed.Store(0)
	e.bytes.Store(0)
	e.activeVUs.Store(0)

	e.phaseMu.Lock()
	e.phase = PhaseInit
	e.phaseHistory = nil
	e.phaseMu.Unlock()

	e.store.reset()
	e.markStart()
}

func (e *Engine) markStart() {
	now := time.Now()
	e.startTime.Store(&now)
}

// templateRecorder accumulates the samples of one template.
type templateRecorder struct {
	mu          sync.Mutex
	name        string
	hist        *hdrhistogram.Histogram
	successes   int64
	failures    int64
	bytes       int64
	statusCodes map[int]int64
	errors      map[string]int64
}

func newTemplateRecorder(name string, config EngineConfig) *templateRecorder {
	return &templateRecorder{
		name:        name,
		hist:        hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		statusCodes: make(map[int]int64),
		errors:      make(map[string]int64),
	}
}

func (r *templateRecorder) record(s Sample, micros int64, maxErrors int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_ = r.hist.RecordValue(micros)
	r.bytes += s.Bytes
	r.statusCodes[s.StatusCode]++
	if s.Success {
		r.successes++
		return
	}

	r.failures++
	key := s.Detail
	if key == "" {
		key = s.Message
	}
	if _, seen := r.errors[key]; !seen && len(r.errors) >= maxErrors {
		key = otherErrors
	}
	r.errors[key]++
}

func (r *templateRecorder) stats() TemplateStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make(map[int]int64, len(r.statusCodes))
	for code, n := range r.statusCodes {
		codes[code] = n
	}

	errs := make([]ErrorCount, 0, len(r.errors))
	for detail, n := range r.errors {
		errs = append(errs, ErrorCount{Detail: detail, Count: n})
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Count != errs[j].Count {
			return errs[i].Count > errs[j].Count
		}
		return errs[i].Detail < errs[j].Detail
	})

	total := r.successes + r.failures
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(r.failures) / float64(total)
	}

	return TemplateStats{
		Name:        r.name,
		Requests:    total,
		Successes:   r.successes,
		Failures:    r.failures,
		ErrorRate:   errorRate,
		Bytes:       r.bytes,
		Latency:     summarize(r.hist),
		StatusCodes: codes,
		Errors:      errs,
	}
}

func summarize(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
