package metrics

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TimerMetric summarises recorded durations
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric summarises outcomes of an operation
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timer struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

type outcome struct {
	total  int64
	errors int64
}

// Metrics is an in-process collector exposed on /metrics
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	outcomes     map[string]*outcome
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates an empty collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		outcomes:     make(map[string]*outcome),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// slot returns the entry for name, creating it under the write lock if missing
func slot[T any](m *Metrics, table map[string]*T, name string, init func() *T) *T {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = init()
		table[name] = v
	}
	return v
}

func newInt() *int64 { return new(int64) }

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(slot(m, m.counters, name, newInt), value)
}

// SetGauge sets a gauge
func (m *Metrics) SetGauge(name string, value int64) {
	atomic.StoreInt64(slot(m, m.gauges, name, newInt), value)
}

// RecordTimer records a duration in milliseconds
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	t := slot(m, m.timers, name, func() *timer { return &timer{minMs: math.MaxInt64} })

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalMs, durationMs)
	for {
		cur := atomic.LoadInt64(&t.minMs)
		if durationMs >= cur || atomic.CompareAndSwapInt64(&t.minMs, cur, durationMs) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxMs)
		if durationMs <= cur || atomic.CompareAndSwapInt64(&t.maxMs, cur, durationMs) {
			break
		}
	}
}

// RecordSuccess counts a successful call of an operation
func (m *Metrics) RecordSuccess(name string) {
	m.recordOutcome(name, false)
}

// RecordError counts a failed call of an operation
func (m *Metrics) RecordError(name string) {
	m.recordOutcome(name, true)
}

func (m *Metrics) recordOutcome(name string, failed bool) {
	o := slot(m, m.outcomes, name, func() *outcome { return &outcome{} })
	atomic.AddInt64(&o.total, 1)
	if failed {
		atomic.AddInt64(&o.errors, 1)
	}
}

// RecordOperation records the duration and outcome of a service operation
func (m *Metrics) RecordOperation(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RecordTimer(name, time.Since(start).Milliseconds())
	if err != nil {
		m.RecordError(name)
		return
	}
	m.RecordSuccess(name)
}

// RecordTransition counts a status change of an entity
func (m *Metrics) RecordTransition(entity, from, to string) {
	if m == nil {
		return
	}
	m.IncrementCounter(fmt.Sprintf("%s_transition:%s->%s", entity, from, to))
}

// RecordDBQuery records a database statement by kind
func (m *Metrics) RecordDBQuery(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	name := "db_" + kind
	m.RecordTimer(name, duration.Milliseconds())
	if err != nil {
		m.RecordError(name)
		return
	}
	m.RecordSuccess(name)
}

// SetHealth marks a component healthy or not
func (m *Metrics) SetHealth(component string, healthy bool) {
	var v int64
	if healthy {
		v = 1
	}
	atomic.StoreInt64(slot(m, m.healthChecks, component, newInt), v)
}

// GetCounters returns a snapshot of all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return m.snapshot(m.counters)
}

// GetGauges returns a snapshot of all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return m.snapshot(m.gauges)
}

func (m *Metrics) snapshot(table map[string]*int64) map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(table))
	for name, v := range table {
		out[name] = atomic.LoadInt64(v)
	}
	return out
}

// GetTimers returns a snapshot of all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalMs)
		var avg float64
		if count > 0 {
			avg = float64(total) / float64(count)
		}
		out[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: avg,
			MinTimeMs:     atomic.LoadInt64(&t.minMs),
			MaxTimeMs:     atomic.LoadInt64(&t.maxMs),
		}
	}
	return out
}

// GetErrorRates returns a snapshot of operation outcomes
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ErrorRateMetric, len(m.outcomes))
	for name, o := range m.outcomes {
		total := atomic.LoadInt64(&o.total)
		errs := atomic.LoadInt64(&o.errors)
		var rate float64
		if total > 0 {
			rate = float64(errs) / float64(total) * 100.0
		}
		out[name] = ErrorRateMetric{Total: total, Errors: errs, ErrorRate: rate}
	}
	return out
}

// GetHealthChecks returns the health of every registered component
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for name, h := range m.healthChecks {
		out[name] = atomic.LoadInt64(h) > 0
	}
	return out
}

// GetAllMetrics returns everything in one document
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
