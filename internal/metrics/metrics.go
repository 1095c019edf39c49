package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric is one counter or gauge with its metadata.
type Metric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// TimerMetric aggregates duration samples for one operation.
type TimerMetric struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
}

// Registry manages all metrics in memory.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	timers    map[string]*TimerMetric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter increments a counter on the global registry
func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

// SetGauge sets a gauge on the global registry
func SetGauge(name string, value float64, labels map[string]string) {
	globalRegistry.SetGauge(name, value, labels)
}

// RecordTimer records a duration on the global registry
func RecordTimer(name string, duration time.Duration) {
	globalRegistry.RecordTimer(name, duration)
}

// GetAllMetrics snapshots the global registry
func GetAllMetrics() Snapshot {
	return globalRegistry.Snapshot()
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := r.counters[key]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[key] = &Metric{
		Name:       name,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// SetGauge sets a gauge metric to the given value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if gauge, exists := r.gauges[key]; exists {
		gauge.Value = value
		gauge.LastUpdate = time.Now()
		return
	}
	r.gauges[key] = &Metric{
		Name:       name,
		Value:      value,
		Labels:     copyLabels(labels),
		LastUpdate: time.Now(),
	}
}

// RecordTimer records a timing measurement
func (r *Registry) RecordTimer(name string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(duration.Nanoseconds()) / 1e6
	timer, exists := r.timers[name]
	if !exists {
		timer = &TimerMetric{Name: name, Min: ms, Max: ms}
		r.timers[name] = timer
	}

	timer.Count++
	timer.Sum += ms
	if ms < timer.Min {
		timer.Min = ms
	}
	if ms > timer.Max {
		timer.Max = ms
	}
	timer.Average = timer.Sum / float64(timer.Count)
}

// CounterValue returns the current value of a counter, zero if absent.
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if counter, exists := r.counters[metricKey(name, labels)]; exists {
		return counter.Value
	}
	return 0
}

// Snapshot is the serializable view served at /metrics.
type Snapshot struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Counters      map[string]*Metric      `json:"counters"`
	Gauges        map[string]*Metric      `json:"gauges"`
	Timers        map[string]*TimerMetric `json:"timers"`
}

// Snapshot returns a copy of all metrics
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(r.startTime).Seconds(),
		Counters:      make(map[string]*Metric, len(r.counters)),
		Gauges:        make(map[string]*Metric, len(r.gauges)),
		Timers:        make(map[string]*TimerMetric, len(r.timers)),
	}
	for k, v := range r.counters {
		c := *v
		snap.Counters[k] = &c
	}
	for k, v := range r.gauges {
		g := *v
		snap.Gauges[k] = &g
	}
	for k, v := range r.timers {
		t := *v
		snap.Timers[k] = &t
	}
	return snap
}

// Reset clears all metrics; used by tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*Metric)
	r.gauges = make(map[string]*Metric)
	r.timers = make(map[string]*TimerMetric)
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
