// Prometheus text format metrics
//
// Counters, gauges and histograms keyed by label sets, collected in a
// Registry and rendered in the Prometheus exposition format.
//
// Copyright (C) 2026 Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key returns a canonical identifier for the label set.
func (l Labels) Key() string {
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format, e.g. {status="ok"}.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

// with returns a copy of l with one more label.
func (l Labels) with(key, value string) Labels {
	out := l.clone()
	out[key] = value
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// family is the label-keyed storage shared by every metric type.
type family[V any] struct {
	name string
	help string

	mu     sync.Mutex
	series map[string]*V
	labels map[string]Labels
	newV   func() *V
}

func (f *family[V]) init(name, help string, newV func() *V) {
	f.name = name
	f.help = help
	f.series = make(map[string]*V)
	f.labels = make(map[string]Labels)
	f.newV = newV
}

// update runs fn on the series for labels under the family lock.
func (f *family[V]) update(labels Labels, fn func(v *V)) {
	key := labels.Key()
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.series[key]
	if !ok {
		v = f.newV()
		f.series[key] = v
		f.labels[key] = labels.clone()
	}
	fn(v)
}

func (f *family[V]) read(labels Labels, fn func(v *V)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.series[labels.Key()]; ok {
		fn(v)
	}
}

// each visits series in label key order so output is stable.
func (f *family[V]) each(fn func(labels Labels, v *V)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(f.labels[k], f.series[k])
	}
}

func (f *family[V]) header(sb *strings.Builder, t MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, t)
}

func writeSample(sb *strings.Builder, name string, labels Labels, value string) {
	sb.WriteString(name)
	sb.WriteString(labels.String())
	sb.WriteByte(' ')
	sb.WriteString(value)
	sb.WriteByte('\n')
}

// Counter is a monotonically increasing metric
type Counter struct {
	family[uint64]
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.init(name, help, func() *uint64 { return new(uint64) })
	return c
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by delta
func (c *Counter) Add(labels Labels, delta uint64) {
	c.update(labels, func(v *uint64) { *v += delta })
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	var out uint64
	c.read(labels, func(v *uint64) { out = *v })
	return out
}

func (c *Counter) Write(sb *strings.Builder) {
	c.header(sb, TypeCounter)
	c.each(func(labels Labels, v *uint64) {
		writeSample(sb, c.name, labels, strconv.FormatUint(*v, 10))
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	family[float64]
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.init(name, help, func() *float64 { return new(float64) })
	return g
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to value
func (g *Gauge) Set(labels Labels, value float64) {
	g.update(labels, func(v *float64) { *v = value })
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	g.update(labels, func(v *float64) { *v += delta })
}

// Inc increments the gauge by 1
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec decrements the gauge by 1
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	var out float64
	g.read(labels, func(v *float64) { out = *v })
	return out
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.header(sb, TypeGauge)
	g.each(func(labels Labels, v *float64) {
		writeSample(sb, g.name, labels, formatFloat(*v))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	family[histogramValue]
	bounds []float64
}

type histogramValue struct {
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// NewHistogram creates a histogram with the given upper bounds
func NewHistogram(name, help string, buckets []float64) *Histogram {
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{bounds: bounds}
	h.init(name, help, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(bounds))}
	})
	return h
}

// DefaultBuckets returns latency buckets in seconds
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets creates count buckets starting at start with factor multiplier
func ExponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	idx := sort.SearchFloat64s(h.bounds, value)
	h.update(labels, func(v *histogramValue) {
		v.count++
		v.sum += value
		if idx < len(v.counts) {
			v.counts[idx]++
		}
	})
}

// Since records the seconds elapsed since start.
func (h *Histogram) Since(labels Labels, start time.Time) {
	h.Observe(labels, time.Since(start).Seconds())
}

// HistogramSnapshot contains a point-in-time snapshot of histogram values
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64 // cumulative
}

// GetSnapshot returns a snapshot of histogram values for labels
func (h *Histogram) GetSnapshot(labels Labels) HistogramSnapshot {
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.bounds))}
	h.read(labels, func(v *histogramValue) {
		snap.Count = v.count
		snap.Sum = v.sum
		var cum uint64
		for i, b := range h.bounds {
			cum += v.counts[i]
			snap.Buckets[b] = cum
		}
	})
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.header(sb, TypeHistogram)
	h.each(func(labels Labels, v *histogramValue) {
		var cum uint64
		for i, b := range h.bounds {
			cum += v.counts[i]
			writeSample(sb, h.name+"_bucket", labels.with("le", formatFloat(b)), strconv.FormatUint(cum, 10))
		}
		writeSample(sb, h.name+"_bucket", labels.with("le", "+Inf"), strconv.FormatUint(v.count, 10))
		writeSample(sb, h.name+"_sum", labels, formatFloat(v.sum))
		writeSample(sb, h.name+"_count", labels, strconv.FormatUint(v.count, 10))
	})
}

// Registry holds metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[m.Name()]; exists {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metrics ...Metric) {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders every metric in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
