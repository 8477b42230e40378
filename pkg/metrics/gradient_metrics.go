// Metrics for the gradient infill job service
//
// Copyright (C) 2026 Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"sync"
	"time"
)

// Job status label values.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// GradientMetrics holds the counters updated by the rewriter, the slicer
// runner and the job service.
type GradientMetrics struct {
	JobsTotal         *Counter
	ActiveJobs        *Gauge
	LinesProcessed    *Counter
	MovesRewritten    *Counter
	FeedLines         *Counter
	SkippedMoves      *Counter
	RelativeModeHalts *Counter
	ProcessSeconds    *Histogram
	SlicerSeconds     *Histogram
	SlicerFailures    *Counter

	Uptime       *Gauge
	GoGoroutines *Gauge
	GoHeapBytes  *Gauge

	startTime time.Time
	registry  *Registry
}

// NewGradientMetrics creates and registers the service metrics in a fresh
// registry.
func NewGradientMetrics() *GradientMetrics {
	gm := &GradientMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),

		JobsTotal: NewCounter("gradient_jobs_total",
			"Gradient jobs finished, by status"),
		ActiveJobs: NewGauge("gradient_active_jobs",
			"Jobs currently being sliced or processed"),
		LinesProcessed: NewCounter("gradient_lines_processed_total",
			"G-code lines read by the rewriter"),
		MovesRewritten: NewCounter("gradient_moves_rewritten_total",
			"Infill extrusion moves rewritten with a new flow"),
		FeedLines: NewCounter("gradient_feed_lines_total",
			"Feed-only lines emitted inside infill"),
		SkippedMoves: NewCounter("gradient_skipped_moves_total",
			"Infill moves left unchanged by the selected strategy"),
		RelativeModeHalts: NewCounter("gradient_relative_mode_halts_total",
			"Files where processing stopped at relative positioning"),
		ProcessSeconds: NewHistogram("gradient_process_seconds",
			"Time spent rewriting one file", DefaultBuckets()),
		SlicerSeconds: NewHistogram("gradient_slicer_seconds",
			"Time spent in the slicer", ExponentialBuckets(0.5, 2, 10)),
		SlicerFailures: NewCounter("gradient_slicer_failures_total",
			"Slicer runs that failed"),

		Uptime: NewGauge("gradient_uptime_seconds",
			"Seconds since the service started"),
		GoGoroutines: NewGauge("go_goroutines",
			"Number of goroutines"),
		GoHeapBytes: NewGauge("go_memstats_heap_alloc_bytes",
			"Heap bytes allocated and in use"),
	}

	gm.registry.MustRegister(
		gm.JobsTotal, gm.ActiveJobs,
		gm.LinesProcessed, gm.MovesRewritten, gm.FeedLines, gm.SkippedMoves,
		gm.RelativeModeHalts, gm.ProcessSeconds,
		gm.SlicerSeconds, gm.SlicerFailures,
		gm.Uptime, gm.GoGoroutines, gm.GoHeapBytes,
	)
	return gm
}

// ProcessSample is what one rewriter run reports.
type ProcessSample struct {
	Lines        int
	Rewritten    int
	FeedLines    int
	SkippedMoves int
	RelativeHalt bool
	Duration     time.Duration
}

// ObserveProcess records one finished rewriter run.
func (gm *GradientMetrics) ObserveProcess(s ProcessSample) {
	gm.LinesProcessed.Add(nil, uint64(s.Lines))
	gm.MovesRewritten.Add(nil, uint64(s.Rewritten))
	gm.FeedLines.Add(nil, uint64(s.FeedLines))
	gm.SkippedMoves.Add(nil, uint64(s.SkippedMoves))
	if s.RelativeHalt {
		gm.RelativeModeHalts.Inc(nil)
	}
	gm.ProcessSeconds.Observe(nil, s.Duration.Seconds())
}

// ObserveSlice records one slicer run.
func (gm *GradientMetrics) ObserveSlice(d time.Duration, err error) {
	gm.SlicerSeconds.Observe(nil, d.Seconds())
	if err != nil {
		gm.SlicerFailures.Inc(nil)
	}
}

// JobStarted marks a job as active.
func (gm *GradientMetrics) JobStarted() {
	gm.ActiveJobs.Inc(nil)
}

// JobFinished marks a job as done with the given status.
func (gm *GradientMetrics) JobFinished(status string) {
	gm.ActiveJobs.Dec(nil)
	gm.JobsTotal.Inc(Labels{"status": status})
}

// UpdateSystemMetrics refreshes the process level gauges.
func (gm *GradientMetrics) UpdateSystemMetrics() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	gm.GoHeapBytes.Set(nil, float64(m.HeapAlloc))
	gm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	gm.Uptime.Set(nil, time.Since(gm.startTime).Seconds())
}

// Gather returns all metrics in Prometheus text format
func (gm *GradientMetrics) Gather() string {
	gm.UpdateSystemMetrics()
	return gm.registry.Gather()
}

// Registry returns the underlying registry
func (gm *GradientMetrics) Registry() *Registry {
	return gm.registry
}

var (
	globalMetrics     *GradientMetrics
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process wide metrics instance
func GlobalMetrics() *GradientMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewGradientMetrics()
	})
	return globalMetrics
}
