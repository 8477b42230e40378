// Job history for the gradient infill service
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
)

// Job states.
const (
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobError      = "error"
)

// defaultHistorySize is how many jobs are retained.
const defaultHistorySize = 100

// Job is one processing request.
type Job struct {
	JobID         string   `json:"job_id"`
	Status        string   `json:"status"`
	Source        string   `json:"source"` // "http" or "websocket"
	StartTime     float64  `json:"start_time"`
	EndTime       *float64 `json:"end_time"`
	TotalDuration float64  `json:"total_duration"`
	SliceDuration float64  `json:"slice_duration"`
	InfillType    string   `json:"infill_type,omitempty"`
	Targets       int      `json:"targets"`
	Error         string   `json:"error,omitempty"`

	Stats    *JobStats      `json:"stats,omitempty"`
	Metadata *GCodeMetadata `json:"metadata,omitempty"`
}

// JobStats is the JSON form of gradient.Stats.
type JobStats struct {
	LinesRead        int     `json:"lines_read"`
	LinesRewritten   int     `json:"lines_rewritten"`
	FeedLines        int     `json:"feed_lines"`
	Layers           int     `json:"layers"`
	SkippedMoves     int     `json:"skipped_moves"`
	RelativeModeLine int     `json:"relative_mode_line"`
	ProcessDuration  float64 `json:"process_duration"`
}

func newJobStats(s *gradient.Stats) *JobStats {
	if s == nil {
		return nil
	}
	return &JobStats{
		LinesRead:        s.LinesRead,
		LinesRewritten:   s.LinesRewritten,
		FeedLines:        s.FeedLines,
		Layers:           s.Layers,
		SkippedMoves:     s.SkippedMoves,
		RelativeModeLine: s.RelativeModeLine,
		ProcessDuration:  s.Duration.Seconds(),
	}
}

// JobTotals holds aggregated job statistics.
type JobTotals struct {
	TotalJobs      int     `json:"total_jobs"`
	CompletedJobs  int     `json:"completed_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	TotalTime      float64 `json:"total_time"`
	LongestJob     float64 `json:"longest_job"`
	LinesRewritten int     `json:"lines_rewritten"`
}

// History keeps the most recent jobs, newest first.
type History struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	limit int
	now   func() time.Time
}

// NewHistory creates a history retaining up to limit jobs (100 if not
// positive).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	return &History{
		jobs:  make(map[string]*Job),
		limit: limit,
		now:   time.Now,
	}
}

func generateJobID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (h *History) timestamp() float64 {
	return float64(h.now().UnixMilli()) / 1000
}

// Start records a new in-progress job and returns a copy of it.
func (h *History) Start(source string, targets int) Job {
	h.mu.Lock()
	defer h.mu.Unlock()

	job := &Job{
		JobID:     generateJobID(),
		Status:    JobInProgress,
		Source:    source,
		StartTime: h.timestamp(),
		Targets:   targets,
	}
	h.jobs[job.JobID] = job
	h.order = append([]string{job.JobID}, h.order...)

	for len(h.order) > h.limit {
		oldest := h.order[len(h.order)-1]
		h.order = h.order[:len(h.order)-1]
		delete(h.jobs, oldest)
	}
	return *job
}

// Update applies fn to a job under the history lock.
func (h *History) Update(jobID string, fn func(*Job)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if job, ok := h.jobs[jobID]; ok {
		fn(job)
	}
}

// Finish marks a job completed, or errored when err is not nil, and
// returns a copy of it.
func (h *History) Finish(jobID string, stats *gradient.Stats, err error) (Job, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	job, ok := h.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	now := h.timestamp()
	job.EndTime = &now
	job.TotalDuration = now - job.StartTime
	job.Stats = newJobStats(stats)
	job.Status = JobCompleted
	if err != nil {
		job.Status = JobError
		job.Error = err.Error()
	}
	return *job, true
}

// Get returns a copy of a job.
func (h *History) Get(jobID string) (Job, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	job, ok := h.jobs[jobID]
	if !ok {
		return Job{}, gerrors.RequestError("job_id", fmt.Sprintf("job not found: %s", jobID))
	}
	return *job, nil
}

// List returns up to limit jobs after skipping start, newest first unless
// order is "asc".
func (h *History) List(limit, start int, order string) []Job {
	h.mu.RLock()
	defer h.mu.RUnlock()

	jobs := make([]Job, 0, len(h.order))
	for _, id := range h.order {
		jobs = append(jobs, *h.jobs[id])
	}
	if order == "asc" {
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].StartTime < jobs[j].StartTime
		})
	}

	if start >= len(jobs) {
		return []Job{}
	}
	if start > 0 {
		jobs = jobs[start:]
	}
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// Count returns the number of retained jobs.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.jobs)
}

// Totals aggregates the retained jobs.
func (h *History) Totals() JobTotals {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var t JobTotals
	for _, job := range h.jobs {
		t.TotalJobs++
		switch job.Status {
		case JobCompleted:
			t.CompletedJobs++
		case JobError:
			t.FailedJobs++
		}
		t.TotalTime += job.TotalDuration
		if job.TotalDuration > t.LongestJob {
			t.LongestJob = job.TotalDuration
		}
		if job.Stats != nil {
			t.LinesRewritten += job.Stats.LinesRewritten
		}
	}
	return t
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	start := queryInt(q.Get("start"), 0)
	order := q.Get("order")
	if order == "" {
		order = "desc"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": s.jobListResult(limit, start, order),
	})
}

func (s *Server) jobListResult(limit, start int, order string) map[string]any {
	return map[string]any{
		"count":  s.history.Count(),
		"jobs":   s.history.List(limit, start, order),
		"totals": s.history.Totals(),
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, gerrors.RequestError("job_id", "missing job_id parameter"))
		return
	}
	job, err := s.history.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"job": job}})
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
