// CuraEngine process runner
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package slicer builds CuraEngine arguments from job print settings and
// runs the slicer as a child process.
package slicer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"gradient-infill-go/pkg/config"
	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
)

// stderrTailSize is how much slicer stderr is kept for error reports.
const stderrTailSize = 4096

// Slicer turns an STL file into G-code.
type Slicer interface {
	Slice(ctx context.Context, stlPath, gcodePath string, args []string) error
}

// Runner runs an external slicer command.
type Runner struct {
	command []string
	timeout time.Duration
	log     *log.Logger
	metrics *metrics.GradientMetrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMetrics records slicer durations and failures.
func WithMetrics(gm *metrics.GradientMetrics) Option {
	return func(r *Runner) { r.metrics = gm }
}

// NewRunner creates a runner from the [slicer] config section. The
// command is split on whitespace; no shell is involved.
func NewRunner(cfg config.SlicerConfig, opts ...Option) (*Runner, error) {
	command := strings.Fields(cfg.Command)
	if len(command) == 0 {
		return nil, gerrors.ConfigurationError("command", "slicer command is empty").SetSection("slicer")
	}
	r := &Runner{
		command: command,
		timeout: cfg.Timeout,
		log:     log.GetLogger("slicer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Slice runs the slicer on stlPath and waits for gcodePath to be written.
// The whole process group is killed when ctx is done or the timeout
// expires.
func (r *Runner) Slice(ctx context.Context, stlPath, gcodePath string, args []string) (err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(r.command)+len(args)+4)
	argv = append(argv, r.command[1:]...)
	argv = append(argv, args...)
	argv = append(argv, "-l", stlPath, "-o", gcodePath)

	cmd := exec.CommandContext(ctx, r.command[0], argv...)
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	r.log.WithField("args", len(argv)).Debug("running %s", r.command[0])
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveSlice(time.Since(start), err)
		}
	}()

	if runErr := cmd.Run(); runErr != nil {
		reason := "slicer failed"
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			reason = fmt.Sprintf("slicer timed out after %v", r.timeout)
		case ctx.Err() != nil:
			reason = "slicer canceled"
		}
		he := gerrors.SlicerError(reason, runErr)
		if tail := stderr.String(); tail != "" {
			he.SetContext("stderr", tail)
		}
		r.log.WithError(runErr).Error("%s", reason)
		return he
	}

	if _, statErr := os.Stat(gcodePath); statErr != nil {
		return gerrors.SlicerError("slicer produced no output", statErr)
	}
	r.log.Debug("sliced %s in %v", stlPath, time.Since(start))
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
