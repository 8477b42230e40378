package server

import (
	"context"
	"fmt"
	"os"
	"time"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
	"gradient-infill-go/pkg/slicer"
)

// RunJob slices req.STLFile and, when targets are given, rewrites the
// infill of the result. It returns the final G-code and the finished job
// record. At most max_jobs jobs run at once; others wait for a slot until
// ctx is done.
func (s *Server) RunJob(ctx context.Context, source string, req *JobRequest) (string, Job, error) {
	select {
	case s.jobSlots <- struct{}{}:
	case <-ctx.Done():
		return "", Job{}, ctx.Err()
	}
	defer func() { <-s.jobSlots }()

	job := s.history.Start(source, len(req.Gradient.Targets))
	s.metrics.JobStarted()
	s.notifyJob(job)
	jlog := s.log.With(log.Fields{"job": job.JobID})
	jlog.Info("job started (%s, %d target(s))", source, len(req.Gradient.Targets))

	gcode, stats, err := s.execute(ctx, job.JobID, req, jlog)

	status := metrics.StatusCompleted
	if err != nil {
		status = metrics.StatusError
		jlog.WithError(err).Error("job failed")
	} else {
		jlog.Info("job completed")
	}
	s.metrics.JobFinished(status)
	final, _ := s.history.Finish(job.JobID, stats, err)
	s.notifyJob(final)
	return gcode, final, err
}

func (s *Server) execute(ctx context.Context, jobID string, req *JobRequest, jlog *log.Logger) (string, *gradient.Stats, error) {
	infill, err := req.Print.InfillType()
	if err != nil {
		return "", nil, err
	}
	args, err := slicer.BuildArgs(req.Print, s.cfg.Slicer.InfillLineWidth)
	if err != nil {
		return "", nil, err
	}

	dir, err := s.workspace.Create(jobID)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if err := dir.Remove(); err != nil {
			jlog.WithError(err).Warn("failed to remove job directory")
		}
	}()

	if err := dir.WriteSTL(req.STLFile); err != nil {
		return "", nil, fmt.Errorf("write stl: %w", err)
	}

	sliceStart := time.Now()
	if err := s.slicer.Slice(ctx, dir.STLPath(), dir.SlicedPath(), args); err != nil {
		return "", nil, err
	}
	meta := readMetadata(dir.SlicedPath())
	s.history.Update(jobID, func(j *Job) {
		j.SliceDuration = time.Since(sliceStart).Seconds()
		j.InfillType = infill.String()
		j.Metadata = meta
	})

	final := dir.SlicedPath()
	var stats *gradient.Stats
	if len(req.Gradient.Targets) > 0 {
		settings := s.settingsFor(req, infill)
		if stats, err = processFile(ctx, dir.SlicedPath(), dir.ProcessedPath(), settings,
			gradient.WithLogger(jlog), gradient.WithMetrics(s.metrics)); err != nil {
			return "", stats, err
		}
		final = dir.ProcessedPath()
	}

	data, err := os.ReadFile(final)
	if err != nil {
		return "", stats, gerrors.Wrap(err, gerrors.ErrRuntime, "read result")
	}
	return string(data), stats, nil
}

func processFile(ctx context.Context, in, out string, settings gradient.Settings, opts ...gradient.Option) (*gradient.Stats, error) {
	src, err := os.Open(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return nil, err
	}
	stats, err := gradient.Process(ctx, src, dst, settings, opts...)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return stats, err
}
