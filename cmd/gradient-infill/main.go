// gradient-infill rewrites the infill of a sliced G-code file so that
// extrusion grows near the given targets.
//
// Usage:
//
//	gradient-infill -in model.gcode -out graded.gcode -targets "110,110,0,5,15" [options]
//
// Options:
//
//	-targets string        x,y,z_start,z_thickness,radius;... in machine coordinates
//	-max-flow float        flow percent at a target (default 350)
//	-min-flow float        flow percent away from targets (default 50)
//	-gradient              interpolate flow by distance instead of a step
//	-infill string         small-segments or linear (default small-segments)
//	-shift-x, -shift-y     added to every target, e.g. the bed centre
//	-preview-out string    write a PNG of the rewritten infill
//	-preview-layer int     layer to preview, -1 for all (default -1)
//	-config string         service config supplying gradient defaults
//	-logfile string        also log to a rotating file
//
// Examples:
//
//	# Step profile around one target
//	gradient-infill -in part.gcode -out part_graded.gcode -targets "0,0,0,10,12" -shift-x 110 -shift-y 110
//
//	# Smooth profile with a preview of layer 3
//	gradient-infill -in part.gcode -out part_graded.gcode -targets "110,110,0,2,20" -gradient \
//	    -preview-layer 3 -preview-out layer3.png
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gradient-infill-go/pkg/config"
	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/preview"
)

func main() {
	in := flag.String("in", "", "Input G-code file (required)")
	out := flag.String("out", "", "Output G-code file (required)")
	targets := flag.String("targets", "", "Targets as x,y,z_start,z_thickness,radius separated by ';'")
	maxFlow := flag.Float64("max-flow", 350, "Maximum flow percent")
	minFlow := flag.Float64("min-flow", 50, "Minimum flow percent")
	useGradient := flag.Bool("gradient", false, "Interpolate flow by distance")
	gradualSpeed := flag.Bool("gradual-speed", true, "Scale feed inversely to flow")
	layerHeight := flag.Float64("layer-height", 0.2, "Layer height in mm")
	maxOverSpeed := flag.Float64("max-over-speed", 200, "Upper feed bound, percent of the original feed")
	minOverSpeed := flag.Float64("min-over-speed", 60, "Lower feed bound, percent of the original feed")
	infill := flag.String("infill", gradient.InfillSmallSegments.String(), "Infill strategy: small-segments or linear")
	shiftX := flag.Float64("shift-x", 0, "Added to every target X")
	shiftY := flag.Float64("shift-y", 0, "Added to every target Y")
	previewLayer := flag.Int("preview-layer", preview.AllLayers, "Layer to preview, -1 for all layers")
	previewOut := flag.String("preview-out", "", "Write a PNG preview of the rewritten infill")
	logFile := flag.String("logfile", "", "Log file path (default: stderr only)")
	configFile := flag.String("config", "", "Service configuration file for gradient defaults")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintf(os.Stderr, "Error: -in and -out are required\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := log.Default()
	if *debug {
		logger.SetLevel(log.DEBUG)
	}
	if *logFile != "" {
		fw, err := log.AttachFile(logger, log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer fw.Close()
	}
	mainLog := logger.WithPrefix("main")

	settings := gradient.DefaultSettings()
	if *configFile != "" {
		svc, err := config.LoadService(*configFile)
		if err != nil {
			mainLog.WithError(err).Error("failed to load config")
			os.Exit(1)
		}
		for _, w := range svc.Warnings {
			mainLog.Warn("config: %s", w)
		}
		settings.GradualSpeed = svc.Gradient.GradualSpeed
		settings.LayerHeight = svc.Gradient.LayerHeight
		settings.MaxOverSpeedFactor = svc.Gradient.MaxOverSpeedFactor
		settings.MinOverSpeedFactor = svc.Gradient.MinOverSpeedFactor
	}

	// explicit flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gradual-speed":
			settings.GradualSpeed = *gradualSpeed
		case "layer-height":
			settings.LayerHeight = *layerHeight
		case "max-over-speed":
			settings.MaxOverSpeedFactor = *maxOverSpeed
		case "min-over-speed":
			settings.MinOverSpeedFactor = *minOverSpeed
		}
	})
	settings.MaxFlow = *maxFlow
	settings.MinFlow = *minFlow
	settings.Gradient = *useGradient

	var err error
	if settings.InfillType, err = gradient.ParseInfillType(*infill); err != nil {
		mainLog.WithError(err).Error("invalid -infill")
		os.Exit(1)
	}
	if settings.Targets, err = parseTargets(*targets, *shiftX, *shiftY); err != nil {
		mainLog.WithError(err).Error("invalid -targets")
		os.Exit(1)
	}
	if len(settings.Targets) == 0 {
		mainLog.Warn("no targets given, every infill move gets the minimum flow")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *preview.Collector
	opts := []gradient.Option{gradient.WithLogger(logger.WithPrefix("gradient"))}
	if *previewOut != "" {
		collector = preview.NewCollector(*previewLayer)
		opts = append(opts, gradient.WithObserver(collector))
	}

	stats, err := rewriteFile(ctx, *in, *out, settings, opts...)
	if err != nil {
		mainLog.WithError(err).Error("failed to process %s", *in)
		os.Exit(1)
	}
	mainLog.Info("%s -> %s: %s", *in, *out, stats)

	if collector != nil {
		if err := writePreview(*previewOut, collector.Moves(), settings); err != nil {
			mainLog.WithError(err).Error("failed to write preview")
			os.Exit(1)
		}
		mainLog.Info("preview written to %s", *previewOut)
	}
}

// parseTargets reads "x,y,z_start,z_thickness,radius;..." and shifts each
// target by (dx, dy).
func parseTargets(list string, dx, dy float64) ([]gradient.Target, error) {
	var targets []gradient.Target
	for i, part := range strings.Split(list, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 5 {
			return nil, gerrors.ConfigurationError("targets",
				fmt.Sprintf("target %d: want x,y,z_start,z_thickness,radius, got %q", i+1, part))
		}
		var vals [5]float64
		for j, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, gerrors.ConfigTypeError("targets", fmt.Sprintf("target %d", i+1), f, "float", err)
			}
			vals[j] = v
		}
		t := gradient.Target{X: vals[0], Y: vals[1], ZStart: vals[2], ZThickness: vals[3], Radius: vals[4]}
		targets = append(targets, t.Shifted(dx, dy))
	}
	return targets, nil
}

// rewriteFile processes in into a temporary file next to out and renames
// it into place once processing succeeded.
func rewriteFile(ctx context.Context, in, out string, s gradient.Settings, opts ...gradient.Option) (*gradient.Stats, error) {
	src, err := os.Open(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	stats, err := gradient.Process(ctx, src, tmp, s, opts...)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return stats, err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return stats, err
	}
	return stats, nil
}

func writePreview(path string, moves []gradient.Move, s gradient.Settings) error {
	opts := preview.DefaultOptions()
	opts.MinRatio = s.MinFlow / 100
	opts.MaxRatio = s.MaxFlow / 100
	img, err := preview.Render(moves, opts)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := preview.WritePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
