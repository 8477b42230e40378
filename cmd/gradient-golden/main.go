// gradient-golden regenerates or checks golden outputs of the G-code
// rewriter for a suite of sample files.
//
// A suite file lists one case per line: an input path relative to the
// suite file followed by key=value settings. Blank lines and lines starting
// with '#' are ignored.
//
//	cube.gcode targets=110,110,0,0.6,15 gradient=true
//	tall.gcode targets=100,100,2,4,10;120,120,0,1,5 max-flow=300 gradual-speed=false
//
// Usage:
//
//	gradient-golden -suite pkg/gradient/testdata/suite.txt [-mode check|update] [-only stem]
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
	"gradient-infill-go/pkg/log"
)

type goldenCase struct {
	input    string
	settings gradient.Settings
}

func (c goldenCase) stem() string {
	return strings.TrimSuffix(filepath.Base(c.input), filepath.Ext(c.input))
}

func (c goldenCase) goldenPath(outdir string) string {
	return filepath.Join(outdir, c.stem()+".gcode.golden")
}

func readSuite(path string) ([]goldenCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := filepath.Dir(path)
	var out []goldenCase
	s := bufio.NewScanner(f)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseCase(line)
		if err != nil {
			if he, ok := gerrors.As(err); ok {
				he.SetLine(lineNo)
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		c.input = filepath.Join(base, c.input)
		out = append(out, c)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("suite is empty: %s", path)
	}
	return out, nil
}

// parseCase reads "input key=value ..." into a case on top of the default
// settings.
func parseCase(line string) (goldenCase, error) {
	fields := strings.Fields(line)
	c := goldenCase{input: fields[0], settings: gradient.DefaultSettings()}
	s := &c.settings
	for _, kv := range fields[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return c, gerrors.ConfigurationError(kv, "expected key=value")
		}
		var err error
		switch key {
		case "targets":
			s.Targets, err = parseTargets(value)
		case "infill":
			s.InfillType, err = gradient.ParseInfillType(value)
		case "gradient":
			s.Gradient, err = strconv.ParseBool(value)
		case "gradual-speed":
			s.GradualSpeed, err = strconv.ParseBool(value)
		case "max-flow":
			s.MaxFlow, err = strconv.ParseFloat(value, 64)
		case "min-flow":
			s.MinFlow, err = strconv.ParseFloat(value, 64)
		case "layer-height":
			s.LayerHeight, err = strconv.ParseFloat(value, 64)
		case "max-over-speed":
			s.MaxOverSpeedFactor, err = strconv.ParseFloat(value, 64)
		case "min-over-speed":
			s.MinOverSpeedFactor, err = strconv.ParseFloat(value, 64)
		default:
			return c, gerrors.ConfigurationError(key, "unknown case setting")
		}
		if err != nil {
			if gerrors.IsConfig(err) {
				return c, err
			}
			return c, gerrors.ConfigTypeError("case", key, value, "value", err)
		}
	}
	return c, c.settings.Validate()
}

func parseTargets(value string) ([]gradient.Target, error) {
	var targets []gradient.Target
	for _, part := range strings.Split(value, ";") {
		var v [5]float64
		fields := strings.Split(part, ",")
		if len(fields) != len(v) {
			return nil, gerrors.ConfigurationError("targets", fmt.Sprintf("%q is not x,y,z_start,z_thickness,radius", part))
		}
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, gerrors.ConfigTypeError("case", "targets", f, "float", err)
			}
			v[i] = n
		}
		targets = append(targets, gradient.Target{X: v[0], Y: v[1], ZStart: v[2], ZThickness: v[3], Radius: v[4]})
	}
	return targets, nil
}

func run(c goldenCase) ([]byte, *gradient.Stats, error) {
	in, err := os.Open(c.input)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()

	var out bytes.Buffer
	stats, err := gradient.Process(context.Background(), in, &out, c.settings, gradient.WithLogger(log.Discard()))
	return out.Bytes(), stats, err
}

// check compares the output of c with its golden file and returns a diff,
// empty when they match.
func check(c goldenCase, outdir string) (string, error) {
	got, _, err := run(c)
	if err != nil {
		return "", err
	}
	want, err := os.ReadFile(c.goldenPath(outdir))
	if err != nil {
		return "", err
	}
	return cmp.Diff(strings.Split(string(want), "\n"), strings.Split(string(got), "\n")), nil
}

func update(c goldenCase, outdir string) (*gradient.Stats, error) {
	got, stats, err := run(c)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, err
	}
	return stats, os.WriteFile(c.goldenPath(outdir), got, 0o644)
}

func main() {
	var (
		suite  = flag.String("suite", "pkg/gradient/testdata/suite.txt", "suite file")
		outdir = flag.String("outdir", "", "golden directory (default: next to the suite file)")
		only   = flag.String("only", "", "only handle a single case (input stem)")
		mode   = flag.String("mode", "check", "check|update")
	)
	flag.Parse()

	if *mode != "check" && *mode != "update" {
		fmt.Fprintf(os.Stderr, "unknown -mode %q\n", *mode)
		os.Exit(2)
	}
	if *outdir == "" {
		*outdir = filepath.Dir(*suite)
	}

	cases, err := readSuite(*suite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read suite: %v\n", err)
		os.Exit(2)
	}

	failed := 0
	for _, c := range cases {
		if *only != "" && c.stem() != *only {
			continue
		}
		switch *mode {
		case "update":
			stats, err := update(c, *outdir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", c.stem(), err)
				os.Exit(2)
			}
			fmt.Printf("updated %s (%s)\n", c.goldenPath(*outdir), stats)
		case "check":
			diff, err := check(c, *outdir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", c.stem(), err)
				os.Exit(2)
			}
			if diff != "" {
				failed++
				fmt.Printf("FAIL %s (-want +got):\n%s\n", c.stem(), diff)
				continue
			}
			fmt.Printf("ok   %s\n", c.stem())
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
