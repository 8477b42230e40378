//go:build unix

package slicer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gradient-infill-go/pkg/config"
	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
)

// fakeSlicer writes a shell script standing in for CuraEngine.
func fakeSlicer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-slicer")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const writeOutput = `out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
echo ";FLAVOR:Marlin $FAKE_ARGS" > "$out"`

func newRunner(t *testing.T, command string, timeout time.Duration, gm *metrics.GradientMetrics) *Runner {
	t.Helper()
	r, err := NewRunner(config.SlicerConfig{Command: command, Timeout: timeout},
		WithLogger(log.Discard()), WithMetrics(gm))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSliceSuccess(t *testing.T) {
	gm := metrics.NewGradientMetrics()
	r := newRunner(t, fakeSlicer(t, writeOutput)+" slice -p", time.Minute, gm)

	dir := t.TempDir()
	out := filepath.Join(dir, "out.gcode")
	if err := r.Slice(context.Background(), filepath.Join(dir, "in.stl"), out, []string{"-s", "a=1"}); err != nil {
		t.Fatalf("Slice: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), ";FLAVOR:Marlin") {
		t.Errorf("unexpected output %q", data)
	}
	if gm.SlicerSeconds.GetSnapshot(nil).Count != 1 || gm.SlicerFailures.Get(nil) != 0 {
		t.Error("slicer metrics not recorded")
	}
}

func TestSliceFailureKeepsStderr(t *testing.T) {
	gm := metrics.NewGradientMetrics()
	r := newRunner(t, fakeSlicer(t, "echo 'bad mesh' >&2\nexit 3"), time.Minute, gm)

	dir := t.TempDir()
	err := r.Slice(context.Background(), filepath.Join(dir, "in.stl"), filepath.Join(dir, "out.gcode"), nil)
	if !gerrors.Is(err, gerrors.ErrSlicer) {
		t.Fatalf("expected slicer error, got %v", err)
	}
	he, _ := gerrors.As(err)
	if he.Context["stderr"] != "bad mesh" {
		t.Errorf("stderr context = %q", he.Context["stderr"])
	}
	if gm.SlicerFailures.Get(nil) != 1 {
		t.Error("failure not counted")
	}
}

func TestSliceMissingOutput(t *testing.T) {
	r := newRunner(t, fakeSlicer(t, "exit 0"), time.Minute, nil)
	dir := t.TempDir()
	err := r.Slice(context.Background(), filepath.Join(dir, "in.stl"), filepath.Join(dir, "out.gcode"), nil)
	if !gerrors.Is(err, gerrors.ErrSlicer) {
		t.Fatalf("expected slicer error, got %v", err)
	}
}

func TestSliceTimeoutKillsProcessGroup(t *testing.T) {
	r := newRunner(t, fakeSlicer(t, "sleep 30 &\nwait"), 200*time.Millisecond, nil)

	dir := t.TempDir()
	start := time.Now()
	err := r.Slice(context.Background(), filepath.Join(dir, "in.stl"), filepath.Join(dir, "out.gcode"), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("slice took %v after timeout", elapsed)
	}
}

func TestNewRunnerEmptyCommand(t *testing.T) {
	if _, err := NewRunner(config.SlicerConfig{Command: "   "}); !gerrors.IsConfig(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defgh"))
	if got := tb.String(); got != "defgh" {
		t.Errorf("tail = %q", got)
	}
}
