package gradient

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
)

var update = flag.Bool("update", false, "rewrite golden files in testdata")

func process(t *testing.T, in string, s Settings, opts ...Option) (string, *Stats) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	stats, err := Process(context.Background(), strings.NewReader(in), &out, s, opts...)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return out.String(), stats
}

func TestProcessGolden(t *testing.T) {
	s := DefaultSettings()
	s.Gradient = true
	s.Targets = []Target{{X: 110, Y: 110, ZStart: 0, ZThickness: 0.6, Radius: 15}}

	in, err := os.ReadFile(filepath.Join("testdata", "sample.gcode"))
	if err != nil {
		t.Fatal(err)
	}
	got, stats := process(t, string(in), s)

	golden := filepath.Join("testdata", "sample.gcode.golden")
	if *update {
		if err := os.WriteFile(golden, []byte(got), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	want, err := os.ReadFile(golden)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(strings.Split(string(want), "\n"), strings.Split(got, "\n")); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	wantStats := Stats{
		LinesRead:        43,
		LinesRewritten:   8,
		FeedLines:        1,
		Layers:           3,
		RelativeModeLine: 39,
	}
	stats.Duration = 0
	if diff := cmp.Diff(wantStats, *stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func singleTarget(x, y, radius float64) Settings {
	s := DefaultSettings()
	s.MaxFlow = 300
	s.MinFlow = 50
	s.Gradient = true
	s.GradualSpeed = false
	s.Targets = []Target{{X: x, Y: y, ZStart: 0, ZThickness: 10, Radius: radius}}
	return s
}

const moveFromOrigin = ";LAYER:0\nG0 F3000 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E1.0\n"

func TestProcessOutsideRadius(t *testing.T) {
	got, _ := process(t, moveFromOrigin, singleTarget(10, 10, 5))
	want := ";LAYER:0\nG0 F3000 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E0.5\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestProcessAtTarget(t *testing.T) {
	got, _ := process(t, moveFromOrigin, singleTarget(5, 5, 10))
	if !strings.HasSuffix(got, "G1 X10 Y10 E3\n") {
		t.Errorf("expected E3 on the last line, got:\n%s", got)
	}
}

func TestProcessGradualSpeedAppendsFeed(t *testing.T) {
	s := singleTarget(5, 5, 10)
	s.GradualSpeed = true

	got, _ := process(t, moveFromOrigin, s)
	// 3000 / 3 = 1000, raised to 60% of 3000
	if !strings.HasSuffix(got, "G1 X10 Y10 E3 F1800\n") {
		t.Errorf("got:\n%s", got)
	}

	// an existing F word is kept as is
	got, _ = process(t, ";LAYER:0\nG0 X0 Y0\n;TYPE:FILL\nG1 F2000 X10 Y10 E1.0\n", s)
	if !strings.HasSuffix(got, "G1 F2000 X10 Y10 E3\n") {
		t.Errorf("got:\n%s", got)
	}

	// no feed seen yet, nothing to scale
	got, _ = process(t, ";LAYER:0\nG0 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E1.0\n", s)
	if !strings.HasSuffix(got, "G1 X10 Y10 E3\n") {
		t.Errorf("got:\n%s", got)
	}
}

func TestProcessPassThroughIsByteIdentical(t *testing.T) {
	in := "; header\r\nG28\r\nG1  X10   Y10 E1.0 ;odd spacing\r\n;LAYER:0\n;TYPE:WALL-INNER\nG1 X1 Y1 E0.1\nM84"
	got, stats := process(t, in, singleTarget(0, 0, 100))
	if got != in {
		t.Errorf("output differs from input:\n%q\n%q", got, in)
	}
	if stats.LinesRewritten != 0 || stats.LinesRead != 7 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessKeepsLineEndings(t *testing.T) {
	in := ";LAYER:0\r\nG0 F3000 X0 Y0\r\n;TYPE:FILL\r\nG1 X10 Y10 E1.0 ; fill\r\nG1 X10 Y20 E1"
	got, _ := process(t, in, singleTarget(10, 10, 5))
	want := ";LAYER:0\r\nG0 F3000 X0 Y0\r\n;TYPE:FILL\r\nG1 X10 Y10 E0.5 ; fill\r\nG1 X10 Y20 E0.5"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestProcessRelativeModeStops(t *testing.T) {
	in := ";LAYER:0\nG0 F3000 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E1.0\n  G91\n;TYPE:FILL\nG1 X10 Y10 E1.0\nG90\nG1 X20 Y20 E1.0\n"
	got, stats := process(t, in, singleTarget(10, 10, 5))

	lines := strings.Split(got, "\n")
	if lines[3] != "G1 X10 Y10 E0.5" {
		t.Errorf("line before G91 not rewritten: %q", lines[3])
	}
	if tail := strings.Join(lines[4:], "\n"); tail != "  G91\n;TYPE:FILL\nG1 X10 Y10 E1.0\nG90\nG1 X20 Y20 E1.0\n" {
		t.Errorf("tail after G91 modified:\n%s", tail)
	}
	if !stats.Halted() || stats.RelativeModeLine != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessFeedOnlyLine(t *testing.T) {
	in := ";LAYER:0\n;TYPE:FILL\nG1 F1500.75\nG1 F900 ; slow\n"
	got, stats := process(t, in, singleTarget(0, 0, 1))
	want := ";LAYER:0\n;TYPE:FILL\nG1 F1500\nG1 F900 ; slow\n"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
	if stats.FeedLines != 2 {
		t.Errorf("feed lines = %d", stats.FeedLines)
	}
}

func TestProcessCommentEndsInfill(t *testing.T) {
	in := ";LAYER:0\nG0 X0 Y0\n;TYPE:FILL\n;MESH:NONMESH\nG1 X10 Y10 E1.0\n"
	got, _ := process(t, in, singleTarget(10, 10, 5))
	if got != in {
		t.Errorf("move after a comment must not be rewritten:\n%s", got)
	}
}

func TestProcessLayerMarkerEndsInfill(t *testing.T) {
	in := ";LAYER:0\n;TYPE:FILL\nG1 F1000\nG0 X0 Y0\nG1 X10 Y0 E1\n;LAYER:1\nG0 X0 Y0\nG1 X10 Y0 E1\n"
	got, _ := process(t, in, DefaultSettings())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if last := lines[len(lines)-1]; last != "G1 X10 Y0 E1" {
		t.Errorf("move after a new layer marker was rewritten: %q", last)
	}
	if lines[4] == "G1 X10 Y0 E1" {
		t.Errorf("infill move on layer 0 was not rewritten:\n%s", got)
	}
}

func TestProcessRejectsNonDecimalCoordinate(t *testing.T) {
	in := ";LAYER:0\n;TYPE:FILL\nG0 X0 Y0\nG1 X5 YInf E1\n"
	var out strings.Builder
	_, err := Process(context.Background(), strings.NewReader(in), &out, DefaultSettings(), WithLogger(log.Discard()))
	if !gerrors.IsGCode(err) {
		t.Fatalf("err = %v, want GCODE_PARSE", err)
	}
	if he, _ := gerrors.As(err); he.Line != 4 {
		t.Errorf("error line = %d, want 4", he.Line)
	}
}

func TestProcessInactiveLayerUsesMinimum(t *testing.T) {
	s := singleTarget(5, 5, 10)
	s.Targets[0].ZStart = 0.8
	s.Targets[0].ZThickness = 0.4

	in := ";LAYER:10\nG0 F3000 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E1.0\n"
	got, _ := process(t, in, s)
	if !strings.HasSuffix(got, "G1 X10 Y10 E0.5\n") {
		t.Errorf("layer 10 should be outside the target window:\n%s", got)
	}

	in = ";LAYER:5\nG0 F3000 X0 Y0\n;TYPE:FILL\nG1 X10 Y10 E1.0\n"
	got, _ = process(t, in, s)
	if !strings.HasSuffix(got, "G1 X10 Y10 E3\n") {
		t.Errorf("layer 5 should be inside the target window:\n%s", got)
	}
}

type recorder struct {
	moves []Move
}

func (r *recorder) ObserveMove(m Move) { r.moves = append(r.moves, m) }

func TestProcessObserver(t *testing.T) {
	s := singleTarget(5, 5, 10)
	s.Targets = append([]Target{{X: 5, Y: 5, ZStart: 50, ZThickness: 1, Radius: 10}}, s.Targets...)

	rec := &recorder{}
	process(t, moveFromOrigin, s, WithObserver(rec))

	if len(rec.moves) != 1 {
		t.Fatalf("observed %d moves", len(rec.moves))
	}
	m := rec.moves[0]
	if m.Target != 1 || m.Line != 4 || m.Layer != 0 || m.E != 3 || m.E0 != 1 {
		t.Errorf("unexpected move %+v", m)
	}
}

func TestProcessLinearPassesThrough(t *testing.T) {
	s := singleTarget(5, 5, 10)
	s.InfillType = InfillLinear

	got, stats := process(t, moveFromOrigin, s)
	if got != moveFromOrigin {
		t.Errorf("linear strategy modified output:\n%s", got)
	}
	if stats.SkippedMoves != 1 {
		t.Errorf("skipped = %d", stats.SkippedMoves)
	}
}

func TestProcessParseErrorCarriesLine(t *testing.T) {
	in := ";LAYER:0\nG0 X0 Y0\nG1 X1 Yabc E1\n"
	var out bytes.Buffer
	_, err := Process(context.Background(), strings.NewReader(in), &out, singleTarget(0, 0, 1), WithLogger(log.Discard()))
	if err == nil {
		t.Fatal("expected parse error")
	}
	he, ok := gerrors.As(err)
	if !ok || he.Code != gerrors.ErrGCodeParse || he.Line != 3 {
		t.Errorf("unexpected error %#v", err)
	}
}

func TestProcessInvalidSettings(t *testing.T) {
	s := singleTarget(0, 0, 1)
	s.MinFlow = 0
	_, err := Process(context.Background(), strings.NewReader(""), &bytes.Buffer{}, s)
	if !gerrors.IsConfig(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Process(ctx, strings.NewReader(moveFromOrigin), &bytes.Buffer{}, singleTarget(0, 0, 1), WithLogger(log.Discard()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProcessReportsMetrics(t *testing.T) {
	gm := metrics.NewGradientMetrics()
	process(t, moveFromOrigin, singleTarget(10, 10, 5), WithMetrics(gm))

	if gm.LinesProcessed.Get(nil) != 4 || gm.MovesRewritten.Get(nil) != 1 {
		t.Errorf("lines %d rewritten %d", gm.LinesProcessed.Get(nil), gm.MovesRewritten.Get(nil))
	}
}

func BenchmarkProcess(b *testing.B) {
	var sb strings.Builder
	sb.WriteString(";LAYER:0\nG0 F3000 X0 Y0\n;TYPE:FILL\n")
	for i := 0; i < 1000; i++ {
		sb.WriteString("G1 X10.5 Y20.25 E0.12345\nG1 X11.5 Y21.25 E0.12345\n")
	}
	in := sb.String()
	s := singleTarget(10, 20, 5)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Process(context.Background(), strings.NewReader(in), &bytes.Buffer{}, s, WithLogger(log.Discard())); err != nil {
			b.Fatal(err)
		}
	}
}
