package server

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
)

func TestDecodeJobRequest(t *testing.T) {
	req, err := DecodeJobRequest(strings.NewReader(jobBody(`{"max_flow": 350, "min_flow": 50.5,
		"enable_gradient": false, "gradient_discretization": 4,
		"infill_targets": [[1, -2, 0.2, 1.4, 7], [0, 0, 0, 0, 1]]}`)))
	if err != nil {
		t.Fatal(err)
	}
	want := GradientRequest{
		MaxFlow:        350,
		MinFlow:        50.5,
		EnableGradient: false,
		Discretization: 4,
		Targets: []gradient.Target{
			{X: 1, Y: -2, ZStart: 0.2, ZThickness: 1.4, Radius: 7},
			{X: 0, Y: 0, ZStart: 0, ZThickness: 0, Radius: 1},
		},
	}
	if diff := cmp.Diff(want, req.Gradient); diff != "" {
		t.Errorf("gradient setting (-want +got):\n%s", diff)
	}
	if req.STLFile != "solid cube\nendsolid cube\n" {
		t.Errorf("stl = %q", req.STLFile)
	}
	if req.Print["infill_pattern"] != "gyroid" {
		t.Errorf("print settings = %v", req.Print)
	}
}

func TestDecodeJobRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantKey string
	}{
		{"no gradient setting", `{"stl_file": "", "print_setting": {}}`, "gradient_setting"},
		{"no print setting", `{"stl_file": "", "gradient_setting": ` + centreTarget + `}`, "print_setting"},
		{"flow not a number", jobBody(`{"max_flow": "high", "min_flow": 50, "enable_gradient": true,
			"infill_targets": [], "gradient_discretization": 4}`), "max_flow"},
		{"gradient flag not bool", jobBody(`{"max_flow": 300, "min_flow": 50, "enable_gradient": 1,
			"infill_targets": [], "gradient_discretization": 4}`), "enable_gradient"},
		{"targets not a list", jobBody(`{"max_flow": 300, "min_flow": 50, "enable_gradient": true,
			"infill_targets": {}, "gradient_discretization": 4}`), "infill_targets"},
		{"target value not a number", jobBody(`{"max_flow": 300, "min_flow": 50, "enable_gradient": true,
			"infill_targets": [[0, 0, "z", 1, 1]], "gradient_discretization": 4}`), "infill_targets"},
		{"discretization not a number", jobBody(`{"max_flow": 300, "min_flow": 50, "enable_gradient": true,
			"infill_targets": [], "gradient_discretization": "fine"}`), "gradient_discretization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobRequest(strings.NewReader(tt.body))
			he, ok := gerrors.As(err)
			if !ok || he.Code != gerrors.ErrRequest {
				t.Fatalf("expected request error, got %v", err)
			}
			if he.Option != tt.wantKey {
				t.Errorf("key = %q, want %q", he.Option, tt.wantKey)
			}
		})
	}
}

func TestSettingsForShiftsTargets(t *testing.T) {
	env := newTestServer(t)
	env.srv.cfg.Server.BedCenterX = 100
	env.srv.cfg.Server.BedCenterY = 120
	env.srv.cfg.Gradient.GradualSpeed = false

	req := &JobRequest{Gradient: GradientRequest{
		MaxFlow:        300,
		MinFlow:        40,
		EnableGradient: true,
		Targets:        []gradient.Target{{X: -10, Y: 5, ZStart: 1, ZThickness: 2, Radius: 3}},
	}}
	got := env.srv.settingsFor(req, gradient.InfillLinear)

	want := gradient.Settings{
		InfillType:         gradient.InfillLinear,
		MaxFlow:            300,
		MinFlow:            40,
		Targets:            []gradient.Target{{X: 90, Y: 125, ZStart: 1, ZThickness: 2, Radius: 3}},
		Gradient:           true,
		GradualSpeed:       false,
		LayerHeight:        0.2,
		MaxOverSpeedFactor: 200,
		MinOverSpeedFactor: 60,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
	if req.Gradient.Targets[0].X != -10 {
		t.Error("request targets must not be modified")
	}
}

func TestParseGCodeMetadata(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name string
		in   string
		want GCodeMetadata
	}{
		{
			name: "cura",
			in: ";FLAVOR:Marlin\n;TIME:1234.5\n;Filament used: 1.52m\n;Layer height: 0.2\n" +
				";Generated with Cura_SteamEngine 4.8.0\n;LAYER_COUNT:50\nG28\n",
			want: GCodeMetadata{
				Slicer:        "Cura_SteamEngine",
				SlicerVersion: "4.8.0",
				Flavor:        "Marlin",
				LayerCount:    50,
				LayerHeight:   f(0.2),
				EstimatedTime: f(1234.5),
				FilamentUsed:  "1.52m",
			},
		},
		{
			name: "prusaslicer",
			in:   "; generated by PrusaSlicer 2.6.0+linux on 2023-08-01\nG28\n; layer_height = 0.15\n",
			want: GCodeMetadata{Slicer: "PrusaSlicer", SlicerVersion: "2.6.0+linux", LayerHeight: f(0.15)},
		},
		{
			name: "no header",
			in:   "G28\nG1 X1 Y1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGCodeMetadata(strings.NewReader(tt.in))
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("metadata (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWorkspaceJobDir(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir() + "/jobs")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ws.Create("abc")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ws.Create("abc")
	if err != nil {
		t.Fatal(err)
	}
	if a.Path() == b.Path() {
		t.Error("job directories must be unique")
	}
	if !strings.HasPrefix(a.STLPath(), ws.Root()) {
		t.Errorf("stl path %s outside %s", a.STLPath(), ws.Root())
	}
	if err := a.WriteSTL("solid"); err != nil {
		t.Fatal(err)
	}
	if err := a.Remove(); err != nil {
		t.Fatal(err)
	}
	if meta := readMetadata(a.SlicedPath()); meta != nil {
		t.Errorf("missing file should yield nil metadata, got %+v", meta)
	}
}
