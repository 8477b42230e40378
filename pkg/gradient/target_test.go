package gradient

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	gerrors "gradient-infill-go/pkg/errors"
)

func TestTargetActiveAt(t *testing.T) {
	tg := Target{ZStart: 0.8, ZThickness: 0.4}

	tests := []struct {
		layer int
		want  bool
	}{
		{3, false},
		{4, true},
		{5, true},
		{10, false},
	}
	for _, tt := range tests {
		if got := tg.ActiveAt(float64(tt.layer) * 0.2); got != tt.want {
			t.Errorf("layer %d: active = %v, want %v", tt.layer, got, tt.want)
		}
	}

	if (Target{ZStart: 1, ZThickness: 0}).ActiveAt(1) {
		t.Error("zero thickness target must never be active")
	}
}

func TestTrackerActivate(t *testing.T) {
	targets := []Target{
		{X: 1, ZStart: 0, ZThickness: 0.5, Radius: 1},
		{X: 2, ZStart: 0.8, ZThickness: 0.4, Radius: 1},
		{X: 3, ZStart: 0, ZThickness: 10, Radius: 1},
	}
	tr := NewTracker(targets, 0.2)

	if len(tr.Active()) != 0 {
		t.Fatal("tracker should start with no active targets")
	}

	got := tr.Activate(5)
	want := []Target{targets[1], targets[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layer 5 active set (-want +got):\n%s", diff)
	}
	if tr.TargetIndex(0) != 1 || tr.TargetIndex(1) != 2 {
		t.Errorf("index mapping wrong: %d %d", tr.TargetIndex(0), tr.TargetIndex(1))
	}
	if tr.TargetIndex(-1) != -1 || tr.TargetIndex(7) != -1 {
		t.Error("out of range index should map to -1")
	}

	// recomputed from scratch, not accumulated
	got = tr.Activate(0)
	if diff := cmp.Diff([]Target{targets[0], targets[2]}, got); diff != "" {
		t.Errorf("layer 0 active set (-want +got):\n%s", diff)
	}
}

func TestTargetShifted(t *testing.T) {
	got := Target{X: -5, Y: 3, Radius: 2}.Shifted(110, 110)
	if got.X != 105 || got.Y != 113 || got.Radius != 2 {
		t.Errorf("Shifted = %+v", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero min flow", func(s *Settings) { s.MinFlow = 0 }},
		{"negative max flow", func(s *Settings) { s.MaxFlow = -1 }},
		{"zero layer height", func(s *Settings) { s.LayerHeight = 0 }},
		{"flat gradient", func(s *Settings) { s.Gradient = true; s.MaxFlow = s.MinFlow }},
		{"inverted over-speed", func(s *Settings) { s.MinOverSpeedFactor = 300 }},
		{"zero radius", func(s *Settings) { s.Targets = []Target{{Radius: 0, ZThickness: 1}} }},
		{"negative thickness", func(s *Settings) { s.Targets = []Target{{Radius: 1, ZThickness: -1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !gerrors.IsConfig(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseInfillType(t *testing.T) {
	for in, want := range map[string]InfillType{
		"small-segments": InfillSmallSegments,
		"SMALL_SEGMENTS": InfillSmallSegments,
		" linear ":       InfillLinear,
	} {
		got, err := ParseInfillType(in)
		if err != nil || got != want {
			t.Errorf("ParseInfillType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseInfillType("gyroid"); err == nil {
		t.Error("expected error for unknown type")
	}
}
