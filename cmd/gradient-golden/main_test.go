package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
)

const suitePath = "../../pkg/gradient/testdata/suite.txt"

func TestParseCase(t *testing.T) {
	c, err := parseCase("part.gcode targets=1,2,0,1,5;3,4,1,2,6 gradient=true max-flow=300 infill=linear gradual-speed=false")
	if err != nil {
		t.Fatal(err)
	}
	want := gradient.DefaultSettings()
	want.Targets = []gradient.Target{
		{X: 1, Y: 2, ZStart: 0, ZThickness: 1, Radius: 5},
		{X: 3, Y: 4, ZStart: 1, ZThickness: 2, Radius: 6},
	}
	want.Gradient = true
	want.MaxFlow = 300
	want.InfillType = gradient.InfillLinear
	want.GradualSpeed = false
	if diff := cmp.Diff(want, c.settings); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
	if c.stem() != "part" || c.goldenPath("out") != filepath.Join("out", "part.gcode.golden") {
		t.Errorf("paths: %s %s", c.stem(), c.goldenPath("out"))
	}
}

func TestParseCaseErrors(t *testing.T) {
	for _, line := range []string{
		"a.gcode colour=red",
		"a.gcode gradient",
		"a.gcode max-flow=lots",
		"a.gcode targets=1,2,3",
		"a.gcode min-flow=0",
	} {
		if _, err := parseCase(line); !gerrors.IsConfig(err) {
			t.Errorf("%q: expected configuration error, got %v", line, err)
		}
	}
}

func TestSuiteMatchesGolden(t *testing.T) {
	cases, err := readSuite(suitePath)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cases {
		diff, err := check(c, filepath.Dir(suitePath))
		if err != nil {
			t.Fatalf("%s: %v", c.stem(), err)
		}
		if diff != "" {
			t.Errorf("%s (-want +got):\n%s", c.stem(), diff)
		}
	}
}

func TestUpdateWritesGolden(t *testing.T) {
	cases, err := readSuite(suitePath)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if _, err := update(cases[0], dir); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(cases[0].goldenPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := os.ReadFile(cases[0].goldenPath(filepath.Dir(suitePath)))
	if string(got) != string(want) {
		t.Error("updated golden differs from the checked-in one")
	}
}
