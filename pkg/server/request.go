package server

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
	"gradient-infill-go/pkg/slicer"
)

// gradientKeys is the exact key set of a gradient_setting object.
var gradientKeys = []string{
	"max_flow",
	"min_flow",
	"enable_gradient",
	"infill_targets",
	"gradient_discretization",
}

// JobRequest is the body of POST /gradientInfill and the params of the
// gradient.process method.
type JobRequest struct {
	STLFile  string
	Gradient GradientRequest
	Print    slicer.PrintSettings
}

// GradientRequest is a validated gradient_setting object. Target
// coordinates are relative to the bed centre.
type GradientRequest struct {
	MaxFlow        float64
	MinFlow        float64
	EnableGradient bool
	Targets        []gradient.Target
	Discretization float64
}

type rawJobRequest struct {
	STLFile         *string        `json:"stl_file"`
	GradientSetting map[string]any `json:"gradient_setting"`
	PrintSetting    map[string]any `json:"print_setting"`
}

// DecodeJobRequest reads and validates a job request. Every problem is
// reported as an ErrRequest error.
func DecodeJobRequest(r io.Reader) (*JobRequest, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw rawJobRequest
	if err := dec.Decode(&raw); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrRequest, "request body is not valid JSON")
	}

	switch {
	case raw.STLFile == nil:
		return nil, gerrors.RequestError("stl_file", "Missing key stl_file")
	case raw.GradientSetting == nil:
		return nil, gerrors.RequestError("gradient_setting", "Missing key gradient_setting")
	case raw.PrintSetting == nil:
		return nil, gerrors.RequestError("print_setting", "Missing key print_setting")
	}

	grad, err := parseGradientSetting(raw.GradientSetting)
	if err != nil {
		return nil, err
	}
	ps := slicer.PrintSettings(raw.PrintSetting)
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	if _, err := ps.InfillType(); err != nil {
		return nil, err
	}
	return &JobRequest{STLFile: *raw.STLFile, Gradient: *grad, Print: ps}, nil
}

func parseGradientSetting(m map[string]any) (*GradientRequest, error) {
	for _, key := range gradientKeys {
		if _, ok := m[key]; !ok {
			return nil, gerrors.RequestError(key, fmt.Sprintf("Missing key %s in gradient_setting", key))
		}
	}
	if len(m) != len(gradientKeys) {
		extra := make([]string, 0, len(m))
		for key := range m {
			if !isGradientKey(key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		return nil, gerrors.RequestError(extra[0], fmt.Sprintf("unexpected key %s in gradient_setting", extra[0]))
	}

	g := &GradientRequest{}
	var ok bool
	if g.MaxFlow, ok = number(m["max_flow"]); !ok {
		return nil, gerrors.RequestError("max_flow", "max_flow must be a number")
	}
	if g.MinFlow, ok = number(m["min_flow"]); !ok {
		return nil, gerrors.RequestError("min_flow", "min_flow must be a number")
	}
	if g.EnableGradient, ok = m["enable_gradient"].(bool); !ok {
		return nil, gerrors.RequestError("enable_gradient", "enable_gradient must be a boolean")
	}
	if g.Discretization, ok = number(m["gradient_discretization"]); !ok {
		return nil, gerrors.RequestError("gradient_discretization", "gradient_discretization must be a number")
	}

	targets, err := parseTargets(m["infill_targets"])
	if err != nil {
		return nil, err
	}
	g.Targets = targets
	return g, nil
}

func isGradientKey(key string) bool {
	for _, k := range gradientKeys {
		if k == key {
			return true
		}
	}
	return false
}

// parseTargets reads [[x, y, z_start, z_thickness, radius], ...].
func parseTargets(v any) ([]gradient.Target, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, gerrors.RequestError("infill_targets", "infill_targets must be a list")
	}
	targets := make([]gradient.Target, 0, len(list))
	for i, item := range list {
		fields, ok := item.([]any)
		if !ok || len(fields) != 5 {
			return nil, gerrors.RequestError("infill_targets",
				fmt.Sprintf("infill_targets[%d] must be [x, y, z_start, z_thickness, radius]", i))
		}
		var vals [5]float64
		for j, f := range fields {
			if vals[j], ok = number(f); !ok {
				return nil, gerrors.RequestError("infill_targets",
					fmt.Sprintf("infill_targets[%d][%d] must be a number", i, j))
			}
		}
		targets = append(targets, gradient.Target{
			X:          vals[0],
			Y:          vals[1],
			ZStart:     vals[2],
			ZThickness: vals[3],
			Radius:     vals[4],
		})
	}
	return targets, nil
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	}
	return 0, false
}
