// CuraEngine print settings
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package slicer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
)

// Keys handled specially by BuildArgs.
const (
	KeyInfillDensity    = "infill_sparse_density"
	KeyDisableTopBottom = "disable_top_bottom_layers"
	KeyOtherSettings    = "other_setting_string"
	KeyInfillPattern    = "infill_pattern"
)

const defaultInfillLineWidth = 0.4

// normalKeys are passed to the slicer as "-s key=value", in this order.
var normalKeys = []string{
	KeyInfillPattern,
	"adhesion_type",
	"retraction_enable",
	"speed_print",
	"speed_infill",
	"speed_wall",
	"material_print_temperature",
	"material_print_temperature_layer_0",
	"material_initial_print_temperature",
	"material_final_print_temperature",
	"material_bed_temperature",
	"material_bed_temperature_layer_0",
}

// RequiredKeys lists every key a print_setting object must carry.
func RequiredKeys() []string {
	return append([]string{KeyInfillDensity, KeyDisableTopBottom, KeyOtherSettings}, normalKeys...)
}

// PrintSettings is the print_setting object of a job request. Numbers
// should be decoded as json.Number so they reach the slicer as written.
type PrintSettings map[string]any

// Validate reports the first missing key.
func (ps PrintSettings) Validate() error {
	for _, key := range RequiredKeys() {
		if _, ok := ps[key]; !ok {
			return gerrors.RequestError(key, fmt.Sprintf("Missing key %s in print_setting", key))
		}
	}
	return nil
}

// InfillType maps infill_pattern to a rewriting strategy. Only lines, grid
// and gyroid are accepted.
func (ps PrintSettings) InfillType() (gradient.InfillType, error) {
	pattern, _ := ps[KeyInfillPattern].(string)
	switch pattern {
	case "lines", "grid":
		return gradient.InfillLinear, nil
	case "gyroid":
		return gradient.InfillSmallSegments, nil
	}
	return 0, gerrors.RequestError(KeyInfillPattern,
		fmt.Sprintf("infill pattern %q is not supported, use lines, grid or gyroid", pattern))
}

// BuildArgs turns validated settings into slicer arguments. The infill
// line distance is derived from the density and lineWidth (0.4 when not
// positive).
func BuildArgs(ps PrintSettings, lineWidth float64) ([]string, error) {
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	if _, err := ps.InfillType(); err != nil {
		return nil, err
	}
	if lineWidth <= 0 {
		lineWidth = defaultInfillLineWidth
	}

	density, ok := toFloat(ps[KeyInfillDensity])
	if !ok {
		return nil, gerrors.RequestError(KeyInfillDensity,
			fmt.Sprintf("%s must be a number, got %v", KeyInfillDensity, ps[KeyInfillDensity]))
	}
	distance := 0.0
	if density != 0 {
		distance = lineWidth * 100 / density
	}

	args := []string{"-s", "infill_line_distance=" + strconv.FormatFloat(distance, 'f', -1, 64)}
	if truthy(ps[KeyDisableTopBottom]) {
		args = append(args, "-s", "top_layers=0", "-s", "bottom_layers=0")
	}
	for _, key := range normalKeys {
		args = append(args, "-s", key+"="+FormatValue(ps[key]))
	}
	other, _ := ps[KeyOtherSettings].(string)
	for _, f := range strings.Fields(other) {
		args = append(args, strings.ReplaceAll(f, "=True", "=true"))
	}
	return args, nil
}

// FormatValue renders a setting value the way the slicer expects it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}
