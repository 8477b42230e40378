// Per-job scratch directories and G-code header metadata
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package server

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Workspace owns the scratch directory jobs run in.
type Workspace struct {
	root string
}

// NewWorkspace creates root if needed.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (ws *Workspace) Root() string {
	return ws.root
}

// JobDir is the private directory of one job.
type JobDir struct {
	path string
}

// Create makes a fresh directory for jobID.
func (ws *Workspace) Create(jobID string) (*JobDir, error) {
	path, err := os.MkdirTemp(ws.root, "job-"+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}
	return &JobDir{path: path}, nil
}

func (d *JobDir) Path() string          { return d.path }
func (d *JobDir) STLPath() string       { return filepath.Join(d.path, "stl_file.stl") }
func (d *JobDir) SlicedPath() string    { return filepath.Join(d.path, "gcode_out.gcode") }
func (d *JobDir) ProcessedPath() string { return filepath.Join(d.path, "processed_gcode.gcode") }

// WriteSTL stores the model text.
func (d *JobDir) WriteSTL(data string) error {
	return os.WriteFile(d.STLPath(), []byte(data), 0o644)
}

// Remove deletes the directory and everything in it.
func (d *JobDir) Remove() error {
	return os.RemoveAll(d.path)
}

// metadataScanLimit bounds how much of a file is scanned for header
// comments.
const metadataScanLimit = 64 * 1024

// GCodeMetadata is what the slicer header comments reveal.
type GCodeMetadata struct {
	Slicer        string   `json:"slicer,omitempty"`
	SlicerVersion string   `json:"slicer_version,omitempty"`
	Flavor        string   `json:"flavor,omitempty"`
	LayerCount    int      `json:"layer_count,omitempty"`
	LayerHeight   *float64 `json:"layer_height,omitempty"`
	EstimatedTime *float64 `json:"estimated_time,omitempty"`
	FilamentUsed  string   `json:"filament_used,omitempty"`
}

// ParseGCodeMetadata scans the header comments of a Cura or PrusaSlicer
// file.
func ParseGCodeMetadata(r io.Reader) *GCodeMetadata {
	meta := &GCodeMetadata{}
	sc := bufio.NewScanner(io.LimitReader(r, metadataScanLimit))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, ";"))

		switch {
		case strings.HasPrefix(line, "FLAVOR:"):
			meta.Flavor = strings.TrimPrefix(line, "FLAVOR:")
		case strings.HasPrefix(line, "Generated with "):
			// Cura: "Generated with Cura_SteamEngine 4.8.0"
			parts := strings.Fields(strings.TrimPrefix(line, "Generated with "))
			if len(parts) > 0 {
				meta.Slicer = parts[0]
			}
			if len(parts) > 1 {
				meta.SlicerVersion = parts[1]
			}
		case strings.HasPrefix(line, "generated by "):
			// PrusaSlicer: "generated by PrusaSlicer 2.6.0 on ..."
			parts := strings.SplitN(line, " ", 4)
			if len(parts) >= 3 {
				meta.Slicer = parts[2]
			}
			if len(parts) >= 4 {
				if v := strings.Fields(parts[3]); len(v) > 0 {
					meta.SlicerVersion = v[0]
				}
			}
		case strings.HasPrefix(line, "LAYER_COUNT:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "LAYER_COUNT:")); err == nil {
				meta.LayerCount = n
			}
		case strings.HasPrefix(line, "Layer height:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Layer height:")), 64); err == nil {
				meta.LayerHeight = &v
			}
		case strings.HasPrefix(line, "layer_height"):
			var v float64
			if _, err := fmt.Sscanf(line, "layer_height = %f", &v); err == nil {
				meta.LayerHeight = &v
			}
		case strings.HasPrefix(line, "TIME:"):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(line, "TIME:"), 64); err == nil {
				meta.EstimatedTime = &v
			}
		case strings.HasPrefix(line, "Filament used:"):
			meta.FilamentUsed = strings.TrimSpace(strings.TrimPrefix(line, "Filament used:"))
		}
	}
	return meta
}

// readMetadata parses the header of the file at path, or returns nil.
func readMetadata(path string) *GCodeMetadata {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	return ParseGCodeMetadata(f)
}
