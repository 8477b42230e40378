// Log rotation tests
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func TestRotatingFileWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "gradient.log")

	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile})
	if err != nil {
		t.Fatalf("failed to create rotating writer: %v", err)
	}
	defer w.Close()

	msg := "job started\n"
	n, err := w.Write([]byte(msg))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != len(msg) {
		t.Errorf("expected %d bytes written, got %d", len(msg), n)
	}
	if w.CurrentSize() != int64(len(msg)) {
		t.Errorf("expected size %d, got %d", len(msg), w.CurrentSize())
	}
	if w.Filename() != logFile {
		t.Errorf("unexpected filename %s", w.Filename())
	}
}

func TestRotatingFileWriterRequiresFilename(t *testing.T) {
	if _, err := NewRotatingFileWriter(RotationConfig{}); err == nil {
		t.Fatal("expected error for empty filename")
	}
}

func TestRotatingFileWriterRotatesOnSize(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gradient.log")
	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile, MaxSize: 1, MaxBackups: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	big := []byte(strings.Repeat("x", 700*1024))
	for i := 0; i < 2; i++ {
		if _, err := w.Write(big); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups := w.Backups()
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %v", backups)
	}
	if w.CurrentSize() != int64(len(big)) {
		t.Errorf("expected fresh file with one write, got size %d", w.CurrentSize())
	}
}

func TestRotatingFileWriterPrunesBackups(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gradient.log")
	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatal(err)
		}
		if err := w.Rotate(); err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
	}

	backups := w.Backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %v", backups)
	}
	// oldest two are gone
	if !strings.Contains(backups[0], "20260102-030408.000") {
		t.Errorf("unexpected oldest backup %s", backups[0])
	}
}

func TestRotatingFileWriterCompress(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gradient.log")
	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Write([]byte("compressed line\n"))
	if err := w.Rotate(); err != nil {
		t.Fatal(err)
	}

	backups := w.Backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".gz") {
		t.Fatalf("expected one gzip backup, got %v", backups)
	}
	f, err := os.Open(backups[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "compressed line\n" {
		t.Errorf("unexpected backup content %q", data)
	}
}

func TestIsRotatedFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"gradient.20260102-030405.000.log", true},
		{"gradient.20260102-030405.000.log.gz", true},
		{"gradient.log", false},
		{"gradient.backup.log", false},
		{"other.20260102-030405.000.log", false},
	}
	for _, tt := range tests {
		if got := isRotatedFile(tt.name, "gradient.", ".log"); got != tt.want {
			t.Errorf("isRotatedFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAttachFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gradient.log")
	logger, buf := newTestLogger("gradient")

	fw, err := AttachFile(logger, RotationConfig{Filename: logFile})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("both sinks")
	fw.Close()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "both sinks") || !strings.Contains(buf.String(), "both sinks") {
		t.Errorf("expected message in file and buffer")
	}
}

func TestNewFileLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "file.log")
	logger, fw, err := NewFileLogger("cli", RotationConfig{Filename: logFile})
	if err != nil {
		t.Fatal(err)
	}
	logger.Warn("to file")
	fw.Close()

	data, _ := os.ReadFile(logFile)
	if !strings.Contains(string(data), "cli: to file") {
		t.Errorf("expected log line in file, got %q", data)
	}
}
