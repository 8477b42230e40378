// Unit tests for metrics HTTP server
//
// Copyright (C) 2026 Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsServerDefaults(t *testing.T) {
	ms := NewMetricsServer(NewGradientMetrics(), MetricsServerConfig{Address: ":9200"})

	if ms.Addr() != ":9200" {
		t.Errorf("expected address :9200, got %s", ms.Addr())
	}
	if ms.server.ReadTimeout != 10*time.Second || ms.server.WriteTimeout != 10*time.Second {
		t.Error("zero timeouts should default to 10s")
	}
	if ms.IsRunning() {
		t.Error("server should not be running before Start")
	}
}

func TestHandleMetrics(t *testing.T) {
	gm := NewGradientMetrics()
	gm.JobStarted()
	gm.JobFinished(StatusError)
	ms := NewMetricsServer(gm, MetricsServerConfig{})

	w := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), `gradient_jobs_total{status="error"} 1`) {
		t.Errorf("missing job counter in:\n%s", w.Body.String())
	}
}

func TestHandleMetricsHeadAndMethods(t *testing.T) {
	ms := NewMetricsServer(NewGradientMetrics(), MetricsServerConfig{})

	w := httptest.NewRecorder()
	ms.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD: code %d body %d bytes", w.Code, w.Body.Len())
	}
	if w.Header().Get("Content-Length") == "" {
		t.Error("HEAD should set Content-Length")
	}

	w = httptest.NewRecorder()
	ms.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected 405, got %d", w.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	ms := NewMetricsServer(NewGradientMetrics(), MetricsServerConfig{Username: "admin", Password: "secret"})

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "admin", "nope", true, http.StatusUnauthorized},
		{"wrong user", "root", "secret", true, http.StatusUnauthorized},
		{"valid", "admin", "secret", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			ms.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestServeAndShutdown(t *testing.T) {
	ms := NewMetricsServer(NewGradientMetrics(), MetricsServerConfig{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- ms.Serve(ln) }()

	url := "http://" + ln.Addr().String()
	deadline := time.Now().Add(2 * time.Second)
	for !ms.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ms.Addr() != ln.Addr().String() {
		t.Errorf("Addr() = %s, want bound address", ms.Addr())
	}

	for path, want := range map[string]string{"/health": "OK", "/ready": "Ready"} {
		resp, err := http.Get(url + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.TrimSpace(string(body)) != want {
			t.Errorf("%s: got %q, want %q", path, body, want)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ms.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v after shutdown", err)
	}

	w := httptest.NewRecorder()
	ms.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready after shutdown: %d", w.Code)
	}
}
