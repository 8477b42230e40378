// HTTP server for the Prometheus metrics endpoint
//
// Serves /metrics, /health and /ready on a separate listener with optional
// basic authentication. The same handler can be mounted on another mux.
//
//	server := metrics.NewMetricsServer(metrics.GlobalMetrics(), metrics.MetricsServerConfig{Address: ":9100"})
//	go server.Start()
//	defer server.Shutdown(context.Background())
//
// Copyright (C) 2026 Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Gatherer renders metrics in Prometheus text format.
type Gatherer interface {
	Gather() string
}

// MetricsServerConfig holds server configuration
type MetricsServerConfig struct {
	// Address to listen on, e.g. ":9100"
	Address string

	// Optional basic auth credentials
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MetricsServer serves Prometheus metrics over HTTP
type MetricsServer struct {
	source Gatherer
	cfg    MetricsServerConfig
	server *http.Server

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// NewMetricsServer creates a metrics server. Zero timeouts default to 10s.
func NewMetricsServer(source Gatherer, cfg MetricsServerConfig) *MetricsServer {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ms := &MetricsServer{source: source, cfg: cfg}

	mux := http.NewServeMux()
	mux.Handle("/metrics", ms.Handler())
	mux.HandleFunc("/health", ms.handleHealth)
	mux.HandleFunc("/ready", ms.handleReady)

	ms.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return ms
}

// Start listens and serves until Shutdown. It blocks.
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.cfg.Address)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	return ms.Serve(ln)
}

// Serve serves on an existing listener. It blocks.
func (ms *MetricsServer) Serve(ln net.Listener) error {
	ms.mu.Lock()
	ms.running = true
	ms.listener = ln
	ms.mu.Unlock()

	err := ms.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	ms.mu.Lock()
	ms.running = false
	ms.mu.Unlock()
	return ms.server.Shutdown(ctx)
}

// IsRunning returns whether the server is serving
func (ms *MetricsServer) IsRunning() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.running
}

// Addr returns the bound address once serving, else the configured one.
func (ms *MetricsServer) Addr() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.listener != nil {
		return ms.listener.Addr().String()
	}
	return ms.cfg.Address
}

// Handler returns the /metrics handler with auth applied.
func (ms *MetricsServer) Handler() http.Handler {
	return http.HandlerFunc(ms.handleMetrics)
}

// HealthHandler returns the /health handler.
func (ms *MetricsServer) HealthHandler() http.Handler {
	return http.HandlerFunc(ms.handleHealth)
}

func (ms *MetricsServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	output := ms.source.Gather()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(output)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(output))
}

func (ms *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (ms *MetricsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !ms.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready\n"))
		return
	}
	_, _ = w.Write([]byte("Ready\n"))
}

func (ms *MetricsServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if ms.cfg.Username == "" && ms.cfg.Password == "" {
		return true
	}
	username, password, ok := r.BasicAuth()
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(ms.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(ms.cfg.Password)) == 1
	if ok && userOK && passOK {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="Gradient Infill Metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}
