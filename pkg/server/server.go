// Gradient infill HTTP and websocket service
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package server exposes the slicer and gradient rewriter over HTTP. Jobs
// can be submitted with POST /gradientInfill or the gradient.process
// JSON-RPC method on /websocket; connected websocket clients are notified
// of every job state change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gradient-infill-go/pkg/config"
	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gradient"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
	"gradient-infill-go/pkg/pool"
	"gradient-infill-go/pkg/slicer"
)

// Version is reported by server.info.
const Version = "0.3.0"

// Config holds server dependencies. Nil Slicer and Metrics are replaced
// by a slicer.Runner built from Service.Slicer and the global metrics.
type Config struct {
	Service *config.ServiceConfig
	Slicer  slicer.Slicer
	Metrics *metrics.GradientMetrics
	Logger  *log.Logger
}

// Server serves gradient infill jobs.
type Server struct {
	cfg     *config.ServiceConfig
	slicer  slicer.Slicer
	metrics *metrics.GradientMetrics
	log     *log.Logger

	history   *History
	workspace *Workspace
	jobSlots  chan struct{}

	handler    http.Handler
	mu         sync.Mutex
	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// baseCtx is canceled on Shutdown and bounds websocket jobs.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	running   atomic.Bool
	startTime time.Time
}

// New creates a server. The job workspace directory is created here.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		cfg.Service = config.DefaultService()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("server")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.GlobalMetrics()
	}
	if cfg.Slicer == nil {
		r, err := slicer.NewRunner(cfg.Service.Slicer,
			slicer.WithLogger(cfg.Logger.WithPrefix("slicer")),
			slicer.WithMetrics(cfg.Metrics))
		if err != nil {
			return nil, err
		}
		cfg.Slicer = r
	}

	ws, err := NewWorkspace(cfg.Service.Server.TmpDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg.Service,
		slicer:    cfg.Slicer,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		history:   NewHistory(defaultHistorySize),
		workspace: ws,
		jobSlots:  make(chan struct{}, max(cfg.Service.Server.MaxJobs, 1)),
		wsClients: make(map[int64]*WSClient),
		addr:      cfg.Service.Server.Address,
		startTime: time.Now(),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	s.handler = s.buildHandler()
	return s, nil
}

func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/gradientInfill", s.handleGradientInfill)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/server/jobs/list", s.handleJobList)
	mux.HandleFunc("/server/jobs/job", s.handleJob)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	ms := metrics.NewMetricsServer(s.metrics, metrics.MetricsServerConfig{
		Username: s.cfg.Metrics.Username,
		Password: s.cfg.Metrics.Password,
	})
	mux.Handle("/metrics", ms.Handler())
	mux.Handle("/health", ms.HealthHandler())

	return s.recoverMiddleware(s.corsMiddleware(mux))
}

// Handler returns the full HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// History returns the job history.
func (s *Server) History() *History {
	return s.history
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Address, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.running.Store(true)
	s.log.Info("gradient infill service listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once serving, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Shutdown stops accepting requests, closes websocket clients, cancels
// websocket jobs and waits for HTTP handlers until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.cancelBase()

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	name := os.Getenv("NAME")
	if name == "" {
		name = s.cfg.Server.GreetingName
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello %s!", name)
}

func (s *Server) handleGradientInfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxBodyMB)<<20)
	req, err := DecodeJobRequest(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	gcode, job, err := s.RunJob(r.Context(), "http", req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("X-Job-Id", job.JobID)
	writeJSON(w, http.StatusOK, map[string]any{"gradient_gcode": gcode})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"result": s.serverInfo()})
}

func (s *Server) serverInfo() map[string]any {
	hostname, _ := os.Hostname()
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()
	bufs := pool.BufferStats()

	return map[string]any{
		"version":         Version,
		"hostname":        hostname,
		"uptime":          time.Since(s.startTime).Seconds(),
		"websocket_count": clients,
		"active_jobs":     len(s.jobSlots),
		"max_jobs":        cap(s.jobSlots),
		"tmp_dir":         s.workspace.Root(),
		"bed_center":      []float64{s.cfg.Server.BedCenterX, s.cfg.Server.BedCenterY},
		"gradual_speed":   s.cfg.Gradient.GradualSpeed,
		"layer_height":    s.cfg.Gradient.LayerHeight,
		"buffer_pool":     map[string]uint64{"gets": bufs.Gets, "allocs": bufs.Allocs},
	}
}

// settingsFor builds rewriter settings from a request and the service
// defaults. Targets are moved from bed-centred to machine coordinates.
func (s *Server) settingsFor(req *JobRequest, infill gradient.InfillType) gradient.Settings {
	targets := make([]gradient.Target, len(req.Gradient.Targets))
	for i, t := range req.Gradient.Targets {
		targets[i] = t.Shifted(s.cfg.Server.BedCenterX, s.cfg.Server.BedCenterY)
	}
	return gradient.Settings{
		InfillType:         infill,
		MaxFlow:            req.Gradient.MaxFlow,
		MinFlow:            req.Gradient.MinFlow,
		Targets:            targets,
		Gradient:           req.Gradient.EnableGradient,
		GradualSpeed:       s.cfg.Gradient.GradualSpeed,
		LayerHeight:        s.cfg.Gradient.LayerHeight,
		MaxOverSpeedFactor: s.cfg.Gradient.MaxOverSpeedFactor,
		MinOverSpeedFactor: s.cfg.Gradient.MinOverSpeedFactor,
	}
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case gerrors.Is(err, gerrors.ErrRequest), gerrors.IsConfig(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// CORS middleware to allow cross-origin requests from the web frontend
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			if he := gerrors.RecoverPanic(rec); he != nil {
				s.log.WithError(he).Error("panic serving %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusInternalServerError, he)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{
		"code":    -32000,
		"message": err.Error(),
	}
	if he, ok := gerrors.As(err); ok {
		body["error_code"] = he.Code
		if he.Option != "" {
			body["key"] = he.Option
		}
	}
	writeJSON(w, status, map[string]any{"error": body})
}
