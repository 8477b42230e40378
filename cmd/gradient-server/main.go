// gradient-server serves the gradient infill service: it slices uploaded
// STL models with CuraEngine and rewrites their infill around the
// requested targets.
//
// Usage:
//
//	gradient-server [-config gradient.cfg] [options]
//
// Options:
//
//	-config string   Service configuration file (default: built-in defaults)
//	-listen string   Listen address, overrides [server] address
//	-logfile string  Log file path, overrides [log] file
//	-debug           Enable debug logging
//
// Examples:
//
//	# Defaults, listening on :5000
//	gradient-server
//
//	# Custom config with metrics on a separate port
//	gradient-server -config /etc/gradient/gradient.cfg
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gradient-infill-go/pkg/config"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
	"gradient-infill-go/pkg/server"
)

func main() {
	configFile := flag.String("config", "", "Service configuration file")
	listen := flag.String("listen", "", "Listen address (overrides [server] address)")
	logFile := flag.String("logfile", "", "Log file path (overrides [log] file)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	cfg, err := config.LoadService(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Address = *listen
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	logger := log.Default()
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))
	logger.SetFormat(log.ParseFormat(cfg.Log.Format))
	log.ConfigureFromEnv(logger)
	if *debug {
		logger.SetLevel(log.DEBUG)
	}
	if cfg.Log.File != "" {
		fw, err := log.AttachFile(logger, log.RotationConfig{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer fw.Close()
	}
	mainLog := logger.WithPrefix("main")

	mainLog.Info("========================================")
	mainLog.Info("Gradient Infill Service %s Starting", server.Version)
	mainLog.Info("========================================")
	if *configFile != "" {
		mainLog.Info("Config: %s", *configFile)
	}
	for _, w := range cfg.Warnings {
		mainLog.Warn("config: %s", w)
	}
	mainLog.Info("Slicer: %s", cfg.Slicer.Command)
	mainLog.Info("Workspace: %s", cfg.Server.TmpDir)

	gm := metrics.GlobalMetrics()
	srv, err := server.New(server.Config{
		Service: cfg,
		Metrics: gm,
		Logger:  logger.WithPrefix("server"),
	})
	if err != nil {
		mainLog.WithError(err).Error("failed to create server")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *metrics.MetricsServer
	if cfg.Metrics.Address != "" {
		metricsSrv = metrics.NewMetricsServer(gm, metrics.MetricsServerConfig{
			Address:  cfg.Metrics.Address,
			Username: cfg.Metrics.Username,
			Password: cfg.Metrics.Password,
		})
		g.Go(metricsSrv.Start)
		mainLog.Info("Metrics: %s", cfg.Metrics.Address)
	}
	g.Go(srv.Start)

	// Refresh runtime gauges
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				gm.UpdateSystemMetrics()
			case <-gctx.Done():
				return nil
			}
		}
	})

	// Shut everything down on a signal or when one of the servers fails
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			mainLog.Info("Received signal, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			mainLog.WithError(err).Warn("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				mainLog.WithError(err).Warn("metrics server shutdown")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		mainLog.WithError(err).Error("server failed")
		os.Exit(1)
	}
	mainLog.Info("Shutdown complete")
}
