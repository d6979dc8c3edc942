package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symphony/internal/config"
	"symphony/internal/orchestrator"
	"symphony/internal/server"
	"symphony/internal/store"
)

var serveAddr string

// serveCmd starts the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serves the project generation API.

Endpoints:
  GET  /health
  POST /api/process-project
  GET  /api/projects
  GET  /api/projects/{id}
  GET  /api/projects/{id}/download`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, host:port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		host, portStr, err := net.SplitHostPort(serveAddr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", serveAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}

	st, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer st.Close()

	orch := orchestrator.NewOrchestrator(orchestrator.Deps{Config: cfg, Store: st})
	defer orch.Close()

	// Pick up edits to the tunable pipeline settings without a restart
	if watcher, werr := config.NewWatcher(resolveConfigPath(), func(next *config.Config) {
		orch.Reload(next)
		logger.Info("Configuration reloaded",
			zap.Int("max_iterations", next.Pipeline.MaxIterations),
			zap.String("phase_timeout", next.Pipeline.PhaseTimeout))
	}); werr == nil {
		if err := watcher.Start(ctx); err == nil {
			defer watcher.Stop()
		}
	} else {
		logger.Warn("Config watcher unavailable", zap.Error(werr))
	}

	srv := server.New(cfg, st, orch)

	logger.Info("Starting API server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store", cfg.Store.Path),
		zap.String("output", cfg.Pipeline.OutputDir))
	fmt.Printf("Symphony API listening on http://%s\n", cfg.Server.Addr())
	fmt.Println("Press Ctrl+C to shut down")

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Println("Server stopped")
	return nil
}
