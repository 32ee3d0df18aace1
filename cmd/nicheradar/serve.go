package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicheradar/nicheradar/internal/metrics"
	"github.com/nicheradar/nicheradar/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve exposes the research pipeline over HTTP: task submission,
report retrieval, and a WebSocket progress channel. Configuration comes
from config.yaml and NICHERADAR_-prefixed environment variables.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	slog.SetDefault(logger)

	p, err := buildPipeline(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer p.close()

	srv := server.New(p.orch, p.broadcaster, p.repo, p.cfg.Models, logger)
	router := srv.Router(p.cfg.Server.AllowedOrigins, p.cfg.RateLimit.PerIP)

	httpSrv := &http.Server{
		Addr:              ":" + p.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *metrics.Server
	if p.cfg.Metrics.Enabled {
		metricsSrv = metrics.Start(p.cfg.Metrics.Port)
		logger.Info("metrics endpoint started", "port", p.cfg.Metrics.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpSrv.Addr, "storage", p.cfg.Storage.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Stop(ctx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
