package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/thalesfsp/tune/internal/serve"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions from an exported artifact",
		Long: `Load an artifact written by "tune fit --export" and answer prediction
requests over HTTP until interrupted.

Endpoints:
  GET  /healthz     liveness
  GET  /v1/model    model metadata
  POST /v1/predict  {"rows": [{"feature": value, ...}]}`,
		RunE: runServe,
	}

	cmd.Flags().String("artifact", "", "artifact file written by fit --export")
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = cmd.MarkFlagRequired("artifact")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			return viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
		}

		return nil
	}

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	artifactPath, _ := cmd.Flags().GetString("artifact")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := serve.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to load artifact: %w", err)
	}
	defer func() { _ = svc.Close() }()

	meta := svc.Metadata()
	slog.Info("Artifact loaded",
		"path", artifactPath,
		"model", meta.ModelKind,
		"features", len(meta.Features),
		"created_at", meta.CreatedAt,
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           serve.NewServer(svc, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		slog.Info("Prediction server listening", "addr", cfg.Server.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		slog.Info("Shutting down prediction server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
