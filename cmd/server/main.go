package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/api"
	"github.com/rpattn/vendorflow/internal/app"
	"github.com/rpattn/vendorflow/internal/config"
	"github.com/rpattn/vendorflow/internal/ingestion"
	"github.com/rpattn/vendorflow/internal/logger"
)

func main() {
	var configDir string
	cmd := &cobra.Command{
		Use:           "vendorflow-server",
		Short:         "Serve the vendorflow HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config", ".", "Directory containing config.yaml")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configDir string) error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer a.Close()

	// Uploads need vendor rules. Without them the read endpoints still work.
	var processor ingestion.Processor
	if runner, err := a.NewRunner(); err != nil {
		log.Warn("uploads disabled", "vendor", cfg.Pipeline.Vendor, "error", err)
	} else {
		processor = runner
	}

	handler, err := api.NewServer(api.Config{
		Store:           a.Store,
		Processor:       processor,
		Suggester:       a.Suggester,
		CanonicalFields: a.CanonicalFields(),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr, "vendor", cfg.Pipeline.Vendor, "database", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
