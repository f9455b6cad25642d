// Command nexusd is the nexusdb server binary: it loads a node config,
// opens the storage engine, and serves the collection-management/
// shard-sync REST surface plus the Prometheus metrics endpoint until
// interrupted.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/nexusdb/pkg/api"
	"github.com/cuemby/nexusdb/pkg/config"
	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
	"github.com/cuemby/nexusdb/pkg/storage/engine"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nexusd",
	Short:   "nexusdb server",
	Long:    "nexusd serves the nexusdb collection storage engine and its REST management surface.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("nexusd version %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nexusdb server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "path to a YAML config file (defaults applied if omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	log.Init(cfg.LogConfig())
	logger := log.WithComponent("nexusd")

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", false, "selecting engine")
	metrics.RegisterComponent("api", false, "starting")

	eng, err := engine.Select(cfg.DataDir, engine.Bolt)
	if err != nil {
		return fmt.Errorf("selecting storage engine: %w", err)
	}
	if err := eng.Serve(); err != nil {
		return fmt.Errorf("entering serving state: %w", err)
	}
	metrics.RegisterComponent("storage", true, "ready")

	registry := api.NewRegistry()
	server := api.NewServer(eng.DB(), registry)

	collector := metrics.NewCollector(registry)
	collector.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("REST server: %w", err)
		}
	}()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("REST server listening")
	metrics.RegisterComponent("api", true, "ready")

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	collector.Stop()
	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("REST server shutdown error")
	}
	if err := eng.Shutdown(); err != nil {
		return fmt.Errorf("engine shutdown: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
