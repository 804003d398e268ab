// Package main provides the rag-server binary.
// The server exposes a REST API for question answering over an ingested
// document corpus, plus evaluation and ingestion endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rag-server",
		Short: "RAG server - retrieval-augmented question answering over documents",
		Long: `rag-server answers questions over an ingested document corpus using
hybrid dense + sparse retrieval, optional query rewriting and
cross-encoder reranking, and LLM answer generation.

The server exposes:
  - POST /api/v1/query        question answering
  - POST /api/v1/upload       document ingestion
  - POST /api/v1/eval/batch   retrieval quality evaluation

Examples:
  rag-server                              # Start with defaults
  rag-server --config config.yaml        # Custom config file
  rag-server --http-port 9090            # Custom HTTP port`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("http-port", 0, "HTTP server port (overrides config)")
	rootCmd.Flags().String("host", "", "server host (overrides config)")
	rootCmd.Flags().String("qdrant-host", "", "Qdrant host (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rag-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	httpPort, _ := cmd.Flags().GetInt("http-port")
	host, _ := cmd.Flags().GetString("host")
	qdrantHost, _ := cmd.Flags().GetString("qdrant-host")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("http-port") {
		cfg.Port = httpPort
	}
	if host != "" {
		cfg.Host = host
	}
	if qdrantHost != "" {
		cfg.Qdrant.Host = qdrantHost
	}

	logLevel := cfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, cfg.Log.Format)

	log.Info("starting rag-server",
		"version", version,
		"addr", cfg.Address(),
		"qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port),
	)

	srv, err := server.New(cfg, version, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Make sure the document collection exists before serving. A failure
	// here is not fatal: retrieval reports unavailability per request.
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.EnsureCollection(startupCtx); err != nil {
		log.Warn("could not ensure document collection", "error", err)
	}
	cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
