package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"img-optimize/internal/compressor"
	"img-optimize/internal/config"
	"img-optimize/internal/logger"
	"img-optimize/internal/web"

	"github.com/spf13/cobra"
)

// newServeCmd starts the HTTP API.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Starts an HTTP server that runs optimization batches on request.

  POST /api/optimize   start a batch (JSON body mirrors the command line flags)
  GET  /api/status     whether a batch is running and its counters
  GET  /api/summary    totals of the last batch
  GET  /ws             live run_started, file_done, run_completed and run_error events

Settings from the config file are used as the defaults of every batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")
	return cmd
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command, opts *rootOptions, port int) error {
	fileCfg, err := config.LoadFile(opts.cfgFile)
	if err != nil {
		return err
	}
	base, err := config.Merge(config.Defaults(), fileCfg, config.Overrides{})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	log, err := setupLogger(opts, fileCfg, cmd.OutOrStdout(), false)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.CloseHooks(log)

	sink, err := buildSink(cmd.Context(), cmd, opts, fileCfg)
	if err != nil {
		return err
	}

	server := web.NewServer(base, log, compressor.NewDefaultCompressor(log, sink))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "img-optimize API listening on http://localhost:%d\n", port)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	select {
	case <-sigChan:
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
	fmt.Fprintln(out, "\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Fprintln(out, "Server stopped")
	return nil
}
