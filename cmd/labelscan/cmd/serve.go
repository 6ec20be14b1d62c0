package cmd

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

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/server"
	"github.com/shoplens/labelscan/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the scan API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for
label scanning.

The server provides the following endpoints:
  POST /scan/image - Scan an uploaded image
  POST /scan/file  - Scan an uploaded image or PDF
  GET  /scan/ws    - WebSocket scanning with progress streaming
  GET  /health     - Health check endpoint
  GET  /metrics    - Prometheus metrics

Examples:
  labelscan serve
  labelscan serve --port 8080
  labelscan serve --host 0.0.0.0 --port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		serverCfg := cfg.Server
		if cmd.Flags().Changed("host") {
			serverCfg.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			serverCfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("cors-origin") {
			serverCfg.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		if cmd.Flags().Changed("max-upload-size") {
			serverCfg.MaxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
		}
		if cmd.Flags().Changed("timeout") {
			serverCfg.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
		}
		if cmd.Flags().Changed("shutdown-timeout") {
			serverCfg.ShutdownTimeoutSec, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		if serverCfg.Port < 1 || serverCfg.Port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", serverCfg.Port)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		eng := engine.NewTesseract(cfg.ToEngineConfig())
		orch := capture.New(nil, eng, capture.WithMultipassConfig(cfg.ToMultipassConfig()))

		scanServer := server.NewServer(orch, serverCfg)
		defer func() { _ = scanServer.Close() }()

		mux := http.NewServeMux()
		scanServer.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(serverCfg.TimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(serverCfg.TimeoutSec) * time.Second,
		}

		go func() {
			slog.Info("Starting scan server", "build", version.String(), "host", serverCfg.Host, "port", serverCfg.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(serverCfg.ShutdownTimeoutSec)*time.Second)
		defer shutdownCancel()

		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		if err := scanServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 25, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 120, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
}
