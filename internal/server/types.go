// Package server exposes the scanning pipeline over HTTP: multipart
// uploads for one-shot scans and a WebSocket endpoint that streams
// progress while a scan runs.
package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/config"
	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/progress"
)

// scanner defines what the server needs from the capture orchestrator.
type scanner interface {
	ProcessImage(ctx context.Context, field extract.Field, data []byte, onProgress progress.Func) (capture.Outcome, error)
	ProcessFile(ctx context.Context, field extract.Field, declaredType string, data []byte, onProgress progress.Func) (capture.Outcome, error)
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	scanner     scanner
	corsOrigin  string
	maxUploadMB int64
}

// NewServer creates a scan server around an orchestrator.
func NewServer(sc scanner, cfg config.ServerConfig) *Server {
	return &Server{
		scanner:     sc,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: int64(cfg.MaxUploadMB),
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.scanner != nil {
		return s.scanner.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/scan/image", s.corsMiddleware(s.scanImageHandler))
	mux.HandleFunc("/scan/file", s.corsMiddleware(s.scanFileHandler))
	mux.HandleFunc("/scan/ws", s.scanWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ScanResult struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type ScanResponse struct {
	Success bool        `json:"success"`
	Result  *ScanResult `json:"result,omitempty"`
	Failure string      `json:"failure,omitempty"`
	Error   string      `json:"error,omitempty"`
}
