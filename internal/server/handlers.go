package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health response", "error", err)
	}
}

// scanImageHandler scans an uploaded image for the requested field.
func (s *Server) scanImageHandler(w http.ResponseWriter, r *http.Request) {
	s.handleScan(w, r, "image")
}

// scanFileHandler scans an uploaded file, accepting images and PDFs.
func (s *Server) scanFileHandler(w http.ResponseWriter, r *http.Request) {
	s.handleScan(w, r, "file")
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, source string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, header, ok := s.readUpload(w, r, source)
	if !ok {
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	field, err := parseFieldParam(r)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	var outcome capture.Outcome
	if source == "file" {
		outcome, err = s.scanner.ProcessFile(r.Context(), field, header.Header.Get("Content-Type"), data, nil)
	} else {
		outcome, err = s.scanner.ProcessImage(r.Context(), field, data, nil)
	}
	duration := time.Since(start)

	if err != nil {
		scanRequestsTotal.WithLabelValues(source, "error").Inc()
		if errors.Is(err, capture.ErrSessionActive) || errors.Is(err, capture.ErrCancelled) {
			s.writeErrorResponse(w, "Another scan is in progress", http.StatusConflict)
			return
		}
		slog.Error("Scan failed", "source", source, "error", err)
		s.writeErrorResponse(w, "Scan failed", http.StatusInternalServerError)
		return
	}

	scanDuration.WithLabelValues(source).Observe(duration.Seconds())
	s.writeOutcome(w, source, outcome)
}

// readUpload enforces the upload size limit and returns the file bytes
// from the multipart form. The form field name matches the source
// ("image" or "file").
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, fieldName string) ([]byte, *multipart.FileHeader, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, nil, false
	}

	file, header, err := r.FormFile(fieldName)
	if err != nil {
		s.writeErrorResponse(w, "No "+fieldName+" provided", http.StatusBadRequest)
		return nil, nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read upload", http.StatusInternalServerError)
		return nil, nil, false
	}
	return data, header, true
}

// parseFieldParam reads the target field from the form or query,
// defaulting to the product name.
func parseFieldParam(r *http.Request) (extract.Field, error) {
	raw := r.FormValue("field")
	if raw == "" {
		raw = r.URL.Query().Get("field")
	}
	if raw == "" {
		return extract.FieldName, nil
	}
	return extract.ParseField(raw)
}

// writeOutcome converts a scan outcome into an HTTP response.
func (s *Server) writeOutcome(w http.ResponseWriter, source string, outcome capture.Outcome) {
	if outcome.OK() {
		scanRequestsTotal.WithLabelValues(source, "success").Inc()
		scanConfidence.Observe(outcome.Confidence)
		w.Header().Set("Content-Type", "application/json")
		response := ScanResponse{
			Success: true,
			Result: &ScanResult{
				Field:      string(outcome.Field),
				Value:      outcome.Value,
				Confidence: outcome.Confidence,
			},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			slog.Error("Failed to encode scan response", "error", err)
		}
		return
	}

	scanRequestsTotal.WithLabelValues(source, string(outcome.Failure)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(failureStatus(outcome.Failure))
	response := ScanResponse{
		Success: false,
		Failure: string(outcome.Failure),
		Error:   outcome.Message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode scan response", "error", err)
	}
}

// failureStatus maps outcome failure kinds onto HTTP status codes.
func failureStatus(kind capture.FailureKind) int {
	switch kind {
	case capture.FailureUnsupported:
		return http.StatusUnsupportedMediaType
	case capture.FailureNoText, capture.FailurePDF:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ScanResponse{
		Success: false,
		Error:   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
