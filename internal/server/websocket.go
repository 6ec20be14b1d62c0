package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/progress"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the CORS configuration of the
		// deployment in front of this server.
		return true
	},
}

// ScanRequest is a scan request sent over the WebSocket.
type ScanRequest struct {
	Field       string `json:"field"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// ScanFrame is a message sent back to the client: progress updates
// followed by one terminal result or error frame.
type ScanFrame struct {
	Type     string      `json:"type"` // "progress", "result", "error"
	Message  string      `json:"message,omitempty"`
	Progress float64     `json:"progress,omitempty"`
	Success  bool        `json:"success,omitempty"`
	Result   *ScanResult `json:"result,omitempty"`
	Failure  string      `json:"failure,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// scanWebSocketHandler streams scan progress over a WebSocket while the
// recognition pipeline runs.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Keep the connection alive between scans.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketScan(r, conn, data)
		}
	}
}

// handleWebSocketScan runs one scan request, streaming progress frames
// before the terminal frame.
func (s *Server) handleWebSocketScan(r *http.Request, conn *websocket.Conn, data []byte) {
	var req ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendFrame(conn, ScanFrame{Type: "error", Error: "Failed to parse request: " + err.Error()})
		return
	}
	if len(req.Data) == 0 {
		s.sendFrame(conn, ScanFrame{Type: "error", Error: "No file data provided"})
		return
	}

	field := extract.FieldName
	if req.Field != "" {
		parsed, err := extract.ParseField(req.Field)
		if err != nil {
			s.sendFrame(conn, ScanFrame{Type: "error", Error: err.Error()})
			return
		}
		field = parsed
	}

	onProgress := progress.Throttled(func(message string, fraction float64) {
		s.sendFrame(conn, ScanFrame{Type: "progress", Message: message, Progress: fraction})
	}, 100*time.Millisecond)

	start := time.Now()
	outcome, err := s.scanner.ProcessFile(r.Context(), field, req.ContentType, req.Data, onProgress)
	if err != nil {
		scanRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendFrame(conn, ScanFrame{Type: "error", Error: "Scan failed: " + err.Error()})
		return
	}
	scanDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())

	if !outcome.OK() {
		scanRequestsTotal.WithLabelValues("websocket", string(outcome.Failure)).Inc()
		s.sendFrame(conn, ScanFrame{
			Type:    "result",
			Success: false,
			Failure: string(outcome.Failure),
			Error:   outcome.Message,
		})
		return
	}

	scanRequestsTotal.WithLabelValues("websocket", "success").Inc()
	scanConfidence.Observe(outcome.Confidence)
	s.sendFrame(conn, ScanFrame{
		Type:    "result",
		Success: true,
		Result: &ScanResult{
			Field:      string(outcome.Field),
			Value:      outcome.Value,
			Confidence: outcome.Confidence,
		},
	})
}

// sendFrame writes one frame to the client.
func (s *Server) sendFrame(conn *websocket.Conn, frame ScanFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal WebSocket frame", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket frame", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
