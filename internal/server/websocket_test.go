package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens/labelscan/internal/capture"
	"github.com/shoplens/labelscan/internal/extract"
)

func dialTestServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/scan/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []ScanFrame {
	t.Helper()

	var frames []ScanFrame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame ScanFrame
		require.NoError(t, conn.ReadJSON(&frame))
		frames = append(frames, frame)
		if frame.Type != "progress" {
			return frames
		}
	}
}

func TestWebSocketScanStreamsProgress(t *testing.T) {
	sc := &fakeScanner{outcome: goodOutcome(), progress: []float64{0.4, 1.0}}
	conn := dialTestServer(t, newTestServer(sc))

	require.NoError(t, conn.WriteJSON(ScanRequest{
		Field:       "name",
		ContentType: "image/png",
		Data:        []byte("fake png"),
	}))

	frames := readFrames(t, conn)
	require.GreaterOrEqual(t, len(frames), 2)

	last := frames[len(frames)-1]
	assert.Equal(t, "result", last.Type)
	assert.True(t, last.Success)
	require.NotNil(t, last.Result)
	assert.Equal(t, "Premium Tea", last.Result.Value)

	sawProgress := false
	for _, frame := range frames[:len(frames)-1] {
		assert.Equal(t, "progress", frame.Type)
		sawProgress = true
	}
	assert.True(t, sawProgress)
	assert.Equal(t, extract.FieldName, sc.gotField)
	assert.Equal(t, "image/png", sc.gotType)
}

func TestWebSocketScanFailureFrame(t *testing.T) {
	sc := &fakeScanner{outcome: capture.Outcome{
		Field:   extract.FieldName,
		Failure: capture.FailureNoText,
		Message: "Could not detect clear text.",
	}}
	conn := dialTestServer(t, newTestServer(sc))

	require.NoError(t, conn.WriteJSON(ScanRequest{Data: []byte("blurry")}))

	frames := readFrames(t, conn)
	last := frames[len(frames)-1]
	assert.Equal(t, "result", last.Type)
	assert.False(t, last.Success)
	assert.Equal(t, string(capture.FailureNoText), last.Failure)
}

func TestWebSocketRejectsEmptyRequest(t *testing.T) {
	conn := dialTestServer(t, newTestServer(&fakeScanner{}))

	require.NoError(t, conn.WriteJSON(ScanRequest{}))

	frames := readFrames(t, conn)
	assert.Equal(t, "error", frames[len(frames)-1].Type)
}

func TestWebSocketRejectsInvalidField(t *testing.T) {
	conn := dialTestServer(t, newTestServer(&fakeScanner{}))

	require.NoError(t, conn.WriteJSON(ScanRequest{Field: "price", Data: []byte("x")}))

	frames := readFrames(t, conn)
	assert.Equal(t, "error", frames[len(frames)-1].Type)
}
