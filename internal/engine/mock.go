package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/shoplens/labelscan/internal/progress"
)

// Mock is a scripted Engine for tests. Each Recognize call consumes the
// next response; the last response repeats once the script is exhausted.
type Mock struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     int
	closed    bool
}

// MockResponse is one scripted recognition outcome.
type MockResponse struct {
	Result *Result
	Err    error
}

// NewMock creates a scripted engine.
func NewMock(responses ...MockResponse) *Mock {
	return &Mock{responses: responses}
}

// Recognize returns the next scripted response, emitting the same staged
// progress shape as the real adapter.
func (m *Mock) Recognize(ctx context.Context, _ []byte, _ string, onProgress progress.Func) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RecognitionError{Stage: "recognize", Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &RecognitionError{Stage: "init", Err: errors.New("engine is closed")}
	}
	idx := m.calls
	m.calls++
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.mu.Unlock()

	if idx < 0 {
		return nil, &RecognitionError{Stage: "recognize", Err: errors.New("no scripted responses")}
	}

	progress.Report(onProgress, "Loading OCR engine...", StageEngineLoad)
	progress.Report(onProgress, "Extracting text...", StagePrepare)

	resp := m.responses[idx]
	if resp.Err != nil {
		return nil, resp.Err
	}
	progress.Report(onProgress, "Text extracted", 1.0)
	return resp.Result, nil
}

// CallCount returns how many times Recognize was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
