// Package engine adapts external text-recognition engines behind a small
// interface so the scan pipeline can run against Tesseract in production
// and a mock in tests.
package engine

import (
	"context"
	"fmt"

	"github.com/shoplens/labelscan/internal/progress"
)

// Word is a recognized token with its engine-reported certainty, 0-100.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result holds one recognition attempt. Words are an ordered subset of the
// tokens appearing in Text; Confidence is the overall score on the same
// 0-100 scale. A Result is immutable once returned.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Engine performs text recognition on an encoded image. Implementations
// may lazily initialize runtime state on first use and reuse it across
// calls; each call is logically independent.
type Engine interface {
	// Recognize runs recognition on imageData, reporting progress zero or
	// more times before returning. Progress fractions are non-decreasing
	// within one call and reach 1.0 on success.
	Recognize(ctx context.Context, imageData []byte, lang string, onProgress progress.Func) (*Result, error)

	// Close releases the engine runtime. The engine is unusable afterward.
	Close() error
}

// RecognitionError reports an engine failure at a specific stage.
type RecognitionError struct {
	Stage string
	Err   error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed at %s: %v", e.Stage, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Progress stage fractions. Recognition itself occupies the final 60% of
// the range; the discrete stages before it map onto the first 40%.
const (
	StageEngineLoad   = 0.1
	StageInit         = 0.2
	StageLanguage     = 0.3
	StagePrepare      = 0.4
	RecognitionWeight = 0.6
)
