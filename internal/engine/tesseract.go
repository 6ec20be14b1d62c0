package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/shoplens/labelscan/internal/progress"
)

// DefaultLanguage is the traineddata used when the caller passes none.
const DefaultLanguage = "eng"

// DefaultTimeout bounds a single recognition call. The underlying engine
// cannot be interrupted mid-computation; on timeout the call returns and
// the engine's eventual output is discarded.
const DefaultTimeout = 60 * time.Second

// TesseractConfig holds settings for the Tesseract-backed engine.
type TesseractConfig struct {
	Language string        `mapstructure:"language" yaml:"language" json:"language"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// DefaultTesseractConfig returns production defaults.
func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{
		Language: DefaultLanguage,
		Timeout:  DefaultTimeout,
	}
}

// Tesseract is a long-lived Engine backed by the Tesseract runtime via
// gosseract. The adapter itself is the shared resource; the per-call
// client below is how gosseract wants to be driven.
type Tesseract struct {
	cfg TesseractConfig

	mu     sync.Mutex
	closed bool
}

// NewTesseract creates a Tesseract engine adapter.
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Tesseract{cfg: cfg}
}

// Recognize runs OCR on the encoded image and returns text plus per-word
// confidence. Stage progress is reported before recognition starts;
// recognition occupies the remaining range up to 1.0.
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, lang string, onProgress progress.Func) (*Result, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &RecognitionError{Stage: "init", Err: errors.New("engine is closed")}
	}
	t.mu.Unlock()

	if len(imageData) == 0 {
		return nil, &RecognitionError{Stage: "prepare", Err: errors.New("empty image data")}
	}
	if lang == "" {
		lang = t.cfg.Language
	}

	progress.Report(onProgress, "Loading OCR engine...", StageEngineLoad)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	// The worker cannot be interrupted mid-recognition. When this call
	// returns without it, its remaining progress reports must not reach
	// the caller: the reporter may not be safe to invoke concurrently
	// with whatever the caller does next.
	guarded, stopProgress := progress.Stoppable(onProgress)

	go func() {
		res, err := t.recognizeBlocking(imageData, lang, guarded)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(t.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		stopProgress()
		return nil, &RecognitionError{Stage: "recognize", Err: ctx.Err()}
	case <-timer.C:
		stopProgress()
		return nil, &RecognitionError{Stage: "recognize", Err: errors.New("recognition timed out")}
	}
}

// recognizeBlocking drives one gosseract client to completion.
func (t *Tesseract) recognizeBlocking(imageData []byte, lang string, onProgress progress.Func) (*Result, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	progress.Report(onProgress, "Initializing recognizer...", StageInit)

	if err := client.SetLanguage(lang); err != nil {
		return nil, &RecognitionError{Stage: "language", Err: err}
	}
	progress.Report(onProgress, "Loading language data...", StageLanguage)

	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, &RecognitionError{Stage: "configure", Err: err}
	}
	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, &RecognitionError{Stage: "prepare", Err: err}
	}
	progress.Report(onProgress, "Extracting text...", StagePrepare)

	text, err := client.Text()
	if err != nil {
		return nil, &RecognitionError{Stage: "recognize", Err: err}
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, &RecognitionError{Stage: "recognize", Err: err}
	}

	res := buildResult(text, boxes)
	progress.Report(onProgress, "Text extracted", 1.0)
	return res, nil
}

// buildResult normalizes recognized text and folds word-level boxes into
// the result. Overall confidence is the mean word confidence; gosseract
// exposes certainty only at the iterator level.
func buildResult(text string, boxes []gosseract.BoundingBox) *Result {
	res := &Result{
		Text:  norm.NFC.String(text),
		Words: make([]Word, 0, len(boxes)),
	}

	var sum float64
	for _, box := range boxes {
		word := strings.TrimSpace(norm.NFC.String(box.Word))
		if word == "" {
			continue
		}
		res.Words = append(res.Words, Word{Text: word, Confidence: clampConfidence(box.Confidence)})
		sum += clampConfidence(box.Confidence)
	}
	if len(res.Words) > 0 {
		res.Confidence = sum / float64(len(res.Words))
	}
	return res
}

// Close marks the adapter unusable. Per-call clients are already released.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
