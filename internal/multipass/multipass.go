// Package multipass runs recognition across several preprocessing
// configurations and keeps the best attempt.
package multipass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/preprocess"
	"github.com/shoplens/labelscan/internal/progress"
)

// ErrNoText marks a low-confidence rejection: recognition produced output
// but nothing clear enough to accept. Distinct from an engine failure so
// callers can suggest retrying with better lighting instead of reporting
// a fault.
var ErrNoText = errors.New("no clear text detected")

// Confidence heuristics, tuned against real scan samples. The asymmetry
// between the acceptance thresholds is intentional: a few high-confidence
// word tokens are a stronger signal than a mediocre aggregate score, so
// their presence relaxes the bar.
const (
	// ShortCircuitConfidence stops further passes once an attempt
	// exceeds it.
	ShortCircuitConfidence = 70

	// significantWordConfidence and significantWordMinLen select the
	// word tokens that count as a strong signal.
	significantWordConfidence = 60
	significantWordMinLen     = 1 // strictly greater than

	// Acceptance thresholds with and without significant words.
	acceptWithWords    = 25
	acceptWithoutWords = 35
)

// Config holds multi-pass settings.
type Config struct {
	Language string            `mapstructure:"language" yaml:"language" json:"language"`
	Passes   []preprocess.Pass `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns the canonical pass sequence and language.
func DefaultConfig() Config {
	return Config{
		Language: engine.DefaultLanguage,
		Passes:   preprocess.DefaultPasses(),
	}
}

// Runner executes the multi-pass strategy against a shared engine.
type Runner struct {
	cfg    Config
	engine engine.Engine
	logger *slog.Logger
}

// NewRunner creates a Runner. The engine is a long-lived shared resource
// owned by the caller; the runner never closes it.
func NewRunner(eng engine.Engine, cfg Config) *Runner {
	if len(cfg.Passes) == 0 {
		cfg.Passes = preprocess.DefaultPasses()
	}
	if cfg.Language == "" {
		cfg.Language = engine.DefaultLanguage
	}
	return &Runner{cfg: cfg, engine: eng, logger: slog.Default()}
}

// RecognizeBest preprocesses and recognizes imageData once per configured
// pass, strictly in order, and returns the highest-confidence attempt.
// Passes stop early once an attempt clears ShortCircuitConfidence. Engine
// failures count as zero-confidence attempts; only when every pass fails
// is the last failure returned. A result that survives all passes but
// fails the acceptance policy yields ErrNoText.
func (r *Runner) RecognizeBest(ctx context.Context, imageData []byte, onProgress progress.Func) (*engine.Result, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image data")
	}
	onProgress = progress.Monotonic(onProgress)

	var (
		best    *engine.Result
		lastErr error
	)

	for _, pass := range r.cfg.Passes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		processed, err := preprocess.PreprocessBlob(imageData, pass.Config)
		if err != nil {
			// Decode failures are not recoverable by trying another
			// pass; every pass decodes the same source.
			return nil, fmt.Errorf("preprocess pass %s: %w", pass.Name, err)
		}

		result, err := r.engine.Recognize(ctx, processed, r.cfg.Language, onProgress)
		if err != nil {
			r.logger.Warn("recognition pass failed",
				"pass", pass.Name,
				"error", err,
			)
			lastErr = err
			continue // zero-confidence attempt
		}

		if best == nil || result.Confidence > best.Confidence {
			best = result
		}
		if best.Confidence > ShortCircuitConfidence {
			r.logger.Debug("short-circuiting recognition",
				"pass", pass.Name,
				"confidence", best.Confidence,
			)
			break
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("all recognition passes failed: %w", lastErr)
		}
		return nil, errors.New("no recognition passes configured")
	}

	return accept(best)
}

// accept applies the adaptive acceptance policy and shapes the returned
// result: trimmed text and only the significant words, sorted by
// confidence descending.
func accept(res *engine.Result) (*engine.Result, error) {
	significant := significantWords(res.Words)

	threshold := float64(acceptWithoutWords)
	if len(significant) > 0 {
		threshold = acceptWithWords
	}
	if res.Confidence < threshold && len(significant) == 0 {
		return nil, ErrNoText
	}

	return &engine.Result{
		Text:       strings.TrimSpace(res.Text),
		Confidence: res.Confidence,
		Words:      significant,
	}, nil
}

func significantWords(words []engine.Word) []engine.Word {
	var out []engine.Word
	for _, w := range words {
		if w.Confidence > significantWordConfidence && utf8.RuneCountInString(w.Text) > significantWordMinLen {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
