package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/multipass"
	"github.com/shoplens/labelscan/internal/progress"
	"github.com/shoplens/labelscan/internal/rasterize"
)

var (
	// ErrSessionActive is returned when a scan is started while another
	// session holds the stream.
	ErrSessionActive = errors.New("a capture session is already active")

	// ErrNotLive is returned when a frame capture is requested outside
	// the Live state.
	ErrNotLive = errors.New("no live stream to capture from")

	// ErrCancelled is returned when the session was cancelled while an
	// operation was in flight; any result it produced has been
	// discarded.
	ErrCancelled = errors.New("capture session cancelled")

	// ErrNoDevice is returned when live scanning is requested on an
	// orchestrator constructed without a camera device.
	ErrNoDevice = errors.New("no capture device configured")
)

// rasterizeFunc matches rasterize.FirstPage.
type rasterizeFunc func(context.Context, []byte, progress.Func) ([]byte, error)

// Orchestrator owns the recognition engine, the multi-pass runner and
// the live stream for the single active capture session. All methods
// are safe for concurrent use, but only one session can hold the
// stream at a time.
type Orchestrator struct {
	device      Device
	engine      engine.Engine
	runner      *multipass.Runner
	runnerCfg   multipass.Config
	rasterize   rasterizeFunc
	constraints Constraints
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	stream     Stream
	generation uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConstraints overrides the acquisition constraints.
func WithConstraints(c Constraints) Option {
	return func(o *Orchestrator) { o.constraints = c }
}

// WithMultipassConfig overrides the recognition pass configuration.
func WithMultipassConfig(cfg multipass.Config) Option {
	return func(o *Orchestrator) { o.runnerCfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator around a shared recognition engine. The
// orchestrator takes ownership of the engine; Close releases it. The
// device may be nil for file-only use.
func New(device Device, eng engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		device:      device,
		engine:      eng,
		rasterize:   rasterize.FirstPage,
		constraints: DefaultConstraints(),
		logger:      slog.Default(),
		runnerCfg:   multipass.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runner = multipass.NewRunner(eng, o.runnerCfg)
	return o
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start opens a live capture session: Idle -> Acquiring -> Live. The
// stream stays open until Capture, Cancel or Close releases it.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.device == nil {
		return ErrNoDevice
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.state = StateAcquiring
	gen := o.generation
	o.mu.Unlock()

	stream, err := o.device.Acquire(ctx, o.constraints)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		// Cancelled while acquiring. The stream, if any, belongs to no
		// session and must not stay open.
		if stream != nil {
			_ = stream.Close()
		}
		return ErrCancelled
	}
	if err != nil {
		o.state = StateIdle
		return err
	}
	o.stream = stream
	o.state = StateLive
	return nil
}

// Capture snapshots the current frame, runs recognition, and extracts
// the requested field: Live -> Capturing -> Processing -> Idle. The
// stream is released before the method returns, on every path.
func (o *Orchestrator) Capture(ctx context.Context, field extract.Field, onProgress progress.Func) (Outcome, error) {
	o.mu.Lock()
	if o.state != StateLive || o.stream == nil {
		o.mu.Unlock()
		return Outcome{}, ErrNotLive
	}
	o.state = StateCapturing
	gen := o.generation
	stream := o.stream
	o.mu.Unlock()

	blob, err := stream.Frame(ctx)
	if err != nil {
		o.logger.Warn("frame capture failed", slog.String("error", err.Error()))
		return o.finish(gen, field, failure(field, FailureCamera))
	}

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return Outcome{}, ErrCancelled
	}
	o.state = StateProcessing
	o.mu.Unlock()

	return o.finish(gen, field, o.recognize(ctx, field, blob, onProgress))
}

// Cancel releases the stream and returns the orchestrator to Idle from
// any state. Results of in-flight work are discarded when they arrive.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

// Close cancels any active session and releases the engine. Call it on
// teardown of the owning context.
func (o *Orchestrator) Close() error {
	o.Cancel()
	return o.engine.Close()
}

// ProcessFile scans an uploaded file. Only image/* and application/pdf
// inputs are accepted; anything else is rejected before any decoding or
// recognition work. PDFs are rasterized first, with recognition
// progress rescaled into the upper half of the progress range.
func (o *Orchestrator) ProcessFile(ctx context.Context, field extract.Field, declaredType string, data []byte, onProgress progress.Func) (Outcome, error) {
	mime := strings.TrimSpace(declaredType)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	isPDF := mime == "application/pdf"
	if !isPDF && !strings.HasPrefix(mime, "image/") {
		return failure(field, FailureUnsupported), nil
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return Outcome{}, ErrSessionActive
	}
	o.state = StateProcessing
	gen := o.generation
	o.mu.Unlock()

	onProgress = progress.Monotonic(onProgress)

	blob := data
	if isPDF {
		rendered, err := o.rasterize(ctx, data, onProgress)
		if err != nil {
			o.logger.Warn("pdf rasterization failed", slog.String("error", err.Error()))
			return o.finish(gen, field, failure(field, FailurePDF))
		}
		blob = rendered
		onProgress = progress.Scaled(onProgress, rasterize.HandoffFraction, 1.0)
	}

	return o.finish(gen, field, o.recognize(ctx, field, blob, onProgress))
}

// ProcessImage scans an already-decoded image blob, entering Processing
// directly from Idle.
func (o *Orchestrator) ProcessImage(ctx context.Context, field extract.Field, data []byte, onProgress progress.Func) (Outcome, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return Outcome{}, ErrSessionActive
	}
	o.state = StateProcessing
	gen := o.generation
	o.mu.Unlock()

	return o.finish(gen, field, o.recognize(ctx, field, data, onProgress))
}

// recognize runs the multi-pass strategy and folds its result or error
// into an Outcome.
func (o *Orchestrator) recognize(ctx context.Context, field extract.Field, blob []byte, onProgress progress.Func) Outcome {
	res, err := o.runner.RecognizeBest(ctx, blob, onProgress)
	if err != nil {
		if errors.Is(err, multipass.ErrNoText) {
			return failure(field, FailureNoText)
		}
		o.logger.Warn("recognition failed",
			slog.String("field", string(field)),
			slog.String("error", err.Error()))
		return failure(field, FailureEngine)
	}

	value := extract.Extract(field, res.Text, res.Words)
	if value == "" {
		// Text was recognized but nothing usable for this field came
		// out of it; the caller treats this like a low-confidence scan.
		return failure(field, FailureNoText)
	}
	return success(field, value, res.Confidence)
}

// finish closes out the session that started at generation gen. Stale
// results from a cancelled session are discarded.
func (o *Orchestrator) finish(gen uint64, field extract.Field, out Outcome) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return Outcome{}, ErrCancelled
	}
	o.resetLocked()
	if !out.OK() {
		o.logger.Info("scan rejected",
			slog.String("field", string(field)),
			slog.String("failure", string(out.Failure)))
	}
	return out, nil
}

// resetLocked releases the stream exactly once and returns to Idle.
// Callers must hold o.mu.
func (o *Orchestrator) resetLocked() {
	if o.stream != nil {
		if err := o.stream.Close(); err != nil {
			o.logger.Warn("stream release failed", slog.String("error", err.Error()))
		}
		o.stream = nil
	}
	o.state = StateIdle
	o.generation++
}
