package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens/labelscan/internal/engine"
	"github.com/shoplens/labelscan/internal/extract"
	"github.com/shoplens/labelscan/internal/progress"
	"github.com/shoplens/labelscan/internal/testutil"
)

type fakeStream struct {
	mu       sync.Mutex
	frame    []byte
	frameErr error
	closes   int
}

func (s *fakeStream) Frame(context.Context) ([]byte, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	return s.frame, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeDevice struct {
	stream         *fakeStream
	err            error
	block          chan struct{}
	gotConstraints Constraints
}

func (d *fakeDevice) Acquire(_ context.Context, c Constraints) (Stream, error) {
	d.gotConstraints = c
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

// blockingEngine holds every Recognize call until released.
type blockingEngine struct {
	release chan struct{}
	result  *engine.Result
}

func (e *blockingEngine) Recognize(context.Context, []byte, string, progress.Func) (*engine.Result, error) {
	<-e.release
	return e.result, nil
}

func (e *blockingEngine) Close() error { return nil }

func labelBlob(t *testing.T) []byte {
	t.Helper()
	return testutil.PNGBlob(t, testutil.ProductLabel().Render())
}

func goodResult() *engine.Result {
	return &engine.Result{
		Text:       "Premium Tea\n890123456",
		Confidence: 85,
		Words: []engine.Word{
			{Text: "Premium", Confidence: 85},
			{Text: "Tea", Confidence: 90},
			{Text: "890123456", Confidence: 65},
		},
	}
}

func TestLiveCaptureSuccess(t *testing.T) {
	stream := &fakeStream{frame: labelBlob(t)}
	device := &fakeDevice{stream: stream}
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(device, mock)

	require.NoError(t, orch.Start(context.Background()))
	assert.Equal(t, StateLive, orch.State())
	assert.Equal(t, "environment", device.gotConstraints.FacingMode)
	assert.Equal(t, 1280, device.gotConstraints.IdealWidth)

	out, err := orch.Capture(context.Background(), extract.FieldName, nil)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, extract.FieldName, out.Field)
	assert.Equal(t, "Premium Tea", out.Value)
	assert.InDelta(t, 85, out.Confidence, 0.01)

	assert.Equal(t, StateIdle, orch.State())
	assert.Equal(t, 1, stream.closeCount())
}

func TestCancelReleasesStreamOnce(t *testing.T) {
	stream := &fakeStream{frame: labelBlob(t)}
	orch := New(&fakeDevice{stream: stream}, engine.NewMock())

	require.NoError(t, orch.Start(context.Background()))
	orch.Cancel()
	orch.Cancel()

	assert.Equal(t, StateIdle, orch.State())
	assert.Equal(t, 1, stream.closeCount())

	_, err := orch.Capture(context.Background(), extract.FieldName, nil)
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestSingleActiveSession(t *testing.T) {
	stream := &fakeStream{frame: labelBlob(t)}
	orch := New(&fakeDevice{stream: stream}, engine.NewMock(engine.MockResponse{Result: goodResult()}))

	require.NoError(t, orch.Start(context.Background()))

	assert.ErrorIs(t, orch.Start(context.Background()), ErrSessionActive)

	_, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestAcquireFailureReturnsToIdle(t *testing.T) {
	denied := errors.New("permission denied")
	orch := New(&fakeDevice{err: denied}, engine.NewMock())

	err := orch.Start(context.Background())
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, StateIdle, orch.State())

	// The user can immediately retry.
	assert.ErrorIs(t, orch.Start(context.Background()), denied)
}

func TestNoDevice(t *testing.T) {
	orch := New(nil, engine.NewMock())
	assert.ErrorIs(t, orch.Start(context.Background()), ErrNoDevice)
}

func TestCancelDuringAcquire(t *testing.T) {
	stream := &fakeStream{}
	device := &fakeDevice{stream: stream, block: make(chan struct{})}
	orch := New(device, engine.NewMock())

	errCh := make(chan error, 1)
	go func() { errCh <- orch.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return orch.State() == StateAcquiring
	}, time.Second, time.Millisecond)

	orch.Cancel()
	close(device.block)

	assert.ErrorIs(t, <-errCh, ErrCancelled)
	assert.Equal(t, StateIdle, orch.State())
	assert.Equal(t, 1, stream.closeCount())
}

func TestStaleResultDiscarded(t *testing.T) {
	eng := &blockingEngine{release: make(chan struct{}), result: goodResult()}
	orch := New(nil, eng)

	type reply struct {
		out Outcome
		err error
	}
	replyCh := make(chan reply, 1)
	go func() {
		out, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
		replyCh <- reply{out, err}
	}()

	require.Eventually(t, func() bool {
		return orch.State() == StateProcessing
	}, time.Second, time.Millisecond)

	orch.Cancel()
	close(eng.release)

	got := <-replyCh
	assert.ErrorIs(t, got.err, ErrCancelled)
	assert.Empty(t, got.out.Value)
	assert.Equal(t, StateIdle, orch.State())
}

func TestFrameFailureReleasesStream(t *testing.T) {
	stream := &fakeStream{frameErr: errors.New("device wedged")}
	orch := New(&fakeDevice{stream: stream}, engine.NewMock())

	require.NoError(t, orch.Start(context.Background()))
	out, err := orch.Capture(context.Background(), extract.FieldName, nil)
	require.NoError(t, err)

	assert.Equal(t, FailureCamera, out.Failure)
	assert.Equal(t, StateIdle, orch.State())
	assert.Equal(t, 1, stream.closeCount())
}

func TestUnsupportedTypeShortCircuits(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(nil, mock)
	orch.rasterize = func(context.Context, []byte, progress.Func) ([]byte, error) {
		t.Fatal("rasterizer must not run for unsupported input")
		return nil, nil
	}

	out, err := orch.ProcessFile(context.Background(), extract.FieldName, "text/plain", []byte("plain text"), nil)
	require.NoError(t, err)

	assert.Equal(t, FailureUnsupported, out.Failure)
	assert.Equal(t, 0, mock.CallCount())
	assert.Equal(t, StateIdle, orch.State())
}

func TestProcessFileDetectsImageType(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(nil, mock)

	out, err := orch.ProcessFile(context.Background(), extract.FieldBarcode, "", labelBlob(t), nil)
	require.NoError(t, err)

	assert.True(t, out.OK())
	assert.Equal(t, "890123456", out.Value)
}

func TestProcessFilePDF(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(nil, mock)
	blob := labelBlob(t)
	orch.rasterize = func(_ context.Context, _ []byte, onProgress progress.Func) ([]byte, error) {
		progress.Report(onProgress, "Loading PDF...", 0.1)
		progress.Report(onProgress, "Rendering PDF page...", 0.3)
		progress.Report(onProgress, "Processing text...", 0.5)
		return blob, nil
	}

	var fractions []float64
	out, err := orch.ProcessFile(context.Background(), extract.FieldName, "application/pdf", []byte("%PDF-"), func(_ string, f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)
	assert.True(t, out.OK())

	require.NotEmpty(t, fractions)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	// Recognition progress lands in the upper half after the handoff.
	assert.Greater(t, fractions[len(fractions)-2], 0.5)
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 0.0001)
}

func TestProcessFilePDFFailure(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(nil, mock)
	orch.rasterize = func(context.Context, []byte, progress.Func) ([]byte, error) {
		return nil, errors.New("corrupt document")
	}

	out, err := orch.ProcessFile(context.Background(), extract.FieldName, "application/pdf", []byte("%PDF-"), nil)
	require.NoError(t, err)

	assert.Equal(t, FailurePDF, out.Failure)
	assert.Equal(t, 0, mock.CallCount())
	assert.Equal(t, StateIdle, orch.State())
}

func TestEngineFailureOutcome(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Err: errors.New("engine crashed")})
	orch := New(nil, mock)

	out, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
	require.NoError(t, err)
	assert.Equal(t, FailureEngine, out.Failure)
	assert.NotEmpty(t, out.Message)
}

func TestLowConfidenceOutcome(t *testing.T) {
	mock := engine.NewMock(engine.MockResponse{Result: &engine.Result{Text: "x", Confidence: 10}})
	orch := New(nil, mock)

	out, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
	require.NoError(t, err)
	assert.Equal(t, FailureNoText, out.Failure)
}

func TestEmptyExtractionIsNoText(t *testing.T) {
	res := &engine.Result{
		Text:       "!!!",
		Confidence: 80,
		Words:      []engine.Word{{Text: "!!", Confidence: 90}},
	}
	mock := engine.NewMock(engine.MockResponse{Result: res})
	orch := New(nil, mock)

	out, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
	require.NoError(t, err)
	assert.Equal(t, FailureNoText, out.Failure)
}

func TestCloseReleasesEngineAndStream(t *testing.T) {
	stream := &fakeStream{frame: labelBlob(t)}
	mock := engine.NewMock(engine.MockResponse{Result: goodResult()})
	orch := New(&fakeDevice{stream: stream}, mock)

	require.NoError(t, orch.Start(context.Background()))
	require.NoError(t, orch.Close())

	assert.Equal(t, 1, stream.closeCount())
	_, err := orch.ProcessImage(context.Background(), extract.FieldName, labelBlob(t), nil)
	require.NoError(t, err)
}

func TestOutcomeMessages(t *testing.T) {
	for _, kind := range []FailureKind{FailureCamera, FailureNoText, FailureEngine, FailureUnsupported, FailurePDF} {
		assert.NotEmpty(t, failureMessage(kind), string(kind))
	}
	assert.Empty(t, failureMessage(FailureNone))
}
