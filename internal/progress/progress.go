package progress

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Func receives stage descriptions and a completion fraction in [0,1].
// Implementations must not block; the pipeline never waits on a reporter.
type Func func(message string, fraction float64)

// Nop discards all progress updates. Useful as a default.
func Nop(string, float64) {}

// Report invokes fn if it is non-nil.
func Report(fn Func, message string, fraction float64) {
	if fn != nil {
		fn(message, fraction)
	}
}

// Monotonic wraps fn so that reported fractions never decrease and stay
// within [0,1]. Stages emitted by independent components can otherwise
// regress when their ranges overlap.
func Monotonic(fn Func) Func {
	if fn == nil {
		return nil
	}
	var (
		mu   sync.Mutex
		last float64
	)
	return func(message string, fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		fraction = clamp01(fraction)
		if fraction < last {
			fraction = last
		}
		last = fraction
		fn(message, fraction)
	}
}

// Scaled maps fn's [0,1] input range onto [from,to]. The rasterizer uses
// this to hand the recognition stage the remaining [0.5,1.0] slice so the
// caller sees one continuous signal.
func Scaled(fn Func, from, to float64) Func {
	if fn == nil {
		return nil
	}
	from = clamp01(from)
	to = clamp01(to)
	if to < from {
		to = from
	}
	span := to - from
	return func(message string, fraction float64) {
		fn(message, from+clamp01(fraction)*span)
	}
}

// Throttled suppresses updates arriving within minInterval of the previous
// one. Terminal updates (fraction >= 1) always pass through.
func Throttled(fn Func, minInterval time.Duration) Func {
	if fn == nil {
		return nil
	}
	var (
		mu         sync.Mutex
		lastUpdate time.Time
	)
	return func(message string, fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if fraction < 1.0 && !lastUpdate.IsZero() && now.Sub(lastUpdate) < minInterval {
			return
		}
		lastUpdate = now
		fn(message, fraction)
	}
}

// Stoppable wraps fn so delivery can be cut off. Once stop returns, no
// further updates are forwarded and none are in flight. An abandoned
// worker goroutine can then keep reporting into the wrapper without
// reaching a reporter whose owner has moved on.
func Stoppable(fn Func) (wrapped Func, stop func()) {
	var (
		mu      sync.Mutex
		stopped bool
	)
	wrapped = func(message string, fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		Report(fn, message, fraction)
	}
	stop = func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
	}
	return wrapped, stop
}

// Multi fans one update out to several reporters.
func Multi(fns ...Func) Func {
	active := make([]Func, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			active = append(active, fn)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(message string, fraction float64) {
		for _, fn := range active {
			fn(message, fraction)
		}
	}
}

// Logged reports progress through slog at the given level.
func Logged(logger *slog.Logger, level slog.Level) Func {
	if logger == nil {
		logger = slog.Default()
	}
	return func(message string, fraction float64) {
		logger.Log(context.Background(), level, "scan progress",
			"stage", message,
			"fraction", math.Round(fraction*100)/100,
		)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
