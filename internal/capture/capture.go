// Package capture orchestrates label scanning end to end: it owns the
// camera lifecycle, dispatches captured frames and uploaded files into
// the recognition pipeline, and converts every failure into a
// discriminated Outcome for the caller.
package capture

import (
	"context"
)

// State identifies where a capture session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateLive
	StateCapturing
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateLive:
		return "live"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Constraints describe the preferred video source for live scanning.
// They are inputs to stream acquisition and are not renegotiated
// mid-session.
type Constraints struct {
	FacingMode  string `mapstructure:"facing_mode" yaml:"facing_mode" json:"facing_mode"`
	MinWidth    int    `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MinHeight   int    `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	IdealWidth  int    `mapstructure:"ideal_width" yaml:"ideal_width" json:"ideal_width"`
	IdealHeight int    `mapstructure:"ideal_height" yaml:"ideal_height" json:"ideal_height"`
}

// DefaultConstraints prefer the rear-facing camera at a 640x480 floor
// and a 1280x720 ideal, the resolution sweet spot for label text.
func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode:  "environment",
		MinWidth:    640,
		MinHeight:   480,
		IdealWidth:  1280,
		IdealHeight: 720,
	}
}

// Stream is one open acquisition of a live video source. The stream is
// exclusively owned by the session that acquired it and must be closed
// on every exit path.
type Stream interface {
	// Frame snapshots the current video frame as an encoded image blob.
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// Device produces live video streams. Implementations wrap whatever
// capture hardware or remote source the host provides.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}
