package vision

import (
	"context"
	"errors"
)

// ModelState tracks the lifecycle of the model behind a Gateway
type ModelState int

const (
	Unloaded ModelState = iota
	Loading
	Ready
	Failed
)

func (s ModelState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrModelLoad wraps any failure to load the model (network, server,
	// missing model). The state moves to Failed and a retry is allowed.
	ErrModelLoad = errors.New("model load failed")

	// ErrNotLoaded is returned when Generate is called before a
	// successful Load
	ErrNotLoaded = errors.New("model not loaded")
)

// ProgressFunc receives model-load progress. Percent is 0-100 and may
// arrive out of order from the transport; wrap with MonotonicProgress
// before displaying.
type ProgressFunc func(status string, percent int)

// TokenFunc receives the cumulative generated text after each streamed
// token. The text only ever extends, never shrinks.
type TokenFunc func(cumulative string)

// Gateway is the boundary around the vision-language model. The model
// holds exclusive device and memory resources, so implementations do not
// support concurrent Generate calls; callers serialize.
type Gateway interface {
	// Load prepares the model for generation, streaming progress to
	// onProgress. Calling Load while already loading or loaded is a no-op.
	Load(ctx context.Context, onProgress ProgressFunc) error

	// Generate runs the model over one image with the given prompt,
	// streaming cumulative text to onToken and returning the final text.
	// Fails with ErrNotLoaded unless Load has completed successfully.
	Generate(ctx context.Context, image []byte, prompt string, onToken TokenFunc) (string, error)

	State() ModelState
}
