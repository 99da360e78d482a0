package batch

import (
	"context"
	"errors"
	"sync"

	"github.com/lepinkainen/visiontagger/archive"
	"github.com/lepinkainen/visiontagger/vision"
)

// RunState tracks a single batch invocation
type RunState int

const (
	Idle RunState = iota
	Running
	Completed
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning rejects a run request while one is in flight
	ErrAlreadyRunning = errors.New("a batch run is already in progress")

	// ErrEmptyTable rejects a run over an archive with no images
	ErrEmptyTable = errors.New("no images to process")
)

// ErrorPrefix marks a per-image generation failure in the results table
const ErrorPrefix = "ERROR: "

// DuplicatePrefix marks a row skipped because an earlier image was
// perceptually identical; the earlier image's name follows the prefix
const DuplicatePrefix = "duplicate of "

// Runner drives one generation call per image, strictly sequentially:
// the model holds exclusive device resources and does not support
// concurrent generation, so one row fully completes before the next
// begins. Per-row failures are recorded in the table and never abort
// the batch.
type Runner struct {
	gateway vision.Gateway
	assets  []archive.ImageAsset
	table   *Table
	prompt  string

	skipDuplicates bool
	threshold      int

	// Optional hooks for UI integration, invoked from the run goroutine
	OnRowStart func(row int)
	OnRowDone  func(row int, err error)

	mu      sync.Mutex
	state   RunState
	current int
}

// NewRunner builds a runner and its results table for the given assets.
// The gateway must be loaded before Run is called.
func NewRunner(gateway vision.Gateway, assets []archive.ImageAsset, prompt string) *Runner {
	return &Runner{
		gateway: gateway,
		assets:  assets,
		table:   NewTable(assets),
		prompt:  prompt,
		state:   Idle,
	}
}

// Table returns the results table this runner mutates
func (r *Runner) Table() *Table {
	return r.table
}

// State returns the current run state
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the index of the row being processed
func (r *Runner) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SkipDuplicates enables perceptual-hash duplicate detection: an image
// within the given Hamming distance of an earlier one is marked as a
// duplicate instead of being sent to the model
func (r *Runner) SkipDuplicates(threshold int) {
	r.skipDuplicates = true
	r.threshold = threshold
}

// Run processes every row in table order. It is a guarded no-op if a run
// is already in progress, the table is empty, or the model is not ready;
// in those cases the table is untouched and the state unchanged.
// Cancellation is cooperative and checked between rows only.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	if r.table.Len() == 0 {
		r.mu.Unlock()
		return ErrEmptyTable
	}
	if r.gateway.State() != vision.Ready {
		r.mu.Unlock()
		return vision.ErrNotLoaded
	}
	r.state = Running
	r.current = 0
	r.mu.Unlock()

	hashes := newHashIndex(len(r.assets))

	for i, asset := range r.assets {
		if err := ctx.Err(); err != nil {
			r.setState(RunFailed)
			return err
		}

		r.setCurrent(i)
		if r.OnRowStart != nil {
			r.OnRowStart(i)
		}

		if r.skipDuplicates {
			if name, ok := hashes.duplicateOf(i, asset, r.assets, r.threshold); ok {
				r.table.setResponse(i, DuplicatePrefix+name)
				if r.OnRowDone != nil {
					r.OnRowDone(i, nil)
				}
				continue
			}
		}

		row := i
		text, err := r.gateway.Generate(ctx, asset.Data, r.prompt, func(cumulative string) {
			r.table.setResponse(row, cumulative)
		})
		if err != nil {
			// Fail-soft: record the error in the row and keep going
			r.table.setResponse(i, ErrorPrefix+err.Error())
			if r.OnRowDone != nil {
				r.OnRowDone(i, err)
			}
			continue
		}

		if text == "" {
			// The model can legally stop immediately and emit no text;
			// a completed run must never leave a row empty
			text = ErrorPrefix + "model returned no text"
		}
		r.table.setResponse(i, text)
		if r.OnRowDone != nil {
			r.OnRowDone(i, nil)
		}
	}

	r.setState(Completed)
	return nil
}

func (r *Runner) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) setCurrent(i int) {
	r.mu.Lock()
	r.current = i
	r.mu.Unlock()
}
