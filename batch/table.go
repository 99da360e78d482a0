package batch

import (
	"image"
	"sync"

	"github.com/lepinkainen/visiontagger/archive"
)

// Row is one entry in the results table: the image it came from and the
// generated response so far. Within a run the response only ever grows.
type Row struct {
	FileName string
	Preview  image.Image
	Response string
}

// Table is the ordered results table for one archive. The row count is
// fixed at construction; only the Runner writes responses. Observers
// subscribe for per-row change notifications instead of polling.
type Table struct {
	mu   sync.RWMutex
	rows []Row
	subs []func(row int)
}

// NewTable builds a table with one empty-response row per asset,
// preserving asset order
func NewTable(assets []archive.ImageAsset) *Table {
	rows := make([]Row, len(assets))
	for i, asset := range assets {
		rows[i] = Row{
			FileName: asset.Name,
			Preview:  asset.Preview,
		}
	}
	return &Table{rows: rows}
}

// Len returns the number of rows
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Row returns a copy of row i
func (t *Table) Row(i int) Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows[i]
}

// HasResponses reports whether at least one row has a non-empty response
func (t *Table) HasResponses() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, row := range t.rows {
		if row.Response != "" {
			return true
		}
	}
	return false
}

// Subscribe registers a callback invoked with the row index whenever a
// row's response changes. Callbacks run on the mutating goroutine and
// should return quickly.
func (t *Table) Subscribe(fn func(row int)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

func (t *Table) setResponse(i int, response string) {
	t.mu.Lock()
	t.rows[i].Response = response
	subs := t.subs
	t.mu.Unlock()

	for _, fn := range subs {
		fn(i)
	}
}
