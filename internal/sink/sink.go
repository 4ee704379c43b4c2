// Package sink holds the shared output cursors that concurrent planning
// workers write routed stops, unrouted leads and route summaries into.
package sink

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Writer persists one kind of output row.
type Writer[T any] interface {
	Write(ctx context.Context, runID string, rows []T) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc[T any] func(ctx context.Context, runID string, rows []T) error

// Write implements Writer.
func (f WriterFunc[T]) Write(ctx context.Context, runID string, rows []T) error {
	return f(ctx, runID, rows)
}

// Cursor serialises inserts onto a Writer. It is safe for concurrent use:
// each Insert holds the cursor's lock for the duration of one write.
type Cursor[T any] struct {
	name  string
	runID string
	w     Writer[T]

	mu    sync.Mutex
	count int
}

// NewCursor returns a cursor named name writing through w.
func NewCursor[T any](name, runID string, w Writer[T]) *Cursor[T] {
	return &Cursor[T]{name: name, runID: runID, w: w}
}

// Insert writes rows under the cursor lock.
func (c *Cursor[T]) Insert(ctx context.Context, rows ...T) error {
	if len(rows) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.Write(ctx, c.runID, rows); err != nil {
		return eris.Wrapf(err, "sink: insert into %s", c.name)
	}
	c.count += len(rows)
	return nil
}

// Count returns the number of rows written so far.
func (c *Cursor[T]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Name returns the cursor name.
func (c *Cursor[T]) Name() string { return c.name }
