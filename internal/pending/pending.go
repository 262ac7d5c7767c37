// Package pending tracks in-flight requests so they can be cancelled.
package pending

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// ErrDuplicateID is returned when a request id is already in flight.
var ErrDuplicateID = errors.New("pending: duplicate request id")

// Entry is one in-flight request.
type Entry struct {
	ID        rpc.ID
	Method    string
	StartedAt time.Time

	cancelled bool
	cancel    context.CancelFunc
}

// Cancelled reports whether cancellation was requested.
func (e *Entry) Cancelled() bool {
	return e.cancelled
}

// Table maps request ids to their cancellation state. It is safe for
// concurrent use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Register records an accepted request. cancel may be nil.
func (t *Table) Register(id rpc.ID, method string, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := id.Key()
	if _, exists := t.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	t.entries[key] = &Entry{
		ID:        id,
		Method:    method,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	return nil
}

// Cancel flags id as cancelled and fires its callback. It reports whether
// the id was in flight; cancelling a finished request is a no-op.
func (t *Table) Cancel(id rpc.ID) bool {
	t.mu.Lock()
	e, ok := t.entries[id.Key()]
	var cancel context.CancelFunc
	if ok && !e.cancelled {
		e.cancelled = true
		cancel = e.cancel
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return ok
}

// Complete removes id once its response is written. It returns the entry,
// or nil if id was not in flight.
func (t *Table) Complete(id rpc.ID) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := id.Key()
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	delete(t.entries, key)
	return e
}

// Len returns the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CancelAll cancels every in-flight request and returns how many were
// signalled.
func (t *Table) CancelAll() int {
	t.mu.Lock()
	var cancels []context.CancelFunc
	for _, e := range t.entries {
		if e.cancelled {
			continue
		}
		e.cancelled = true
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	n := len(t.entries)
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return n
}

// Snapshot returns copies of the in-flight entries, oldest first.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, Entry{ID: e.ID, Method: e.Method, StartedAt: e.StartedAt, cancelled: e.cancelled})
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.Key(), b.ID.Key())
	})
	return out
}
