// Package correlate maps outstanding client requests to their
// completions by correlation id.
package correlate

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chet-im/chet/internal/wire"
)

// Outcome is the terminal result of one request: either a successful
// response payload or an error (server-side Err or connection loss).
type Outcome struct {
	Data *wire.ResData
	Err  error
}

// Table tracks pending requests for the lifetime of a connection.
// Completions are one-shot: each id is resolved at most once, and
// resolving an unknown or already-resolved id is a silent no-op.
type Table struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan Outcome
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[uuid.UUID]chan Outcome)}
}

// Register allocates a fresh correlation id and a completion channel
// the caller awaits. The channel is buffered so resolving never blocks
// the event loop, even when nobody is awaiting anymore.
func (t *Table) Register() (uuid.UUID, <-chan Outcome) {
	id := uuid.New()
	ch := make(chan Outcome, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return id, ch
}

// Resolve completes the pending entry for id and removes it. Returns
// false when no entry exists (late response, or a duplicate), in which
// case the outcome is discarded.
func (t *Table) Resolve(id uuid.UUID, out Outcome) bool {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}

// Forget drops the pending entry without completing it. Used when the
// send failed and the caller is told directly.
func (t *Table) Forget(id uuid.UUID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// FailAll completes every pending entry with err and empties the
// table. Called when the connection drops so no caller hangs across a
// reconnect.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uuid.UUID]chan Outcome)
	t.mu.Unlock()
	for _, ch := range pending {
		ch <- Outcome{Err: err}
	}
}

// Len returns the number of outstanding requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
