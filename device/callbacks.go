package device

import (
	"slices"
	"sync"

	"go-inkdeck/action"
)

// Callbacks is the callback-binding table: at most one procedure per input.
// Safe for use from the transport's reader goroutine.
type Callbacks struct {
	mu    sync.Mutex
	table map[action.Input]func()
}

func NewCallbacks() *Callbacks {
	return &Callbacks{table: make(map[action.Input]func())}
}

// Register binds fn to in, replacing any previous binding
func (c *Callbacks) Register(in action.Input, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.table, in)
		return
	}
	c.table[in] = fn
}

// Clear removes the binding for in
func (c *Callbacks) Clear(in action.Input) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.table, in)
}

// ClearAll removes every binding
func (c *Callbacks) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.table)
}

// Lookup returns the procedure bound to in
func (c *Callbacks) Lookup(in action.Input) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.table[in]
	return fn, ok
}

// Dispatch runs the procedure bound to in, outside the lock.
// It reports whether one was bound.
func (c *Callbacks) Dispatch(in action.Input) bool {
	fn, ok := c.Lookup(in)
	if !ok {
		return false
	}
	fn()
	return true
}

// Bound lists inputs that currently have a binding, sorted
func (c *Callbacks) Bound() []action.Input {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]action.Input, 0, len(c.table))
	for in := range c.table {
		out = append(out, in)
	}
	slices.Sort(out)
	return out
}
