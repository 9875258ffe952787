package engine

import "sync"

// guard is a scoped hold of the engine mutex:
//
//	g := e.lock()
//	defer g.Unlock()
//
// Unlock is idempotent so an early explicit unlock can coexist with the
// deferred one.
type guard struct {
	mu   *sync.Mutex
	held bool
}

func (e *Engine) lock() *guard {
	e.mu.Lock()
	return &guard{mu: &e.mu, held: true}
}

// Unlock releases the engine mutex if the guard still holds it
func (g *guard) Unlock() {
	if g.held {
		g.held = false
		g.mu.Unlock()
	}
}

// Blocking runs fn with the mutex released and takes it back before
// returning. Any state read before the call must be revalidated after it.
func (g *guard) Blocking(fn func()) {
	if !g.held {
		fn()
		return
	}
	g.mu.Unlock()
	defer g.mu.Lock()
	fn()
}
