package events

import "sync"

// Handler receives dispatched events. The bus holds at most one.
type Handler func(Event)

// Bus is a single-handler event bus. Registration is idempotent: the
// last Register call wins, mirroring the teacher's
// logging.SetDefault/Default singleton pattern generalized to a
// per-Driver instance instead of a package-level global.
type Bus struct {
	mu      sync.RWMutex
	handler Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Register installs fn as the bus's handler, replacing any previous one.
func (b *Bus) Register(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = fn
}

// Trigger invokes the registered handler, if any, with event.
func (b *Bus) Trigger(event Event) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h != nil {
		h(event)
	}
}
