package pattern

import (
	"sync"
	"sync/atomic"

	clone "github.com/huandu/go-clone/generic"
)

// Publisher double-buffers a *Pattern the way spec.md §5 requires
// ("Pattern data is double-buffered"): control-thread edits mutate a
// freshly cloned shadow copy, then publish swaps an atomic pointer so
// the audio thread always reads a complete, never-partially-mutated
// Pattern.
//
// Grounded on SPEC_FULL.md's domain-stack entry for
// github.com/huandu/go-clone/generic: the control-thread mutate
// closure runs against clone.Clone(current), never against the
// published value itself.
type Publisher struct {
	current atomic.Pointer[Pattern]
	mu      sync.Mutex // serializes concurrent control-thread writers
}

// NewPublisher constructs a Publisher with initial as the first
// published value.
func NewPublisher(initial *Pattern) *Publisher {
	p := &Publisher{}
	p.current.Store(initial)
	return p
}

// Load returns the currently published Pattern. Safe to call from the
// audio thread; never blocks.
func (p *Publisher) Load() *Pattern { return p.current.Load() }

// Publish clones the currently published Pattern, applies mutate to the
// clone, and atomically swaps it in. Multiple concurrent control-thread
// callers are serialized so edits don't race each other on the shadow
// copy.
func (p *Publisher) Publish(mutate func(*Pattern)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.current.Load()
	var shadow *Pattern
	if cur != nil {
		shadow = clone.Clone(cur)
	} else {
		shadow = &Pattern{}
	}
	mutate(shadow)
	p.current.Store(shadow)
}
