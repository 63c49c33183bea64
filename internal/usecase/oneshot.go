package usecase

import "sync"

// OneShotTrigger guarantees that a handler guarded by it runs at most once
// per position lifetime, no matter how many signal sources race to fire it.
// The check-and-set is atomic under the trigger's own lock, independent of
// the trade state lock.
type OneShotTrigger struct {
	mu    sync.Mutex
	fired bool
}

func NewOneShotTrigger() *OneShotTrigger {
	return &OneShotTrigger{}
}

// TryClaim returns true exactly once between resets. Only the caller that
// receives true runs the handler; everyone else is a no-op.
func (t *OneShotTrigger) TryClaim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired {
		return false
	}
	t.fired = true
	return true
}

// Fired reports whether the trigger was claimed.
func (t *OneShotTrigger) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Reset re-arms the trigger for the next position lifetime.
func (t *OneShotTrigger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired = false
}
