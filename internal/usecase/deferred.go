package usecase

import (
	"sync"
	"time"
)

// DeferredRunner executes delayed tasks off the event-delivery goroutine so
// a slow handler never blocks event processing. Tasks that were already
// scheduled still run during shutdown: a compensating close must not be
// dropped just because the process is stopping.
type DeferredRunner struct {
	wg sync.WaitGroup
}

func NewDeferredRunner() *DeferredRunner {
	return &DeferredRunner{}
}

// After schedules fn to run once after delay, on its own goroutine.
func (r *DeferredRunner) After(delay time.Duration, fn func()) {
	r.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer r.wg.Done()
		fn()
	})
}

// Go runs fn immediately on its own goroutine.
func (r *DeferredRunner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Wait blocks until every scheduled task finished.
func (r *DeferredRunner) Wait() {
	r.wg.Wait()
}
