// Package sessions tracks live calls by call ID. The registry only routes
// and counts; every piece of per-call state lives inside the call session
// itself.
package sessions

import (
	"context"
	"sync"
)

type Registry struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	cancel func()
	once   sync.Once
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*trackedCall)}
}

// Register tracks one call until the returned unregister func runs. A second
// registration under the same call ID evicts and cancels the first.
func (r *Registry) Register(callID string, cancel func()) (unregister func()) {
	if r == nil {
		return func() {}
	}

	entry := &trackedCall{cancel: cancel}

	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]*trackedCall)
	}
	old := r.calls[callID]
	r.calls[callID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		if old.cancel != nil {
			old.cancel()
		}
		r.unregister(callID, old)
	}

	return func() { r.unregister(callID, entry) }
}

func (r *Registry) unregister(callID string, entry *trackedCall) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.calls != nil && r.calls[callID] == entry {
			delete(r.calls, callID)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// CancelAll asks every live call to shut down. Calls unregister themselves
// as their sessions finish.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.calls {
		if entry == nil || entry.cancel == nil {
			continue
		}
		cancels = append(cancels, entry.cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered, or the context
// expires. It reports whether the registry fully drained.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
