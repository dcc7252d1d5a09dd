package tracking

import (
	"context"
	"sync"
)

// Manager owns the cancellation of per-request monitor goroutines so that
// consumer teardown never leaks a polling loop.
type Manager struct {
	mu     sync.Mutex
	gen    uint64
	active map[string]entry
	wg     sync.WaitGroup
}

type entry struct {
	cancel context.CancelFunc
	gen    uint64
}

func NewManager() *Manager {
	return &Manager{active: make(map[string]entry)}
}

// Start runs fn under a cancellable context keyed by id. A previous run for
// the same id is cancelled first.
func (m *Manager) Start(id string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prev, ok := m.active[id]; ok {
		prev.cancel()
	}
	m.gen++
	gen := m.gen
	m.active[id] = entry{cancel: cancel, gen: gen}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.mu.Lock()
			// Only clear our own entry; Start may have replaced it already.
			if cur, ok := m.active[id]; ok && cur.gen == gen {
				delete(m.active, id)
			}
			m.mu.Unlock()
		}()
		fn(ctx)
	}()
}

// Stop cancels the monitor for id, if any.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	e, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// StopAll cancels every monitor and waits for the goroutines to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for id, e := range m.active {
		e.cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
