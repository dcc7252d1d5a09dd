package dispatch

import (
	"context"
	"sync"
)

// MemoryDismissals is an in-process DismissalStore. Used when no redis is
// configured; dismissals then last as long as the process.
type MemoryDismissals struct {
	mu  sync.Mutex
	set map[string]map[string]bool
}

func NewMemoryDismissals() *MemoryDismissals {
	return &MemoryDismissals{set: make(map[string]map[string]bool)}
}

func (m *MemoryDismissals) Dismiss(_ context.Context, companionID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set[companionID] == nil {
		m.set[companionID] = make(map[string]bool)
	}
	m.set[companionID][requestID] = true
	return nil
}

func (m *MemoryDismissals) Dismissed(_ context.Context, companionID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.set[companionID]))
	for id := range m.set[companionID] {
		out[id] = true
	}
	return out, nil
}
