package gateway

import (
	"context"
	"sync"
	"time"
)

// RevocationList records access-token ids that must be refused until the
// token would have expired anyway.
type RevocationList interface {
	Revoke(jti string, expiresAt time.Time)
	Revoked(jti string) bool
}

// MemoryRevocations is an in-process RevocationList. Entries are evicted once
// their expiry passes, both on lookup and by Sweep.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations(now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{entries: make(map[string]time.Time), now: now}
}

var _ RevocationList = (*MemoryRevocations)(nil)

func (m *MemoryRevocations) Revoke(jti string, expiresAt time.Time) {
	if jti == "" || !expiresAt.After(m.now()) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = expiresAt
}

func (m *MemoryRevocations) Revoked(jti string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.entries[jti]
	if !ok {
		return false
	}
	if !expiresAt.After(m.now()) {
		delete(m.entries, jti)
		return false
	}
	return true
}

// Sweep evicts expired entries and returns how many were removed.
func (m *MemoryRevocations) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for jti, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			delete(m.entries, jti)
			removed++
		}
	}
	return removed
}

func (m *MemoryRevocations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Run sweeps every interval until ctx is done.
func (m *MemoryRevocations) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
