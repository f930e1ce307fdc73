package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is a thread-safe TTL set with background cleanup
type Memory struct {
	mu          sync.Mutex
	entries     map[string]time.Time
	ttl         time.Duration
	cleanupTick time.Duration
	stopCleanup chan struct{}
	stopped     bool
	now         func() time.Time
}

// NewMemory creates an in-memory store. Keys expire ttl after first being seen.
func NewMemory(ttl, cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &Memory{
		entries:     make(map[string]time.Time),
		ttl:         ttl,
		cleanupTick: cleanupInterval,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}

	go m.cleanupLoop()

	return m
}

// cleanupLoop periodically removes expired entries
func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, expiresAt := range m.entries {
		if now.After(expiresAt) {
			delete(m.entries, key)
		}
	}
}

// Seen implements Store
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, ok := m.entries[key]; ok && !now.After(expiresAt) {
		return true, nil
	}
	m.entries[key] = now.Add(m.ttl)
	return false, nil
}

// Len returns the number of entries, including expired ones not yet cleaned up
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background cleanup goroutine
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopCleanup)
	return nil
}
