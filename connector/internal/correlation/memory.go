package correlation

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryKV is a process-local KV with lazy and periodic expiry. It suits
// single-replica deployments and tests.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryKV starts a cleanup loop that runs every interval. Close stops it.
func NewMemoryKV(interval time.Duration) *MemoryKV {
	m := &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if interval > 0 {
		go m.cleanupLoop(interval)
	}
	return m
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, opts SetOptions) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if opts.IfAbsent {
		if e, ok := m.entries[key]; ok && !e.expired(now) {
			return false, nil
		}
	}
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), expires: expiry(now, opts.TTL)}
	return true, nil
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) CompareAndSet(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && !e.expired(now) && string(e.value) != token {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: []byte(token), expires: expiry(now, ttl)}
	return true, nil
}

func (m *MemoryKV) Ping(context.Context) error { return nil }

// Close stops the cleanup loop.
func (m *MemoryKV) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryKV) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryKV) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
