package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a fixed-window counter per key, the in-process twin of Redis.
// A window opens on the first attempt and allows attempts checks until it
// closes. Idle keys are dropped after ttl.
type Memory struct {
	mu       sync.Mutex
	attempts int
	window   time.Duration
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*counter

	lastSweep time.Time
}

type counter struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

type MemoryOption func(*Memory)

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(attempts int, window time.Duration, opts ...MemoryOption) *Memory {
	if attempts <= 0 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	m := &Memory{
		attempts: attempts,
		window:   window,
		ttl:      2 * window,
		now:      time.Now,
		entries:  make(map[string]*counter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Check(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.entries[key]
	if c == nil || !now.Before(c.windowStart.Add(m.window)) {
		c = &counter{windowStart: now}
		m.entries[key] = c
	}
	c.lastSeen = now
	m.sweep(now)

	if c.count < m.attempts {
		c.count++
		return allow(), nil
	}
	return deny(c.windowStart.Add(m.window).Sub(now)), nil
}

func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.ttl/2 {
		return
	}
	m.lastSweep = now
	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
