package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
)

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithTTL sets how long a saved snapshot stays readable
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// WithKey sets the entry key
func WithKey(key string) MemoryOption {
	return func(m *Memory) { m.key = key }
}

type entry struct {
	snap    dashboard.Snapshot
	expires time.Time
}

// Memory is an in-process snapshot cache with expiry
type Memory struct {
	entries *xsync.Map[string, entry]
	clock   Clock
	ttl     time.Duration
	key     string
}

// NewMemory creates an empty Memory cache holding entries for DefaultTTL
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: xsync.NewMap[string, entry](),
		clock:   clock.SystemClock{},
		ttl:     DefaultTTL,
		key:     DefaultKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the saved snapshot unless it has expired
func (m *Memory) Load(context.Context) (dashboard.Snapshot, bool, error) {
	e, ok := m.entries.Load(m.key)
	if !ok {
		return dashboard.Snapshot{}, false, nil
	}
	if !m.clock.Now().Before(e.expires) {
		m.entries.Compute(m.key, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
			if loaded && old.expires.Equal(e.expires) {
				return old, xsync.DeleteOp
			}
			return old, xsync.CancelOp
		})
		return dashboard.Snapshot{}, false, nil
	}
	return e.snap.Clone(), true, nil
}

// Save stores a copy of snap
func (m *Memory) Save(_ context.Context, snap dashboard.Snapshot) error {
	m.entries.Store(m.key, entry{snap: snap.Clone(), expires: m.clock.Now().Add(m.ttl)})
	return nil
}
