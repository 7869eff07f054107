package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Adapter is the key/value capability the buffer persists through. Values
// are opaque strings; the adapter provides no atomicity across calls.
type Adapter interface {
	// GetItem returns the stored value and ok=true, or ok=false when the key
	// is absent.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// ErrInjected is returned by Memory when a failure has been armed with FailNext.
var ErrInjected = errors.New("storage: injected failure")

// Memory is an in-process Adapter. Latency can be injected to widen the
// windows between a read and the following write, which is how tests
// exercise interleavings.
type Memory struct {
	mu       sync.Mutex
	items    map[string]string
	latency  time.Duration
	failNext int
	gets     int
	sets     int
}

// NewMemory returns an empty Memory adapter.
func NewMemory() *Memory {
	return &Memory{items: map[string]string{}}
}

// SetLatency makes every call sleep for d before touching the map.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// FailNext makes the next n calls return ErrInjected.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// Counts returns how many GetItem and SetItem calls succeeded.
func (m *Memory) Counts() (gets, sets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.sets
}

func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := m.wait(ctx); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.items[key] = value
	return nil
}

func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// wait applies injected latency and failures.
func (m *Memory) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.latency
	fail := m.failNext > 0
	if fail {
		m.failNext--
	}
	m.mu.Unlock()

	if fail {
		return ErrInjected
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
