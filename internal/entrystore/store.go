package entrystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// DefaultKey is the storage key holding the buffered entries.
const DefaultKey = "com.primlo.nibbana.logEntries"

// Store owns the ordered entry sequence under one storage key. Every
// operation holds mu for its whole read-modify-write, since the adapter
// gives no atomicity across calls.
type Store struct {
	adapter storage.Adapter
	key     string
	logger  logpkg.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used to report unreadable stored data.
func WithLogger(l logpkg.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store persisting through adapter.
func New(adapter storage.Adapter, opts ...Option) *Store {
	s := &Store{adapter: adapter, key: DefaultKey, logger: logpkg.NewNopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("entrystore")
	return s
}

// Append adds e to the end of the sequence. When capacity > 0 the oldest
// entries are dropped so at most capacity remain. It returns how many were
// evicted.
func (s *Store) Append(ctx context.Context, e entry.Entry, capacity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	entries = append(entries, e)
	evicted := 0
	if capacity > 0 && len(entries) > capacity {
		evicted = len(entries) - capacity
		entries = entries[evicted:]
	}
	if err := s.write(ctx, entries); err != nil {
		return 0, err
	}
	return evicted, nil
}

// RemoveByIDs drops every entry whose id is in ids and returns how many were
// removed. Entries not in ids keep their relative order.
func (s *Store) RemoveByIDs(ctx context.Context, ids map[string]struct{}) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := ids[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ReadAll returns a snapshot of the sequence.
func (s *Store) ReadAll(ctx context.Context) ([]entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Len returns the number of buffered entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	entries, err := s.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Clear removes the storage key. Reading afterwards yields an empty sequence.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adapter.RemoveItem(ctx, s.key); err != nil {
		return fmt.Errorf("entrystore: clear: %w", err)
	}
	return nil
}

// read loads the sequence. A missing or unparsable value is an empty
// sequence; adapter errors are returned. Caller must hold mu.
func (s *Store) read(ctx context.Context) ([]entry.Entry, error) {
	raw, ok, err := s.adapter.GetItem(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("entrystore: read: %w", err)
	}
	if !ok {
		return []entry.Entry{}, nil
	}
	entries, err := entry.Decode(raw)
	if err != nil {
		s.logger.Warn("discarding unreadable stored entries", logpkg.Str("key", s.key), logpkg.Err(err))
		return []entry.Entry{}, nil
	}
	return entries, nil
}

// write stores the full sequence in one adapter call. Caller must hold mu.
func (s *Store) write(ctx context.Context, entries []entry.Entry) error {
	raw, err := entry.Encode(entries)
	if err != nil {
		return err
	}
	if err := s.adapter.SetItem(ctx, s.key, raw); err != nil {
		return fmt.Errorf("entrystore: write: %w", err)
	}
	return nil
}
