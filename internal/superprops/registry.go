package superprops

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// DefaultKey is the storage key holding the persistent map.
const DefaultKey = "com.primlo.nibbana.superProperties"

// Registry holds the transient and persistent super properties. A key is in
// at most one of the two maps.
type Registry struct {
	adapter storage.Adapter
	key     string
	logger  logpkg.Logger

	mu         sync.Mutex
	transient  entry.Properties
	persistent entry.Properties
}

// New returns an empty Registry. Call Load to pick up persisted state.
func New(adapter storage.Adapter, key string, logger logpkg.Logger) *Registry {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Registry{
		adapter:    adapter,
		key:        key,
		logger:     logger.WithComponent("superprops"),
		transient:  entry.Properties{},
		persistent: entry.Properties{},
	}
}

// Load replaces the persistent map with the stored one. A missing or
// unreadable value leaves it empty.
func (r *Registry) Load(ctx context.Context) error {
	raw, ok, err := r.adapter.GetItem(ctx, r.key)
	if err != nil {
		return fmt.Errorf("superprops: load: %w", err)
	}
	props := entry.Properties{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			r.logger.Warn("discarding unreadable persistent super properties", logpkg.Err(err))
			props = entry.Properties{}
		}
		if props == nil {
			props = entry.Properties{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistent = props
	for k := range props {
		delete(r.transient, k)
	}
	return nil
}

// SetAll replaces the chosen map with props.
func (r *Registry) SetAll(ctx context.Context, props entry.Properties, persistent bool) error {
	return r.mutate(ctx, func(t, p entry.Properties) (entry.Properties, entry.Properties) {
		if persistent {
			p = entry.Properties{}
		} else {
			t = entry.Properties{}
		}
		return merge(t, p, props, persistent)
	})
}

// Extend shallow-merges props into the chosen map, removing each key from
// the other map first.
func (r *Registry) Extend(ctx context.Context, props entry.Properties, persistent bool) error {
	return r.mutate(ctx, func(t, p entry.Properties) (entry.Properties, entry.Properties) {
		return merge(t, p, props, persistent)
	})
}

// Unset removes key from both maps.
func (r *Registry) Unset(ctx context.Context, key string) error {
	return r.mutate(ctx, func(t, p entry.Properties) (entry.Properties, entry.Properties) {
		delete(t, key)
		delete(p, key)
		return t, p
	})
}

// ClearAll empties both maps.
func (r *Registry) ClearAll(ctx context.Context) error {
	return r.mutate(ctx, func(entry.Properties, entry.Properties) (entry.Properties, entry.Properties) {
		return entry.Properties{}, entry.Properties{}
	})
}

// Effective returns persistent merged with transient, transient winning.
// The result is a fresh map on every call.
func (r *Registry) Effective() entry.Properties {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.persistent.Clone()
	for k, v := range r.transient {
		out[k] = v
	}
	return out
}

// Transient returns a copy of the transient map.
func (r *Registry) Transient() entry.Properties {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transient.Clone()
}

// Persistent returns a copy of the persistent map.
func (r *Registry) Persistent() entry.Properties {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistent.Clone()
}

// mutate applies fn to copies of both maps. If the persistent map changed it
// is written through the adapter before the new state is installed, so a
// failed write leaves the registry as it was.
func (r *Registry) mutate(ctx context.Context, fn func(t, p entry.Properties) (entry.Properties, entry.Properties)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, p := fn(r.transient.Clone(), r.persistent.Clone())
	if !sameKeysAndValues(p, r.persistent) {
		if err := r.save(ctx, p); err != nil {
			return err
		}
	}
	r.transient, r.persistent = t, p
	return nil
}

func (r *Registry) save(ctx context.Context, p entry.Properties) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("superprops: encode: %w", err)
	}
	if err := r.adapter.SetItem(ctx, r.key, string(b)); err != nil {
		return fmt.Errorf("superprops: save: %w", err)
	}
	return nil
}

func merge(t, p, props entry.Properties, persistent bool) (entry.Properties, entry.Properties) {
	dst, other := t, p
	if persistent {
		dst, other = p, t
	}
	for k, v := range props {
		delete(other, k)
		dst[k] = v
	}
	return t, p
}

// sameKeysAndValues compares two maps by their JSON encodings, which is the
// form that gets persisted.
func sameKeysAndValues(a, b entry.Properties) bool {
	if len(a) != len(b) {
		return false
	}
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}
