package superprops

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/pkg/entry"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	r := New(mem, "", nil)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return r, mem
}

func assertProps(t *testing.T, got, want entry.Properties) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEmptyByDefault(t *testing.T) {
	r, _ := newTestRegistry(t)
	assertProps(t, r.Effective(), entry.Properties{})
}

func TestSetThenExtendTransient(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	if err := r.SetAll(ctx, entry.Properties{"a": 1}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := r.Extend(ctx, entry.Properties{"b": 2}, false); err != nil {
		t.Fatalf("extend: %v", err)
	}
	assertProps(t, r.Effective(), entry.Properties{"a": 1, "b": 2})
}

func TestSetAllReplacesOnlyChosenMap(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Extend(ctx, entry.Properties{"keep": "p"}, true)
	_ = r.Extend(ctx, entry.Properties{"old": "t"}, false)
	if err := r.SetAll(ctx, entry.Properties{"new": "t"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	assertProps(t, r.Transient(), entry.Properties{"new": "t"})
	assertProps(t, r.Persistent(), entry.Properties{"keep": "p"})
}

func TestPromotingKeyRemovesItFromTransient(t *testing.T) {
	r, mem := newTestRegistry(t)
	ctx := context.Background()
	_ = r.SetAll(ctx, entry.Properties{"a": 1, "b": 2}, false)
	if err := r.Extend(ctx, entry.Properties{"a": 10}, true); err != nil {
		t.Fatalf("extend persistent: %v", err)
	}
	assertProps(t, r.Transient(), entry.Properties{"b": 2})
	assertProps(t, r.Persistent(), entry.Properties{"a": 10})

	raw, ok, _ := mem.GetItem(ctx, DefaultKey)
	if !ok || raw != `{"a":10}` {
		t.Fatalf("persisted %q ok=%v", raw, ok)
	}

	// demoting back removes it from the persistent map and rewrites storage
	if err := r.Extend(ctx, entry.Properties{"a": 5}, false); err != nil {
		t.Fatalf("extend transient: %v", err)
	}
	assertProps(t, r.Persistent(), entry.Properties{})
	raw, _, _ = mem.GetItem(ctx, DefaultKey)
	if raw != `{}` {
		t.Fatalf("persisted %q after demotion", raw)
	}
}

func TestTransientWinsInEffective(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Extend(ctx, entry.Properties{"p": "x"}, true)
	_ = r.Extend(ctx, entry.Properties{"t": "y"}, false)
	assertProps(t, r.Effective(), entry.Properties{"p": "x", "t": "y"})

	eff := r.Effective()
	eff["p"] = "mutated"
	if r.Effective()["p"] != "x" {
		t.Fatalf("Effective must return a copy")
	}
}

func TestUnsetAndClearAll(t *testing.T) {
	r, mem := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Extend(ctx, entry.Properties{"p": 1}, true)
	_ = r.Extend(ctx, entry.Properties{"t": 2}, false)
	if err := r.Unset(ctx, "p"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	assertProps(t, r.Effective(), entry.Properties{"t": 2})
	if err := r.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	assertProps(t, r.Effective(), entry.Properties{})
	raw, _, _ := mem.GetItem(ctx, DefaultKey)
	if raw != `{}` {
		t.Fatalf("persisted %q after clear", raw)
	}
}

func TestTransientChangesDoNotTouchStorage(t *testing.T) {
	r, mem := newTestRegistry(t)
	ctx := context.Background()
	_ = r.SetAll(ctx, entry.Properties{"a": 1}, false)
	_ = r.Extend(ctx, entry.Properties{"b": 1}, false)
	if _, sets := mem.Counts(); sets != 0 {
		t.Fatalf("transient changes wrote storage %d times", sets)
	}
}

func TestPersistentSurvivesReload(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	r := New(mem, "", nil)
	_ = r.Load(ctx)
	_ = r.Extend(ctx, entry.Properties{"plan": "pro"}, true)
	_ = r.Extend(ctx, entry.Properties{"screen": "home"}, false)

	r2 := New(mem, "", nil)
	if err := r2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	assertProps(t, r2.Effective(), entry.Properties{"plan": "pro"})
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	r, mem := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Extend(ctx, entry.Properties{"a": 1}, false)
	mem.FailNext(1)
	if err := r.Extend(ctx, entry.Properties{"a": 2}, true); !errors.Is(err, storage.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	assertProps(t, r.Transient(), entry.Properties{"a": 1})
	assertProps(t, r.Persistent(), entry.Properties{})
}

func TestCorruptPersistedValueLoadsEmpty(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	_ = mem.SetItem(ctx, DefaultKey, "[1,2")
	r := New(mem, "", nil)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	assertProps(t, r.Effective(), entry.Properties{})
}
