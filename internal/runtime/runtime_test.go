package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	cfgpkg "github.com/primlo/nibbana/internal/config"
	"github.com/primlo/nibbana/pkg/entry"
	"github.com/primlo/nibbana/pkg/nibbana"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	quiet := false
	cfg.OutputToConsole = &quiet
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(context.Background(), Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capacity = -1
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestEntriesPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	rt, err := Open(ctx, Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.Client().Log(ctx, "durable"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := rt.Client().SetSuperProperties(ctx, entry.Properties{"plan": "pro"}, true); err != nil {
		t.Fatalf("props: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []entry.Entry
	rt, err = Open(ctx, Options{Config: cfg, UploadEntries: func(_ context.Context, es []entry.Entry) error {
		got = es
		return nil
	}})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	props, _ := rt.Client().SuperProperties()
	if props["plan"] != "pro" {
		t.Fatalf("persistent props lost: %v", props)
	}
	res, err := rt.Client().UploadNow(ctx)
	if err != nil || res.Uploaded != 1 {
		t.Fatalf("upload: res=%+v err=%v", res, err)
	}
	if got[0].Context["os"] == nil {
		t.Fatalf("host context not attached: %v", got[0].Context)
	}
}

func TestUploadWithoutEndpointKeepsEntries(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	_ = rt.Client().Log(ctx, "offline")
	_, err = rt.Client().UploadNow(ctx)
	if !errors.Is(err, ErrNoEndpoint) || !errors.Is(err, nibbana.ErrUpload) {
		t.Fatalf("expected no-endpoint upload error, got %v", err)
	}
	pending, _ := rt.Client().PendingEntries(ctx, "")
	if len(pending) != 1 {
		t.Fatalf("entry lost: %d", len(pending))
	}
}

func TestStoreMetricsObserved(t *testing.T) {
	ctx := context.Background()
	var calls int32
	rt, err := Open(ctx, Options{Config: testConfig(t), UploadEntries: func(context.Context, []entry.Entry) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	_ = rt.Client().Log(ctx, "a")
	mfs, err := rt.Metrics().Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "nibbana_storage_bytes_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("storage metrics missing")
	}
}
