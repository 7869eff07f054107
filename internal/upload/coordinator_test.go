package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/primlo/nibbana/internal/entrystore"
	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/pkg/entry"
)

func newTestCoordinator(t *testing.T, fn Func) (*Coordinator, *entrystore.Store) {
	t.Helper()
	store := entrystore.New(storage.NewMemory())
	c, err := NewCoordinator(Options{Store: store, Upload: fn})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c, store
}

func appendIDs(t *testing.T, s *entrystore.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := s.Append(context.Background(), entry.Entry{ID: id, Kind: entry.KindLog}, 0); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
}

func storedIDs(t *testing.T, s *entrystore.Store) string {
	t.Helper()
	entries, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return fmt.Sprint(out)
}

func TestNewCoordinatorRequiresStoreAndFunc(t *testing.T) {
	if _, err := NewCoordinator(Options{Upload: func(context.Context, []entry.Entry) error { return nil }}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewCoordinator(Options{Store: entrystore.New(storage.NewMemory())}); err == nil {
		t.Fatalf("expected error without upload func")
	}
}

func TestTriggerEmptyIsNoOp(t *testing.T) {
	called := false
	c, _ := newTestCoordinator(t, func(context.Context, []entry.Entry) error {
		called = true
		return nil
	})
	res, err := c.Trigger(context.Background())
	if err != nil || !res.NoOp {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if called {
		t.Fatalf("upload function must not run for an empty buffer")
	}
}

func TestTriggerRemovesUploaded(t *testing.T) {
	var got []entry.Entry
	c, store := newTestCoordinator(t, func(_ context.Context, es []entry.Entry) error {
		got = es
		return nil
	})
	appendIDs(t, store, "a", "b")
	res, err := c.Trigger(context.Background())
	if err != nil || res.Uploaded != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("upload saw %v", got)
	}
	if ids := storedIDs(t, store); ids != "[]" {
		t.Fatalf("store should be empty, got %s", ids)
	}
}

func TestAppendDuringUploadSurvives(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error {
		close(started)
		<-release
		return nil
	})
	appendIDs(t, store, "a", "b", "c")

	done := make(chan error, 1)
	go func() {
		_, err := c.Trigger(context.Background())
		done <- err
	}()

	<-started
	appendIDs(t, store, "d")
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ids := storedIDs(t, store); ids != "[d]" {
		t.Fatalf("expected only d to remain, got %s", ids)
	}
}

func TestFailedUploadRetainsEntries(t *testing.T) {
	boom := errors.New("collector unavailable")
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error { return boom })
	appendIDs(t, store, "a")

	_, err := c.Trigger(context.Background())
	if !errors.Is(err, ErrUpload) || !errors.Is(err, boom) {
		t.Fatalf("expected upload error wrapping cause, got %v", err)
	}
	var uerr *Error
	if !errors.As(err, &uerr) || uerr.Count != 1 {
		t.Fatalf("expected *Error with count 1, got %#v", err)
	}
	if ids := storedIDs(t, store); ids != "[a]" {
		t.Fatalf("entry lost after failed upload: %s", ids)
	}
}

func TestPanickingUploadRetainsEntriesAndReleasesLock(t *testing.T) {
	var calls int32
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("bad uploader")
		}
		return nil
	})
	appendIDs(t, store, "a")
	if _, err := c.Trigger(context.Background()); !errors.Is(err, ErrUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if ids := storedIDs(t, store); ids != "[a]" {
		t.Fatalf("entry lost after panic: %s", ids)
	}
	res, err := c.Trigger(context.Background())
	if err != nil || res.Uploaded != 1 {
		t.Fatalf("second trigger: res=%+v err=%v", res, err)
	}
}

func TestConcurrentTriggersAreSerialized(t *testing.T) {
	const delay = 50 * time.Millisecond
	var inFlight, maxInFlight int32
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(delay)
		atomic.AddInt32(&inFlight, -1)
		return errors.New("keep entries so both triggers upload")
	})
	appendIDs(t, store, "a")

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Trigger(context.Background())
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("upload functions overlapped: max in flight %d", maxInFlight)
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Fatalf("expected serialized uploads to take >= %v, took %v", 2*delay, elapsed)
	}
}

func TestTriggerWaitingForLockHonorsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error {
		close(started)
		<-release
		return nil
	})
	appendIDs(t, store, "a")
	go func() { _, _ = c.Trigger(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Trigger(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestContextAttachedToBatchOnly(t *testing.T) {
	var got []entry.Entry
	store := entrystore.New(storage.NewMemory())
	c, err := NewCoordinator(Options{
		Store:   store,
		Upload:  func(_ context.Context, es []entry.Entry) error { got = es; return errors.New("retain") },
		Context: func() entry.Properties { return entry.Properties{"app": "demo", "os": "linux"} },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	appendIDs(t, store, "a")
	_, _ = c.Trigger(context.Background())
	if len(got) != 1 || got[0].Context["app"] != "demo" {
		t.Fatalf("context not attached: %+v", got)
	}
	stored, _ := store.ReadAll(context.Background())
	if len(stored) != 1 || stored[0].Context != nil {
		t.Fatalf("context leaked into storage: %+v", stored)
	}
}

type recordingObserver struct {
	entries int
	failed  bool
}

func (o *recordingObserver) ObserveUpload(_ time.Duration, entries int, err error) {
	o.entries += entries
	o.failed = err != nil
}

func TestObserverSeesOutcome(t *testing.T) {
	obs := &recordingObserver{}
	store := entrystore.New(storage.NewMemory())
	c, _ := NewCoordinator(Options{
		Store:    store,
		Upload:   func(context.Context, []entry.Entry) error { return nil },
		Observer: obs,
	})
	appendIDs(t, store, "a", "b")
	if _, err := c.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if obs.entries != 2 || obs.failed {
		t.Fatalf("observer saw %+v", obs)
	}
}

func TestTriggerQuietlySwallowsFailures(t *testing.T) {
	c, store := newTestCoordinator(t, func(context.Context, []entry.Entry) error { return errors.New("down") })
	appendIDs(t, store, "a")
	c.TriggerQuietly(context.Background())
	if ids := storedIDs(t, store); ids != "[a]" {
		t.Fatalf("got %s", ids)
	}
}

func TestUploadRewritingIDsStillRemovesBatch(t *testing.T) {
	c, store := newTestCoordinator(t, func(_ context.Context, es []entry.Entry) error {
		for i := range es {
			es[i].ID = "redacted"
		}
		return nil
	})
	appendIDs(t, store, "a", "b", "c")
	res, err := c.Trigger(context.Background())
	if err != nil || res.Uploaded != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if ids := storedIDs(t, store); ids != "[]" {
		t.Fatalf("uploaded entries should be removed, got %s", ids)
	}
}
