package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	pebblestore "github.com/primlo/nibbana/internal/storage/pebble"
	"github.com/primlo/nibbana/internal/upload"
)

var (
	_ upload.Observer         = (*Metrics)(nil)
	_ pebblestore.MetricsHook = (*Metrics)(nil)
)

func TestEntryCounters(t *testing.T) {
	m := New()
	m.EntryAppended(0)
	m.EntryAppended(2)
	m.EntryFiltered()
	if got := testutil.ToFloat64(m.appended); got != 2 {
		t.Fatalf("appended=%v", got)
	}
	if got := testutil.ToFloat64(m.evicted); got != 2 {
		t.Fatalf("evicted=%v", got)
	}
	if got := testutil.ToFloat64(m.filtered); got != 1 {
		t.Fatalf("filtered=%v", got)
	}
}

func TestObserveUpload(t *testing.T) {
	m := New()
	m.ObserveUpload(10*time.Millisecond, 3, nil)
	m.ObserveUpload(10*time.Millisecond, 5, errors.New("down"))
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("success")); got != 1 {
		t.Fatalf("success=%v", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failure=%v", got)
	}
	if got := testutil.ToFloat64(m.uploadedTotal); got != 3 {
		t.Fatalf("failed batches must not count as uploaded: %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	if err := m.RegisterPending(func() float64 { return 7 }); err != nil {
		t.Fatalf("register pending: %v", err)
	}
	m.ObserveWrite(time.Millisecond, 128)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"nibbana_entries_pending 7",
		`nibbana_storage_bytes_total{op="write"} 128`,
		`nibbana_upload_batches_total{result="success"} 0`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.EntryAppended(0)
	if got := testutil.ToFloat64(b.appended); got != 0 {
		t.Fatalf("metrics leaked between instances: %v", got)
	}
}

func TestRegisterPendingTwiceReportsInUse(t *testing.T) {
	m := New()
	if err := m.RegisterPending(func() float64 { return 1 }); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := m.RegisterPending(func() float64 { return 2 }); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}
