package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/primlo/nibbana/internal/config"
	"github.com/primlo/nibbana/internal/metrics"
	"github.com/primlo/nibbana/internal/runtime"
	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
	"github.com/primlo/nibbana/pkg/nibbana"
)

func newServer(t *testing.T, upload func(context.Context, []entry.Entry) error) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	quiet := false
	cfg.OutputToConsole = &quiet
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, UploadEntries: upload})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger), rt
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newServer(t, nil)
	if w := serve(s, http.MethodGet, "/v1/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestPostAndListEntries(t *testing.T) {
	s, _ := newServer(t, nil)
	if w := serve(s, http.MethodPost, "/v1/entries", `{"kind":"warn","data":["low battery"]}`); w.Code != http.StatusAccepted {
		t.Fatalf("post log: %d", w.Code)
	}
	if w := serve(s, http.MethodPost, "/v1/entries", `{"kind":"event","name":"opened","payload":{"screen":"home"},"durationMs":12}`); w.Code != http.StatusAccepted {
		t.Fatalf("post event: %d", w.Code)
	}

	w := serve(s, http.MethodGet, "/v1/entries?where="+`kind%20%3D%3D%20%22event%22`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Entries []entry.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Name != "opened" || body.Entries[0].Duration == nil {
		t.Fatalf("entries: %+v", body.Entries)
	}
}

func TestPostEntryRejectsUnknownKind(t *testing.T) {
	s, _ := newServer(t, nil)
	if w := serve(s, http.MethodPost, "/v1/entries", `{"kind":"identify"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
	if w := serve(s, http.MethodPost, "/v1/entries", `{"kind":"event"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("event without name: %d", w.Code)
	}
}

func TestFlushHandler(t *testing.T) {
	var sent int
	s, _ := newServer(t, func(_ context.Context, es []entry.Entry) error {
		sent += len(es)
		return nil
	})
	serve(s, http.MethodPost, "/v1/entries", `{"data":["a"]}`)
	w := serve(s, http.MethodPost, "/v1/flush", "")
	if w.Code != http.StatusOK || sent != 1 {
		t.Fatalf("flush: %d sent=%d", w.Code, sent)
	}
	if w := serve(s, http.MethodGet, "/v1/flush", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET flush: %d", w.Code)
	}
}

func TestFlushHandlerReportsUploadFailure(t *testing.T) {
	s, rt := newServer(t, func(context.Context, []entry.Entry) error { return errors.New("down") })
	_ = rt.Client().Log(context.Background(), "kept")
	if w := serve(s, http.MethodPost, "/v1/flush", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newServer(t, nil)
	w := serve(s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "nibbana_entries_pending") {
		t.Fatalf("metrics: %d", w.Code)
	}
}

// memBackend serves a client on in-memory storage so reads can be failed.
type memBackend struct {
	client  *nibbana.Client
	metrics *metrics.Metrics
}

func (b memBackend) Client() *nibbana.Client { return b.client }

func (b memBackend) Metrics() *metrics.Metrics { return b.metrics }

func (b memBackend) CheckHealth(context.Context) error { return nil }

func TestListEntriesStatusCodes(t *testing.T) {
	mem := storage.NewMemory()
	quiet := false
	c := nibbana.New()
	err := c.Configure(context.Background(), nibbana.Options{
		Storage:         mem,
		UploadEntries:   func(context.Context, []entry.Entry) error { return nil },
		OutputToConsole: &quiet,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	s := New(memBackend{client: c, metrics: metrics.New()}, nil)

	if w := serve(s, http.MethodGet, "/v1/entries?where=kind%20%3D%3D", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad where: %d", w.Code)
	}
	mem.FailNext(1)
	if w := serve(s, http.MethodGet, "/v1/entries", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("storage failure: %d", w.Code)
	}
	if w := serve(s, http.MethodGet, "/v1/entries", ""); w.Code != http.StatusOK {
		t.Fatalf("after recovery: %d", w.Code)
	}
}
