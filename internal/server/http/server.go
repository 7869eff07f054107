package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/primlo/nibbana/internal/metrics"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
	"github.com/primlo/nibbana/pkg/nibbana"
)

// Backend is what the server exposes. *runtime.Runtime implements it.
type Backend interface {
	Client() *nibbana.Client
	Metrics() *metrics.Metrics
	CheckHealth(ctx context.Context) error
}

// Server exposes a running client to local processes: metrics, health,
// buffered entries, entry ingestion and manual flushes.
type Server struct {
	rt     Backend
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

func New(rt Backend, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		logger: logger.WithComponent("http"),
		srv:    &http.Server{Handler: cors(mux), ReadHeaderTimeout: 5 * time.Second},
	}
	mux.Handle("/metrics", rt.Metrics().Handler())
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/entries", s.handleEntries)
	mux.HandleFunc("/v1/flush", s.handleFlush)
	return s
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entryReq is the body of POST /v1/entries.
type entryReq struct {
	Kind       entry.Kind `json:"kind"`
	Name       string     `json:"name"`
	Data       []any      `json:"data"`
	Payload    any        `json:"payload"`
	DurationMs float64    `json:"durationMs"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.rt.Client().PendingEntries(r.Context(), r.URL.Query().Get("where"))
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, nibbana.ErrInvalidFilter) {
				code = http.StatusBadRequest
			} else {
				s.logger.Error("reading entries failed", logpkg.Err(err))
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case http.MethodPost:
		var req entryReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := s.record(r.Context(), req); err != nil {
			if errors.Is(err, errBadKind) || errors.Is(err, errNoName) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			s.logger.Error("recording entry failed", logpkg.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

var (
	errBadKind = errors.New("kind must be one of log, warn, debug, error, event")
	errNoName  = errors.New("event requires a name")
)

func (s *Server) record(ctx context.Context, req entryReq) error {
	c := s.rt.Client()
	switch req.Kind {
	case entry.KindLog, "":
		return c.Log(ctx, req.Data...)
	case entry.KindWarn:
		return c.Warn(ctx, req.Data...)
	case entry.KindDebug:
		return c.Debug(ctx, req.Data...)
	case entry.KindError:
		return c.Error(ctx, req.Data...)
	case entry.KindEvent:
		if req.Name == "" {
			return errNoName
		}
		var opts []nibbana.EventOption
		if req.DurationMs > 0 {
			opts = append(opts, nibbana.WithDuration(time.Duration(req.DurationMs*float64(time.Millisecond))))
		}
		return c.Event(ctx, req.Name, req.Payload, opts...)
	default:
		return errBadKind
	}
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, err := s.rt.Client().UploadNow(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, nibbana.ErrUpload) {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": res.Uploaded, "noop": res.NoOp})
}
