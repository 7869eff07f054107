package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	cfgpkg "github.com/primlo/nibbana/internal/config"
	"github.com/primlo/nibbana/internal/metrics"
	pebblestore "github.com/primlo/nibbana/internal/storage/pebble"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
	"github.com/primlo/nibbana/pkg/nibbana"
)

// ErrNoEndpoint is returned by uploads when the configuration names no
// collector endpoint.
var ErrNoEndpoint = errors.New("no collector endpoint configured")

// Options for building the Runtime.
type Options struct {
	Config        cfgpkg.Config
	FsyncInterval time.Duration
	Logger        logpkg.Logger
	// UploadEntries replaces the managed HTTP uploader.
	UploadEntries nibbana.UploadFunc
}

// Runtime wires the Pebble store, metrics and a configured client for one
// data directory.
type Runtime struct {
	db      *pebblestore.DB
	client  *nibbana.Client
	metrics *metrics.Metrics
	config  cfgpkg.Config
	logger  logpkg.Logger
}

// Open opens the store under Config.DataDir and configures a client on it.
// Without an endpoint the buffer is still usable; uploads fail with
// ErrNoEndpoint.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	m := metrics.New()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(cfg.DataDir, "store"),
		Fsync:         pebblestore.ParseFsyncMode(cfg.Fsync),
		FsyncInterval: opts.FsyncInterval,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	nopts := nibbana.Options{
		Capacity:        cfg.Capacity,
		Storage:         db,
		OutputToConsole: cfg.OutputToConsole,
		Logger:          logger,
		Metrics:         m,
		CaptureFilter:   cfg.CaptureFilter,
		UploadContext:   hostContext,
	}
	switch {
	case opts.UploadEntries != nil:
		nopts.UploadEntries = opts.UploadEntries
	case cfg.Endpoint != "":
		nopts.Endpoint = cfg.Endpoint
		nopts.SecretToken = cfg.SecretToken
		nopts.HTTPTimeout = cfg.HTTPTimeout.Std()
		if len(cfg.Headers) > 0 {
			headers := cfg.Headers
			nopts.AdditionalHeaders = func() map[string]string { return headers }
		}
	default:
		nopts.UploadEntries = func(context.Context, []entry.Entry) error { return ErrNoEndpoint }
	}

	client := nibbana.New()
	if err := client.Configure(ctx, nopts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Runtime{db: db, client: client, metrics: m, config: cfg, logger: logger}, nil
}

// Close stops the client and closes the store.
func (r *Runtime) Close() error {
	if r.client != nil {
		_ = r.client.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth verifies the store answers reads.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	_, _, err := r.db.GetItem(ctx, "com.primlo.nibbana.health")
	return err
}

// Client returns the configured client.
func (r *Runtime) Client() *nibbana.Client { return r.client }

// Metrics returns the collectors shared by the store and the client.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the effective configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
