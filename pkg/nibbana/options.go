package nibbana

import (
	"os"
	"time"

	"github.com/primlo/nibbana/internal/filter"
	"github.com/primlo/nibbana/internal/metrics"
	"github.com/primlo/nibbana/internal/storage"
	"github.com/primlo/nibbana/internal/upload"
	"github.com/primlo/nibbana/pkg/entry"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// Storage is the key-value capability the client persists through. Values
// are JSON strings; a missing key reports ok=false.
type Storage = storage.Adapter

// UploadFunc delivers a batch to the collector. It must bound its own running
// time: while it runs no other upload can start.
type UploadFunc = upload.Func

// UploadResult describes a completed upload.
type UploadResult = upload.Result

// Metrics collects Prometheus metrics for one client.
type Metrics = metrics.Metrics

// NewMemoryStorage returns a process-local Storage.
func NewMemoryStorage() Storage { return storage.NewMemory() }

// NewMetrics returns a Metrics with its own registry. Configure rejects a
// Metrics already attached to another client.
func NewMetrics() *Metrics { return metrics.New() }

// Options configures a Client. Exactly one of two modes must be chosen:
//
//   - managed: set Endpoint and SecretToken, optionally AdditionalHeaders and
//     HTTPTimeout; batches are POSTed as JSON to Endpoint.
//   - custom: set UploadEntries; the function owns its transport.
type Options struct {
	Endpoint          string
	SecretToken       string
	AdditionalHeaders func() map[string]string
	// HTTPTimeout bounds each managed request attempt. Default 15s.
	HTTPTimeout time.Duration

	UploadEntries UploadFunc

	// Capacity bounds the number of buffered entries; the oldest are evicted
	// first. Zero means unbounded.
	Capacity int
	Storage  Storage

	// OutputToConsole echoes each entry through Logger. When nil it defaults
	// to true unless NIBBANA_ENV is "production".
	OutputToConsole *bool
	Logger          logpkg.Logger
	Metrics         *Metrics

	// UploadContext is attached to every entry of an outgoing batch. It is
	// never persisted.
	UploadContext func() entry.Properties

	// CaptureFilter is a CEL expression; entries it rejects are echoed but
	// not buffered. See internal/filter for the available variables.
	CaptureFilter string
}

// validate checks the mode rules first, then the shared settings.
func (o *Options) validate() (filter.Filter, error) {
	if o.UploadEntries != nil {
		switch {
		case o.AdditionalHeaders != nil:
			return filter.Filter{}, invalid("AdditionalHeaders cannot be combined with a custom upload function")
		case o.Endpoint != "":
			return filter.Filter{}, invalid("Endpoint cannot be combined with a custom upload function")
		case o.SecretToken != "":
			return filter.Filter{}, invalid("SecretToken cannot be combined with a custom upload function")
		}
	} else {
		if o.Endpoint == "" {
			return filter.Filter{}, invalid("must provide an endpoint or a custom upload function")
		}
		if o.SecretToken == "" {
			return filter.Filter{}, invalid("SecretToken is required with an endpoint")
		}
	}
	if o.Capacity < 0 {
		return filter.Filter{}, invalid("Capacity must not be negative")
	}
	if o.Storage == nil {
		return filter.Filter{}, invalid("Storage is required")
	}
	f, err := filter.Compile(o.CaptureFilter)
	if err != nil {
		return filter.Filter{}, invalid("CaptureFilter: " + err.Error())
	}
	return f, nil
}

func (o *Options) outputToConsole() bool {
	if o.OutputToConsole != nil {
		return *o.OutputToConsole
	}
	return os.Getenv("NIBBANA_ENV") != "production"
}
