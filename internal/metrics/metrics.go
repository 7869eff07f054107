package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nibbana"

// Metrics holds the client's collectors on a private registry, so several
// clients in one process never collide on registration.
type Metrics struct {
	reg *prometheus.Registry

	appended       prometheus.Counter
	evicted        prometheus.Counter
	filtered       prometheus.Counter
	uploads        *prometheus.CounterVec
	uploadedTotal  prometheus.Counter
	uploadDuration prometheus.Histogram

	storageRead  prometheus.Histogram
	storageWrite prometheus.Histogram
	storageBytes *prometheus.CounterVec
	batchCommits prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entries",
			Name:      "appended_total",
			Help:      "Entries appended to the buffer.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entries",
			Name:      "evicted_total",
			Help:      "Oldest entries dropped to stay within capacity.",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entries",
			Name:      "filtered_total",
			Help:      "Entries not captured because the capture filter rejected them.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "batches_total",
			Help:      "Upload attempts by result.",
		}, []string{"result"}),
		uploadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "entries_total",
			Help:      "Entries accepted by the collector.",
		}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Time spent in the upload function.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		storageRead: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "read_duration_seconds",
			Help:      "Latency of storage reads.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		storageWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_duration_seconds",
			Help:      "Latency of storage writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		storageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes read from or written to storage.",
		}, []string{"op"}),
		batchCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_commits_total",
			Help:      "Committed storage batches.",
		}),
	}
	m.reg.MustRegister(
		m.appended, m.evicted, m.filtered,
		m.uploads, m.uploadedTotal, m.uploadDuration,
		m.storageRead, m.storageWrite, m.storageBytes, m.batchCommits,
	)
	m.uploads.WithLabelValues("success").Add(0)
	m.uploads.WithLabelValues("failure").Add(0)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ErrInUse is returned by RegisterPending when a pending gauge is already
// registered, meaning the Metrics already serves another client.
var ErrInUse = errors.New("metrics: already attached to a client")

// RegisterPending exposes the number of buffered entries as a gauge computed
// at scrape time. A second call returns ErrInUse.
func (m *Metrics) RegisterPending(f func() float64) error {
	err := m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "entries",
		Name:      "pending",
		Help:      "Entries currently buffered.",
	}, f))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return ErrInUse
	}
	return err
}

// EntryAppended records one append and the evictions it caused.
func (m *Metrics) EntryAppended(evicted int) {
	m.appended.Inc()
	if evicted > 0 {
		m.evicted.Add(float64(evicted))
	}
}

// EntryFiltered records an entry rejected by the capture filter.
func (m *Metrics) EntryFiltered() { m.filtered.Inc() }

// ObserveUpload implements upload.Observer.
func (m *Metrics) ObserveUpload(elapsed time.Duration, entries int, err error) {
	m.uploadDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.uploads.WithLabelValues("failure").Inc()
		return
	}
	m.uploads.WithLabelValues("success").Inc()
	m.uploadedTotal.Add(float64(entries))
}

// ObserveRead implements pebblestore.MetricsHook.
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageRead.Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

// ObserveWrite implements pebblestore.MetricsHook.
func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storageWrite.Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

// ObserveBatchCommit implements pebblestore.MetricsHook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.batchCommits.Inc()
	m.ObserveWrite(elapsed, bytes)
}
