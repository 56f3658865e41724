package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "solarpull_"

// Window outcomes recorded by the assembler.
const (
	WindowData         = "data"
	WindowEmpty        = "empty"
	WindowAllNull      = "all_null"
	WindowParseFailure = "parse_failure"
)

// Collection outcomes.
const (
	CollectionSuccess = "success"
	CollectionNoData  = "no_data"
	CollectionError   = "error"
)

// Recorder holds the pipeline's prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	portalRequests *prometheus.CounterVec
	cacheHits      prometheus.Counter
	retries        prometheus.Counter
	windows        *prometheus.CounterVec
	collections    *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
}

// NewRecorder registers the collectors against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		portalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "portal_requests_total",
			Help: "Requests sent to the monitoring portal by kind",
		}, []string{"kind"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "portal_cache_hits_total",
			Help: "Exports served from the raw cache",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "portal_retries_total",
			Help: "Export fetches retried after a transient failure",
		}),
		windows: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "windows_total",
			Help: "Windows assembled by outcome",
		}, []string{"outcome"}),
		collections: f.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "collections_total",
			Help: "Site collections by outcome",
		}, []string{"outcome"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "fetch_duration_seconds",
			Help:    "Time spent acquiring one export including rate limiting",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (r *Recorder) PortalRequest(kind string) {
	if r == nil {
		return
	}
	r.portalRequests.WithLabelValues(kind).Inc()
}

func (r *Recorder) CacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Inc()
}

func (r *Recorder) Retry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

func (r *Recorder) Window(outcome string) {
	if r == nil {
		return
	}
	r.windows.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Collection(outcome string) {
	if r == nil {
		return
	}
	r.collections.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the time since start.
func (r *Recorder) ObserveFetch(start time.Time) {
	if r == nil {
		return
	}
	r.fetchDuration.Observe(time.Since(start).Seconds())
}
