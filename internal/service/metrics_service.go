package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartattend/integrity-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the integrity
// core: HTTP and store timings plus the domain counters reviewers watch
// (drift evaluations, ledger appends, checksum mismatches).
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	driftEvaluations   *prometheus.CounterVec
	driftWriteFailures prometheus.Counter
	ledgerAppends      *prometheus.CounterVec
	checksumMismatches prometheus.Counter
	transitions        *prometheus.CounterVec
	flagsRaised        *prometheus.CounterVec
	flagsResolved      prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	driftEvaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_evaluations_total",
		Help: "Clock drift evaluations by severity and decision",
	}, []string{"severity", "decision"})

	driftWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_event_write_failures_total",
		Help: "Drift events that could not be persisted asynchronously",
	})

	ledgerAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Ledger entries appended by action type",
	}, []string{"action_type"})

	checksumMismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_checksum_mismatches_total",
		Help: "Ledger entries whose recomputed checksum differed from the stored value",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_transitions_total",
		Help: "Successful attendance state transitions by edge",
	}, []string{"from", "to"})

	flagsRaised := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrity_flags_raised_total",
		Help: "Integrity flags raised by type",
	}, []string{"flag_type"})

	flagsResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "integrity_flags_resolved_total",
		Help: "Integrity flags resolved",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		cacheHits, cacheMisses, dbQueryDuration, driftEvaluations, driftWriteFailures,
		ledgerAppends, checksumMismatches, transitions, flagsRaised, flagsResolved, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		dbQueryDuration:    dbQueryDuration,
		driftEvaluations:   driftEvaluations,
		driftWriteFailures: driftWriteFailures,
		ledgerAppends:      ledgerAppends,
		checksumMismatches: checksumMismatches,
		transitions:        transitions,
		flagsRaised:        flagsRaised,
		flagsResolved:      flagsResolved,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordDriftEvaluation counts one drift evaluation outcome.
func (m *MetricsService) RecordDriftEvaluation(severity models.DriftSeverity, decision models.DriftDecision) {
	if m == nil {
		return
	}
	m.driftEvaluations.WithLabelValues(string(severity), string(decision)).Inc()
}

// RecordDriftWriteFailure counts a drift event that could not be persisted.
func (m *MetricsService) RecordDriftWriteFailure() {
	if m == nil {
		return
	}
	m.driftWriteFailures.Inc()
}

// RecordLedgerAppend counts one appended ledger entry.
func (m *MetricsService) RecordLedgerAppend(actionType models.LedgerActionType) {
	if m == nil {
		return
	}
	m.ledgerAppends.WithLabelValues(string(actionType)).Inc()
}

// RecordChecksumMismatch counts one tampering finding.
func (m *MetricsService) RecordChecksumMismatch() {
	if m == nil {
		return
	}
	m.checksumMismatches.Inc()
}

// RecordTransition counts one successful state transition.
func (m *MetricsService) RecordTransition(from, to models.AttendanceStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordFlagRaised counts one newly created integrity flag.
func (m *MetricsService) RecordFlagRaised(flagType models.FlagType) {
	if m == nil {
		return
	}
	m.flagsRaised.WithLabelValues(string(flagType)).Inc()
}

// RecordFlagResolved counts one resolved integrity flag.
func (m *MetricsService) RecordFlagResolved() {
	if m == nil {
		return
	}
	m.flagsResolved.Inc()
}
