// Package telemetry provides Prometheus metrics and optional tracing setup.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	UpstreamRequests  prometheus.Counter
	UpstreamFailures  prometheus.Counter
	UpstreamMalformed prometheus.Counter
	RefreshActions    *prometheus.CounterVec
	CommandsHandled   *prometheus.CounterVec

	// Gauges
	CallWindowGauge  prometheus.Gauge
	CacheEntriesVec  *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "src_upstream_requests_total", Help: "Number of speedrun.com API requests issued"})
		UpstreamFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "src_upstream_failures_total", Help: "Number of speedrun.com API requests that failed or returned a non-2xx status"})
		UpstreamMalformed = promauto.NewCounter(prometheus.CounterOpts{Name: "src_upstream_malformed_total", Help: "Number of speedrun.com responses that could not be parsed"})
		RefreshActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "src_refresh_actions_total", Help: "Refresh actions performed by the scheduler, by cache category"}, []string{"category"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "src_commands_handled_total", Help: "Chat commands handled, by command"}, []string{"command"})
		CallWindowGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "src_call_window_slots", Help: "Occupied slots in the rolling upstream call window"})
		CacheEntriesVec = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "src_cache_entries", Help: "In-memory cache entry counts, by table"}, []string{"table"})
	})
}

// CountUpstreamRequest increments the request counter when metrics are initialized.
func CountUpstreamRequest() {
	if UpstreamRequests != nil {
		UpstreamRequests.Inc()
	}
}

// CountUpstreamFailure increments the failure counter when metrics are initialized.
func CountUpstreamFailure() {
	if UpstreamFailures != nil {
		UpstreamFailures.Inc()
	}
}

// CountUpstreamMalformed increments the parse-failure counter when metrics are initialized.
func CountUpstreamMalformed() {
	if UpstreamMalformed != nil {
		UpstreamMalformed.Inc()
	}
}

// CountRefresh records one scheduler refresh for a cache category.
func CountRefresh(category string) {
	if RefreshActions != nil {
		RefreshActions.WithLabelValues(category).Inc()
	}
}

// CountCommand records one handled chat command.
func CountCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// SetCallWindow records the current rolling-window occupancy.
func SetCallWindow(n int) {
	if CallWindowGauge != nil {
		CallWindowGauge.Set(float64(n))
	}
}

// SetCacheEntries records the current size of an in-memory cache table.
func SetCacheEntries(table string, n int) {
	if CacheEntriesVec != nil {
		CacheEntriesVec.WithLabelValues(table).Set(float64(n))
	}
}
