package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "inventory_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultIgnored = "ignored"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	registerOnce sync.Once

	engineOperations *prometheus.CounterVec
	engineLatency    *prometheus.HistogramVec
	engineConflicts  *prometheus.CounterVec

	listingCache *prometheus.CounterVec

	relayEvents *prometheus.CounterVec

	reconcileRepairs *prometheus.CounterVec
)

// Init регистрирует метрики в реестре по умолчанию. Повторный вызов ничего не делает.
func Init() {
	registerOnce.Do(func() {
		engineOperations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "engine_operations_total",
				Help: "Assignment engine operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		engineLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "engine_operation_latency_seconds",
				Help:    "Assignment engine operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		engineConflicts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "engine_version_conflicts_total",
				Help: "Optimistic concurrency conflicts by operation",
			},
			[]string{"operation"},
		)
		listingCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "listing_cache_requests_total",
				Help: "Listing cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		)
		relayEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "relay_events_total",
				Help: "External change events by type and result",
			},
			[]string{"type", "result"},
		)
		reconcileRepairs = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_devices_total",
				Help: "Devices processed by the ledger reconciliation pass by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			engineOperations,
			engineLatency,
			engineConflicts,
			listingCache,
			relayEvents,
			reconcileRepairs,
		)
	})
}

// Handler возвращает HTTP обработчик для /metrics
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveEngineOperation фиксирует результат и длительность операции движка назначений
func ObserveEngineOperation(operation, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if engineOperations != nil {
		engineOperations.WithLabelValues(operation, result).Inc()
	}
	if engineLatency != nil {
		engineLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// IncEngineConflict увеличивает счетчик конфликтов версий
func IncEngineConflict(operation string) {
	if engineConflicts != nil {
		engineConflicts.WithLabelValues(operation).Inc()
	}
}

// IncListingCache фиксирует обращение к кэшу списков
func IncListingCache(kind, result string) {
	if kind == "" {
		kind = "all"
	}
	if listingCache != nil {
		listingCache.WithLabelValues(kind, result).Inc()
	}
}

// IncRelayEvent фиксирует обработку события внешнего справочника
func IncRelayEvent(eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if relayEvents != nil {
		relayEvents.WithLabelValues(eventType, result).Inc()
	}
}

// IncReconcile фиксирует результат сверки журнала по устройству
func IncReconcile(outcome string) {
	if reconcileRepairs != nil {
		reconcileRepairs.WithLabelValues(outcome).Inc()
	}
}
