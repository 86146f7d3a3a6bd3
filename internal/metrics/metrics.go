// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"example.com/fairticket/internal/domain"
)

var (
	EngineOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairticket_engine_operations_total",
			Help: "Ticket engine operations by operation and result code",
		},
		[]string{"operation", "result"},
	)

	ReentrancyRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fairticket_reentrancy_rejections_total",
			Help: "Nested engine calls rejected by the reentrancy latch",
		},
	)

	ValueMovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairticket_value_moved_total",
			Help: "Native value moved by engines, by flow",
		},
		[]string{"flow"},
	)

	RegistryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairticket_registry_operations_total",
			Help: "Registry operations by operation and result code",
		},
		[]string{"operation", "result"},
	)

	IngestBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairticket_ingest_batches_total",
			Help: "Activity batches flushed to storage, by result",
		},
		[]string{"result"},
	)

	IngestDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fairticket_ingest_dropped_total",
			Help: "Activity records dropped because the queue was full",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		EngineOperationsTotal,
		ReentrancyRejectionsTotal,
		ValueMovedTotal,
		RegistryOperationsTotal,
		IngestBatchesTotal,
		IngestDroppedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

func ObserveEngine(op string, err error) {
	EngineOperationsTotal.WithLabelValues(op, domain.ErrorCode(err)).Inc()
	if errors.Is(err, domain.ErrReentrantCall) {
		ReentrancyRejectionsTotal.Inc()
	}
}

func ObserveRegistry(op string, err error) {
	RegistryOperationsTotal.WithLabelValues(op, domain.ErrorCode(err)).Inc()
}

// ObserveValue adds amount to the flow counter. Precision beyond float64 is
// irrelevant for monitoring.
func ObserveValue(flow string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	if f > 0 {
		ValueMovedTotal.WithLabelValues(flow).Add(f)
	}
}
