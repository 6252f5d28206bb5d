package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// SettlementMetrics tracks the value flow the settlement engine is
// responsible for: escrow deposits, milestone releases, refunds, reviews and
// staking movements.
type SettlementMetrics struct {
	escrowOps   *prometheus.CounterVec
	reviews     prometheus.Counter
	stakingOps  *prometheus.CounterVec
	totalStaked prometheus.Gauge
	inCustody   prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buildledger",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buildledger",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "buildledger",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// Settlement returns the singleton registry for settlement engine activity.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			escrowOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buildledger",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Count of escrow state transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			reviews: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "buildledger",
				Subsystem: "feedback",
				Name:      "reviews_total",
				Help:      "Count of accepted reputation reviews.",
			}),
			stakingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buildledger",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Count of staking pool operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "buildledger",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Aggregate staked principal held by the pool vault.",
			}),
			inCustody: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "buildledger",
				Subsystem: "escrow",
				Name:      "value_in_custody",
				Help:      "Escrowed value currently held by the custody vault.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.escrowOps,
			settlementRegistry.reviews,
			settlementRegistry.stakingOps,
			settlementRegistry.totalStaked,
			settlementRegistry.inCustody,
		)
	})
	return settlementRegistry
}

// RecordEscrowOp counts one escrow transition attempt.
func (m *SettlementMetrics) RecordEscrowOp(operation string, err error) {
	if m == nil {
		return
	}
	m.escrowOps.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// RecordReview counts one accepted review.
func (m *SettlementMetrics) RecordReview() {
	if m == nil {
		return
	}
	m.reviews.Inc()
}

// RecordStakingOp counts one staking pool operation attempt.
func (m *SettlementMetrics) RecordStakingOp(operation string, err error) {
	if m == nil {
		return
	}
	m.stakingOps.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// SetTotalStaked updates the staked principal gauge.
func (m *SettlementMetrics) SetTotalStaked(total float64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(total)
}

// SetValueInCustody updates the custody vault gauge.
func (m *SettlementMetrics) SetValueInCustody(total float64) {
	if m == nil {
		return
	}
	m.inCustody.Set(total)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
