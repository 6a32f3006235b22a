package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TechnicalMetrics aggregates all technical-level metrics for the turn/timer sync service.
//
// Technical metrics track system internals that sit below business outcomes
// but above raw infrastructure:
//   - HTTP requests (via the existing HTTPMetrics)
//   - Delivery Plane WebSocket connections (accepted, dropped, active)
//   - Postgres circuit breaker state, used by the audit repository's health checker
//
// Example:
//
//	tm := NewTechnicalMetrics("turnsync")
//	tm.Delivery.ConnectionsActive.Inc()
//	tm.CircuitBreaker.State.Set(0) // closed
type TechnicalMetrics struct {
	namespace string

	// HTTP subsystem - existing metrics from prometheus.go
	HTTP *HTTPMetrics

	// Delivery subsystem - WebSocket connection lifecycle for the delivery plane
	Delivery *DeliveryMetrics

	// CircuitBreaker subsystem - state of the Postgres audit repository's circuit breaker
	CircuitBreaker *CircuitBreakerMetrics
}

// NewTechnicalMetrics creates a new TechnicalMetrics aggregator.
func NewTechnicalMetrics(namespace string) *TechnicalMetrics {
	return &TechnicalMetrics{
		namespace:      namespace,
		HTTP:           NewHTTPMetricsWithNamespace(namespace, "http"),
		Delivery:       NewDeliveryMetrics(namespace),
		CircuitBreaker: NewCircuitBreakerMetrics(namespace),
	}
}

// DeliveryMetrics tracks WebSocket connection churn on the delivery plane.
type DeliveryMetrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsDropped  *prometheus.CounterVec
	ConnectionsActive   prometheus.Gauge
}

// NewDeliveryMetrics creates delivery-plane connection metrics.
func NewDeliveryMetrics(namespace string) *DeliveryMetrics {
	return &DeliveryMetrics{
		ConnectionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_delivery",
			Name:      "connections_accepted_total",
			Help:      "Total number of WebSocket connections accepted by the delivery plane",
		}),
		ConnectionsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "technical_delivery",
				Name:      "connections_dropped_total",
				Help:      "Total number of WebSocket connections dropped, by reason",
			},
			[]string{"reason"}, // reason: client_closed|write_error|shutdown
		),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "technical_delivery",
			Name:      "connections_active",
			Help:      "Number of WebSocket connections currently attached to the delivery plane",
		}),
	}
}

// CircuitBreakerMetrics exposes the state of a resilience circuit breaker.
//
// State values follow postgres.CircuitBreakerState: 0=closed, 1=open, 2=half-open.
type CircuitBreakerMetrics struct {
	State         prometheus.Gauge
	FailuresTotal prometheus.Counter
	TripsTotal    prometheus.Counter
}

// NewCircuitBreakerMetrics creates circuit breaker state metrics.
func NewCircuitBreakerMetrics(namespace string) *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{
		State: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "technical_circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		}),
		FailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_circuit_breaker",
			Name:      "failures_total",
			Help:      "Total number of failures recorded by the circuit breaker",
		}),
		TripsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "technical_circuit_breaker",
			Name:      "trips_total",
			Help:      "Total number of times the circuit breaker tripped open",
		}),
	}
}
