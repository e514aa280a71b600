package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seller_live"

// Transition outcomes.
const (
	OutcomeConfirmed      = "confirmed"
	OutcomeRolledBack     = "rolled_back"
	OutcomeNotFound       = "not_found"
	OutcomeRollbackFailed = "rollback_failed"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	connectionState prometheus.Gauge
	reconnects      prometheus.Counter
	backoffDelay    prometheus.Histogram

	framesReceived  prometheus.Counter
	decodeErrors    prometheus.Counter
	ordersIngested  prometheus.Counter
	duplicateOrders prometheus.Counter
	ordersSeeded    prometheus.Counter

	transitions        *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	laneSize           *prometheus.GaugeVec

	notifyFailures *prometheus.CounterVec
}

// New creates metrics registered on registerer (the default registerer if nil).
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		connectionState: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Subscription socket state (0=idle, 1=connecting, 2=connected, 3=backoff, 4=stopped)",
		})),
		reconnects: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts",
		})),
		backoffDelay: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_backoff_seconds",
			Help:      "Backoff delay before each reconnect attempt",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 60},
		})),
		framesReceived: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames received on the subscription socket",
		})),
		decodeErrors: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of frames dropped because they could not be decoded",
		})),
		ordersIngested: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_ingested_total",
			Help:      "Total number of new orders added to the board from the stream",
		})),
		duplicateOrders: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_orders_total",
			Help:      "Total number of streamed orders ignored because they were already on the board",
		})),
		ordersSeeded: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_seeded_total",
			Help:      "Total number of orders placed on the board by seeding or reconciliation",
		})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lane transitions by destination lane and outcome",
		}, []string{"to", "outcome"})),
		transitionDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_remote_seconds",
			Help:      "Duration of remote status-update calls",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})),
		laneSize: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lane_orders",
			Help:      "Current number of orders per board lane",
		}, []string{"lane"})),
		notifyFailures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifications that a sink failed to deliver or dropped",
		}, []string{"sink"})),
	}
}

// register registers c, returning the already registered collector when an
// identical one exists.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", are.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return c
}

// SetConnectionState records the numeric socket state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// RecordReconnect records a scheduled reconnect and its delay.
func (m *Metrics) RecordReconnect(delay time.Duration) {
	if m == nil {
		return
	}
	m.reconnects.Inc()
	m.backoffDelay.Observe(delay.Seconds())
}

// RecordFrame records one received frame.
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// RecordDecodeError records a dropped frame.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// RecordIngested records an order added from the stream.
func (m *Metrics) RecordIngested() {
	if m == nil {
		return
	}
	m.ordersIngested.Inc()
}

// RecordDuplicate records an ignored duplicate order.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicateOrders.Inc()
}

// RecordSeeded records orders added by seeding or reconciliation.
func (m *Metrics) RecordSeeded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersSeeded.Add(float64(n))
}

// RecordTransition records the outcome of a lane transition.
func (m *Metrics) RecordTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}

// RecordRemoteCall records the duration of a status-update call.
func (m *Metrics) RecordRemoteCall(d time.Duration) {
	if m == nil {
		return
	}
	m.transitionDuration.Observe(d.Seconds())
}

// SetLaneSize records the current size of a lane.
func (m *Metrics) SetLaneSize(lane string, n int) {
	if m == nil {
		return
	}
	m.laneSize.WithLabelValues(lane).Set(float64(n))
}

// RecordNotifyFailure records a notification a sink could not deliver.
func (m *Metrics) RecordNotifyFailure(sink string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(sink).Inc()
}
