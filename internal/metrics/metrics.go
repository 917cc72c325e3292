package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stops.",
		}, []string{"name"},
	)
	startFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Number of failed service starts (spawn error, died during startup, or startup timeout).",
		}, []string{"name"},
	)
	healthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "health_check_failures_total",
			Help:      "Number of failed health checks observed by the monitor.",
		}, []string{"name"},
	)
	recoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "recoveries_total",
			Help:      "Number of stop+start recovery cycles triggered by the monitor.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between different service states.",
		}, []string{"name", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackd",
			Subsystem: "service",
			Name:      "current_state",
			Help:      "Current state of services (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceStops, startFailures, healthFailures, recoveries, stateTransitions, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers used by internal packages. They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}
func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}
func IncStartFailure(name string) {
	if regOK.Load() {
		startFailures.WithLabelValues(name).Inc()
	}
}
func IncHealthFailure(name string) {
	if regOK.Load() {
		healthFailures.WithLabelValues(name).Inc()
	}
}
func IncRecovery(name string) {
	if regOK.Load() {
		recoveries.WithLabelValues(name).Inc()
	}
}
func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
		currentState.WithLabelValues(name, from).Set(0)
		currentState.WithLabelValues(name, to).Set(1)
	}
}
