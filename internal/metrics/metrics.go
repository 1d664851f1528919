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

	claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kdbusservice",
			Subsystem: "registration",
			Name:      "claims_total",
			Help:      "Name-claim attempts by outcome (registered, forwarding, failed).",
		}, []string{"outcome"},
	)
	registered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kdbusservice",
			Subsystem: "registration",
			Name:      "registered",
			Help:      "1 while this process owns its bus name.",
		}, []string{"name"},
	)
	forwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kdbusservice",
			Subsystem: "forwarding",
			Name:      "forwards_total",
			Help:      "Command-line forwards to the owning instance by result.",
		}, []string{"result"},
	)
	activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kdbusservice",
			Subsystem: "activation",
			Name:      "received_total",
			Help:      "Inbound activation calls by kind.",
		}, []string{"kind"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{claims, registered, forwards, activations}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncClaim(outcome string) {
	if regOK.Load() {
		claims.WithLabelValues(outcome).Inc()
	}
}

func IncForward(result string) {
	if regOK.Load() {
		forwards.WithLabelValues(result).Inc()
	}
}

func IncActivation(kind string) {
	if regOK.Load() {
		activations.WithLabelValues(kind).Inc()
	}
}

func SetRegistered(name string, owned bool) {
	if !regOK.Load() {
		return
	}
	var v float64
	if owned {
		v = 1
	}
	registered.WithLabelValues(name).Set(v)
}
