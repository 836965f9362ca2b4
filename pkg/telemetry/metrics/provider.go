// Package metrics exposes Prometheus collectors for the rotation
// engine: request volume, error kinds, rotations, and per-provider
// availability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks provider traffic and rotation behavior.
//
// Metrics:
//   - rotor_provider_requests_total: requests per provider and model
//   - rotor_provider_errors_total: errors per provider and kind
//   - rotor_rotations_total: rotation cursor advances
//   - rotor_provider_available: availability gauge (1=usable, 0=not)
//   - rotor_request_duration_seconds: provider call latency
type ProviderMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	rotations prometheus.Counter
	available *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

// NewProviderMetrics creates and registers the collectors with the
// provided registry.
func NewProviderMetrics(registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rotor",
				Name:      "provider_requests_total",
				Help:      "Total requests sent to each provider",
			},
			[]string{"provider", "model"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rotor",
				Name:      "provider_errors_total",
				Help:      "Total provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
		rotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rotor",
				Name:      "rotations_total",
				Help:      "Total rotation cursor advances",
			},
		),
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rotor",
				Name:      "provider_available",
				Help:      "Provider availability (1=usable, 0=not)",
			},
			[]string{"provider"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rotor",
				Name:      "request_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		pm.requests,
		pm.errors,
		pm.rotations,
		pm.available,
		pm.duration,
	)
	return pm
}

// RecordRequest counts one provider call and its latency.
func (pm *ProviderMetrics) RecordRequest(provider, model string, elapsed time.Duration) {
	pm.requests.WithLabelValues(provider, model).Inc()
	pm.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordError counts one error by kind (auth, quota, transient,
// loading, retries_exhausted, provider, parse).
func (pm *ProviderMetrics) RecordError(provider, kind string) {
	pm.errors.WithLabelValues(provider, kind).Inc()
}

// RecordRotation counts one cursor advance.
func (pm *ProviderMetrics) RecordRotation() {
	pm.rotations.Inc()
}

// SetAvailable updates a provider's availability gauge.
func (pm *ProviderMetrics) SetAvailable(provider string, available bool) {
	value := 0.0
	if available {
		value = 1.0
	}
	pm.available.WithLabelValues(provider).Set(value)
}
