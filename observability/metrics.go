package observability

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Outcome is a coarse success/failure label applied to operation counters.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// latencyBuckets are the fixed histogram buckets spec.md §4.8 mandates,
// in seconds.
var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Registry owns every metric the service exposes. A Registry is normally
// constructed once per process via NewRegistry and passed to the key
// service.
type Registry struct {
	registry *prometheus.Registry

	EncryptOps *prometheus.CounterVec
	DecryptOps *prometheus.CounterVec
	SignOps    *prometheus.CounterVec
	VerifyOps  *prometheus.CounterVec
	KeyOps     *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Errors     *prometheus.CounterVec

	HSMConnected     prometheus.Gauge
	KMSConnected     prometheus.Gauge
	LoggingConnected prometheus.Gauge
	CacheConnected   prometheus.Gauge
}

// NewRegistry builds a fresh Registry with every metric named in spec.md §6
// registered against its own prometheus.Registry (never the global default,
// so multiple Registries can coexist in tests).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		registry: reg,
		EncryptOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_encrypt_operations_total",
			Help: "Total number of encrypt operations.",
		}, []string{"outcome"}),
		DecryptOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_decrypt_operations_total",
			Help: "Total number of decrypt operations.",
		}, []string{"outcome"}),
		SignOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_sign_operations_total",
			Help: "Total number of sign operations.",
		}, []string{"outcome"}),
		VerifyOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_verify_operations_total",
			Help: "Total number of verify operations.",
		}, []string{"outcome"}),
		KeyOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_key_operations_total",
			Help: "Total number of key lifecycle operations, labelled by operation.",
		}, []string{"operation", "outcome"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crypto_operation_latency_seconds",
			Help:    "Operation latency in seconds, labelled by operation.",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crypto_errors_total",
			Help: "Total number of errors, labelled by error code.",
		}, []string{"error_code"}),
		HSMConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crypto_hsm_connected",
			Help: "1 if the HSM collaborator is connected, else 0.",
		}),
		KMSConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crypto_kms_connected",
			Help: "1 if the KMS collaborator is connected, else 0.",
		}),
		LoggingConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crypto_logging_service_connected",
			Help: "1 if the logging collaborator is connected, else 0.",
		}),
		CacheConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crypto_cache_service_connected",
			Help: "1 if the cache collaborator is connected, else 0.",
		}),
	}
	return r
}

// RecordError increments the per-code error counter by one. Its only caller
// is KeyService, for the failures it detects itself; errors that
// EncryptionService, SignatureService or the file envelope functions raise
// from their own checks are not counted.
func (r *Registry) RecordError(code string) {
	r.Errors.WithLabelValues(code).Inc()
}

// ObserveLatency records the duration of operation in seconds.
func (r *Registry) ObserveLatency(operation string, seconds float64) {
	r.Latency.WithLabelValues(operation).Observe(seconds)
}

// WriteTo renders every registered metric in Prometheus text exposition
// format to w, mirroring the CLI's metrics subcommand rather than hosting an
// HTTP endpoint itself — the transport façade owns /metrics.
func (r *Registry) WriteTo(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
