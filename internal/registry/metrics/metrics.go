package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for registry operations.
type Metrics struct {
	CredentialsIssued     *prometheus.CounterVec
	CredentialsRevoked    *prometheus.CounterVec
	Attestations          *prometheus.CounterVec
	Verifications         *prometheus.CounterVec
	AccreditationsGranted prometheus.Counter
	AccreditationsRevoked prometheus.Counter
	Endorsements          *prometheus.CounterVec
	Rejections            *prometheus.CounterVec
	VerifyLatency         prometheus.Histogram
	BatchSize             prometheus.Histogram
}

// New registers the registry collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_credentials_issued_total",
			Help: "Total number of credentials issued, labeled by class",
		}, []string{"class"}),
		CredentialsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_credentials_revoked_total",
			Help: "Total number of credentials revoked, labeled by class",
		}, []string{"class"}),
		Attestations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_attestations_total",
			Help: "Total number of recorded votes, labeled by track and outcome",
		}, []string{"track", "outcome"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_verifications_total",
			Help: "Total number of credential verifications, labeled by result",
		}, []string{"result"}),
		AccreditationsGranted: f.NewCounter(prometheus.CounterOpts{
			Name: "credreg_accreditations_granted_total",
			Help: "Total number of accreditation grants",
		}),
		AccreditationsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "credreg_accreditations_revoked_total",
			Help: "Total number of accreditation revocations",
		}),
		Endorsements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_accreditation_endorsements_total",
			Help: "Total number of accreditation endorsements, labeled by track",
		}, []string{"track"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credreg_rejections_total",
			Help: "Operations refused by a registry rule, labeled by operation and code",
		}, []string{"operation", "code"}),
		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_verify_latency_seconds",
			Help:    "Latency of verify_credential evaluations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_batch_verify_size",
			Help:    "Number of ids per batch verification",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

func (m *Metrics) IncIssued(class string) {
	m.CredentialsIssued.WithLabelValues(class).Inc()
}

func (m *Metrics) IncRevoked(class string) {
	m.CredentialsRevoked.WithLabelValues(class).Inc()
}

func (m *Metrics) IncAttestation(track string, approved bool) {
	outcome := "approved"
	if !approved {
		outcome = "rejected"
	}
	m.Attestations.WithLabelValues(track, outcome).Inc()
}

func (m *Metrics) IncVerification(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRejection(operation, code string) {
	m.Rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveVerifyLatency(seconds float64) {
	m.VerifyLatency.Observe(seconds)
}
