package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the process counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	otpVerifications   *prometheus.CounterVec
	otpIssued          prometheus.Counter
	emergencyGrants    *prometheus.CounterVec
	auditWriteFailures prometheus.Counter
	decryptFailures    prometheus.Counter
	rateLimited        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by result.",
		}, []string{"result"}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "otp_issued_total",
			Help:      "OTP challenges issued.",
		}),
		emergencyGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "emergency_grants_total",
			Help:      "Emergency access requests by result.",
		}, []string{"result"}),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "decryption_failures_total",
			Help:      "Stored secrets that failed authentication on decrypt.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifelockr",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"limiter"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.otpVerifications,
			m.otpIssued,
			m.emergencyGrants,
			m.auditWriteFailures,
			m.decryptFailures,
			m.rateLimited,
		)
	}
	return m
}

func (m *Metrics) OTPIssued() {
	if m != nil {
		m.otpIssued.Inc()
	}
}

func (m *Metrics) OTPVerification(result string) {
	if m != nil {
		m.otpVerifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) EmergencyGrant(result string) {
	if m != nil {
		m.emergencyGrants.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AuditWriteFailure() {
	if m != nil {
		m.auditWriteFailures.Inc()
	}
}

func (m *Metrics) DecryptionFailure() {
	if m != nil {
		m.decryptFailures.Inc()
	}
}

func (m *Metrics) RateLimited(limiter string) {
	if m != nil {
		m.rateLimited.WithLabelValues(limiter).Inc()
	}
}
