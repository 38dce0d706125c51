package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OTPVerification("ok")
	m.OTPVerification("invalid")
	m.OTPVerification("invalid")
	m.AuditWriteFailure()
	m.RateLimited("login")

	require.Equal(t, 1.0, testutil.ToFloat64(m.otpVerifications.WithLabelValues("ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.otpVerifications.WithLabelValues("invalid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.auditWriteFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("login")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Positive(t, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.OTPIssued()
	m.OTPVerification("ok")
	m.EmergencyGrant("issued")
	m.AuditWriteFailure()
	m.DecryptionFailure()
	m.RateLimited("x")
}
