package server

import (
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"lifelockr/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestMultiLimiterAllow(t *testing.T) {
	ml := newMultiLimiter("test", rate.Limit(2), 2, time.Minute, nil)
	require.True(t, ml.allow("k"))
	require.True(t, ml.allow("k"))
	require.False(t, ml.allow("k"))
	require.True(t, ml.allow("other"))
}

func TestMultiLimiterRefillsAndForgets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ml := newMultiLimiter("test", rate.Every(time.Minute), 1, 5*time.Minute, nil)
	ml.now = func() time.Time { return now }

	require.True(t, ml.allow("k"))
	require.False(t, ml.allow("k"))
	now = now.Add(61 * time.Second)
	require.True(t, ml.allow("k"))

	now = now.Add(10 * time.Minute)
	require.True(t, ml.allow("fresh"))
	ml.mu.Lock()
	_, kept := ml.entries["k"]
	ml.mu.Unlock()
	require.False(t, kept)
}

func TestGateWritesRetryAfterAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ml := newMultiLimiter("verify_user", rate.Every(time.Minute), 1, time.Minute, m)

	rec := httptest.NewRecorder()
	require.True(t, gate(rec, limitCheck{ml, "u"}))
	rec = httptest.NewRecorder()
	require.False(t, gate(rec, limitCheck{ml, "u"}))
	require.Equal(t, 429, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	n, err := testutil.GatherAndCount(reg, "lifelockr_rate_limited_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClientIPIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	require.Equal(t, "192.0.2.10", clientIP(r, nil))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "192.0.2.10", clientIP(r, nil))

	other := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	require.Equal(t, "192.0.2.10", clientIP(r, other))
}

func TestClientIPWalksForwardedForBehindTrustedProxy(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", clientIP(r, trusted))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.0.0.2")
	require.Equal(t, "203.0.113.9", clientIP(r, trusted))

	r.Header.Set("X-Forwarded-For", "10.0.0.3")
	require.Equal(t, "10.0.0.1", clientIP(r, trusted))

	r.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "10.0.0.1", clientIP(r, trusted))
}
