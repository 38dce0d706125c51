package auth

import (
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIssuer(t *testing.T) (*TokenIssuer, *fakeClock) {
	t.Helper()
	iss, err := NewTokenIssuer(testSecret, "lifelockr-test")
	require.NoError(t, err)
	clk := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	iss.SetClock(clk.now)
	return iss, clk
}

func TestIssueAndVerifySession(t *testing.T) {
	iss, clk := newTestIssuer(t)
	tok, exp, err := iss.IssueSession("user-1", RoleOwner)
	require.NoError(t, err)
	require.Equal(t, clk.t.Add(SessionTTL), exp)

	c, err := iss.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", c.UserID)
	require.Equal(t, RoleOwner, c.Role)
	require.Equal(t, clk.t.Unix(), c.IssuedAt)
	require.Equal(t, exp.Unix(), c.ExpiresAt)
	require.NotEmpty(t, c.TokenID)
	require.Empty(t, c.Grantor)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	iss, clk := newTestIssuer(t)
	tok, _, err := iss.IssueSession("user-1", RoleOwner)
	require.NoError(t, err)

	clk.advance(SessionTTL - time.Second)
	_, err = iss.Verify(tok)
	require.NoError(t, err)

	clk.advance(2 * time.Second)
	_, err = iss.Verify(tok)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyCustomTTL(t *testing.T) {
	iss, clk := newTestIssuer(t)
	tok, _, err := iss.Issue("contact-1", RoleEmergencyContact, 10*time.Minute, WithGrantor("owner-1"))
	require.NoError(t, err)

	c, err := iss.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, RoleEmergencyContact, c.Role)
	require.Equal(t, "owner-1", c.Grantor)
	require.Equal(t, "TEMP", c.AccessType)
	require.Equal(t, int64(600), c.ExpiresAt-c.IssuedAt)
	require.True(t, c.Emergency())

	clk.advance(601 * time.Second)
	_, err = iss.Verify(tok)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsTampering(t *testing.T) {
	iss, _ := newTestIssuer(t)
	tok, _, err := iss.IssueSession("user-1", RoleViewer)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = iss.Verify(parts[0] + "." + parts[1] + "." + string(sig))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherSecretAndIssuer(t *testing.T) {
	iss, _ := newTestIssuer(t)
	tok, _, err := iss.IssueSession("user-1", RoleOwner)
	require.NoError(t, err)

	other, err := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), "lifelockr-test")
	require.NoError(t, err)
	_, err = other.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	otherIss, err := NewTokenIssuer(testSecret, "someone-else")
	require.NoError(t, err)
	_, err = otherIss.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsAlgNone(t *testing.T) {
	iss, _ := newTestIssuer(t)
	claims := jwt.MapClaims{"userId": "u", "sub": "u", "role": "ADMIN", "iss": "lifelockr-test", "iat": 1, "exp": 9999999999}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyClockSkewOnIssuedAt(t *testing.T) {
	issuer, clk := newTestIssuer(t)
	verifier, err := NewTokenIssuer(testSecret, "lifelockr-test")
	require.NoError(t, err)

	tok, _, err := issuer.IssueSession("user-1", RoleOwner)
	require.NoError(t, err)

	// Verifier clock 3s behind the issuer: within leeway.
	verifier.SetClock(func() time.Time { return clk.t.Add(-3 * time.Second) })
	_, err = verifier.Verify(tok)
	require.NoError(t, err)

	// 30s behind: iat is in the future beyond tolerance.
	verifier.SetClock(func() time.Time { return clk.t.Add(-30 * time.Second) })
	_, err = verifier.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	iss, _ := newTestIssuer(t)
	_, _, err := iss.Issue("u", Role("ROOT"), time.Minute)
	require.Error(t, err)
}

func TestSigningKeyIsDerivedDeterministically(t *testing.T) {
	a, err := NewTokenIssuer(testSecret, "x")
	require.NoError(t, err)
	b, err := NewTokenIssuer(testSecret, "x")
	require.NoError(t, err)
	require.True(t, ed25519.PublicKey(a.pub).Equal(b.pub))
}
