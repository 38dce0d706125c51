package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeTable(t *testing.T) {
	cases := []struct {
		role Role
		cap  Capability
		ok   bool
	}{
		{RoleOwner, CapVaultList, true},
		{RoleEmergencyContact, CapVaultList, true},
		{RoleViewer, CapVaultList, true},
		{RoleAdmin, CapVaultList, false},
		{RoleOwner, CapVaultCreate, true},
		{RoleEmergencyContact, CapVaultCreate, false},
		{RoleEmergencyContact, CapVaultGet, false},
		{RoleViewer, CapVaultDelete, false},
		{RoleOwner, CapAccessRequest, true},
		{RoleEmergencyContact, CapAccessRequest, false},
		{RoleAdmin, CapLogsAll, true},
		{RoleOwner, CapLogsAll, false},
		{RoleEmergencyContact, CapLogsOwn, true},
		{RoleOwner, Capability("nope"), false},
	}
	for _, tc := range cases {
		err := Authorize(&Claims{UserID: "u", Role: tc.role}, tc.cap)
		if tc.ok {
			require.NoError(t, err, "%s %s", tc.role, tc.cap)
		} else {
			require.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.cap)
		}
	}
	require.ErrorIs(t, Authorize(nil, CapVaultList), ErrInvalidToken)
}

func TestMiddlewareDistinguishesAuthnFromAuthz(t *testing.T) {
	iss, clk := newTestIssuer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, found := FromContext(r.Context())
		require.True(t, found)
		_, _ = w.Write([]byte(c.UserID))
	})
	h := AuthRequired(iss, logger)(Require(CapVaultCreate, logger)(ok))

	do := func(authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/vault", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, do("").Code)
	require.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	viewer, _, err := iss.IssueSession("viewer-1", RoleViewer)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, do("Bearer "+viewer).Code)

	owner, _, err := iss.IssueSession("owner-1", RoleOwner)
	require.NoError(t, err)
	rec := do("Bearer " + owner)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "owner-1", rec.Body.String())

	clk.advance(SessionTTL + time.Second)
	rec = do("Bearer " + owner)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid or expired token")
}
