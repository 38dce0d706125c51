package delegation_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/storage"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	mem     *storage.Memory
	issuer  *auth.TokenIssuer
	auth    *delegation.Authority
	owner   auth.Principal
	contact auth.Principal
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem: storage.NewMemory(),
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	issuer, err := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "test")
	require.NoError(t, err)
	issuer.SetClock(func() time.Time { return f.now })
	f.issuer = issuer

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	rec := audit.NewRecorder(f.mem, logger, nil)
	f.auth = delegation.NewAuthority(f.mem, f.mem, issuer, rec, logger, nil)

	f.owner = auth.Principal{ID: "owner-1", Email: "owner@example.com", Role: auth.RoleOwner}
	f.contact = auth.Principal{ID: "contact-1", Email: "contact@example.com", Role: auth.RoleOwner}
	ctx := context.Background()
	require.NoError(t, f.mem.CreatePrincipal(ctx, f.owner))
	require.NoError(t, f.mem.CreatePrincipal(ctx, f.contact))
	return f
}

func TestRequestEmergencyAccessUnknownContact(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.RequestEmergencyAccess(context.Background(), f.owner.ID, "nobody@example.com")
	require.ErrorIs(t, err, delegation.ErrContactNotFound)
}

func TestRequestEmergencyAccessWithoutGrant(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.RequestEmergencyAccess(context.Background(), f.owner.ID, f.contact.Email)
	require.ErrorIs(t, err, delegation.ErrUnauthorizedDelegation)
}

func TestRequestEmergencyAccessGrantWithoutVaultView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, false, delegation.AccessRead)
	require.NoError(t, err)

	_, err = f.auth.RequestEmergencyAccess(ctx, f.owner.ID, f.contact.Email)
	require.ErrorIs(t, err, delegation.ErrUnauthorizedDelegation)
}

func TestRequestEmergencyAccessIssuesScopedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth.Grant(ctx, f.owner.ID, "  Contact@Example.com ", true, "")
	require.NoError(t, err)

	et, err := f.auth.RequestEmergencyAccess(ctx, f.owner.ID, "CONTACT@example.com")
	require.NoError(t, err)
	require.Equal(t, 600, et.ExpiresInSeconds)
	require.Equal(t, f.now.Add(delegation.EmergencyTTL), et.ExpiresAt)

	claims, err := f.issuer.Verify(et.Token)
	require.NoError(t, err)
	require.Equal(t, auth.RoleEmergencyContact, claims.Role)
	require.Equal(t, f.contact.ID, claims.UserID)
	require.Equal(t, f.owner.ID, claims.Grantor)
	require.Equal(t, "TEMP", claims.AccessType)
	require.Equal(t, int64(600), claims.ExpiresAt-claims.IssuedAt)

	entries, err := f.mem.ListEntries(ctx, audit.Filter{UserID: f.owner.ID})
	require.NoError(t, err)
	var granted int
	for _, e := range entries {
		if e.Action == audit.ActionEmergencyGranted {
			granted++
			require.Equal(t, f.contact.ID, e.Meta["contact"])
			require.Equal(t, audit.SourceEmergency, e.Meta["source"])
		}
	}
	require.Equal(t, 1, granted)
}

func TestRevocationIsForwardOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, true, delegation.AccessRead)
	require.NoError(t, err)

	et, err := f.auth.RequestEmergencyAccess(ctx, f.owner.ID, f.contact.Email)
	require.NoError(t, err)

	require.NoError(t, f.auth.Revoke(ctx, f.owner.ID, f.contact.ID))

	_, err = f.auth.RequestEmergencyAccess(ctx, f.owner.ID, f.contact.Email)
	require.ErrorIs(t, err, delegation.ErrUnauthorizedDelegation)

	f.now = f.now.Add(599 * time.Second)
	_, err = f.issuer.Verify(et.Token)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Second)
	_, err = f.issuer.Verify(et.Token)
	require.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestRequestEmergencyAccessDoesNotMutateGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, true, delegation.AccessRead)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.auth.RequestEmergencyAccess(ctx, f.owner.ID, f.contact.Email)
		require.NoError(t, err)
	}
	after, err := f.mem.FindGrant(ctx, f.owner.ID, f.contact.ID)
	require.NoError(t, err)
	require.Equal(t, *g, *after)
}

func TestGrantUpsertsPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, false, delegation.AccessRead)
	require.NoError(t, err)
	second, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, true, delegation.AccessRead)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.CanViewVault)

	list, err := f.auth.List(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	owners, err := f.auth.GrantorsFor(ctx, f.contact.ID)
	require.NoError(t, err)
	require.Equal(t, []string{f.owner.ID}, owners)
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Grant(ctx, f.owner.ID, f.owner.Email, true, delegation.AccessRead)
	require.ErrorIs(t, err, delegation.ErrSelfGrant)

	_, err = f.auth.Grant(ctx, f.owner.ID, "ghost@example.com", true, delegation.AccessRead)
	require.ErrorIs(t, err, delegation.ErrContactNotFound)

	_, err = f.auth.Grant(ctx, f.owner.ID, f.contact.Email, true, "write")
	require.ErrorIs(t, err, delegation.ErrInvalidAccessLevel)
}

func TestRemoveIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.auth.Grant(ctx, f.owner.ID, f.contact.Email, true, delegation.AccessRead)
	require.NoError(t, err)

	require.ErrorIs(t, f.auth.Remove(ctx, f.contact.ID, g.ID), delegation.ErrGrantNotFound)
	require.NoError(t, f.auth.Remove(ctx, f.owner.ID, g.ID))

	_, err = f.auth.RequestEmergencyAccess(ctx, f.owner.ID, f.contact.Email)
	require.ErrorIs(t, err, delegation.ErrUnauthorizedDelegation)
}

func TestRevokeUnknownGrant(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.auth.Revoke(context.Background(), f.owner.ID, f.contact.ID), delegation.ErrGrantNotFound)
}
