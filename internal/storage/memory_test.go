package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lifelockr/internal/account"
	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/otp"
	"lifelockr/internal/vault"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	_ account.Directory    = (*Memory)(nil)
	_ delegation.Directory = (*Memory)(nil)
	_ otp.Store            = (*Memory)(nil)
	_ delegation.Store     = (*Memory)(nil)
	_ vault.Store          = (*Memory)(nil)
	_ audit.Sink           = (*Memory)(nil)
	_ audit.Reader         = (*Memory)(nil)
	_ audit.Verifier       = (*Memory)(nil)

	_ account.Directory    = (*Mongo)(nil)
	_ delegation.Directory = (*Mongo)(nil)
	_ otp.Store            = (*Mongo)(nil)
	_ delegation.Store     = (*Mongo)(nil)
	_ vault.Store          = (*Mongo)(nil)
	_ audit.Sink           = (*Mongo)(nil)
	_ audit.Reader         = (*Mongo)(nil)
	_ audit.Verifier       = (*Mongo)(nil)
)

func TestPrincipalEmailIsUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreatePrincipal(ctx, auth.Principal{ID: "1", Email: "a@example.com"}))
	require.ErrorIs(t, m.CreatePrincipal(ctx, auth.Principal{ID: "2", Email: "a@example.com"}), auth.ErrEmailTaken)

	_, err := m.PrincipalByID(ctx, "2")
	require.ErrorIs(t, err, auth.ErrPrincipalNotFound)
	_, err = m.PrincipalByEmail(ctx, "b@example.com")
	require.ErrorIs(t, err, auth.ErrPrincipalNotFound)
}

func TestClearChallengeIsConditional(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreatePrincipal(ctx, auth.Principal{ID: "1", Email: "a@example.com"}))
	require.ErrorIs(t, m.SaveChallenge(ctx, "missing", otp.Challenge{Hash: "h"}), auth.ErrPrincipalNotFound)
	require.NoError(t, m.SaveChallenge(ctx, "1", otp.Challenge{Hash: "h1", Expires: time.Now().Add(time.Minute)}))

	ok, err := m.ClearChallenge(ctx, "1", "other")
	require.NoError(t, err)
	require.False(t, ok)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.ClearChallenge(ctx, "1", "h1"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), winners.Load())

	_, pending, err := m.LoadChallenge(ctx, "1")
	require.NoError(t, err)
	require.False(t, pending)
}

func TestGrantorsForOnlyCountsVisibleGrants(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	_, err := m.UpsertGrant(ctx, delegation.Grant{ID: "g1", OwnerID: "o1", ContactID: "c", CanViewVault: true, CreatedAt: now})
	require.NoError(t, err)
	_, err = m.UpsertGrant(ctx, delegation.Grant{ID: "g2", OwnerID: "o2", ContactID: "c", CanViewVault: false, CreatedAt: now})
	require.NoError(t, err)

	owners, err := m.GrantorsFor(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, []string{"o1"}, owners)

	require.NoError(t, m.SetCanViewVault(ctx, "o1", "c", false, now))
	owners, err = m.GrantorsFor(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, owners)
}

func TestItemMutationsCheckOwner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertItem(ctx, vault.Record{ID: "i1", OwnerID: "o1", Label: "x"}))

	require.ErrorIs(t, m.ReplaceItem(ctx, vault.Record{ID: "i1", OwnerID: "o2"}), vault.ErrItemNotFound)
	require.ErrorIs(t, m.DeleteItem(ctx, "o2", "i1"), vault.ErrItemNotFound)
	require.NoError(t, m.DeleteItem(ctx, "o1", "i1"))
	_, err := m.ItemByID(ctx, "i1")
	require.ErrorIs(t, err, vault.ErrItemNotFound)
}

// Entries must still verify after a BSON round trip, as they do when read
// back from the logs collection.
func TestLogChainSurvivesBSONRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 9, 0, 0, 123456789, time.UTC)
	require.NoError(t, m.AppendEntry(ctx, audit.Entry{UserID: "u", Action: audit.ActionLogin, Meta: map[string]any{}, Timestamp: ts}))
	require.NoError(t, m.AppendEntry(ctx, audit.Entry{UserID: "u", Action: audit.ActionEmergencyGranted,
		Meta: map[string]any{"contact": "c", "expiresIn": 600, "source": audit.SourceEmergency}, Timestamp: ts.Add(time.Second)}))

	var v audit.ChainVerifier
	for _, e := range m.Entries() {
		raw, err := bson.Marshal(e)
		require.NoError(t, err)
		var back audit.Entry
		require.NoError(t, bson.Unmarshal(raw, &back))
		require.NoError(t, v.Check(back))
	}
	require.Equal(t, 2, v.Checked())
}
