package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/otp"
	"lifelockr/internal/vault"
)

// Memory is an in-process store with the same conditional-update semantics
// as Mongo. The audit log is the hash-chained audit.MemorySink.
type Memory struct {
	*audit.MemorySink

	mu         sync.Mutex
	principals map[string]auth.Principal
	byEmail    map[string]string
	challenges map[string]otp.Challenge
	grants     map[string]delegation.Grant
	items      map[string]vault.Record
}

func NewMemory() *Memory {
	return &Memory{
		MemorySink: audit.NewMemorySink(),
		principals: map[string]auth.Principal{},
		byEmail:    map[string]string{},
		challenges: map[string]otp.Challenge{},
		grants:     map[string]delegation.Grant{},
		items:      map[string]vault.Record{},
	}
}

func (m *Memory) CreatePrincipal(_ context.Context, p auth.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[p.Email]; ok {
		return auth.ErrEmailTaken
	}
	m.principals[p.ID] = p
	m.byEmail[p.Email] = p.ID
	return nil
}

func (m *Memory) PrincipalByEmail(_ context.Context, email string) (*auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	p := m.principals[id]
	return &p, nil
}

func (m *Memory) PrincipalByID(_ context.Context, id string) (*auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	return &p, nil
}

func (m *Memory) SaveChallenge(_ context.Context, principalID string, ch otp.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[principalID]; !ok {
		return auth.ErrPrincipalNotFound
	}
	m.challenges[principalID] = ch
	return nil
}

func (m *Memory) LoadChallenge(_ context.Context, principalID string) (otp.Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[principalID]
	return ch, ok, nil
}

func (m *Memory) ClearChallenge(_ context.Context, principalID, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[principalID]
	if !ok || ch.Hash != hash {
		return false, nil
	}
	delete(m.challenges, principalID)
	return true, nil
}

func (m *Memory) UpsertGrant(_ context.Context, g delegation.Grant) (*delegation.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.grants {
		if cur.OwnerID == g.OwnerID && cur.ContactID == g.ContactID {
			cur.CanViewVault = g.CanViewVault
			cur.AccessLevel = g.AccessLevel
			cur.ContactEmail = g.ContactEmail
			cur.UpdatedAt = g.UpdatedAt
			m.grants[id] = cur
			return &cur, nil
		}
	}
	m.grants[g.ID] = g
	return &g, nil
}

func (m *Memory) FindGrant(_ context.Context, ownerID, contactID string) (*delegation.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if g.OwnerID == ownerID && g.ContactID == contactID {
			return &g, nil
		}
	}
	return nil, delegation.ErrGrantNotFound
}

func (m *Memory) SetCanViewVault(_ context.Context, ownerID, contactID string, allowed bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.grants {
		if g.OwnerID == ownerID && g.ContactID == contactID {
			g.CanViewVault = allowed
			g.UpdatedAt = at
			m.grants[id] = g
			return nil
		}
	}
	return delegation.ErrGrantNotFound
}

func (m *Memory) DeleteGrant(_ context.Context, ownerID, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok || g.OwnerID != ownerID {
		return delegation.ErrGrantNotFound
	}
	delete(m.grants, grantID)
	return nil
}

func (m *Memory) ListGrants(_ context.Context, ownerID string) ([]delegation.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []delegation.Grant{}
	for _, g := range m.grants {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GrantorsFor(_ context.Context, contactID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, g := range m.grants {
		if g.ContactID == contactID && g.CanViewVault {
			out = append(out, g.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) InsertItem(_ context.Context, r vault.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Tags = append([]string(nil), r.Tags...)
	m.items[r.ID] = r
	return nil
}

func (m *Memory) ItemByID(_ context.Context, id string) (*vault.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, vault.ErrItemNotFound
	}
	r.Tags = append([]string(nil), r.Tags...)
	return &r, nil
}

func (m *Memory) ListItems(_ context.Context, ownerIDs []string) ([]vault.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make(map[string]bool, len(ownerIDs))
	for _, o := range ownerIDs {
		owners[o] = true
	}
	var out []vault.Record
	for _, r := range m.items {
		if owners[r.OwnerID] {
			r.Tags = append([]string(nil), r.Tags...)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ReplaceItem(_ context.Context, r vault.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[r.ID]
	if !ok || cur.OwnerID != r.OwnerID {
		return vault.ErrItemNotFound
	}
	r.Tags = append([]string(nil), r.Tags...)
	m.items[r.ID] = r
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok || cur.OwnerID != ownerID {
		return vault.ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

// RawItem returns the record exactly as stored.
func (m *Memory) RawItem(id string) (vault.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	return r, ok
}
