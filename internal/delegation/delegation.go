package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/metrics"

	"github.com/google/uuid"
)

// EmergencyTTL bounds how long a contact can use a grant after an owner
// authorizes it. Revoking the grant does not shorten already issued tokens.
const EmergencyTTL = 10 * time.Minute

var (
	ErrContactNotFound        = errors.New("delegation: contact not found")
	ErrUnauthorizedDelegation = errors.New("delegation: contact not authorized")
	ErrSelfGrant              = errors.New("delegation: cannot delegate to yourself")
	ErrGrantNotFound          = errors.New("delegation: grant not found")
	ErrInvalidAccessLevel     = errors.New("delegation: invalid access level")
)

type AccessLevel string

const AccessRead AccessLevel = "read"

// Grant is the standing permission an owner gives one contact.
type Grant struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner"`
	ContactID    string      `json:"contactUser"`
	ContactEmail string      `json:"contactEmail"`
	CanViewVault bool        `json:"canViewVault"`
	AccessLevel  AccessLevel `json:"accessLevel"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type Directory interface {
	PrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error)
}

type Store interface {
	// UpsertGrant creates the (owner, contact) grant or updates its
	// permission fields, and returns the stored record.
	UpsertGrant(ctx context.Context, g Grant) (*Grant, error)
	// FindGrant returns ErrGrantNotFound when no grant links the pair.
	FindGrant(ctx context.Context, ownerID, contactID string) (*Grant, error)
	SetCanViewVault(ctx context.Context, ownerID, contactID string, allowed bool, at time.Time) error
	DeleteGrant(ctx context.Context, ownerID, grantID string) error
	ListGrants(ctx context.Context, ownerID string) ([]Grant, error)
	// GrantorsFor lists owners that currently let contactID view their vault.
	GrantorsFor(ctx context.Context, contactID string) ([]string, error)
}

type TokenIssuer interface {
	Issue(userID string, role auth.Role, ttl time.Duration, opts ...auth.ClaimOption) (string, time.Time, error)
}

type Auditor interface {
	Record(ctx context.Context, userID, action string, meta map[string]any)
}

// EmergencyToken is returned to the owner, who hands it to the contact.
type EmergencyToken struct {
	Token            string    `json:"token"`
	ExpiresInSeconds int       `json:"expiresIn"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

type Authority struct {
	dir     Directory
	store   Store
	tokens  TokenIssuer
	audit   Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuthority(dir Directory, store Store, tokens TokenIssuer, auditor Auditor, logger *slog.Logger, m *metrics.Metrics) *Authority {
	return &Authority{
		dir:     dir,
		store:   store,
		tokens:  tokens,
		audit:   auditor,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// RequestEmergencyAccess mints a short-lived EMERGENCY_CONTACT token for the
// contact behind contactEmail. The grant is read at call time and never
// modified, so repeated requests are safe and a revoked grant fails at once.
func (a *Authority) RequestEmergencyAccess(ctx context.Context, ownerID, contactEmail string) (*EmergencyToken, error) {
	contact, err := a.dir.PrincipalByEmail(ctx, auth.NormalizeEmail(contactEmail))
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		a.deny(ownerID, "", "contact_not_found")
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delegation: resolve contact: %w", err)
	}

	g, err := a.store.FindGrant(ctx, ownerID, contact.ID)
	if errors.Is(err, ErrGrantNotFound) {
		a.deny(ownerID, contact.ID, "no_grant")
		return nil, ErrUnauthorizedDelegation
	}
	if err != nil {
		return nil, fmt.Errorf("delegation: find grant: %w", err)
	}
	if !g.CanViewVault {
		a.deny(ownerID, contact.ID, "revoked")
		return nil, ErrUnauthorizedDelegation
	}

	tok, exp, err := a.tokens.Issue(contact.ID, auth.RoleEmergencyContact, EmergencyTTL, auth.WithGrantor(ownerID))
	if err != nil {
		return nil, fmt.Errorf("delegation: issue token: %w", err)
	}
	ttl := int(EmergencyTTL / time.Second)
	a.metrics.EmergencyGrant("granted")
	a.audit.Record(ctx, ownerID, audit.ActionEmergencyGranted, map[string]any{
		"contact":   contact.ID,
		"expiresIn": ttl,
		"source":    audit.SourceEmergency,
	})
	a.logger.Info("emergency access granted", "owner_id", ownerID, "contact_id", contact.ID)
	return &EmergencyToken{Token: tok, ExpiresInSeconds: ttl, ExpiresAt: exp}, nil
}

func (a *Authority) deny(ownerID, contactID, reason string) {
	a.metrics.EmergencyGrant(reason)
	a.logger.Warn("emergency access denied", "owner_id", ownerID, "contact_id", contactID, "reason", reason)
}

// Grant creates or updates the owner's grant for the principal registered
// under contactEmail.
func (a *Authority) Grant(ctx context.Context, ownerID, contactEmail string, canViewVault bool, level AccessLevel) (*Grant, error) {
	if level == "" {
		level = AccessRead
	}
	if level != AccessRead {
		return nil, ErrInvalidAccessLevel
	}
	email := auth.NormalizeEmail(contactEmail)
	contact, err := a.dir.PrincipalByEmail(ctx, email)
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delegation: resolve contact: %w", err)
	}
	if contact.ID == ownerID {
		return nil, ErrSelfGrant
	}

	now := a.now().UTC()
	g, err := a.store.UpsertGrant(ctx, Grant{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		ContactID:    contact.ID,
		ContactEmail: email,
		CanViewVault: canViewVault,
		AccessLevel:  level,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("delegation: save grant: %w", err)
	}
	a.audit.Record(ctx, ownerID, audit.ActionContactGranted, map[string]any{
		"contact":      contact.ID,
		"canViewVault": canViewVault,
	})
	return g, nil
}

// Revoke withdraws vault visibility. Tokens issued earlier stay valid until
// they expire.
func (a *Authority) Revoke(ctx context.Context, ownerID, contactID string) error {
	if err := a.store.SetCanViewVault(ctx, ownerID, contactID, false, a.now().UTC()); err != nil {
		return err
	}
	a.audit.Record(ctx, ownerID, audit.ActionContactRevoked, map[string]any{"contact": contactID})
	return nil
}

func (a *Authority) Remove(ctx context.Context, ownerID, grantID string) error {
	if err := a.store.DeleteGrant(ctx, ownerID, grantID); err != nil {
		return err
	}
	a.audit.Record(ctx, ownerID, audit.ActionContactRemoved, map[string]any{"grant": grantID})
	return nil
}

func (a *Authority) List(ctx context.Context, ownerID string) ([]Grant, error) {
	return a.store.ListGrants(ctx, ownerID)
}

func (a *Authority) GrantorsFor(ctx context.Context, contactID string) ([]string, error) {
	return a.store.GrantorsFor(ctx, contactID)
}
