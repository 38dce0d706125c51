package auth

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleOwner            Role = "OWNER"
	RoleViewer           Role = "VIEWER"
	RoleEmergencyContact Role = "EMERGENCY_CONTACT"
	RoleAdmin            Role = "ADMIN"
)

var ErrUnknownRole = errors.New("auth: unknown role")

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleViewer, RoleEmergencyContact, RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

var (
	ErrPrincipalNotFound  = errors.New("auth: principal not found")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Principal is a registered actor. Role is fixed at creation.
type Principal struct {
	ID         string
	Email      string
	PassHash   string // argon2id encoded string
	Role       Role
	MFAEnabled bool
	CreatedAt  time.Time
}

// Claims is the verified content of a session or emergency token.
type Claims struct {
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	Grantor    string `json:"grantor,omitempty"` // owner whose vault an emergency token opens
	AccessType string `json:"accessType,omitempty"`
	TokenID    string `json:"jti"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

func (c *Claims) Emergency() bool {
	return c != nil && c.Role == RoleEmergencyContact
}

// NormalizeEmail is the canonical form used for lookups and unique indexes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
