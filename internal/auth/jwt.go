package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	cr "lifelockr/internal/crypto"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionTTL = 15 * time.Minute

	// DefaultLeeway absorbs clock drift on iat only; exp is enforced exactly.
	DefaultLeeway = 5 * time.Second

	signingKeyInfo = "lifelockr/token-signing/ed25519/v1"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token expired")
)

type tokenClaims struct {
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	Grantor    string `json:"grantor,omitempty"`
	AccessType string `json:"accessType,omitempty"`
	jwt.RegisteredClaims
}

// ClaimOption decorates a token before it is signed.
type ClaimOption func(*tokenClaims)

// WithGrantor binds a delegated token to the owner who authorized it.
func WithGrantor(ownerID string) ClaimOption {
	return func(c *tokenClaims) {
		c.Grantor = ownerID
		c.AccessType = "TEMP"
	}
}

// TokenIssuer signs and verifies EdDSA JWTs. The key pair is derived from the
// configured secret so every replica shares it without distributing a key file.
type TokenIssuer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	iss    string
	leeway time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, iss string) (*TokenIssuer, error) {
	seed, err := cr.DeriveKey(secret, signingKeyInfo, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	defer cr.Zero(seed)
	priv := ed25519.NewKeyFromSeed(seed)
	return &TokenIssuer{
		priv:   priv,
		pub:    priv.Public().(ed25519.PublicKey),
		iss:    iss,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *TokenIssuer) SetClock(now func() time.Time) { s.now = now }

func (s *TokenIssuer) IssueSession(userID string, role Role) (string, time.Time, error) {
	return s.Issue(userID, role, SessionTTL)
}

func (s *TokenIssuer) Issue(userID string, role Role, ttl time.Duration, opts ...ClaimOption) (string, time.Time, error) {
	if userID == "" || !role.Valid() {
		return "", time.Time{}, errors.New("auth: token subject and role required")
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl)

	jti, err := randomJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	claims := &tokenClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.iss,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	for _, opt := range opts {
		opt(claims)
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return ss, exp, nil
}

// Verify checks signature, issuer and expiry. A token is valid until the exp
// instant; leeway only tolerates an iat slightly in the future.
func (s *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodEdDSA {
			return nil, errors.New("unexpected signing method")
		}
		return s.pub, nil
	}

	tc := &tokenClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, tc, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if tc.Issuer != s.iss || tc.ExpiresAt == nil || tc.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if tc.UserID == "" || tc.UserID != tc.Subject || !tc.Role.Valid() {
		return nil, ErrInvalidToken
	}

	now := s.now()
	if now.After(tc.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	if tc.IssuedAt.Time.After(now.Add(s.leeway)) {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:     tc.UserID,
		Role:       tc.Role,
		Grantor:    tc.Grantor,
		AccessType: tc.AccessType,
		TokenID:    tc.ID,
		IssuedAt:   tc.IssuedAt.Unix(),
		ExpiresAt:  tc.ExpiresAt.Unix(),
	}, nil
}

func randomJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
