package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"lifelockr/internal/auth"
	"lifelockr/internal/metrics"
)

const (
	Digits     = 6
	DefaultTTL = 5 * time.Minute

	deliveryTimeout = 30 * time.Second
)

var (
	// ErrInvalidOrExpiredCode covers every rejection; callers cannot tell
	// an expired code from a wrong one.
	ErrInvalidOrExpiredCode = errors.New("otp: invalid or expired code")

	codeSpace = big.NewInt(1_000_000)
)

// Challenge is the pending state attached to a principal. Only the hash of
// the code is ever stored.
type Challenge struct {
	Hash    string
	Expires time.Time
}

// Store persists at most one challenge per principal.
type Store interface {
	SaveChallenge(ctx context.Context, principalID string, ch Challenge) error
	// LoadChallenge returns ok=false when nothing is pending.
	LoadChallenge(ctx context.Context, principalID string) (ch Challenge, ok bool, err error)
	// ClearChallenge removes the challenge only if its hash still equals
	// hash, and reports whether it did. This is the single-use gate.
	ClearChallenge(ctx context.Context, principalID, hash string) (bool, error)
}

// Sender delivers a code out of band.
type Sender interface {
	SendOTP(ctx context.Context, to, code string, expires time.Time) error
}

type Service struct {
	store   Store
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(store Store, sender Sender, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		sender: sender,
		logger: logger,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue replaces any pending challenge for p with a fresh one and hands the
// code to the sender without waiting for delivery.
func (s *Service) Issue(ctx context.Context, p *auth.Principal) (time.Time, error) {
	code, err := GenerateCode()
	if err != nil {
		return time.Time{}, err
	}
	expires := s.now().Add(s.ttl)
	if err := s.store.SaveChallenge(ctx, p.ID, Challenge{Hash: HashCode(code), Expires: expires}); err != nil {
		return time.Time{}, fmt.Errorf("otp: save challenge: %w", err)
	}
	s.metrics.OTPIssued()

	to, principalID := p.Email, p.ID
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := s.sender.SendOTP(dctx, to, code, expires); err != nil {
			s.logger.Error("otp delivery failed", "user_id", principalID, "err", err)
		}
	}()
	return expires, nil
}

// Verify consumes the pending challenge if code matches and it has not
// expired. The challenge is cleared before success is returned, so a
// concurrent second attempt with the same code fails.
func (s *Service) Verify(ctx context.Context, principalID, code string) error {
	code = strings.TrimSpace(code)
	if !wellFormed(code) {
		s.reject(principalID, "malformed")
		return ErrInvalidOrExpiredCode
	}

	ch, ok, err := s.store.LoadChallenge(ctx, principalID)
	if err != nil {
		return fmt.Errorf("otp: load challenge: %w", err)
	}
	if !ok {
		s.reject(principalID, "no_challenge")
		return ErrInvalidOrExpiredCode
	}

	if s.now().After(ch.Expires) {
		if _, err := s.store.ClearChallenge(ctx, principalID, ch.Hash); err != nil {
			s.logger.Error("clear expired otp challenge", "user_id", principalID, "err", err)
		}
		s.reject(principalID, "expired")
		return ErrInvalidOrExpiredCode
	}

	want, err := hex.DecodeString(ch.Hash)
	if err != nil {
		s.reject(principalID, "corrupt_hash")
		return ErrInvalidOrExpiredCode
	}
	got := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(got[:], want) != 1 {
		s.reject(principalID, "mismatch")
		return ErrInvalidOrExpiredCode
	}

	cleared, err := s.store.ClearChallenge(ctx, principalID, ch.Hash)
	if err != nil {
		return fmt.Errorf("otp: clear challenge: %w", err)
	}
	if !cleared {
		s.reject(principalID, "already_consumed")
		return ErrInvalidOrExpiredCode
	}
	s.metrics.OTPVerification("ok")
	return nil
}

func (s *Service) reject(principalID, reason string) {
	s.metrics.OTPVerification(reason)
	s.logger.Warn("otp rejected", "user_id", principalID, "reason", reason)
}

// GenerateCode returns a uniformly distributed 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}

// HashCode is a fast digest; codes are short-lived and the verify endpoint
// is rate limited.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func wellFormed(code string) bool {
	if len(code) != Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
