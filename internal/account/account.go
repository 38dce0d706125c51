package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"

	"github.com/google/uuid"
)

const (
	StatusMFARequired = "MFA_REQUIRED"
	StatusOK          = "OK"

	minPassword = 8
	maxPassword = 256
)

var (
	ErrInvalidEmail    = errors.New("account: invalid email")
	ErrInvalidPassword = errors.New("account: password must be 8 to 256 characters")

	reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

type Directory interface {
	CreatePrincipal(ctx context.Context, p auth.Principal) error
	PrincipalByEmail(ctx context.Context, email string) (*auth.Principal, error)
	PrincipalByID(ctx context.Context, id string) (*auth.Principal, error)
}

type Challenger interface {
	Issue(ctx context.Context, p *auth.Principal) (time.Time, error)
	Verify(ctx context.Context, principalID, code string) error
}

type SessionIssuer interface {
	IssueSession(userID string, role auth.Role) (string, time.Time, error)
}

type Auditor interface {
	Record(ctx context.Context, userID, action string, meta map[string]any)
}

// LoginResult carries either a session token or, for MFA principals, the
// id to present with the emailed code.
type LoginResult struct {
	Status           string    `json:"status"`
	UserID           string    `json:"userId,omitempty"`
	Token            string    `json:"token,omitempty"`
	Role             auth.Role `json:"role,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ChallengeExpires time.Time `json:"-"`
}

type Service struct {
	dir      Directory
	otp      Challenger
	sessions SessionIssuer
	audit    Auditor
	logger   *slog.Logger
	argon    auth.ArgonParams
	now      func() time.Time

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash string
}

func NewService(dir Directory, challenger Challenger, sessions SessionIssuer, auditor Auditor, logger *slog.Logger, argon auth.ArgonParams) (*Service, error) {
	dummy, err := auth.HashPassword(argon, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &Service{
		dir:       dir,
		otp:       challenger,
		sessions:  sessions,
		audit:     auditor,
		logger:    logger,
		argon:     argon,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates an OWNER with MFA enabled.
func (s *Service) Register(ctx context.Context, email, password string) (*auth.Principal, error) {
	return s.create(ctx, email, password, auth.RoleOwner)
}

func (s *Service) create(ctx context.Context, email, password string, role auth.Role) (*auth.Principal, error) {
	email = auth.NormalizeEmail(email)
	if !reEmail.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPassword || len(password) > maxPassword {
		return nil, ErrInvalidPassword
	}
	hash, err := auth.HashPassword(s.argon, password)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}
	p := auth.Principal{
		ID:         uuid.NewString(),
		Email:      email,
		PassHash:   hash,
		Role:       role,
		MFAEnabled: true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.dir.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.ID, audit.ActionRegister, map[string]any{"role": string(role)})
	return &p, nil
}

// EnsurePrincipal creates a seed principal unless the email is taken.
func (s *Service) EnsurePrincipal(ctx context.Context, email, password string, role auth.Role) error {
	if !role.Valid() {
		return auth.ErrUnknownRole
	}
	_, err := s.create(ctx, email, password, role)
	if errors.Is(err, auth.ErrEmailTaken) {
		return nil
	}
	return err
}

// Login checks the password. Unknown email and wrong password both yield
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	p, err := s.dir.PrincipalByEmail(ctx, auth.NormalizeEmail(email))
	switch {
	case errors.Is(err, auth.ErrPrincipalNotFound):
		_, _ = auth.VerifyPassword(password, s.dummyHash)
		s.logger.Warn("login rejected", "reason", "unknown_email")
		return nil, auth.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, p.PassHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", p.ID, "err", err)
		return nil, auth.ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn("login rejected", "user_id", p.ID, "reason", "bad_password")
		return nil, auth.ErrInvalidCredentials
	}

	if p.MFAEnabled {
		exp, err := s.otp.Issue(ctx, p)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Status: StatusMFARequired, UserID: p.ID, ChallengeExpires: exp}, nil
	}

	s.audit.Record(ctx, p.ID, audit.ActionLogin, nil)
	return s.session(p)
}

// VerifyOTP consumes the pending code and only then issues a session.
func (s *Service) VerifyOTP(ctx context.Context, userID, code string) (*LoginResult, error) {
	if err := s.otp.Verify(ctx, userID, code); err != nil {
		return nil, err
	}
	p, err := s.dir.PrincipalByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, p.ID, audit.ActionLoginMFA, nil)
	return s.session(p)
}

func (s *Service) session(p *auth.Principal) (*LoginResult, error) {
	tok, exp, err := s.sessions.IssueSession(p.ID, p.Role)
	if err != nil {
		return nil, fmt.Errorf("account: issue session: %w", err)
	}
	return &LoginResult{Status: StatusOK, UserID: p.ID, Token: tok, Role: p.Role, ExpiresAt: exp}, nil
}
