package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"lifelockr/internal/account"
	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/delegation"
	"lifelockr/internal/metrics"
	"lifelockr/internal/vault"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 10

type Accounts interface {
	Register(ctx context.Context, email, password string) (*auth.Principal, error)
	Login(ctx context.Context, email, password string) (*account.LoginResult, error)
	VerifyOTP(ctx context.Context, userID, code string) (*account.LoginResult, error)
}

type Vault interface {
	Create(ctx context.Context, c *auth.Claims, d vault.Draft) (*vault.Item, error)
	List(ctx context.Context, c *auth.Claims) ([]vault.Item, error)
	Get(ctx context.Context, c *auth.Claims, id string) (*vault.Item, error)
	Update(ctx context.Context, c *auth.Claims, id string, p vault.Patch) (*vault.Item, error)
	Delete(ctx context.Context, c *auth.Claims, id string) error
}

type Delegation interface {
	RequestEmergencyAccess(ctx context.Context, ownerID, contactEmail string) (*delegation.EmergencyToken, error)
	Grant(ctx context.Context, ownerID, contactEmail string, canViewVault bool, level delegation.AccessLevel) (*delegation.Grant, error)
	Revoke(ctx context.Context, ownerID, contactID string) error
	Remove(ctx context.Context, ownerID, grantID string) error
	List(ctx context.Context, ownerID string) ([]delegation.Grant, error)
}

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Accounts   Accounts
	Vault      Vault
	Delegation Delegation
	Logs       audit.Reader
	Tokens     auth.TokenVerifier
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	CORSOrigin string

	// TrustedProxies are the peers whose X-Forwarded-For is honored when
	// keying rate limits.
	TrustedProxies []netip.Prefix

	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler

	// Ready reports storage health for /health.
	Ready func(ctx context.Context) error
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router

	rlLogin      *multiLimiter
	rlRegisterIP *multiLimiter
	rlVerifyUser *multiLimiter
	rlVerifyIP   *multiLimiter
	rlEmergency  *multiLimiter
}

func New(deps Deps) *Server {
	perWindow := func(n int, window time.Duration) rate.Limit { return rate.Limit(float64(n) / window.Seconds()) }

	s := &Server{
		deps:   deps,
		logger: deps.Logger,

		rlLogin:      newMultiLimiter("login", perWindow(10, 15*time.Minute), 10, time.Hour, deps.Metrics),
		rlRegisterIP: newMultiLimiter("register_ip", perWindow(5, 15*time.Minute), 5, time.Hour, deps.Metrics),
		rlVerifyUser: newMultiLimiter("verify_user", perWindow(5, time.Minute), 5, 10*time.Minute, deps.Metrics),
		rlVerifyIP:   newMultiLimiter("verify_ip", perWindow(10, time.Minute), 10, 10*time.Minute, deps.Metrics),
		rlEmergency:  newMultiLimiter("emergency", perWindow(5, time.Minute), 5, 10*time.Minute, deps.Metrics),
	}
	s.router = s.routes()
	return s
}

func (s *Server) clientIP(r *http.Request) string { return clientIP(r, s.deps.TrustedProxies) }

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }
