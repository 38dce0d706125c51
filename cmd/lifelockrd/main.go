package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifelockr/internal/account"
	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	"lifelockr/internal/config"
	cr "lifelockr/internal/crypto"
	"lifelockr/internal/delegation"
	"lifelockr/internal/logging"
	"lifelockr/internal/metrics"
	"lifelockr/internal/notify"
	"lifelockr/internal/otp"
	"lifelockr/internal/platform"
	"lifelockr/internal/server"
	"lifelockr/internal/storage"
	"lifelockr/internal/vault"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("LIFELOCKR_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "lifelockrd:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := platform.DisableCoreDumps(); err != nil {
		logger.Warn("could not disable core dumps", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dataKey := cfg.Keys.DataKey()
	cipher, err := cr.NewCipher(dataKey)
	cr.Zero(dataKey)
	if err != nil {
		return err
	}
	secret := cfg.Keys.SigningSecret()
	tokens, err := auth.NewTokenIssuer(secret, cfg.JWTIssuer)
	cr.Zero(secret)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := storage.OpenMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(dctx)
	}()

	vctx, cancel := context.WithTimeout(ctx, time.Minute)
	if err := store.Verify(vctx); err != nil {
		logger.Error("activity log chain check failed", "err", err)
	}
	cancel()

	recorder := audit.NewRecorder(store, logger, m)
	otps := otp.NewService(store, notify.New(cfg.SMTP, logger), logger, otp.WithMetrics(m))
	accounts, err := account.NewService(store, otps, tokens, recorder, logger, auth.DefaultArgon)
	if err != nil {
		return err
	}
	deleg := delegation.NewAuthority(store, store, tokens, recorder, logger, m)
	vaults := vault.NewService(store, cipher, deleg, recorder, logger, m)

	for _, su := range cfg.SeedUsers {
		role, err := auth.ParseRole(su.Role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.Email, err)
		}
		if err := accounts.EnsurePrincipal(ctx, su.Email, su.Password, role); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
	}

	srv := server.New(server.Deps{
		Accounts:       accounts,
		Vault:          vaults,
		Delegation:     deleg,
		Logs:           store,
		Tokens:         tokens,
		Logger:         logger,
		Metrics:        m,
		CORSOrigin:     cfg.CORSOrigin,
		TrustedProxies: cfg.Proxies,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:          store.Ping,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Shutdown.String())
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

