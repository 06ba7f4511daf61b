package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rendis/fastconfig/internal/api"
	"github.com/rendis/fastconfig/internal/configstore"
	"github.com/rendis/fastconfig/internal/identity"
	"github.com/rendis/fastconfig/internal/janitor"
	"github.com/rendis/fastconfig/internal/metrics"
	"github.com/rendis/fastconfig/internal/netguard"
	"github.com/rendis/fastconfig/internal/pull"
	"github.com/rendis/fastconfig/internal/secrets"
	"github.com/rendis/fastconfig/internal/token"
	"github.com/rendis/fastconfig/internal/validation"
)

const shutdownTimeout = 15 * time.Second

// serve wires every component and runs the HTTP server until ctx is done.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	logger.Debug("configuration loaded", slog.Any("config", cfg))
	if cfg.MasterKey == "" {
		return errors.New("master_key is required (generate one with `fastconfig keygen`)")
	}
	masterKey, err := secrets.ParseMasterKey(cfg.MasterKey)
	if err != nil {
		return err
	}
	vault, err := secrets.NewAESVault(secrets.VaultConfig{MasterKey: masterKey})
	memguard.WipeBytes(masterKey)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("store ready", slog.String("dialect", string(db.Dialect())))

	adminSecret := []byte(cfg.Admin.JWTSecret)
	if len(adminSecret) == 0 {
		adminSecret = make([]byte, 32)
		if _, err := rand.Read(adminSecret); err != nil {
			return fmt.Errorf("generate admin secret: %w", err)
		}
		logger.Warn("admin.jwt_secret not set; admin sessions will not survive a restart")
	}
	admin, err := token.NewAdminAuth(token.AdminConfig{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
		Secret:       adminSecret,
		TTL:          cfg.Admin.TokenTTL,
	})
	if err != nil {
		return err
	}
	if !admin.Enabled() {
		logger.Warn("admin login disabled; set admin.username and admin.password_hash")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	proxies, err := netguard.ParsePrefixes(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	resolver := &netguard.Resolver{TrustedHeader: cfg.RealIPHeader, TrustedProxies: proxies}

	services := identity.NewManager(db, vault, logger)
	guard := netguard.NewGuard(db, logger)
	verifier := token.NewVerifier(db, vault, token.VerifierConfig{
		Leeway: time.Duration(cfg.JWTClockSkew) * time.Second,
	})

	srv := api.NewServer(api.Deps{
		Store:    db,
		Services: services,
		Tokens:   token.NewIssuer(db, services, token.IssuerConfig{}, logger),
		Guard:    guard,
		Configs:  configstore.New(db, validation.NewSchemaChecker(), logger),
		Gateway:  pull.NewGateway(verifier, guard, db, pull.WithObserver(m), pull.WithLogger(logger)),
		Admin:    admin,
		Resolver: resolver,
		Metrics:  m,
		Logger:   logger,
	}, api.Options{
		CORSOrigins:   cfg.CORSOrigins,
		PullRateLimit: cfg.PullRateLimit,
	})

	if cfg.TokenJanitor.Schedule != "" {
		j, err := janitor.New(db, janitor.Config{
			Schedule: cfg.TokenJanitor.Schedule,
			Grace:    cfg.TokenJanitor.Grace,
		}, m, logger)
		if err != nil {
			return err
		}
		if err := j.Start(ctx); err != nil {
			return err
		}
		defer j.Stop()
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
