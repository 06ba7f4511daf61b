package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/rendis/fastconfig/internal/janitor"
	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/netguard"
	"github.com/rendis/fastconfig/internal/secrets"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/client"
)

// Config holds all fastconfig server configuration.
// Priority: remote overlay > env vars > config file > defaults.
type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	DB             DBConfig      `yaml:"db"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	MasterKey      string        `yaml:"master_key"`
	Admin          AdminConfig   `yaml:"admin"`
	JWTClockSkew   int           `yaml:"jwt_clock_skew"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	RealIPHeader   string        `yaml:"real_ip_header"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	PullRateLimit  int           `yaml:"pull_rate_limit"`
	TokenJanitor   JanitorConfig `yaml:"token_janitor"`
	Remote         RemoteConfig  `yaml:"remote"`
}

// DBConfig selects the store backend.
type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AdminConfig configures admin login.
type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// JanitorConfig configures expired-token cleanup. An empty schedule
// disables it.
type JanitorConfig struct {
	Schedule string        `yaml:"schedule"`
	Grace    time.Duration `yaml:"grace"`
}

// RemoteConfig points at another fastconfig instance whose config for
// (Service, Env) overlays this one. Keys are env-var names.
type RemoteConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Service string `yaml:"service"`
	Env     string `yaml:"env"`
}

func (r RemoteConfig) enabled() bool { return r.URL != "" }

// LogValue renders the configuration with keys, hashes, tokens and DSNs redacted.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen_addr", c.ListenAddr),
		slog.String("db_driver", c.DB.Driver),
		slog.Any("db_dsn", logging.Secret(c.DB.DSN)),
		slog.String("log_level", c.LogLevel),
		slog.String("log_format", c.LogFormat),
		slog.Any("master_key", logging.Secret(c.MasterKey)),
		slog.String("admin_username", c.Admin.Username),
		slog.Any("admin_password_hash", logging.Secret(c.Admin.PasswordHash)),
		slog.Any("admin_jwt_secret", logging.Secret(c.Admin.JWTSecret)),
		slog.Duration("admin_token_ttl", c.Admin.TokenTTL),
		slog.Int("jwt_clock_skew", c.JWTClockSkew),
		slog.Any("trusted_proxies", c.TrustedProxies),
		slog.String("real_ip_header", c.RealIPHeader),
		slog.Any("cors_origins", c.CORSOrigins),
		slog.Int("pull_rate_limit", c.PullRateLimit),
		slog.String("token_janitor_schedule", c.TokenJanitor.Schedule),
		slog.String("remote_url", c.Remote.URL),
		slog.Any("remote_token", logging.Secret(c.Remote.Token)),
	)
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":9530",
		DB:           DBConfig{Driver: string(store.DialectLibSQL), DSN: "file:" + filepath.Join(fastconfigDir(), "fastconfig.db")},
		LogLevel:     "info",
		LogFormat:    "json",
		JWTClockSkew: 60,
		TokenJanitor: JanitorConfig{Grace: janitor.DefaultGrace},
	}
}

func fastconfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fastconfig"
	}
	return filepath.Join(home, ".fastconfig")
}

// lookupFunc resolves a FASTCONFIG_* key.
type lookupFunc func(key string) (string, bool)

// remoteFetcher pulls the overlay map from a remote instance.
type remoteFetcher func(ctx context.Context, rc RemoteConfig) (map[string]string, error)

// loadConfig resolves the layered configuration once. path may be empty.
func loadConfig(ctx context.Context, path string, env lookupFunc, fetch remoteFetcher) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: config file.
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// Layer 3: env vars.
	if err := applyOverrides(&cfg, env, true); err != nil {
		return Config{}, err
	}

	// Layer 4: remote overlay.
	if cfg.Remote.enabled() && fetch != nil {
		values, err := fetch(ctx, cfg.Remote)
		if err != nil {
			return Config{}, fmt.Errorf("remote config: %w", err)
		}
		if err := applyOverrides(&cfg, mapLookup(values), false); err != nil {
			return Config{}, fmt.Errorf("remote config: %w", err)
		}
	}

	return cfg, nil
}

func mapLookup(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// applyOverrides copies FASTCONFIG_* values into cfg. The remote section
// itself can only come from local sources.
func applyOverrides(cfg *Config, lookup lookupFunc, includeRemote bool) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("FASTCONFIG_" + key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup("FASTCONFIG_" + key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup("FASTCONFIG_" + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("FASTCONFIG_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup("FASTCONFIG_" + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("FASTCONFIG_%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("DB_DRIVER", &cfg.DB.Driver)
	str("DB_DSN", &cfg.DB.DSN)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("MASTER_KEY", &cfg.MasterKey)
	str("ADMIN_USERNAME", &cfg.Admin.Username)
	str("ADMIN_PASSWORD_HASH", &cfg.Admin.PasswordHash)
	str("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	dur("ADMIN_TOKEN_TTL", &cfg.Admin.TokenTTL)
	num("JWT_CLOCK_SKEW", &cfg.JWTClockSkew)
	list("TRUSTED_PROXIES", &cfg.TrustedProxies)
	str("REAL_IP_HEADER", &cfg.RealIPHeader)
	list("CORS_ORIGINS", &cfg.CORSOrigins)
	num("PULL_RATE_LIMIT", &cfg.PullRateLimit)
	str("TOKEN_JANITOR_SCHEDULE", &cfg.TokenJanitor.Schedule)
	dur("TOKEN_JANITOR_GRACE", &cfg.TokenJanitor.Grace)
	if includeRemote {
		str("REMOTE_URL", &cfg.Remote.URL)
		str("REMOTE_TOKEN", &cfg.Remote.Token)
		str("REMOTE_SERVICE", &cfg.Remote.Service)
		str("REMOTE_ENV", &cfg.Remote.Env)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// fetchRemote pulls the overlay with the Go client.
func fetchRemote(ctx context.Context, rc RemoteConfig) (map[string]string, error) {
	c, err := client.New(rc.URL, rc.Token)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()
	resp, _, err := c.Pull(ctx, rc.Service, rc.Env)
	if err != nil {
		return nil, err
	}
	return client.Values(resp), nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	d, err := store.ParseDialect(c.DB.Driver)
	if err != nil {
		errs = append(errs, err)
	}
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required"))
	} else if d == store.DialectMySQL {
		if mc, err := mysql.ParseDSN(c.DB.DSN); err != nil {
			errs = append(errs, fmt.Errorf("db.dsn: %w", err))
		} else if !mc.ParseTime {
			errs = append(errs, errors.New("db.dsn: mysql dsn must set parseTime=true"))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not one of json, text", c.LogFormat))
	}
	if c.MasterKey != "" {
		if _, err := secrets.ParseMasterKey(c.MasterKey); err != nil {
			errs = append(errs, fmt.Errorf("master_key: %w", err))
		}
	}
	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 16 {
		errs = append(errs, errors.New("admin.jwt_secret must be at least 16 bytes"))
	}
	if c.Admin.TokenTTL < 0 {
		errs = append(errs, errors.New("admin.token_ttl must not be negative"))
	}
	if c.JWTClockSkew < 0 {
		errs = append(errs, errors.New("jwt_clock_skew must not be negative"))
	}
	if _, err := netguard.ParsePrefixes(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("trusted_proxies: %w", err))
	}
	if c.PullRateLimit < 0 {
		errs = append(errs, errors.New("pull_rate_limit must not be negative"))
	}
	if c.TokenJanitor.Schedule != "" {
		if _, err := janitor.ParseSchedule(c.TokenJanitor.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("token_janitor.schedule: %w", err))
		}
	}
	if c.Remote.enabled() && (c.Remote.Token == "" || c.Remote.Service == "" || c.Remote.Env == "") {
		errs = append(errs, errors.New("remote.token, remote.service and remote.env are required with remote.url"))
	}

	return errors.Join(errs...)
}
