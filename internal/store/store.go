package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use and must uphold the
// uniqueness constraints: services.code, credentials.access_key,
// (configs.service_id, configs.env) and (config_versions.config_id, config_versions.version).
type Store interface {
	// Services
	CreateService(ctx context.Context, svc *Service, first *Credential) error
	GetService(ctx context.Context, id string) (*Service, error)
	GetServiceByCode(ctx context.Context, code string) (*Service, error)
	ListServices(ctx context.Context) ([]*Service, error)
	// DeleteService removes the service and every row it owns in one
	// transaction: config versions, configs, tokens, allow rules, credentials.
	DeleteService(ctx context.Context, id string) error

	// Credentials
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, serviceID, accessKey string) (*Credential, error)
	ListCredentials(ctx context.Context, serviceID string) ([]*Credential, error)
	SetCredentialStatus(ctx context.Context, serviceID, accessKey, status string) error
	LatestActiveCredential(ctx context.Context, serviceID string) (*Credential, error)
	GetActiveCredential(ctx context.Context, serviceCode, accessKey string) (*Credential, error)

	// Pull tokens
	CreatePullToken(ctx context.Context, tok *PullToken) error
	ListPullTokens(ctx context.Context, serviceID string) ([]*PullToken, error)
	DeletePullToken(ctx context.Context, serviceID, id string) error
	PullTokenExists(ctx context.Context, serviceCode, token string) (bool, error)
	DeleteExpiredPullTokens(ctx context.Context, before time.Time) (int64, error)

	// Allow rules
	CreateAllowRule(ctx context.Context, rule *AllowRule) error
	ListAllowRules(ctx context.Context, serviceID string) ([]*AllowRule, error)
	ListAllowRulesForEnv(ctx context.Context, serviceID, env string) ([]*AllowRule, error)
	DeleteAllowRule(ctx context.Context, serviceID, id string) error

	// Configs (append-only history)
	CreateConfig(ctx context.Context, cfg *Config, initial *ConfigVersion) error
	GetConfig(ctx context.Context, id string) (*Config, error)
	GetConfigByServiceEnv(ctx context.Context, serviceID, env string) (*Config, error)
	ListConfigs(ctx context.Context, filter ConfigFilter) ([]*Config, error)
	AdvanceConfig(ctx context.Context, adv ConfigAdvance) (*Config, error)
	GetConfigVersion(ctx context.Context, configID, version string) (*ConfigVersion, error)
	ListConfigVersions(ctx context.Context, configID string) ([]*ConfigVersion, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
