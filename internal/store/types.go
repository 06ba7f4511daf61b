package store

import "time"

// Service is a registered tenant. Code is its public, unique identifier.
type Service struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credential is an access-key / secret-key pair owned by a service.
// Only the vault ciphertext of the secret key is persisted.
type Credential struct {
	ID               string     `json:"id"`
	ServiceID        string     `json:"service_id"`
	AccessKey        string     `json:"ak"`
	SecretCiphertext []byte     `json:"-"`
	Status           string     `json:"status"`
	Seq              int64      `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	LastRotatedAt    *time.Time `json:"last_rotated_at,omitempty"`
}

// PullToken mirrors an issued pull token. Deleting the row revokes the token.
type PullToken struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	Env       string    `json:"env"`
	Token     string    `json:"token"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowRule grants pull access from a CIDR range. An empty Env applies to
// every environment of the service.
type AllowRule struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	Env       string    `json:"env,omitempty"`
	CIDR      string    `json:"cidr"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Config is the current configuration of one (service, env) pair.
// Version and Content always equal the latest ConfigVersion row.
type Config struct {
	ID          string    `json:"id"`
	ServiceID   string    `json:"service_id"`
	ServiceCode string    `json:"service_code"`
	Env         string    `json:"env"`
	Format      string    `json:"format"`
	Content     string    `json:"content"`
	Schema      string    `json:"schema_def,omitempty"`
	Version     string    `json:"version"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConfigVersion is an immutable snapshot in a config's history.
type ConfigVersion struct {
	ID        string    `json:"id"`
	ConfigID  string    `json:"config_id"`
	Version   string    `json:"version"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// ConfigFilter narrows ListConfigs. Empty fields match everything.
type ConfigFilter struct {
	ServiceCode string
	Env         string
}

// ConfigAdvance describes one compare-and-swap step of a config: if the
// config's current version equals ExpectedVersion, Next is appended to its
// history and becomes current.
type ConfigAdvance struct {
	ConfigID        string
	ExpectedVersion string
	Next            ConfigVersion
	Schema          *string // nil keeps the current schema
	UpdatedBy       string
}
