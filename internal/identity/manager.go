package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/secrets"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// Manager owns services and their credentials. Secret keys are encrypted
// with the vault before they reach the store and are only returned in
// plaintext at creation time.
type Manager struct {
	store  store.Store
	vault  secrets.Vault
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(s store.Store, v secrets.Vault, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{store: s, vault: v, logger: logger}
}

// RegisterService creates a service together with its first credential.
func (m *Manager) RegisterService(ctx context.Context, code, name, owner string) (*store.Service, *schema.IssuedCredential, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if err := schema.ValidateName("code", code); err != nil {
		return nil, nil, err
	}
	if name == "" {
		return nil, nil, schema.NewError(schema.ErrCodeBadRequest, "name is required")
	}

	cred, issued, err := m.newCredential()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	svc := &store.Service{
		ID:        uuid.New().String(),
		Code:      code,
		Name:      name,
		Owner:     strings.TrimSpace(owner),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateService(ctx, svc, cred); err != nil {
		return nil, nil, err
	}

	logging.LogWith(logging.WithServiceCode(ctx, code), m.logger).Info("service registered",
		"service_id", svc.ID, "access_key", issued.AccessKey)
	return svc, issued, nil
}

// GetService resolves a service by code.
func (m *Manager) GetService(ctx context.Context, code string) (*store.Service, error) {
	return m.store.GetServiceByCode(ctx, code)
}

// ListServices returns all services ordered by code.
func (m *Manager) ListServices(ctx context.Context) ([]*store.Service, error) {
	return m.store.ListServices(ctx)
}

// DeleteService removes a service and everything it owns.
func (m *Manager) DeleteService(ctx context.Context, code string) error {
	svc, err := m.store.GetServiceByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := m.store.DeleteService(ctx, svc.ID); err != nil {
		return err
	}
	logging.LogWith(logging.WithServiceCode(ctx, code), m.logger).Info("service deleted", "service_id", svc.ID)
	return nil
}

// Issue creates a new active credential for the service.
func (m *Manager) Issue(ctx context.Context, serviceCode string) (*schema.IssuedCredential, error) {
	svc, err := m.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	cred, issued, err := m.newCredential()
	if err != nil {
		return nil, err
	}
	cred.ServiceID = svc.ID
	if err := m.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithServiceCode(ctx, serviceCode), m.logger).Info("credential issued",
		"access_key", issued.AccessKey)
	return issued, nil
}

// Disable marks a credential disabled. Disabling an already disabled
// credential succeeds.
func (m *Manager) Disable(ctx context.Context, serviceCode, accessKey string) error {
	svc, err := m.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return err
	}
	cred, err := m.store.GetCredential(ctx, svc.ID, accessKey)
	if err != nil {
		return err
	}
	if cred.Status == schema.CredentialDisabled {
		return nil
	}
	if err := m.store.SetCredentialStatus(ctx, svc.ID, accessKey, schema.CredentialDisabled); err != nil {
		return err
	}

	logging.LogWith(logging.WithServiceCode(ctx, serviceCode), m.logger).Info("credential disabled",
		"access_key", accessKey)
	return nil
}

// List returns the service's credentials, newest first, without secrets.
func (m *Manager) List(ctx context.Context, serviceCode string) ([]*store.Credential, error) {
	svc, err := m.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	creds, err := m.store.ListCredentials(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		c.SecretCiphertext = nil
	}
	return creds, nil
}

// SelectActiveSigningCredential returns the most recently created active
// credential of the service.
func (m *Manager) SelectActiveSigningCredential(ctx context.Context, serviceID string) (*store.Credential, error) {
	cred, err := m.store.LatestActiveCredential(ctx, serviceID)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, schema.NewError(schema.ErrCodeInvalidState, "no active credential")
	}
	return cred, err
}

// SecretKey decrypts the credential's secret key.
func (m *Manager) SecretKey(cred *store.Credential) ([]byte, error) {
	return m.vault.Decrypt(cred.SecretCiphertext)
}

func (m *Manager) newCredential() (*store.Credential, *schema.IssuedCredential, error) {
	ak, sk, err := m.vault.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	ct, err := m.vault.Encrypt([]byte(sk))
	if err != nil {
		return nil, nil, err
	}
	cred := &store.Credential{
		ID:               uuid.New().String(),
		AccessKey:        ak,
		SecretCiphertext: ct,
		Status:           schema.CredentialActive,
		CreatedAt:        time.Now().UTC(),
	}
	return cred, &schema.IssuedCredential{AccessKey: ak, SecretKey: sk}, nil
}
