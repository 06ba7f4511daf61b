package configstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// Default history summaries.
const (
	SummaryCreate = "initial version"
	SummaryUpdate = "update"
	SummaryImport = "import"
)

// SchemaChecker validates schema definitions attached to configs.
type SchemaChecker interface {
	Check(text string) error
}

// CreateRequest creates the first version of a (service, env) config.
type CreateRequest struct {
	ServiceCode string          `json:"service_code"`
	Env         string          `json:"env"`
	Format      string          `json:"format,omitempty"`
	Version     string          `json:"version"`
	Content     json.RawMessage `json:"content"`
	Schema      string          `json:"schema_def,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
}

// UpdateRequest moves a config from BaseVersion to Version. A nil Schema
// keeps the current schema.
type UpdateRequest struct {
	ConfigID    string          `json:"-"`
	BaseVersion string          `json:"base_version"`
	Version     string          `json:"version"`
	Content     json.RawMessage `json:"content"`
	Schema      *string         `json:"schema_def,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
}

// RollbackRequest republishes the content of TargetVersion as Version.
type RollbackRequest struct {
	ConfigID      string `json:"-"`
	TargetVersion string `json:"target_version"`
	Version       string `json:"version"`
	Summary       string `json:"summary,omitempty"`
	UpdatedBy     string `json:"updated_by,omitempty"`
}

// ImportRequest loads KEY=VALUE text into a config, creating it when absent.
// An empty BaseVersion on an existing config overwrites whatever version is
// current when the import starts.
type ImportRequest struct {
	ServiceCode string `json:"service_code"`
	Env         string `json:"env"`
	Text        string `json:"text"`
	Version     string `json:"version"`
	BaseVersion string `json:"base_version,omitempty"`
	UpdatedBy   string `json:"updated_by,omitempty"`
}

// Filter narrows List.
type Filter = store.ConfigFilter

// Store implements versioned config editing on top of the persistence layer.
// Every write is a compare-and-swap on the config's current version; there
// are no automatic retries.
type Store struct {
	db      store.Store
	schemas SchemaChecker
	logger  *slog.Logger
}

// New creates a Store.
func New(db store.Store, schemas SchemaChecker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{db: db, schemas: schemas, logger: logger}
}

func (s *Store) checkSchema(text string) error {
	if s.schemas == nil {
		return nil
	}
	return s.schemas.Check(text)
}

// Create stores the first version of a config.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*store.Config, error) {
	env := strings.TrimSpace(req.Env)
	if err := schema.ValidateName("env", env); err != nil {
		return nil, err
	}
	if err := schema.ValidateVersion("version", req.Version); err != nil {
		return nil, err
	}
	if err := schema.ValidateFormat(req.Format); err != nil {
		return nil, err
	}
	values, err := NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	if err := s.checkSchema(req.Schema); err != nil {
		return nil, err
	}
	svc, err := s.db.GetServiceByCode(ctx, req.ServiceCode)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, svc, env, req.Version, values, req.Schema, orDefault(req.Summary, SummaryCreate), req.UpdatedBy)
}

func (s *Store) create(ctx context.Context, svc *store.Service, env, version string, values map[string]string, schemaDef, summary, by string) (*store.Config, error) {
	content, err := EncodeContent(values)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	cfg := &store.Config{
		ID:          uuid.New().String(),
		ServiceID:   svc.ID,
		ServiceCode: svc.Code,
		Env:         env,
		Format:      schema.FormatJSON,
		Content:     content,
		Schema:      schemaDef,
		Version:     version,
		UpdatedBy:   by,
		UpdatedAt:   now,
	}
	initial := &store.ConfigVersion{
		ID:        uuid.New().String(),
		Version:   version,
		Content:   content,
		Summary:   summary,
		CreatedBy: by,
		CreatedAt: now,
	}
	if err := s.db.CreateConfig(ctx, cfg, initial); err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithTarget(ctx, svc.Code, env), s.logger).Info("config created",
		"config_id", cfg.ID, "version", version)
	return cfg, nil
}

// Update writes a new version if the config is still at BaseVersion.
func (s *Store) Update(ctx context.Context, req UpdateRequest) (*store.Config, error) {
	if err := schema.ValidateVersion("base_version", req.BaseVersion); err != nil {
		return nil, err
	}
	if err := schema.ValidateVersion("version", req.Version); err != nil {
		return nil, err
	}
	values, err := NormalizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	if req.Schema != nil {
		if err := s.checkSchema(*req.Schema); err != nil {
			return nil, err
		}
	}
	content, err := EncodeContent(values)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, req.ConfigID, req.BaseVersion, req.Version, content, req.Schema,
		orDefault(req.Summary, SummaryUpdate), req.UpdatedBy)
}

// Rollback republishes an old snapshot under a new version. History is
// never rewritten and the schema is left unchanged.
func (s *Store) Rollback(ctx context.Context, req RollbackRequest) (*store.Config, error) {
	if err := schema.ValidateVersion("target_version", req.TargetVersion); err != nil {
		return nil, err
	}
	if err := schema.ValidateVersion("version", req.Version); err != nil {
		return nil, err
	}
	cfg, err := s.db.GetConfig(ctx, req.ConfigID)
	if err != nil {
		return nil, err
	}
	target, err := s.db.GetConfigVersion(ctx, cfg.ID, req.TargetVersion)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, cfg.ID, cfg.Version, req.Version, target.Content, nil,
		orDefault(req.Summary, "rollback to "+req.TargetVersion), req.UpdatedBy)
}

func (s *Store) advance(ctx context.Context, configID, base, version, content string, schemaDef *string, summary, by string) (*store.Config, error) {
	cfg, err := s.db.AdvanceConfig(ctx, store.ConfigAdvance{
		ConfigID:        configID,
		ExpectedVersion: base,
		Next: store.ConfigVersion{
			ID:        uuid.New().String(),
			Version:   version,
			Content:   content,
			Summary:   summary,
			CreatedBy: by,
		},
		Schema:    schemaDef,
		UpdatedBy: by,
	})
	if err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithTarget(ctx, cfg.ServiceCode, cfg.Env), s.logger).Info("config version written",
		"config_id", cfg.ID, "base_version", base, "version", version, "summary", summary)
	return cfg, nil
}

// Diff returns a unified diff between two versions of a config.
func (s *Store) Diff(ctx context.Context, configID, from, to string) (string, error) {
	if from == "" || to == "" {
		return "", schema.NewError(schema.ErrCodeBadRequest, "from and to are required")
	}
	a, err := s.db.GetConfigVersion(ctx, configID, from)
	if err != nil {
		return "", err
	}
	b, err := s.db.GetConfigVersion(ctx, configID, to)
	if err != nil {
		return "", err
	}
	text, err := UnifiedDiff(from, to, a.Content, b.Content)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeInternal, "diff failed").WithCause(err)
	}
	return text, nil
}

// ListVersions returns a config's history, oldest first.
func (s *Store) ListVersions(ctx context.Context, configID string) ([]*store.ConfigVersion, error) {
	if _, err := s.db.GetConfig(ctx, configID); err != nil {
		return nil, err
	}
	versions, err := s.db.ListConfigVersions(ctx, configID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// Import parses env text and creates or updates the (service, env) config.
func (s *Store) Import(ctx context.Context, req ImportRequest) (*store.Config, error) {
	env := strings.TrimSpace(req.Env)
	if err := schema.ValidateName("env", env); err != nil {
		return nil, err
	}
	if err := schema.ValidateVersion("version", req.Version); err != nil {
		return nil, err
	}
	if req.BaseVersion != "" {
		if err := schema.ValidateVersion("base_version", req.BaseVersion); err != nil {
			return nil, err
		}
	}
	svc, err := s.db.GetServiceByCode(ctx, req.ServiceCode)
	if err != nil {
		return nil, err
	}
	values := ParseEnvText(req.Text)

	current, err := s.db.GetConfigByServiceEnv(ctx, svc.ID, env)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return s.create(ctx, svc, env, req.Version, values, "", SummaryImport, req.UpdatedBy)
	}
	if err != nil {
		return nil, err
	}

	base := req.BaseVersion
	if base == "" {
		base = current.Version
	}
	content, err := EncodeContent(values)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, current.ID, base, req.Version, content, nil, SummaryImport, req.UpdatedBy)
}

// Get returns a config by id.
func (s *Store) Get(ctx context.Context, id string) (*store.Config, error) {
	return s.db.GetConfig(ctx, id)
}

// List returns configs matching the filter.
func (s *Store) List(ctx context.Context, filter Filter) ([]*store.Config, error) {
	return s.db.ListConfigs(ctx, filter)
}

// ForTarget returns the current config of (serviceID, env).
func (s *Store) ForTarget(ctx context.Context, serviceID, env string) (*store.Config, error) {
	return s.db.GetConfigByServiceEnv(ctx, serviceID, env)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
