package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/fastconfig/pkg/schema"
)

// SQLStore implements the Store interface on database/sql. It runs against
// libSQL (embedded SQLite fork), PostgreSQL and MySQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database for the given driver and DSN.
// MySQL DSNs must set parseTime=true.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, err.Error())
	}
	if d == DialectLibSQL {
		return NewLibSQLStore(dsn)
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &SQLStore{db: db, dialect: d}, nil
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &SQLStore{db: db, dialect: DialectLibSQL}, nil
}

// NewSQLStore wraps an already opened database handle.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// DB returns the underlying *sql.DB.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect reports the backend the store talks to.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.dialect)
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string { return s.dialect.Rebind(query) }

// inTx runs fn inside a transaction, committing on success.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// nextSeq returns the next per-parent sequence number inside tx.
func (s *SQLStore) nextSeq(ctx context.Context, tx *sql.Tx, table, parentCol, parentID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT COALESCE(MAX(seq), 0) + 1 FROM %s WHERE %s = ?`, table, parentCol)), parentID,
	).Scan(&seq)
	return seq, err
}

// --- Services ---

func (s *SQLStore) CreateService(ctx context.Context, svc *Service, first *Credential) error {
	now := time.Now().UTC()
	svc.CreatedAt = timeOr(svc.CreatedAt, now)
	svc.UpdatedAt = timeOr(svc.UpdatedAt, now)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO services (id, code, name, owner, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			svc.ID, svc.Code, svc.Name, nullStr(svc.Owner), svc.Active, svc.CreatedAt, svc.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "service %q already exists", svc.Code)
		}
		if err != nil {
			return storeErr("insert service", err)
		}
		if first == nil {
			return nil
		}
		first.ServiceID = svc.ID
		return s.insertCredential(ctx, tx, first)
	})
}

const serviceColumns = `id, code, name, owner, active, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*Service, error) {
	svc := &Service{}
	var owner sql.NullString
	if err := row.Scan(&svc.ID, &svc.Code, &svc.Name, &owner, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return nil, err
	}
	svc.Owner = owner.String
	return svc, nil
}

func (s *SQLStore) GetService(ctx context.Context, id string) (*Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+serviceColumns+` FROM services WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("service", id)
	}
	if err != nil {
		return nil, storeErr("get service", err)
	}
	return svc, nil
}

func (s *SQLStore) GetServiceByCode(ctx context.Context, code string) (*Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+serviceColumns+` FROM services WHERE code = ?`), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("service", code)
	}
	if err != nil {
		return nil, storeErr("get service", err)
	}
	return svc, nil
}

func (s *SQLStore) ListServices(ctx context.Context) ([]*Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY code`)
	if err != nil {
		return nil, storeErr("list services", err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, storeErr("scan service", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteService(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		cascade := []string{
			`DELETE FROM config_versions WHERE config_id IN (SELECT id FROM configs WHERE service_id = ?)`,
			`DELETE FROM configs WHERE service_id = ?`,
			`DELETE FROM pull_tokens WHERE service_id = ?`,
			`DELETE FROM allow_rules WHERE service_id = ?`,
			`DELETE FROM credentials WHERE service_id = ?`,
		}
		for _, stmt := range cascade {
			if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
				return storeErr("delete service data", err)
			}
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM services WHERE id = ?`), id)
		if err != nil {
			return storeErr("delete service", err)
		}
		return checkRowsAffected(res, "service", id)
	})
}

// --- Credentials ---

func (s *SQLStore) insertCredential(ctx context.Context, tx *sql.Tx, cred *Credential) error {
	seq, err := s.nextSeq(ctx, tx, "credentials", "service_id", cred.ServiceID)
	if err != nil {
		return storeErr("next credential seq", err)
	}
	cred.Seq = seq
	cred.CreatedAt = timeOr(cred.CreatedAt, time.Now().UTC())
	if cred.Status == "" {
		cred.Status = schema.CredentialActive
	}
	_, err = tx.ExecContext(ctx,
		s.q(`INSERT INTO credentials (id, service_id, access_key, secret_ciphertext, status, seq, created_at, last_rotated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		cred.ID, cred.ServiceID, cred.AccessKey, cred.SecretCiphertext, cred.Status, cred.Seq,
		cred.CreatedAt, nullTime(cred.LastRotatedAt),
	)
	if isUniqueViolation(err) {
		return schema.NewError(schema.ErrCodeConflict, "credential access key or sequence already taken")
	}
	if err != nil {
		return storeErr("insert credential", err)
	}
	return nil
}

func (s *SQLStore) CreateCredential(ctx context.Context, cred *Credential) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertCredential(ctx, tx, cred)
	})
}

const credentialColumns = `c.id, c.service_id, c.access_key, c.secret_ciphertext, c.status, c.seq, c.created_at, c.last_rotated_at`

func scanCredential(row interface{ Scan(...any) error }) (*Credential, error) {
	c := &Credential{}
	var rotated sql.NullTime
	if err := row.Scan(&c.ID, &c.ServiceID, &c.AccessKey, &c.SecretCiphertext, &c.Status, &c.Seq, &c.CreatedAt, &rotated); err != nil {
		return nil, err
	}
	if rotated.Valid {
		c.LastRotatedAt = &rotated.Time
	}
	return c, nil
}

func (s *SQLStore) GetCredential(ctx context.Context, serviceID, accessKey string) (*Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+credentialColumns+` FROM credentials c WHERE c.service_id = ? AND c.access_key = ?`),
		serviceID, accessKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("credential", accessKey)
	}
	if err != nil {
		return nil, storeErr("get credential", err)
	}
	return c, nil
}

func (s *SQLStore) ListCredentials(ctx context.Context, serviceID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+credentialColumns+` FROM credentials c WHERE c.service_id = ? ORDER BY c.seq DESC`), serviceID)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, storeErr("scan credential", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetCredentialStatus(ctx context.Context, serviceID, accessKey, status string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE credentials SET status = ? WHERE service_id = ? AND access_key = ?`),
		status, serviceID, accessKey)
	if err != nil {
		return storeErr("update credential", err)
	}
	return checkRowsAffected(res, "credential", accessKey)
}

func (s *SQLStore) LatestActiveCredential(ctx context.Context, serviceID string) (*Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+credentialColumns+` FROM credentials c
		 WHERE c.service_id = ? AND c.status = ? ORDER BY c.seq DESC LIMIT 1`),
		serviceID, schema.CredentialActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("active credential for service", serviceID)
	}
	if err != nil {
		return nil, storeErr("get active credential", err)
	}
	return c, nil
}

func (s *SQLStore) GetActiveCredential(ctx context.Context, serviceCode, accessKey string) (*Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+credentialColumns+` FROM credentials c JOIN services s ON s.id = c.service_id
		 WHERE s.code = ? AND c.access_key = ? AND c.status = ?`),
		serviceCode, accessKey, schema.CredentialActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("credential", accessKey)
	}
	if err != nil {
		return nil, storeErr("get credential", err)
	}
	return c, nil
}

// --- Pull tokens ---

// TokenHash is the lookup key stored next to each pull token.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *SQLStore) CreatePullToken(ctx context.Context, tok *PullToken) error {
	tok.TokenHash = TokenHash(tok.Token)
	tok.CreatedAt = timeOr(tok.CreatedAt, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO pull_tokens (id, service_id, env, token, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		tok.ID, tok.ServiceID, tok.Env, tok.Token, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return storeErr("insert pull token", err)
	}
	return nil
}

func (s *SQLStore) ListPullTokens(ctx context.Context, serviceID string) ([]*PullToken, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, service_id, env, token, token_hash, expires_at, created_at FROM pull_tokens
		 WHERE service_id = ? ORDER BY created_at DESC`), serviceID)
	if err != nil {
		return nil, storeErr("list pull tokens", err)
	}
	defer rows.Close()

	var out []*PullToken
	for rows.Next() {
		t := &PullToken{}
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.Env, &t.Token, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, storeErr("scan pull token", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeletePullToken(ctx context.Context, serviceID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM pull_tokens WHERE service_id = ? AND id = ?`), serviceID, id)
	if err != nil {
		return storeErr("delete pull token", err)
	}
	return checkRowsAffected(res, "token", id)
}

// PullTokenExists looks the token up by hash and then compares the stored
// string exactly.
func (s *SQLStore) PullTokenExists(ctx context.Context, serviceCode, token string) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT t.token FROM pull_tokens t JOIN services s ON s.id = t.service_id
		 WHERE s.code = ? AND t.token_hash = ?`), serviceCode, TokenHash(token))
	if err != nil {
		return false, storeErr("lookup pull token", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return false, storeErr("scan pull token", err)
		}
		if stored == token {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLStore) DeleteExpiredPullTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM pull_tokens WHERE expires_at < ?`), before)
	if err != nil {
		return 0, storeErr("delete expired pull tokens", err)
	}
	return res.RowsAffected()
}

// --- Allow rules ---

func (s *SQLStore) CreateAllowRule(ctx context.Context, rule *AllowRule) error {
	rule.CreatedAt = timeOr(rule.CreatedAt, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO allow_rules (id, service_id, env, cidr, note, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rule.ID, rule.ServiceID, nullStr(rule.Env), rule.CIDR, nullStr(rule.Note), rule.CreatedAt,
	)
	if err != nil {
		return storeErr("insert allow rule", err)
	}
	return nil
}

func (s *SQLStore) queryAllowRules(ctx context.Context, query string, args ...any) ([]*AllowRule, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, storeErr("list allow rules", err)
	}
	defer rows.Close()

	var out []*AllowRule
	for rows.Next() {
		r := &AllowRule{}
		var env, note sql.NullString
		if err := rows.Scan(&r.ID, &r.ServiceID, &env, &r.CIDR, &note, &r.CreatedAt); err != nil {
			return nil, storeErr("scan allow rule", err)
		}
		r.Env = env.String
		r.Note = note.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAllowRules(ctx context.Context, serviceID string) ([]*AllowRule, error) {
	return s.queryAllowRules(ctx,
		`SELECT id, service_id, env, cidr, note, created_at FROM allow_rules WHERE service_id = ? ORDER BY created_at`,
		serviceID)
}

// ListAllowRulesForEnv returns rules scoped to env plus rules that apply to
// every environment.
func (s *SQLStore) ListAllowRulesForEnv(ctx context.Context, serviceID, env string) ([]*AllowRule, error) {
	return s.queryAllowRules(ctx,
		`SELECT id, service_id, env, cidr, note, created_at FROM allow_rules
		 WHERE service_id = ? AND (env IS NULL OR env = '' OR env = ?) ORDER BY created_at`,
		serviceID, env)
}

func (s *SQLStore) DeleteAllowRule(ctx context.Context, serviceID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM allow_rules WHERE service_id = ? AND id = ?`), serviceID, id)
	if err != nil {
		return storeErr("delete allow rule", err)
	}
	return checkRowsAffected(res, "allow rule", id)
}

// --- Configs ---

func (s *SQLStore) insertVersion(ctx context.Context, tx *sql.Tx, v *ConfigVersion) error {
	seq, err := s.nextSeq(ctx, tx, "config_versions", "config_id", v.ConfigID)
	if err != nil {
		return storeErr("next version seq", err)
	}
	v.Seq = seq
	v.CreatedAt = timeOr(v.CreatedAt, time.Now().UTC())
	_, err = tx.ExecContext(ctx,
		s.q(`INSERT INTO config_versions (id, config_id, version, content, summary, created_by, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.ConfigID, v.Version, v.Content, nullStr(v.Summary), nullStr(v.CreatedBy), v.Seq, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "version %q already exists", v.Version)
	}
	if err != nil {
		return storeErr("insert config version", err)
	}
	return nil
}

func (s *SQLStore) CreateConfig(ctx context.Context, cfg *Config, initial *ConfigVersion) error {
	cfg.UpdatedAt = timeOr(cfg.UpdatedAt, time.Now().UTC())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO configs (id, service_id, env, format, content, schema_def, version, updated_by, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			cfg.ID, cfg.ServiceID, cfg.Env, cfg.Format, cfg.Content, nullStr(cfg.Schema), cfg.Version,
			nullStr(cfg.UpdatedBy), cfg.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "config for env %q already exists", cfg.Env)
		}
		if err != nil {
			return storeErr("insert config", err)
		}
		initial.ConfigID = cfg.ID
		initial.CreatedAt = timeOr(initial.CreatedAt, cfg.UpdatedAt)
		return s.insertVersion(ctx, tx, initial)
	})
}

const configSelect = `SELECT c.id, c.service_id, s.code, c.env, c.format, c.content, c.schema_def, c.version, c.updated_by, c.updated_at
	FROM configs c JOIN services s ON s.id = c.service_id`

func scanConfig(row interface{ Scan(...any) error }) (*Config, error) {
	c := &Config{}
	var schemaDef, updatedBy sql.NullString
	if err := row.Scan(&c.ID, &c.ServiceID, &c.ServiceCode, &c.Env, &c.Format, &c.Content, &schemaDef,
		&c.Version, &updatedBy, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Schema = schemaDef.String
	c.UpdatedBy = updatedBy.String
	return c, nil
}

func (s *SQLStore) GetConfig(ctx context.Context, id string) (*Config, error) {
	return s.getConfig(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) getConfig(ctx context.Context, q queryRower, id string) (*Config, error) {
	c, err := scanConfig(q.QueryRowContext(ctx, s.q(configSelect+` WHERE c.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("config", id)
	}
	if err != nil {
		return nil, storeErr("get config", err)
	}
	return c, nil
}

func (s *SQLStore) GetConfigByServiceEnv(ctx context.Context, serviceID, env string) (*Config, error) {
	c, err := scanConfig(s.db.QueryRowContext(ctx,
		s.q(configSelect+` WHERE c.service_id = ? AND c.env = ?`), serviceID, env))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("config", env)
	}
	if err != nil {
		return nil, storeErr("get config", err)
	}
	return c, nil
}

func (s *SQLStore) ListConfigs(ctx context.Context, filter ConfigFilter) ([]*Config, error) {
	var (
		where []string
		args  []any
	)
	if filter.ServiceCode != "" {
		where = append(where, "s.code = ?")
		args = append(args, filter.ServiceCode)
	}
	if filter.Env != "" {
		where = append(where, "c.env = ?")
		args = append(args, filter.Env)
	}
	query := configSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.code, c.env"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, storeErr("list configs", err)
	}
	defer rows.Close()

	var out []*Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, storeErr("scan config", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AdvanceConfig swaps the config's current version from ExpectedVersion to
// Next.Version and appends Next to the history, atomically. A concurrent
// writer that already moved the config makes the swap match zero rows,
// which is reported as a conflict.
func (s *SQLStore) AdvanceConfig(ctx context.Context, adv ConfigAdvance) (*Config, error) {
	var out *Config
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		set := `version = ?, content = ?, updated_by = ?, updated_at = ?`
		args := []any{adv.Next.Version, adv.Next.Content, nullStr(adv.UpdatedBy), now}
		if adv.Schema != nil {
			set += `, schema_def = ?`
			args = append(args, nullStr(*adv.Schema))
		}
		args = append(args, adv.ConfigID, adv.ExpectedVersion)

		res, err := tx.ExecContext(ctx, s.q(`UPDATE configs SET `+set+` WHERE id = ? AND version = ?`), args...)
		if err != nil {
			return storeErr("update config", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr("update config", err)
		}
		if n == 0 {
			var current string
			err := tx.QueryRowContext(ctx, s.q(`SELECT version FROM configs WHERE id = ?`), adv.ConfigID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return storeNotFound("config", adv.ConfigID)
			}
			if err != nil {
				return storeErr("read config version", err)
			}
			return schema.NewErrorf(schema.ErrCodeConflict,
				"base version %q does not match current version %q", adv.ExpectedVersion, current).
				WithDetails(map[string]any{"current_version": current})
		}

		next := adv.Next
		next.ConfigID = adv.ConfigID
		next.CreatedAt = now
		if err := s.insertVersion(ctx, tx, &next); err != nil {
			return err
		}
		out, err = s.getConfig(ctx, tx, adv.ConfigID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const versionColumns = `id, config_id, version, content, summary, created_by, seq, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*ConfigVersion, error) {
	v := &ConfigVersion{}
	var summary, createdBy sql.NullString
	if err := row.Scan(&v.ID, &v.ConfigID, &v.Version, &v.Content, &summary, &createdBy, &v.Seq, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Summary = summary.String
	v.CreatedBy = createdBy.String
	return v, nil
}

func (s *SQLStore) GetConfigVersion(ctx context.Context, configID, version string) (*ConfigVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+versionColumns+` FROM config_versions WHERE config_id = ? AND version = ?`), configID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("version", version)
	}
	if err != nil {
		return nil, storeErr("get config version", err)
	}
	return v, nil
}

// ListConfigVersions returns the history newest first.
func (s *SQLStore) ListConfigVersions(ctx context.Context, configID string) ([]*ConfigVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+versionColumns+` FROM config_versions WHERE config_id = ? ORDER BY seq DESC`), configID)
	if err != nil {
		return nil, storeErr("list config versions", err)
	}
	defer rows.Close()

	var out []*ConfigVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, storeErr("scan config version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s failed", op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOr(t, def time.Time) time.Time {
	if t.IsZero() {
		return def
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
