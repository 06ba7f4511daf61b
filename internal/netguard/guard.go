package netguard

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// Guard evaluates and manages per-service IP allow rules. It fails closed:
// a service without matching rules rejects every client.
type Guard struct {
	store  store.Store
	logger *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(s store.Store, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{store: s, logger: logger}
}

// IsAllowed reports whether ip may pull configs of (serviceID, env).
func (g *Guard) IsAllowed(ctx context.Context, serviceID, env, ip string) (bool, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false, schema.NewError(schema.ErrCodeForbidden, "client ip invalid")
	}
	addr = addr.Unmap().WithZone("")

	rules, err := g.store.ListAllowRulesForEnv(ctx, serviceID, env)
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if r.Env != "" && r.Env != env {
			continue
		}
		if IsSentinel(r.CIDR) {
			return true, nil
		}
		p, err := parsePrefix(strings.TrimSpace(r.CIDR))
		if err != nil {
			logging.LogWith(ctx, g.logger).Warn("skipping unparsable allow rule", "rule_id", r.ID, "cidr", r.CIDR)
			continue
		}
		if p.Contains(addr) {
			return true, nil
		}
	}
	return false, nil
}

// AddRule stores a normalized rule. An empty env applies to all envs.
func (g *Guard) AddRule(ctx context.Context, serviceCode, env, cidr, note string) (*store.AllowRule, error) {
	env = strings.TrimSpace(env)
	if env != "" {
		if err := schema.ValidateName("env", env); err != nil {
			return nil, err
		}
	}
	normalized, err := NormalizeCIDR(cidr)
	if err != nil {
		return nil, err
	}
	svc, err := g.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	rule := &store.AllowRule{
		ID:        uuid.New().String(),
		ServiceID: svc.ID,
		Env:       env,
		CIDR:      normalized,
		Note:      strings.TrimSpace(note),
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.CreateAllowRule(ctx, rule); err != nil {
		return nil, err
	}
	logging.LogWith(logging.WithTarget(ctx, serviceCode, env), g.logger).Info("allow rule added",
		"rule_id", rule.ID, "cidr", rule.CIDR)
	return rule, nil
}

// ListRules returns every rule of the service.
func (g *Guard) ListRules(ctx context.Context, serviceCode string) ([]*store.AllowRule, error) {
	svc, err := g.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	return g.store.ListAllowRules(ctx, svc.ID)
}

// DeleteRule removes one rule of the service.
func (g *Guard) DeleteRule(ctx context.Context, serviceCode, id string) error {
	svc, err := g.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return err
	}
	if err := g.store.DeleteAllowRule(ctx, svc.ID, id); err != nil {
		return err
	}
	logging.LogWith(logging.WithServiceCode(ctx, serviceCode), g.logger).Info("allow rule deleted", "rule_id", id)
	return nil
}
