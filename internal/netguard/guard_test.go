package netguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// mockRuleStore satisfies the store.Store methods used by the guard.
type mockRuleStore struct {
	store.Store
	services map[string]*store.Service // by code
	rules    []*store.AllowRule
}

func newMockRuleStore(codes ...string) *mockRuleStore {
	m := &mockRuleStore{services: map[string]*store.Service{}}
	for _, c := range codes {
		m.services[c] = &store.Service{ID: "id-" + c, Code: c}
	}
	return m
}

func (m *mockRuleStore) GetServiceByCode(_ context.Context, code string) (*store.Service, error) {
	s, ok := m.services[code]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "service %q not found", code)
	}
	return s, nil
}

func (m *mockRuleStore) CreateAllowRule(_ context.Context, r *store.AllowRule) error {
	m.rules = append(m.rules, r)
	return nil
}

func (m *mockRuleStore) ListAllowRules(_ context.Context, serviceID string) ([]*store.AllowRule, error) {
	var out []*store.AllowRule
	for _, r := range m.rules {
		if r.ServiceID == serviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleStore) ListAllowRulesForEnv(_ context.Context, serviceID, env string) ([]*store.AllowRule, error) {
	var out []*store.AllowRule
	for _, r := range m.rules {
		if r.ServiceID == serviceID && (r.Env == "" || r.Env == env) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleStore) DeleteAllowRule(_ context.Context, serviceID, id string) error {
	for i, r := range m.rules {
		if r.ServiceID == serviceID && r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "allow rule %q not found", id)
}

func TestIsAllowed_NoRulesRejects(t *testing.T) {
	g := NewGuard(newMockRuleStore("svc"), nil)
	for _, ip := range []string{"127.0.0.1", "10.0.0.1", "2001:db8::1"} {
		ok, err := g.IsAllowed(context.Background(), "id-svc", "prod", ip)
		require.NoError(t, err)
		assert.False(t, ok, ip)
	}
}

func TestIsAllowed_InvalidIP(t *testing.T) {
	g := NewGuard(newMockRuleStore("svc"), nil)
	_, err := g.IsAllowed(context.Background(), "id-svc", "prod", "not-an-ip")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeForbidden))
	assert.Contains(t, err.Error(), "client ip invalid")
}

func TestIsAllowed_Sentinels(t *testing.T) {
	for _, sentinel := range []string{"0.0.0.0", "0.0.0.0/0", "0.0.0.0/32", "*"} {
		t.Run(sentinel, func(t *testing.T) {
			ms := newMockRuleStore("svc")
			ms.rules = []*store.AllowRule{{ID: "r1", ServiceID: "id-svc", CIDR: sentinel}}
			g := NewGuard(ms, nil)
			for _, ip := range []string{"1.2.3.4", "255.255.255.255", "10.0.0.1"} {
				ok, err := g.IsAllowed(context.Background(), "id-svc", "prod", ip)
				require.NoError(t, err)
				assert.True(t, ok, ip)
			}
		})
	}
}

func TestIsAllowed_EnvScoping(t *testing.T) {
	ctx := context.Background()
	ms := newMockRuleStore("svc")
	g := NewGuard(ms, nil)
	_, err := g.AddRule(ctx, "svc", "prod", "192.168.1.0/24", "")
	require.NoError(t, err)

	ok, err := g.IsAllowed(ctx, "id-svc", "prod", "192.168.1.50")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsAllowed(ctx, "id-svc", "staging", "192.168.1.50")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.AddRule(ctx, "svc", "", "192.168.1.0/24", "all envs")
	require.NoError(t, err)
	ok, err = g.IsAllowed(ctx, "id-svc", "staging", "192.168.1.50")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAllowed_CIDRMatching(t *testing.T) {
	ctx := context.Background()
	ms := newMockRuleStore("svc")
	ms.rules = []*store.AllowRule{
		{ID: "bad", ServiceID: "id-svc", CIDR: "garbage"},
		{ID: "v4", ServiceID: "id-svc", CIDR: "10.0.0.0/8"},
		{ID: "v6", ServiceID: "id-svc", CIDR: "2001:db8::/32"},
		{ID: "host", ServiceID: "id-svc", CIDR: "203.0.113.9"},
	}
	g := NewGuard(ms, nil)

	tests := map[string]bool{
		"10.200.1.1":      true,
		"::ffff:10.0.0.1": true,
		"11.0.0.1":        false,
		"2001:db8:1::5":   true,
		"2001:db9::1":     false,
		"203.0.113.9":     true,
		"203.0.113.10":    false,
		" 10.0.0.1 ":      true,
	}
	for ip, want := range tests {
		ok, err := g.IsAllowed(ctx, "id-svc", "prod", ip)
		require.NoError(t, err, ip)
		assert.Equal(t, want, ok, ip)
	}
}

func TestRuleManagement(t *testing.T) {
	ctx := context.Background()
	ms := newMockRuleStore("svc")
	g := NewGuard(ms, nil)

	rule, err := g.AddRule(ctx, "svc", "prod", "10.1.2.3/8", " office ")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", rule.CIDR)
	assert.Equal(t, "office", rule.Note)

	_, err = g.AddRule(ctx, "svc", "", "nope", "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeBadRequest))

	_, err = g.AddRule(ctx, "missing", "", "10.0.0.0/8", "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	list, err := g.ListRules(ctx, "svc")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, g.DeleteRule(ctx, "svc", rule.ID))
	err = g.DeleteRule(ctx, "svc", rule.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
