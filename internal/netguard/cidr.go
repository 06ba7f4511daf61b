package netguard

import (
	"net/netip"
	"strings"

	"github.com/rendis/fastconfig/pkg/schema"
)

// Wildcard is the rule value that matches every address.
const Wildcard = "*"

// sentinels allow every client regardless of address family.
var sentinels = map[string]bool{
	"0.0.0.0":    true,
	"0.0.0.0/0":  true,
	"0.0.0.0/32": true,
	Wildcard:     true,
}

// IsSentinel reports whether the rule value is a universal match.
func IsSentinel(cidr string) bool {
	return sentinels[strings.TrimSpace(cidr)]
}

func parsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	a = a.Unmap().WithZone("")
	return netip.PrefixFrom(a, a.BitLen()), nil
}

// NormalizeCIDR returns the canonical form of a rule value: host bits are
// masked and a bare address becomes a /32 or /128. The wildcard is kept.
func NormalizeCIDR(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == Wildcard {
		return s, nil
	}
	p, err := parsePrefix(s)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeBadRequest, "invalid cidr %q", s)
	}
	return p.String(), nil
}
