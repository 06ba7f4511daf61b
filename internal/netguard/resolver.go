package netguard

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver determines the client IP of a request. Forwarding headers are
// only honored when the peer is a trusted proxy, unless the operator names
// a header to trust unconditionally.
type Resolver struct {
	TrustedHeader  string
	TrustedProxies []netip.Prefix
}

// ParsePrefixes parses a list of CIDRs or bare IPs.
func ParsePrefixes(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := parsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ClientIP returns the resolved client address as text. The result is not
// validated; the guard rejects malformed values.
func (r *Resolver) ClientIP(req *http.Request) string {
	if r.TrustedHeader != "" {
		if v := req.Header.Get(r.TrustedHeader); v != "" {
			return firstListValue(v)
		}
	}

	peer := peerAddr(req.RemoteAddr)
	if !r.trusted(peer) {
		return peer
	}
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		return firstListValue(xff)
	}
	if fwd := req.Header.Get("Forwarded"); fwd != "" {
		if ip := forwardedFor(fwd); ip != "" {
			return ip
		}
	}
	return peer
}

func (r *Resolver) trusted(peer string) bool {
	if len(r.TrustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range r.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return strings.Trim(remote, "[]")
	}
	return host
}

func firstListValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// forwardedFor extracts the for= node of the first element of an RFC 7239
// Forwarded header, without quotes, brackets or port.
func forwardedFor(header string) string {
	first, _, _ := strings.Cut(header, ",")
	for _, pair := range strings.Split(first, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "for") {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if strings.HasPrefix(v, "[") {
			if end := strings.Index(v, "]"); end > 0 {
				return v[1:end]
			}
			return strings.TrimPrefix(v, "[")
		}
		if strings.Count(v, ":") == 1 {
			v, _, _ = strings.Cut(v, ":")
		}
		return v
	}
	return ""
}
