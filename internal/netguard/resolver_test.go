package netguard

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name     string
		resolver Resolver
		remote   string
		headers  map[string]string
		want     string
	}{
		{
			name:   "peer only",
			remote: "203.0.113.7:5555",
			want:   "203.0.113.7",
		},
		{
			name:     "untrusted peer ignores xff",
			resolver: Resolver{TrustedProxies: proxies},
			remote:   "203.0.113.7:5555",
			headers:  map[string]string{"X-Forwarded-For": "1.1.1.1"},
			want:     "203.0.113.7",
		},
		{
			name:    "no proxies configured ignores xff",
			remote:  "10.1.2.3:5555",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1"},
			want:    "10.1.2.3",
		},
		{
			name:     "trusted peer uses first xff",
			resolver: Resolver{TrustedProxies: proxies},
			remote:   "10.1.2.3:5555",
			headers:  map[string]string{"X-Forwarded-For": " 198.51.100.4 , 10.9.9.9"},
			want:     "198.51.100.4",
		},
		{
			name:     "trusted peer falls back to forwarded",
			resolver: Resolver{TrustedProxies: proxies},
			remote:   "10.1.2.3:5555",
			headers:  map[string]string{"Forwarded": `proto=https;for="198.51.100.9:4711";by=10.1.2.3, for=1.1.1.1`},
			want:     "198.51.100.9",
		},
		{
			name:     "forwarded ipv6 with brackets",
			resolver: Resolver{TrustedProxies: proxies},
			remote:   "10.1.2.3:5555",
			headers:  map[string]string{"Forwarded": `For="[2001:db8:cafe::17]:4711"`},
			want:     "2001:db8:cafe::17",
		},
		{
			name:     "trusted peer without headers",
			resolver: Resolver{TrustedProxies: proxies},
			remote:   "10.1.2.3:5555",
			want:     "10.1.2.3",
		},
		{
			name:     "trusted header wins unconditionally",
			resolver: Resolver{TrustedHeader: "X-Real-IP"},
			remote:   "203.0.113.7:5555",
			headers:  map[string]string{"X-Real-IP": "192.0.2.1, 192.0.2.2", "X-Forwarded-For": "1.1.1.1"},
			want:     "192.0.2.1",
		},
		{
			name:     "trusted header absent falls through",
			resolver: Resolver{TrustedHeader: "X-Real-IP"},
			remote:   "203.0.113.7:5555",
			want:     "203.0.113.7",
		},
		{
			name:   "ipv6 peer",
			remote: "[2001:db8::1]:443",
			want:   "2001:db8::1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(req))
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	got, err := ParsePrefixes([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "192.168.1.5/32", got[1].String())

	_, err = ParsePrefixes([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestNormalizeCIDR(t *testing.T) {
	tests := map[string]string{
		"10.1.2.3/8":      "10.0.0.0/8",
		"192.168.1.7":     "192.168.1.7/32",
		" 2001:db8::1 ":   "2001:db8::1/128",
		"2001:db8::1/32":  "2001:db8::/32",
		"*":               "*",
		"0.0.0.0/0":       "0.0.0.0/0",
		"::ffff:10.0.0.1": "10.0.0.1/32",
	}
	for in, want := range tests {
		got, err := NormalizeCIDR(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "10.0.0.0/33", "abc", "10.0.0"} {
		_, err := NormalizeCIDR(bad)
		assert.Error(t, err, bad)
	}
}
