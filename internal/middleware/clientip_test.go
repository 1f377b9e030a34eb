package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProxyTrustResolve(t *testing.T) {
	trusted := NewProxyTrust(true, []string{"10.0.0.0/8", "192.0.2.10", "not-an-ip"})

	tests := []struct {
		name      string
		trust     ProxyTrust
		peer      string
		forwarded string
		realIP    string
		want      string
	}{
		{name: "headers disabled", trust: NewProxyTrust(false, []string{"10.0.0.0/8"}), peer: "10.1.2.3:80", forwarded: "198.51.100.1", want: "10.1.2.3"},
		{name: "untrusted peer", trust: trusted, peer: "203.0.113.7:5000", forwarded: "198.51.100.1", want: "203.0.113.7"},
		{name: "empty proxy list", trust: NewProxyTrust(true, nil), peer: "10.1.2.3:80", forwarded: "198.51.100.1", want: "10.1.2.3"},
		{name: "trusted cidr peer", trust: trusted, peer: "10.1.2.3:80", forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "trusted single peer", trust: trusted, peer: "192.0.2.10:80", forwarded: "198.51.100.1", want: "198.51.100.1"},
		{name: "spoofed leading hop", trust: trusted, peer: "10.1.2.3:80", forwarded: "1.1.1.1, 198.51.100.1", want: "198.51.100.1"},
		{name: "chained proxies", trust: trusted, peer: "10.1.2.3:80", forwarded: "198.51.100.1, 10.9.9.9", want: "198.51.100.1"},
		{name: "all hops trusted", trust: trusted, peer: "10.1.2.3:80", forwarded: "10.5.5.5, 10.9.9.9", want: "10.5.5.5"},
		{name: "real ip header", trust: trusted, peer: "10.1.2.3:80", realIP: "198.51.100.2", want: "198.51.100.2"},
		{name: "no headers", trust: trusted, peer: "10.1.2.3:80", want: "10.1.2.3"},
		{name: "peer without port", trust: trusted, peer: "203.0.113.7", want: "203.0.113.7"},
		{name: "ipv6 peer", trust: NewProxyTrust(true, []string{"::1"}), peer: "[::1]:80", forwarded: "2001:db8::1", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, tt.trust.Resolve(req))
		})
	}
}

func TestClientAddressStoresResolvedIP(t *testing.T) {
	var seen string
	handler := ClientAddress(NewProxyTrust(true, []string{"10.0.0.0/8"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:80"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.1", seen)

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = "203.0.113.7:5000"
	bare.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "203.0.113.7", ClientIP(bare))

	bare.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(bare))
}
