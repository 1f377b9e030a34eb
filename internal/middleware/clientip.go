package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

const clientIPContextKey contextKey = "client_ip"

// ProxyTrust decides when X-Forwarded-For and X-Real-IP may replace the peer address.
// Headers are honoured only when TrustHeaders is set and the immediate peer is listed.
type ProxyTrust struct {
	TrustHeaders bool
	cidrs        []*net.IPNet
}

// NewProxyTrust parses proxies as CIDRs or single IPs. Unparseable entries are skipped.
// An empty list trusts no peer, so headers are never read.
func NewProxyTrust(trustHeaders bool, proxies []string) ProxyTrust {
	trust := ProxyTrust{TrustHeaders: trustHeaders}

	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if _, cidr, err := net.ParseCIDR(p); err == nil {
			trust.cidrs = append(trust.cidrs, cidr)
			continue
		}

		ip := net.ParseIP(p)
		if ip == nil {
			slog.Warn("ignoring invalid trusted proxy", "value", p)
			continue
		}
		bits := 8 * net.IPv4len
		if ip.To4() == nil {
			bits = 8 * net.IPv6len
		}
		trust.cidrs = append(trust.cidrs, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}

	return trust
}

func (p ProxyTrust) trusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range p.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r. Forwarded chains are read right to left and
// the first hop that is not itself a trusted proxy wins.
func (p ProxyTrust) Resolve(r *http.Request) string {
	peer := peerIP(r.RemoteAddr)
	if !p.TrustHeaders || !p.trusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(forwarded) != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !p.trusted(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return peer
}

// ClientAddress resolves the client address once and stores it for ClientIP.
func ClientAddress(trust ProxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPContextKey, trust.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the address resolved by ClientAddress, or the peer address when the
// request did not pass through it.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return peerIP(r.RemoteAddr)
}

func peerIP(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)
	if addr == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}

	return addr
}
