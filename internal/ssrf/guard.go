package ssrf

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
)

// Resolver is the DNS surface the guard depends on. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Guard decides whether a hostname resolves exclusively to publicly routable
// addresses. The decision is made once per request before the outbound fetch;
// a DNS answer that changes between this check and the fetch is a documented
// residual risk.
type Guard struct {
	resolver Resolver
	logger   *slog.Logger
}

// New builds a guard around the given resolver. A nil resolver falls back to
// net.DefaultResolver.
func New(resolver Resolver, logger *slog.Logger) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		resolver: resolver,
		logger:   logger.With(slog.String("agent", "ssrf_guard")),
	}
}

// Address ranges that are routable on the wire but must never be fetch
// targets: carrier-grade NAT and the reserved class E block. Everything else
// non-public is caught by the netip classification methods.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// CheckPublic resolves hostname and returns true only when every resolved
// address is publicly routable. Resolution failure, an empty answer set, or a
// single non-public address all reject the hostname (fail-closed). Checking
// resolved addresses rather than the hostname string defeats lookalike
// hostnames pointing at internal targets; requiring unanimity defeats
// multi-answer tricks that mix a public decoy with an internal address.
func (g *Guard) CheckPublic(ctx context.Context, hostname string) bool {
	if hostname == "" {
		return false
	}

	var ips []net.IP
	v4, err4 := g.resolver.LookupIP(ctx, "ip4", hostname)
	if err4 == nil {
		ips = append(ips, v4...)
	}
	v6, err6 := g.resolver.LookupIP(ctx, "ip6", hostname)
	if err6 == nil {
		ips = append(ips, v6...)
	}
	if len(ips) == 0 {
		if all, err := g.resolver.LookupIP(ctx, "ip", hostname); err == nil {
			ips = all
		}
	}
	if len(ips) == 0 {
		g.logger.DebugContext(ctx, "hostname resolved to no addresses", slog.String("hostname", hostname))
		return false
	}

	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			g.logger.DebugContext(ctx, "unparseable resolved address",
				slog.String("hostname", hostname), slog.String("address", ip.String()))
			return false
		}
		if !isPublic(addr.Unmap()) {
			g.logger.DebugContext(ctx, "hostname resolved to non-public address",
				slog.String("hostname", hostname), slog.String("address", addr.String()))
			return false
		}
	}
	return true
}

// isPublic classifies one address. IsPrivate covers RFC1918 for IPv4 and the
// fc00::/7 unique-local range for IPv6.
func isPublic(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsMulticast() {
		return false
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}
