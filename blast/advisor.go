package blast

import (
	"context"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Public provider limits the advisor plans around.
const (
	publicConnectionCap = 15                // concurrent connections
	dailyQuota          = 500               // messages per day
	quotaDelay          = 180 * time.Second // > 24h / dailyQuota
	idleReconnectFrom   = 100
	idleReconnectEvery  = 100
)

// Resolver looks up host addresses. *net.Resolver implements it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// RecommendFor returns the concurrency plan for sending total copies per
// account to a local or public server. The result depends only on the
// arguments.
func RecommendFor(total int, local bool) Concurrency {
	c := Concurrency{Mode: ModeSerial, Reconnect: ReconnectOnce}

	switch {
	case total <= 1:
		return c
	case local:
		c.Mode = ModeLimited
		c.Workers = max(1, int(math.Sqrt(float64(total))))
	case total <= publicConnectionCap:
		c.Mode = ModeUnlimited
	case total < dailyQuota:
		c.Mode = ModeLimited
		c.Workers = publicConnectionCap
	default:
		c.Delay = quotaDelay
		c.Reconnect = ReconnectPerSend
	}

	if total >= idleReconnectFrom && total < dailyQuota {
		c.Reconnect = ReconnectEveryN
		c.Every = idleReconnectEvery
	}
	return c
}

// Recommend classifies server and returns RecommendFor for it. A nil
// resolver means net.DefaultResolver.
func Recommend(ctx context.Context, total int, server string, resolver Resolver) (Concurrency, error) {
	local, err := IsLocal(ctx, server, resolver)
	if err != nil {
		return Concurrency{}, err
	}
	return RecommendFor(total, local), nil
}

// IsLocal reports whether server ("host" or "host:port") is loopback,
// private, link-local or unspecified. IP literals are classified without
// I/O. A name is local only when every address it resolves to is local.
func IsLocal(ctx context.Context, server string, resolver Resolver) (bool, error) {
	host := hostOf(server)
	if host == "" {
		return false, errors.Wrapf(ErrUnknownLocality, "empty server %q", server)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return isLocalAddr(addr), nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return false, errors.Wrapf(ErrUnknownLocality, "resolve %s: %v", host, err)
	}
	if len(addrs) == 0 {
		return false, errors.Wrapf(ErrUnknownLocality, "%s has no addresses", host)
	}

	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || !isLocalAddr(addr.Unmap()) {
			return false, nil
		}
	}
	return true, nil
}

func isLocalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

func hostOf(server string) string {
	server = strings.TrimSpace(server)
	if host, _, err := net.SplitHostPort(server); err == nil {
		return host
	}
	return strings.Trim(server, "[]")
}
