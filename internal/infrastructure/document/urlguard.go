package document

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"

	apperrors "portfolio-rag-api/pkg/errors"
)

// Resolver 主机名解析，测试可替换
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// URLPolicy 链接导入的主机策略
type URLPolicy struct {
	AllowedHosts    []string
	BlockedHosts    []string
	AllowPrivateIPs bool
	Resolver        Resolver
}

func rejected(msg string) *apperrors.AppError {
	return apperrors.New(apperrors.CodeURLRejected, msg)
}

// Validate 校验链接：协议 -> 主机 -> 黑名单 -> 白名单 -> 私有地址
func (p URLPolicy) Validate(ctx context.Context, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return rejected("Invalid URL.")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return rejected("Only http/https links are supported.")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return rejected("URL is missing host.")
	}
	if containsHost(p.BlockedHosts, host) {
		return rejected("Host is blocked.")
	}
	if len(p.AllowedHosts) > 0 && !containsHost(p.AllowedHosts, host) {
		return rejected("Host not in allowlist.")
	}
	if !p.AllowPrivateIPs && p.isPrivateOrLocal(ctx, host) {
		return rejected("Private or local network hosts are blocked.")
	}
	return nil
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return true
		}
	}
	return false
}

// isPrivateOrLocal 解析失败视为公网地址，由后续抓取报错
func (p URLPolicy) isPrivateOrLocal(ctx context.Context, host string) bool {
	if host == "localhost" {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return isRestricted(addr)
	}
	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if isRestricted(addr) {
			return true
		}
	}
	return false
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}

func isRestricted(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
