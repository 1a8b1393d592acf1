package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"

	"sitepulse/internal/events"
)

// proxyIPHeaders are consulted after X-Forwarded-For, in order.
var proxyIPHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
}

// getClientIP returns the first parseable address from X-Forwarded-For, then
// the single-value proxy headers, then the connection's remote address.
func getClientIP(c *fiber.Ctx) string {
	for _, value := range strings.Split(c.Get("X-Forwarded-For"), ",") {
		if ip := normalizeIP(value); ip != "" {
			return ip
		}
	}

	for _, header := range proxyIPHeaders {
		if ip := normalizeIP(c.Get(header)); ip != "" {
			return ip
		}
	}

	if ip := normalizeIP(c.Context().RemoteAddr().String()); ip != "" {
		return ip
	}
	return normalizeIP(c.IP())
}

// normalizeIP strips quotes, ports, brackets and zones, and unmaps IPv4
// addresses carried in IPv6. It returns "" for anything unparseable.
func normalizeIP(raw string) string {
	clean := strings.Trim(strings.TrimSpace(raw), "\"")
	if clean == "" {
		return ""
	}

	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().Unmap().String()
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return addr.Unmap().String()
	}

	if host, _, err := net.SplitHostPort(clean); err == nil && host != clean {
		return normalizeIP(host)
	}

	return ""
}

// getUserAgent prefers a UA forwarded by a server-side renderer.
func getUserAgent(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return c.Get("User-Agent")
}

// requestInfo gathers the attribution facts for an event.
func requestInfo(c *fiber.Ctx, countryHeader string) events.RequestInfo {
	info := events.RequestInfo{
		IPAddress: getClientIP(c),
		UserAgent: getUserAgent(c),
	}
	if countryHeader != "" {
		info.Country = c.Get(countryHeader)
	}
	if info.Country == "" {
		for _, header := range []string{"CF-IPCountry", "X-Vercel-IP-Country"} {
			if value := c.Get(header); value != "" {
				info.Country = value
				break
			}
		}
	}
	return info
}
