package v1

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/events"
)

func TestNormalizeIPVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "ipv4 with spaces", raw: " 79.144.65.173 ", want: "79.144.65.173"},
		{name: "quoted ipv4", raw: "\"79.144.65.173\"", want: "79.144.65.173"},
		{name: "ipv4 with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "quoted forwarded ipv4", raw: "\"79.144.65.173:1234\"", want: "79.144.65.173"},
		{name: "ipv6 literal", raw: "2001:db8::1", want: "2001:db8::1"},
		{name: "ipv6 in brackets", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "invalid value", raw: "not-an-ip", want: ""},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeIP(tc.raw))
		})
	}
}

// requestInfoApp echoes requestInfo as JSON so header handling can be
// exercised through a real fiber context.
func requestInfoApp(countryHeader string) *fiber.App {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(requestInfo(c, countryHeader))
	})
	return app
}

func doRequestInfo(t *testing.T, countryHeader string, headers map[string]string) events.RequestInfo {
	t.Helper()

	req := httptest.NewRequest("GET", "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := requestInfoApp(countryHeader).Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var info events.RequestInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestRequestInfo(t *testing.T) {
	t.Run("first parseable forwarded address wins", func(t *testing.T) {
		info := doRequestInfo(t, "", map[string]string{
			"X-Forwarded-For": "unknown, 203.0.113.5, 198.51.100.1",
			"X-Real-IP":       "192.0.2.9",
		})
		assert.Equal(t, "203.0.113.5", info.IPAddress)
	})

	t.Run("falls back to single value proxy headers", func(t *testing.T) {
		info := doRequestInfo(t, "", map[string]string{
			"CF-Connecting-IP": "[2001:db8::7]:443",
		})
		assert.Equal(t, "2001:db8::7", info.IPAddress)
	})

	t.Run("forwarded user agent takes precedence", func(t *testing.T) {
		info := doRequestInfo(t, "", map[string]string{
			"User-Agent":             "renderer/1.0",
			"X-Forwarded-User-Agent": "Mozilla/5.0 Reader",
		})
		assert.Equal(t, "Mozilla/5.0 Reader", info.UserAgent)
	})

	t.Run("configured country header", func(t *testing.T) {
		info := doRequestInfo(t, "X-Geo-Country", map[string]string{
			"X-Geo-Country": "NL",
			"CF-IPCountry":  "US",
		})
		assert.Equal(t, "NL", info.Country)
	})

	t.Run("cdn country headers as fallback", func(t *testing.T) {
		info := doRequestInfo(t, "X-Geo-Country", map[string]string{
			"X-Vercel-IP-Country": "SE",
		})
		assert.Equal(t, "SE", info.Country)
	})

	t.Run("no country", func(t *testing.T) {
		info := doRequestInfo(t, "", nil)
		assert.Empty(t, info.Country)
	})
}

func TestValidationMessage(t *testing.T) {
	err := getValidator().Struct(&HeartbeatRequest{Country: "GBR", DeviceType: "watch"})
	require.Error(t, err)

	msg := validationMessage(err)
	assert.Contains(t, msg, "path is required")
	assert.Contains(t, msg, "country must be 2 characters")
	assert.Contains(t, msg, "device_type must be one of: desktop mobile tablet bot")
}
