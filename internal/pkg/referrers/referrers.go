// Package referrers turns raw Referer header values into traffic source names.
package referrers

import (
	"net/url"
	"strings"

	"go.elara.ws/pcre"
)

// DefaultInternalDomains are treated as self-referrals when no list is configured.
var DefaultInternalDomains = []string{"scottspence.com", "localhost", "127.0.0.1"}

type searchEngine struct {
	pattern *pcre.Regexp
	name    string
}

// Evaluated in order, first match wins. Google must collapse across every TLD.
var searchEngines = []searchEngine{
	{pcre.MustCompile(`^googlequicksearchbox$|^com\.google\.android\.googlequicksearchbox$`), "Google"},
	{pcre.MustCompile(`(^|\.)google\.[a-z]{2,3}(\.[a-z]{2})?$`), "Google"},
	{pcre.MustCompile(`(^|\.)bing\.com$`), "Bing"},
	{pcre.MustCompile(`(^|\.)duckduckgo\.com$`), "DuckDuckGo"},
	{pcre.MustCompile(`(^|\.)search\.yahoo\.[a-z.]+$|(^|\.)yahoo\.com$`), "Yahoo"},
	{pcre.MustCompile(`(^|\.)yandex\.[a-z.]+$|(^|\.)ya\.ru$`), "Yandex"},
	{pcre.MustCompile(`(^|\.)baidu\.com$`), "Baidu"},
	{pcre.MustCompile(`(^|\.)ecosia\.org$`), "Ecosia"},
	{pcre.MustCompile(`^search\.brave\.com$`), "Brave Search"},
	{pcre.MustCompile(`(^|\.)kagi\.com$`), "Kagi"},
	{pcre.MustCompile(`(^|\.)startpage\.com$`), "Startpage"},
	{pcre.MustCompile(`(^|\.)qwant\.com$`), "Qwant"},
}

// Normaliser maps referrers to source names, hiding internal navigation.
type Normaliser struct {
	internalDomains []string
}

// NewNormaliser creates a Normaliser. An empty list falls back to DefaultInternalDomains.
func NewNormaliser(internalDomains []string) *Normaliser {
	if len(internalDomains) == 0 {
		internalDomains = DefaultInternalDomains
	}
	domains := make([]string, 0, len(internalDomains))
	for _, d := range internalDomains {
		domains = append(domains, strings.ToLower(strings.TrimSpace(d)))
	}
	return &Normaliser{internalDomains: domains}
}

var defaultNormaliser = NewNormaliser(nil)

// NormaliseReferrer normalises raw with the default internal domain list.
func NormaliseReferrer(raw string) *string {
	return defaultNormaliser.Normalise(raw)
}

// Normalise returns the source name for raw: a search engine name, or the
// hostname without "www.". It returns nil for empty, unparseable or internal referrers.
func (n *Normaliser) Normalise(raw string) *string {
	host := Hostname(raw)
	if host == "" {
		return nil
	}

	if n.IsInternal(host) {
		return nil
	}

	for _, engine := range searchEngines {
		if engine.pattern.MatchString(host) {
			name := engine.name
			return &name
		}
	}

	return &host
}

// IsInternal reports whether host is one of the internal domains or a subdomain of one.
func (n *Normaliser) IsInternal(host string) bool {
	host = strings.ToLower(host)
	for _, d := range n.internalDomains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Hostname extracts the lowercased host of a referrer without a leading "www.".
// android-app://<package>/ referrers yield the package name.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if rest, ok := cutPrefixFold(raw, "android-app://"); ok {
		pkg, _, _ := strings.Cut(rest, "/")
		return strings.ToLower(pkg)
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
