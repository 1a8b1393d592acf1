package user_agent

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types reported in UserAgent.DeviceType
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

const unknown = "Unknown"

type UserAgent struct {
	Browser    string
	OS         string
	DeviceType string
	IsBot      bool
}

//go:embed rules.yml
var rulesFile []byte

// Rule is a single entry of an ordered rule table.
type Rule struct {
	Regex  string `yaml:"regex"`
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

type ruleSet struct {
	Bots     []Rule `yaml:"bots"`
	Browsers []Rule `yaml:"browsers"`
	OSs      []Rule `yaml:"oss"`
	Devices  []Rule `yaml:"devices"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global parser instance
var (
	parser *Parser
	once   sync.Once
)

// Parser evaluates the embedded rule tables in file order.
type Parser struct {
	rules      ruleSet
	regexCache *RegexCache
}

// NewParser builds a parser from a YAML rule document.
func NewParser(data []byte) (*Parser, error) {
	p := &Parser{regexCache: newRegexCache()}
	if err := yaml.Unmarshal(data, &p.rules); err != nil {
		return nil, fmt.Errorf("parse user agent rules: %w", err)
	}
	return p, nil
}

func getParser() *Parser {
	once.Do(func() {
		var err error
		parser, err = NewParser(rulesFile)
		if err != nil {
			// The embedded file is part of the build; a broken one leaves an empty cascade.
			fmt.Printf("Error loading user agent rules: %v\n", err)
			parser = &Parser{regexCache: newRegexCache()}
		}
	})
	return parser
}

func (p *Parser) firstMatch(rules []Rule, userAgent string) *Rule {
	for i := range rules {
		regex, err := p.regexCache.get(rules[i].Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return &rules[i]
		}
	}
	return nil
}

// Parse runs the bot, browser, OS and device cascades against userAgent.
func (p *Parser) Parse(userAgent string) UserAgent {
	if strings.TrimSpace(userAgent) == "" {
		return UserAgent{Browser: unknown, OS: unknown, DeviceType: DeviceBot, IsBot: true}
	}

	if bot := p.firstMatch(p.rules.Bots, userAgent); bot != nil {
		return UserAgent{
			Browser:    bot.Name,
			OS:         unknown,
			DeviceType: DeviceBot,
			IsBot:      true,
		}
	}

	result := UserAgent{
		Browser:    unknown,
		OS:         unknown,
		DeviceType: DeviceDesktop,
	}
	if rule := p.firstMatch(p.rules.Browsers, userAgent); rule != nil {
		result.Browser = rule.Name
	}
	if rule := p.firstMatch(p.rules.OSs, userAgent); rule != nil {
		result.OS = rule.Name
	}
	if rule := p.firstMatch(p.rules.Devices, userAgent); rule != nil {
		result.DeviceType = rule.Device
	}

	return result
}

// ParseUserAgent parses userAgent with the embedded rule tables.
func ParseUserAgent(userAgent string) UserAgent {
	return getParser().Parse(userAgent)
}
