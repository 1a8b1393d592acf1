// Package blocklist keeps the set of referrer domains that must never be
// recorded, cached in memory with a TTL.
package blocklist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/metrics"
)

// DefaultTTL is how long a loaded block list is trusted.
const DefaultTTL = 5 * time.Minute

// blockedDomainsKey is the single key the block list is cached under.
const blockedDomainsKey = "blocked_referrer_domains"

// BlockedReferrerDomain is a row of the blocked_referrer_domains table.
type BlockedReferrerDomain struct {
	ID        uint      `gorm:"primaryKey"`
	Domain    string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
}

// Store persists blocked domains.
type Store interface {
	ListDomains(ctx context.Context) ([]string, error)
	AddDomain(ctx context.Context, domain string) error
	RemoveDomain(ctx context.Context, domain string) (bool, error)
}

// GormStore is the gorm backed Store.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStore creates a Store on db.
func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// ListDomains returns all blocked domains ordered by name.
func (s *GormStore) ListDomains(ctx context.Context) ([]string, error) {
	var domains []string
	err := s.db.WithContext(ctx).
		Model(&BlockedReferrerDomain{}).
		Order("domain ASC").
		Pluck("domain", &domains).Error
	if err != nil {
		return nil, fmt.Errorf("list blocked domains: %w", err)
	}
	return domains, nil
}

// AddDomain inserts domain, ignoring duplicates.
func (s *GormStore) AddDomain(ctx context.Context, domain string) error {
	return sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		err := tx.Exec(`
			INSERT INTO blocked_referrer_domains (domain, created_at)
			VALUES (?, ?)
			ON CONFLICT(domain) DO NOTHING
		`, domain, time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("add blocked domain %s: %w", domain, err)
		}
		return nil
	})
}

// RemoveDomain deletes domain and reports whether it existed.
func (s *GormStore) RemoveDomain(ctx context.Context, domain string) (bool, error) {
	var removed bool
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Where("domain = ?", domain).Delete(&BlockedReferrerDomain{})
		if result.Error != nil {
			return fmt.Errorf("remove blocked domain %s: %w", domain, result.Error)
		}
		removed = result.RowsAffected > 0
		return nil
	})
	return removed, err
}

// Cache answers block list lookups from memory, reloading from the Store
// once the TTL has passed or after Invalidate.
type Cache struct {
	store  Store
	logger *slog.Logger
	cache  *cache.Cache[string, map[string]struct{}]
}

// NewCache creates a Cache over store. A non-positive ttl uses DefaultTTL.
func NewCache(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{store: store, logger: logger}

	fetchFunc := func(key string) (map[string]struct{}, error) {
		domains, err := store.ListDomains(context.Background())
		if err != nil {
			// An unreadable block list must not stop ingestion; the empty
			// set is cached like a normal load.
			metrics.BlocklistFetches.WithLabelValues("error").Inc()
			logger.Error("Failed to load blocked referrer domains", slog.Any("error", err))
			return map[string]struct{}{}, nil
		}
		metrics.BlocklistFetches.WithLabelValues("ok").Inc()

		set := make(map[string]struct{}, len(domains))
		for _, d := range domains {
			d = normaliseDomain(d)
			if d != "" {
				set[d] = struct{}{}
			}
		}
		return set, nil
	}
	c.cache = cache.NewCache[string, map[string]struct{}](logger, ttl, fetchFunc)

	return c
}

// BlockedDomains returns the cached set of lowercased blocked domains.
// The returned map must not be modified.
func (c *Cache) BlockedDomains() map[string]struct{} {
	domains, err := c.cache.Get(blockedDomainsKey)
	if err != nil {
		c.logger.Error("Failed to read blocked domains cache", slog.Any("error", err))
		return map[string]struct{}{}
	}
	return domains
}

// IsBlockedReferrer reports whether the lowercased referrer contains any
// blocked domain as a substring. "spam.com" therefore also blocks
// "notspam.com".
func (c *Cache) IsBlockedReferrer(referrer string) bool {
	if referrer == "" {
		return false
	}
	lower := strings.ToLower(referrer)
	for domain := range c.BlockedDomains() {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// Invalidate forces the next lookup to reload from the store.
func (c *Cache) Invalidate() {
	c.cache.Clear()
}

// AddDomain blocks domain and invalidates the cache.
func (c *Cache) AddDomain(ctx context.Context, domain string) (string, error) {
	domain = normaliseDomain(domain)
	if domain == "" {
		return "", fmt.Errorf("domain is required")
	}
	if err := c.store.AddDomain(ctx, domain); err != nil {
		return "", err
	}
	c.Invalidate()
	c.logger.Info("Blocked referrer domain added", slog.String("domain", domain))
	return domain, nil
}

// RemoveDomain unblocks domain and invalidates the cache.
func (c *Cache) RemoveDomain(ctx context.Context, domain string) (bool, error) {
	domain = normaliseDomain(domain)
	removed, err := c.store.RemoveDomain(ctx, domain)
	if err != nil {
		return false, err
	}
	c.Invalidate()
	if removed {
		c.logger.Info("Blocked referrer domain removed", slog.String("domain", domain))
	}
	return removed, nil
}

// ListDomains returns the stored domains, bypassing the cache.
func (c *Cache) ListDomains(ctx context.Context) ([]string, error) {
	domains, err := c.store.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(domains)
	return domains, nil
}

func normaliseDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
