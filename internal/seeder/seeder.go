package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"sitepulse/internal/events"
)

// flushEvery bounds how many events are buffered between flushes.
const flushEvery = 500

// Seeder fills the database with realistic traffic by pushing synthetic
// requests through the regular collector and queue, backdated over the last
// 30 days.
type Seeder struct {
	db         *gorm.DB
	logger     *slog.Logger
	salt       string
	eventCount int
	rnd        *rand.Rand

	current   time.Time
	queue     *events.Queue
	collector *events.Collector
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, logger *slog.Logger, salt string, eventCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Seeder{
		db:         db,
		logger:     logger,
		salt:       salt,
		eventCount: eventCount,
		rnd:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
	}

	clock := func() time.Time { return s.current }
	s.queue = events.NewQueue(events.NewStore(db, logger), logger, events.WithClock(clock))
	s.collector = events.NewCollector(s.queue, salt, nil, logger)
	s.collector.SetClock(clock)
	return s
}

// WithSeed makes the generated traffic deterministic.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rnd = rand.New(rand.NewPCG(seed, 42))
	return s
}

// Result summarises a seeding run.
type Result struct {
	PageViews int
	Clicks    int
	BotHits   int
}

// Run generates roughly eventCount page views spread over visitor journeys,
// with a share of clicks and a couple of scrapers for the bot filter to find.
func (s *Seeder) Run(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	s.logger.Info("Starting database seeding...", slog.Int("eventCount", s.eventCount))

	var result Result
	ipPool := s.generateIPPool(100)

	avgPagesPerSession := 4
	numSessions := s.eventCount / avgPagesPerSession
	if numSessions < 1 {
		numSessions = 1
	}

	for session := 0; session < numSessions; session++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		journey := journeyTemplates[s.rnd.IntN(len(journeyTemplates))]
		info := events.RequestInfo{
			IPAddress: ipPool[s.rnd.IntN(len(ipPool))],
			UserAgent: userAgents[s.rnd.IntN(len(userAgents))],
			Country:   countries[s.rnd.IntN(len(countries))],
		}
		referrer := referrerURLs[s.rnd.IntN(len(referrerURLs))]

		s.current = now.Add(-time.Duration(s.rnd.IntN(30*24*60*60)) * time.Second)

		for pageIndex, path := range journey {
			if pageIndex > 0 {
				s.current = s.current.Add(time.Duration(s.rnd.IntN(110)+10) * time.Second)
				referrer = ""
			}
			if _, err := s.collector.PageView(events.PageViewInput{RequestInfo: info, Path: path, Referrer: referrer}); err != nil {
				return result, err
			}
			result.PageViews++

			if s.rnd.Float64() < 0.15 {
				click := clickNames[s.rnd.IntN(len(clickNames))]
				_, err := s.collector.Click(events.ClickInput{
					RequestInfo:  info,
					EventName:    click,
					EventContext: map[string]any{"position": "inline"},
					Path:         path,
				})
				if err != nil {
					return result, err
				}
				result.Clicks++
			}
		}

		if err := s.maybeFlush(ctx); err != nil {
			return result, err
		}
	}

	bots, err := s.seedScrapers(ctx, now)
	if err != nil {
		return result, err
	}
	result.BotHits = bots

	if err := s.queue.Flush(ctx); err != nil {
		return result, fmt.Errorf("flush seeded events: %w", err)
	}

	s.logger.Info("Seeding completed successfully",
		slog.Int("pageViews", result.PageViews),
		slog.Int("clicks", result.Clicks),
		slog.Int("botHits", result.BotHits),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// seedScrapers adds two visitors with browser user agents whose hit counts
// only the behavioural filter catches: one hammers a single page, one walks
// the whole site.
func (s *Seeder) seedScrapers(ctx context.Context, now time.Time) (int, error) {
	hits := 0
	s.current = now.Add(-2 * time.Hour)

	hammer := events.RequestInfo{IPAddress: "203.0.113.66", UserAgent: userAgents[0], Country: "US"}
	for i := 0; i < 40; i++ {
		s.current = s.current.Add(time.Second)
		if _, err := s.collector.PageView(events.PageViewInput{RequestInfo: hammer, Path: "/blog/article-1"}); err != nil {
			return hits, err
		}
		hits++
	}

	crawler := events.RequestInfo{IPAddress: "203.0.113.77", UserAgent: userAgents[4], Country: "DE"}
	for i := 0; i < 150; i++ {
		s.current = s.current.Add(time.Second)
		path := fmt.Sprintf("/blog/archive/%d", i)
		if _, err := s.collector.PageView(events.PageViewInput{RequestInfo: crawler, Path: path}); err != nil {
			return hits, err
		}
		hits++
	}

	return hits, s.maybeFlush(ctx)
}

func (s *Seeder) maybeFlush(ctx context.Context) error {
	pending := s.queue.Pending()
	if pending.PageViews+pending.Clicks < flushEvery {
		return nil
	}
	if err := s.queue.Flush(ctx); err != nil {
		return fmt.Errorf("flush seeded events: %w", err)
	}
	return nil
}

func (s *Seeder) generateIPPool(count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", s.rnd.IntN(223)+1, s.rnd.IntN(256), s.rnd.IntN(256), s.rnd.IntN(255)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/posts", "/posts/sveltekit-and-sqlite", "/newsletter"},
	{"/posts/sveltekit-and-sqlite", "/posts/self-hosted-analytics"},
	{"/", "/uses"},
	{"/", "/posts", "/posts/tailwind-tips", "/posts/self-hosted-analytics", "/about"},
	{"/speaking", "/about", "/contact"},
	{"/", "/newsletter"},
	{"/posts/tailwind-tips"},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Googlebot/2.1 (+http://www.google.com/bot.html)",
}

var referrerURLs = []string{
	"",
	"",
	"https://www.google.com/",
	"https://www.google.co.uk/",
	"https://duckduckgo.com/",
	"https://www.bing.com/",
	"https://news.ycombinator.com/item?id=1",
	"https://www.reddit.com/r/sveltejs/",
	"https://bsky.app/profile/someone",
	"android-app://com.google.android.gm/",
}

var countries = []string{"US", "GB", "DE", "FR", "NL", "CA", "AU", "IN", ""}

var clickNames = []string{"newsletter_signup", "share_bluesky", "copy_code", "external_link"}
