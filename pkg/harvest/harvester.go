package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/extract"
	"github.com/jmylchreest/harvest/pkg/fetcher"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
	"github.com/jmylchreest/harvest/pkg/store"
)

// Harvester scrapes categories through the relay pool. It is safe for
// concurrent use; ScrapeAll runs every category on its own goroutine.
type Harvester struct {
	config   Config
	store    store.Store
	fetcher  fetcher.Fetcher
	rules    *extract.Rules
	observer Observer
	events   *scrapelog.Log
	scorer   *proxy.Scorer
	health   *proxy.HealthChecker
	cache    *content.Cache
	seen     *content.Seen
	log      *slog.Logger

	ownsFetcher bool
	settingsMu  sync.Mutex
}

// New creates a Harvester. Unset dependencies default to an in-memory store,
// the colly fetcher and the built-in extraction rules.
func New(opts ...Option) (*Harvester, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harvester{
		config:   cfg,
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		rules:    cfg.Rules,
		observer: cfg.Observer,
		events:   cfg.Log,
		log:      logger.Component("harvest"),
	}

	if h.store == nil {
		h.store = store.NewMemory()
	}
	// The content cache can always be refetched, so it gives way when the
	// scorer, settings or log need room.
	h.store = store.NewReclaiming(h.store, content.CacheKey)
	if h.fetcher == nil {
		h.fetcher = fetcher.NewStatic(fetcher.StaticConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.PageTimeout,
		})
		h.ownsFetcher = true
	}
	if h.rules == nil {
		rules, err := extract.DefaultRules()
		if err != nil {
			return nil, fmt.Errorf("failed to load default rules: %w", err)
		}
		h.rules = rules
	}
	if h.observer == nil {
		h.observer = nopObserver{}
	}
	if h.events == nil {
		h.events = scrapelog.New(scrapelog.WithStore(h.store))
		if err := h.events.Load(); err != nil {
			h.log.Warn("scrape log unreadable, starting empty", "error", err)
		}
	}

	h.scorer = proxy.NewScorer(h.store)
	if err := h.scorer.Load(); err != nil {
		h.log.Warn("proxy scores unreadable, starting fresh", "error", err)
	}
	h.health = proxy.NewHealthChecker(h.fetcher, proxy.HealthConfig{CheckURL: cfg.CheckURL})
	h.cache = content.NewCache(h.store)
	h.seen = content.NewSeen(h.store)

	return h, nil
}

// Close persists the scrape log and releases the fetcher if New created it.
// The store is owned by the caller.
func (h *Harvester) Close() error {
	if err := h.events.Save(); err != nil {
		h.log.Warn("failed to persist scrape log", "error", err)
	}
	if h.ownsFetcher {
		return h.fetcher.Close()
	}
	return nil
}

// Config returns the effective configuration.
func (h *Harvester) Config() Config { return h.config }

// Proxies returns the configured relays.
func (h *Harvester) Proxies() []proxy.Proxy { return h.config.Proxies }

// Rules returns the extraction rules.
func (h *Harvester) Rules() *extract.Rules { return h.rules }

// Scorer returns the relay reputation tracker.
func (h *Harvester) Scorer() *proxy.Scorer { return h.scorer }

// Health returns the relay health checker.
func (h *Harvester) Health() *proxy.HealthChecker { return h.health }

// Events returns the scrape event log.
func (h *Harvester) Events() *scrapelog.Log { return h.events }

// Cache returns the content cache.
func (h *Harvester) Cache() *content.Cache { return h.cache }

// Seen returns the seen-item tracker.
func (h *Harvester) Seen() *content.Seen { return h.seen }

// CheckProxies checks every relay and reports the summary to the observer.
func (h *Harvester) CheckProxies(ctx context.Context) []proxy.HealthResult {
	results := h.health.CheckAll(ctx, h.config.Proxies)
	s := h.health.Summary(h.config.Proxies)
	h.observer.OnProxyHealth(s.Healthy, s.Total)
	return results
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
