package harvest

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
)

// ScrapeAll returns the content of every category. With useCache and an
// unexpired cache it returns the cache as is, without touching the network.
// Otherwise all categories are scraped concurrently, merged, saved with a
// fresh expiry and returned. A category that fails leaves an empty slice;
// the call itself never fails.
func (h *Harvester) ScrapeAll(ctx context.Context, useCache bool, onProgress ProgressFunc) *content.Cached {
	progress := func(percent int, message string) {
		if onProgress != nil {
			onProgress(percent, message)
		}
		h.observer.OnProgress(percent, message)
	}

	h.events.Log(scrapelog.CategorySystem, scrapelog.EventStart, scrapelog.Details{"useCache": useCache})
	defer h.saveEvents()

	if useCache {
		if cached, ok := h.validCache(); ok {
			h.events.Log(scrapelog.CategorySystem, scrapelog.EventCached, scrapelog.Details{"cachedAt": cached.CachedAt})
			progress(100, "Using cached content")
			for _, cat := range content.Categories {
				count := len(cached.Items(cat))
				status := StatusCached
				if count == 0 {
					status = StatusFailed
				}
				h.observer.OnCategoryStatus(cat, status, count)
			}
			h.log.Info("using cached content", "items", cached.Total(), "cached_at", cached.CachedAt)
			return cached
		}
	}

	h.events.Log(scrapelog.CategorySystem, scrapelog.EventStart, scrapelog.Details{"mode": "fresh"})
	summary := h.health.Summary(h.config.Proxies)
	h.observer.OnProxyHealth(summary.Healthy, summary.Total)
	for _, cat := range content.Categories {
		h.observer.OnCategoryStatus(cat, StatusLoading, 0)
	}
	progress(0, "Fetching all content...")

	results := make([]Result, len(content.Categories))
	var (
		mu        sync.Mutex
		completed int
	)

	var g errgroup.Group
	for i, cat := range content.Categories {
		g.Go(func() error {
			results[i] = h.ScrapeWithRetry(ctx, cat, h.scrapeFunc(cat), h.config.MaxRetries)

			// Progress counts settled categories so it never goes backwards.
			mu.Lock()
			completed++
			percent := completed * 100 / len(content.Categories)
			progress(percent, fmt.Sprintf("Fetching %s...", cat.Label()))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	merged := content.NewCached()
	for _, r := range results {
		_ = merged.SetItems(r.Category, r.Data)
	}

	if err := h.cache.Save(merged, h.Settings().CacheTTL()); err != nil {
		h.log.Error("failed to save content cache", "error", err)
	}

	total := merged.Total()
	h.events.Log(scrapelog.CategorySystem, scrapelog.EventSuccess, scrapelog.Details{"totalItems": total})
	progress(100, fmt.Sprintf("Found %d items", total))

	counts := merged.Counts()
	h.log.Info("scrape finished",
		"news", counts[content.News],
		"events", counts[content.Events],
		"lectures", counts[content.Lectures],
		"publications", counts[content.Publications],
		"members", counts[content.Members],
		"projects", counts[content.Projects])
	return merged
}

func (h *Harvester) validCache() (*content.Cached, bool) {
	if !h.cache.IsValid() {
		return nil, false
	}
	cached, err := h.cache.Load()
	if err != nil {
		return nil, false
	}
	return cached, true
}

// RetryCategory scrapes one category again and, on success, replaces that
// category in the cache.
func (h *Harvester) RetryCategory(ctx context.Context, category content.Category) Result {
	defer h.saveEvents()

	cat, err := content.ParseCategory(string(category))
	if err != nil {
		return Result{Category: category, Data: []content.Item{}, Status: StatusFailed, Err: "unknown category"}
	}

	result := h.ScrapeWithRetry(ctx, cat, h.scrapeFunc(cat), h.config.MaxRetries)
	if result.Status == StatusSuccess {
		if err := h.cache.UpdateCategory(cat, result.Data, h.Settings().CacheTTL()); err != nil {
			h.log.Error("failed to update content cache", "category", cat, "error", err)
		}
	}
	return result
}

// AllItems flattens content into one list in category order.
func AllItems(c *content.Cached) []content.Item {
	if c == nil {
		return nil
	}
	return c.All()
}

// NewItems returns the items not yet marked as seen.
func (h *Harvester) NewItems(items []content.Item) []content.Item {
	unseen, err := h.seen.Unseen(items)
	if err != nil {
		h.log.Warn("seen items unreadable, treating all as new", "error", err)
		return items
	}
	return unseen
}

func (h *Harvester) saveEvents() {
	if err := h.events.Save(); err != nil {
		h.log.Warn("failed to persist scrape log", "error", err)
	}
}
