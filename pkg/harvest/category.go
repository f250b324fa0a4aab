package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/harvest/pkg/content"
)

// ErrAllProxiesFailed means no source page of a category could be fetched.
var ErrAllProxiesFailed = errors.New("all proxies failed")

// ErrNoSources means the rules list no pages for a category.
var ErrNoSources = errors.New("no sources configured")

// ScrapeFunc produces the items of one category.
type ScrapeFunc func(ctx context.Context) ([]content.Item, error)

// CategoryScraper produces the items of a category.
type CategoryScraper interface {
	ScrapeCategory(ctx context.Context, category content.Category) ([]content.Item, error)
}

// CategoryScraperFunc adapts a function to a CategoryScraper.
type CategoryScraperFunc func(ctx context.Context, category content.Category) ([]content.Item, error)

// ScrapeCategory implements CategoryScraper.
func (f CategoryScraperFunc) ScrapeCategory(ctx context.Context, category content.Category) ([]content.Item, error) {
	return f(ctx, category)
}

// ScrapeCategory fetches every source page of category through the relays
// and extracts its items, de-duplicated by id. It fails only when no page
// could be fetched; a page yielding nothing is an empty result.
func (h *Harvester) ScrapeCategory(ctx context.Context, category content.Category) ([]content.Item, error) {
	sources := h.rules.Sources(category)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoSources, category)
	}

	var items []content.Item
	fetched := 0
	for _, src := range sources {
		html, ok := h.FetchPage(ctx, src.URL)
		if !ok {
			h.log.Warn("page unavailable", "category", category, "url", src.URL)
			continue
		}
		fetched++

		found, err := src.Page(category, html)
		if err != nil {
			h.log.Warn("extraction failed", "category", category, "url", src.URL, "error", err)
			continue
		}
		h.log.Debug("page extracted", "category", category, "url", src.URL, "items", len(found))
		items = append(items, found...)
	}

	if fetched == 0 {
		return nil, fmt.Errorf("%w for %s", ErrAllProxiesFailed, category)
	}
	return content.Dedupe(items), nil
}

// scrapeFunc binds the configured scraper to one category.
func (h *Harvester) scrapeFunc(category content.Category) ScrapeFunc {
	scraper := h.config.Scraper
	if scraper == nil {
		scraper = h
	}
	return func(ctx context.Context) ([]content.Item, error) {
		return scraper.ScrapeCategory(ctx, category)
	}
}
