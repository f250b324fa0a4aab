package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
)

// errEmptyResult is the failure recorded when a scrape returns no items.
var errEmptyResult = errors.New("empty result")

// Result is the outcome of scraping one category.
type Result struct {
	Category content.Category `json:"category" yaml:"category"`
	Data     []content.Item   `json:"data" yaml:"data"`
	Status   Status           `json:"status" yaml:"status"`
	Source   Source           `json:"source,omitempty" yaml:"source,omitempty"`
	Err      string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// ScrapeWithRetry runs fn up to maxRetries times (the configured default
// when maxRetries < 1). The first non-empty result wins. Errors and empty
// results are retried after a linear backoff; after the last attempt the
// cached items of category are returned, or a failed Result when there
// are none. It never returns an error or panics.
func (h *Harvester) ScrapeWithRetry(ctx context.Context, category content.Category, fn ScrapeFunc, maxRetries int) Result {
	if maxRetries < 1 {
		maxRetries = h.config.MaxRetries
	}
	cat := string(category)

	h.events.Log(cat, scrapelog.EventStart, scrapelog.Details{"maxRetries": maxRetries})
	h.observer.OnCategoryStatus(category, StatusLoading, 0)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		items, err := safeScrape(ctx, fn)

		switch {
		case err == nil && len(items) > 0:
			h.events.Log(cat, scrapelog.EventSuccess, scrapelog.Details{"count": len(items), "attempt": attempt})
			h.observer.OnCategoryStatus(category, StatusSuccess, len(items))
			return Result{Category: category, Data: items, Status: StatusSuccess, Source: SourceFresh}
		case err != nil:
			lastErr = err
			h.events.Log(cat, scrapelog.EventRetry, scrapelog.Details{"attempt": attempt, "error": err.Error()})
		default:
			if lastErr == nil {
				lastErr = errEmptyResult
			}
			h.events.Log(cat, scrapelog.EventRetry, scrapelog.Details{"attempt": attempt, "reason": errEmptyResult.Error()})
		}

		if attempt < maxRetries && !sleep(ctx, time.Duration(attempt)*h.config.RetryBackoff) {
			lastErr = fmt.Errorf("scrape cancelled: %w", ctx.Err())
			break
		}
	}

	return h.fallback(category, lastErr)
}

// fallback serves the cached items of category after every attempt failed.
func (h *Harvester) fallback(category content.Category, cause error) Result {
	cat := string(category)

	if cached := h.cache.Category(category); len(cached) > 0 {
		h.events.Log(cat, scrapelog.EventCached, scrapelog.Details{"count": len(cached)})
		h.observer.OnCategoryStatus(category, StatusCached, len(cached))
		return Result{Category: category, Data: cached, Status: StatusCached, Source: SourceStore}
	}

	msg := errEmptyResult.Error()
	if cause != nil {
		msg = cause.Error()
	}
	h.events.Log(cat, scrapelog.EventFailed, scrapelog.Details{"error": msg})
	h.observer.OnCategoryStatus(category, StatusFailed, 0)
	h.observer.OnCategoryError(category, msg)
	return Result{Category: category, Data: []content.Item{}, Status: StatusFailed, Err: msg}
}

// safeScrape calls fn, turning a panic into an error.
func safeScrape(ctx context.Context, fn ScrapeFunc) (items []content.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape panicked: %v", r)
		}
	}()
	return fn(ctx)
}
