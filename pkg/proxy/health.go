package proxy

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/fetcher"
)

// Health check defaults.
const (
	DefaultHealthTTL    = 5 * time.Minute
	DefaultCheckTimeout = 5 * time.Second
)

// HealthRecord is a cached check verdict. It is never persisted.
type HealthRecord struct {
	Healthy   bool
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthResult is the outcome of checking one proxy.
type HealthResult struct {
	Index     int           `json:"index" yaml:"index"`
	Name      string        `json:"name" yaml:"name"`
	Healthy   bool          `json:"healthy" yaml:"healthy"`
	Latency   time.Duration `json:"latency" yaml:"latency"`
	FromCache bool          `json:"fromCache" yaml:"from_cache"`
}

// HealthSummary counts fresh healthy verdicts.
type HealthSummary struct {
	Healthy int `json:"healthy" yaml:"healthy"`
	Total   int `json:"total" yaml:"total"`
}

// HealthConfig configures a HealthChecker.
type HealthConfig struct {
	CheckURL    string
	TTL         time.Duration
	Timeout     time.Duration
	Concurrency int // max checks in flight, 0 = all at once
}

// HealthChecker checks proxies with a HEAD request and caches the verdict.
// Results are advisory: the fetch path ranks by Scorer, not by health.
type HealthChecker struct {
	fetcher fetcher.Fetcher
	config  HealthConfig
	now     func() time.Time

	mu    sync.Mutex
	cache map[int]HealthRecord
}

// NewHealthChecker creates a checker that checks cfg.CheckURL through each proxy.
func NewHealthChecker(f fetcher.Fetcher, cfg HealthConfig) *HealthChecker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultHealthTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCheckTimeout
	}
	return &HealthChecker{
		fetcher: f,
		config:  cfg,
		now:     time.Now,
		cache:   make(map[int]HealthRecord),
	}
}

func (h *HealthChecker) cached(index int) (HealthRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.cache[index]
	if !ok || h.now().Sub(rec.CheckedAt) >= h.config.TTL {
		return HealthRecord{}, false
	}
	return rec, true
}

// Check returns the health of proxy p at index, probing only when the cached
// verdict is missing or stale. Failures are verdicts, not errors.
func (h *HealthChecker) Check(ctx context.Context, p Proxy, index int) HealthResult {
	if rec, ok := h.cached(index); ok {
		return HealthResult{Index: index, Name: p.Name, Healthy: rec.Healthy, Latency: rec.Latency, FromCache: true}
	}

	started := time.Now()
	content, err := h.fetcher.Fetch(ctx, p.URL(h.config.CheckURL), fetcher.Options{
		Method:  http.MethodHead,
		Timeout: h.config.Timeout,
		Headers: map[string]string{fetcher.HeaderCacheControl: fetcher.NoStore},
	})
	latency := time.Since(started).Round(time.Millisecond)
	healthy := err == nil && content.StatusCode >= 200 && content.StatusCode < 300

	if err != nil {
		logger.Debug("proxy check failed", "proxy", p.Name, "error", err)
	}

	h.mu.Lock()
	h.cache[index] = HealthRecord{Healthy: healthy, Latency: latency, CheckedAt: h.now()}
	h.mu.Unlock()

	return HealthResult{Index: index, Name: p.Name, Healthy: healthy, Latency: latency}
}

// CheckAll checks every proxy concurrently and returns results in
// configured order.
func (h *HealthChecker) CheckAll(ctx context.Context, proxies []Proxy) []HealthResult {
	results := make([]HealthResult, len(proxies))

	g, gctx := errgroup.WithContext(ctx)
	if h.config.Concurrency > 0 {
		g.SetLimit(h.config.Concurrency)
	}
	for i, p := range proxies {
		g.Go(func() error {
			results[i] = h.Check(gctx, p, i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Healthy returns the healthy proxies, fastest first.
func (h *HealthChecker) Healthy(ctx context.Context, proxies []Proxy) []HealthResult {
	var healthy []HealthResult
	for _, r := range h.CheckAll(ctx, proxies) {
		if r.Healthy {
			healthy = append(healthy, r)
		}
	}
	sort.SliceStable(healthy, func(i, j int) bool {
		return healthy[i].Latency < healthy[j].Latency
	})
	return healthy
}

// Summary counts proxies whose cached verdict is healthy and fresh. It never checks.
func (h *HealthChecker) Summary(proxies []Proxy) HealthSummary {
	summary := HealthSummary{Total: len(proxies)}
	for i := range proxies {
		if rec, ok := h.cached(i); ok && rec.Healthy {
			summary.Healthy++
		}
	}
	return summary
}

// Clear drops every cached verdict.
func (h *HealthChecker) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = make(map[int]HealthRecord)
}
