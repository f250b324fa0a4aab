package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/fetcher"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/store"
)

// pageHTML returns an HTML page of at least size characters.
func pageHTML(size int) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>t</title></head><body>")
	for b.Len() < size {
		b.WriteString("<div>Responsible AI research in Bayreuth.</div>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// reply is a canned relay answer.
type reply struct {
	status int
	body   string
	err    error
}

// relayFetcher answers per relay host and records every request.
type relayFetcher struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []fetcher.Options
	hosts    []string
}

func newRelayFetcher(replies map[string]reply) *relayFetcher {
	return &relayFetcher{replies: replies}
}

func (f *relayFetcher) Fetch(ctx context.Context, rawURL string, opts fetcher.Options) (fetcher.Content, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fetcher.Content{}, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, opts)
	f.hosts = append(f.hosts, u.Host)
	r, ok := f.replies[u.Host]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fetcher.Content{}, err
	}
	switch {
	case !ok:
		return fetcher.Content{}, errors.New("connection refused")
	case r.err != nil:
		return fetcher.Content{}, r.err
	case r.status >= 300:
		return fetcher.Content{StatusCode: r.status}, fmt.Errorf("%w: %d", fetcher.ErrHTTPStatus, r.status)
	}
	return fetcher.Content{URL: rawURL, Body: r.body, StatusCode: r.status}, nil
}

func (f *relayFetcher) Close() error { return nil }
func (f *relayFetcher) Type() string { return "fake" }

func (f *relayFetcher) hostLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hosts...)
}

func testProxies(hosts ...string) []proxy.Proxy {
	proxies := make([]proxy.Proxy, len(hosts))
	for i, h := range hosts {
		proxies[i] = proxy.Proxy{Name: h, URLTemplate: "https://" + h + "/?url={url}"}
	}
	return proxies
}

// recorder captures observer calls.
type recorder struct {
	mu       sync.Mutex
	statuses map[content.Category][]Status
	progress []int
	messages []string
	health   [][2]int
	errs     map[content.Category]string
}

func newRecorder() *recorder {
	return &recorder{
		statuses: make(map[content.Category][]Status),
		errs:     make(map[content.Category]string),
	}
}

func (r *recorder) observer() Observer {
	return ObserverFuncs{
		CategoryStatus: func(c content.Category, s Status, _ int) {
			r.mu.Lock()
			r.statuses[c] = append(r.statuses[c], s)
			r.mu.Unlock()
		},
		Progress: func(p int, msg string) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.messages = append(r.messages, msg)
			r.mu.Unlock()
		},
		ProxyHealth: func(healthy, total int) {
			r.mu.Lock()
			r.health = append(r.health, [2]int{healthy, total})
			r.mu.Unlock()
		},
		CategoryError: func(c content.Category, msg string) {
			r.mu.Lock()
			r.errs[c] = msg
			r.mu.Unlock()
		},
	}
}

func (r *recorder) last(c content.Category) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.statuses[c]
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// newTestHarvester builds a Harvester with zero delays over an in-memory store.
func newTestHarvester(t *testing.T, opts ...Option) (*Harvester, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	base := []Option{
		WithStore(st),
		WithFetcher(newRelayFetcher(nil)),
		WithProxies(testProxies("a.test", "b.test", "c.test")),
		WithProxyDelay(0),
		WithRetryBackoff(0),
	}
	h, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h, st
}

// items returns n distinct items of category c.
func items(c content.Category, n int) []content.Item {
	out := make([]content.Item, n)
	for i := range out {
		title := fmt.Sprintf("%s item %d", c, i)
		out[i] = content.Item{ID: content.GenerateID(title, "2025"), Title: title, Date: "2025", Category: c}
	}
	return out
}

// --- Config Tests ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no proxies", func(c *Config) { c.Proxies = nil }, true},
		{"proxy without placeholder", func(c *Config) { c.Proxies = []proxy.Proxy{{Name: "x", URLTemplate: "https://x.test/"}} }, true},
		{"bad check url", func(c *Config) { c.CheckURL = "::" }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"zero timeout", func(c *Config) { c.PageTimeout = 0 }, true},
		{"negative delay", func(c *Config) { c.ProxyDelay = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	h, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = h.Close() }()

	if len(h.Proxies()) != len(proxy.DefaultProxies()) {
		t.Errorf("proxies = %d", len(h.Proxies()))
	}
	if len(h.Rules().URLs(content.News)) == 0 {
		t.Error("default rules not loaded")
	}
	if h.fetcher.Type() != "static" {
		t.Errorf("fetcher = %s, want static", h.fetcher.Type())
	}
}

// --- Observer Tests ---

func TestMultiObserver(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	m := NewMultiObserver(a.observer())
	m.Add(b.observer())

	m.OnCategoryStatus(content.News, StatusSuccess, 3)
	m.OnProgress(50, "half")
	m.OnProxyHealth(2, 5)
	m.OnCategoryError(content.Events, "boom")

	for _, r := range []*recorder{a, b} {
		if r.last(content.News) != StatusSuccess || len(r.progress) != 1 || len(r.health) != 1 || r.errs[content.Events] != "boom" {
			t.Errorf("observer missed events: %+v", r)
		}
	}
}

func TestObserverFuncs_NilFieldsAreSkipped(t *testing.T) {
	var obs Observer = ObserverFuncs{}
	obs.OnCategoryStatus(content.News, StatusLoading, 0)
	obs.OnProgress(0, "")
	obs.OnProxyHealth(0, 0)
	obs.OnCategoryError(content.News, "")
}

// --- Settings Tests ---

func TestSettings_RoundTripKeepsUnknownKeys(t *testing.T) {
	h, st := newTestHarvester(t)
	_ = st.Set(SettingsKey, map[string]any{"theme": "dark"})

	if err := h.UpdateSettings(map[string]any{"cacheExpiryHours": 6}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	if got := h.Settings().CacheTTL(); got.Hours() != 6 {
		t.Errorf("CacheTTL() = %v, want 6h", got)
	}
	var doc map[string]any
	_, _ = st.Get(SettingsKey, &doc)
	if doc["theme"] != "dark" {
		t.Errorf("theme lost: %v", doc)
	}
}

func TestSettings_DefaultTTL(t *testing.T) {
	h, _ := newTestHarvester(t)
	if got := h.Settings().CacheTTL(); got != content.DefaultTTL {
		t.Errorf("CacheTTL() = %v, want %v", got, content.DefaultTTL)
	}
}

// storeBytes sums the encoded size of every value in st.
func storeBytes(t *testing.T, st *store.Memory) int {
	t.Helper()
	n := 0
	for _, k := range st.Keys() {
		var raw json.RawMessage
		if _, err := st.Get(k, &raw); err != nil {
			t.Fatalf("Get(%s) error = %v", k, err)
		}
		n += len(raw)
	}
	return n
}

func TestSettings_ClearsContentCacheWhenStoreFull(t *testing.T) {
	cached := func() *content.Cached {
		c := content.NewCached()
		_ = c.SetItems(content.News, items(content.News, 5))
		return c
	}

	// Measure what a harvester plus one saved cache occupies.
	sized, sizedStore := newTestHarvester(t)
	if err := sized.Cache().Save(cached(), time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	used := storeBytes(t, sizedStore)

	st := store.NewMemory(store.WithMaxTotalBytes(used + 40))
	h, _ := newTestHarvester(t, WithStore(st))
	if err := h.Cache().Save(cached(), time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := h.UpdateSettings(map[string]any{"note": strings.Repeat("x", 200)}); err != nil {
		t.Fatalf("UpdateSettings() error = %v, want the content cache cleared to make room", err)
	}
	if got, _ := h.Cache().Load(); !got.CachedAt.IsZero() {
		t.Error("content cache still present after making room for settings")
	}
}

func TestSettings_KeepsContentCacheWhenClearingCannotHelp(t *testing.T) {
	st := store.NewMemory(store.WithMaxTotalBytes(4096))
	h, _ := newTestHarvester(t, WithStore(st))
	c := content.NewCached()
	_ = c.SetItems(content.News, items(content.News, 2))
	if err := h.Cache().Save(c, time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := h.UpdateSettings(map[string]any{"note": strings.Repeat("x", 8000)})
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("UpdateSettings() error = %v, want ErrQuotaExceeded", err)
	}
	if got := h.Cache().Category(content.News); len(got) != 2 {
		t.Errorf("Category(News) = %d items, want 2", len(got))
	}
}
