package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/harvest/pkg/fetcher"
)

// checkFetcher answers checks per relay host with a fixed status, delay or error.
type checkFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	methods []string
	status  map[string]int
	delay   map[string]time.Duration
}

func newCheckFetcher() *checkFetcher {
	return &checkFetcher{
		calls:  make(map[string]int),
		status: make(map[string]int),
		delay:  make(map[string]time.Duration),
	}
}

func (f *checkFetcher) host(url string) string {
	url = strings.TrimPrefix(url, "https://")
	return url[:strings.Index(url, "/")]
}

func (f *checkFetcher) Fetch(ctx context.Context, url string, opts fetcher.Options) (fetcher.Content, error) {
	host := f.host(url)
	f.mu.Lock()
	f.calls[host]++
	f.methods = append(f.methods, opts.Method)
	status, ok := f.status[host]
	delay := f.delay[host]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fetcher.Content{}, ctx.Err()
		}
	}
	if !ok {
		return fetcher.Content{}, errors.New("connection refused")
	}
	if status >= 300 {
		return fetcher.Content{StatusCode: status}, fetcher.ErrHTTPStatus
	}
	return fetcher.Content{StatusCode: status}, nil
}

func (f *checkFetcher) Close() error { return nil }
func (f *checkFetcher) Type() string { return "check" }

func (f *checkFetcher) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

// --- Check Tests ---

func TestHealthChecker_Check_UsesHEAD(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/en/"})

	res := h.Check(context.Background(), threeProxies()[0], 0)
	if !res.Healthy || res.FromCache {
		t.Errorf("Check() = %+v, want healthy and fresh", res)
	}
	if len(pf.methods) != 1 || pf.methods[0] != http.MethodHead {
		t.Errorf("check methods = %v, want [HEAD]", pf.methods)
	}
}

func TestHealthChecker_Check_Verdicts(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	pf.status["b.example"] = http.StatusTooManyRequests
	// c.example has no status: transport error
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/"})

	want := []bool{true, false, false}
	for i, p := range threeProxies() {
		if got := h.Check(context.Background(), p, i).Healthy; got != want[i] {
			t.Errorf("proxy %s healthy = %v, want %v", p.Name, got, want[i])
		}
	}
}

func TestHealthChecker_Check_CachesWithinTTL(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/", TTL: time.Minute})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	p := threeProxies()[0]
	h.Check(context.Background(), p, 0)

	now = now.Add(59 * time.Second)
	if res := h.Check(context.Background(), p, 0); !res.FromCache {
		t.Error("expected cached verdict within TTL")
	}
	if pf.callCount("a.example") != 1 {
		t.Errorf("checks = %d, want 1", pf.callCount("a.example"))
	}

	now = now.Add(time.Second)
	if res := h.Check(context.Background(), p, 0); res.FromCache {
		t.Error("expected fresh check once TTL elapsed")
	}
	if pf.callCount("a.example") != 2 {
		t.Errorf("checks = %d, want 2", pf.callCount("a.example"))
	}
}

func TestHealthChecker_Check_CachesFailure(t *testing.T) {
	pf := newCheckFetcher()
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/"})
	p := threeProxies()[2]

	h.Check(context.Background(), p, 2)
	res := h.Check(context.Background(), p, 2)

	if res.Healthy || !res.FromCache {
		t.Errorf("second Check() = %+v, want cached unhealthy", res)
	}
}

func TestHealthChecker_Check_Timeout(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	pf.delay["a.example"] = time.Second
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/", Timeout: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := h.Check(ctx, threeProxies()[0], 0)
	if res.Healthy {
		t.Error("hung check should be unhealthy")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("check was not bounded by its context")
	}
}

// --- Healthy / Summary Tests ---

func TestHealthChecker_Healthy_SortedByLatency(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	pf.delay["a.example"] = 60 * time.Millisecond
	pf.status["b.example"] = http.StatusOK
	pf.delay["b.example"] = 5 * time.Millisecond
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/"})

	healthy := h.Healthy(context.Background(), threeProxies())
	if len(healthy) != 2 {
		t.Fatalf("expected 2 healthy proxies, got %d", len(healthy))
	}
	if healthy[0].Name != "b" || healthy[1].Name != "a" {
		t.Errorf("order = [%s %s], want [b a]", healthy[0].Name, healthy[1].Name)
	}
}

func TestHealthChecker_CheckAll_ConfiguredOrder(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["c.example"] = http.StatusOK
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/", Concurrency: 1})

	results := h.CheckAll(context.Background(), threeProxies())
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
	}
	if !results[2].Healthy || results[0].Healthy {
		t.Errorf("unexpected verdicts: %+v", results)
	}
}

func TestHealthChecker_SummaryAndClear(t *testing.T) {
	pf := newCheckFetcher()
	pf.status["a.example"] = http.StatusOK
	pf.status["b.example"] = http.StatusOK
	h := NewHealthChecker(pf, HealthConfig{CheckURL: "https://origin.example/"})
	proxies := threeProxies()

	if s := h.Summary(proxies); s.Healthy != 0 || s.Total != 3 {
		t.Errorf("Summary() before probing = %+v", s)
	}

	h.CheckAll(context.Background(), proxies)
	if s := h.Summary(proxies); s.Healthy != 2 {
		t.Errorf("Summary().Healthy = %d, want 2", s.Healthy)
	}

	h.Clear()
	if s := h.Summary(proxies); s.Healthy != 0 {
		t.Errorf("Summary().Healthy after Clear = %d, want 0", s.Healthy)
	}
}
