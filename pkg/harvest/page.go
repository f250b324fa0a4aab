package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/harvest/pkg/fetcher"
	"github.com/jmylchreest/harvest/pkg/proxy"
)

// htmlMarkers are looked for near the start of a payload.
var htmlMarkers = []string{"<!doctype", "<html", "<body", "<head", "<div", "<meta", "<link"}

// payloadHead is how many leading characters are searched for markers.
const payloadHead = 500

// errInvalidPayload marks a 2xx response that is not a usable page.
var errInvalidPayload = errors.New("invalid payload")

// Verdict is the classification of a relay response body.
type Verdict struct {
	IsHTML bool
	// Length counts UTF-16 code units, matching browser string length.
	Length int
}

// Valid reports whether the payload is HTML of at least minLength.
func (v Verdict) Valid(minLength int) bool {
	return v.IsHTML && v.Length >= minLength
}

// ClassifyPayload decides whether text looks like an HTML page. JSON
// (leading '{' or '[') is rejected; otherwise one of the usual tags must
// appear in the first 500 characters.
func ClassifyPayload(text string) Verdict {
	v := Verdict{Length: utf16Len(text)}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed[0] == '{' || trimmed[0] == '[' {
		return v
	}

	head := trimmed
	if runes := []rune(trimmed); len(runes) > payloadHead {
		head = string(runes[:payloadHead])
	}
	head = strings.ToLower(head)
	for _, m := range htmlMarkers {
		if strings.Contains(head, m) {
			v.IsHTML = true
			break
		}
	}
	return v
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// PageOption adjusts a single FetchPage call.
type PageOption func(*pageOptions)

type pageOptions struct {
	timeout time.Duration
}

// WithFetchTimeout bounds each relay request of one FetchPage call,
// overriding Config.PageTimeout. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) PageOption {
	return func(o *pageOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// FetchPage fetches target through the relays, best score first, one at a
// time. The first relay returning valid HTML wins and is recorded as the
// preferred proxy. Failures are scored and logged, never returned.
func (h *Harvester) FetchPage(ctx context.Context, target string, opts ...PageOption) (string, bool) {
	po := pageOptions{timeout: h.config.PageTimeout}
	for _, opt := range opts {
		opt(&po)
	}

	ranked := h.scorer.Sorted(h.config.Proxies)

	for i, r := range ranked {
		started := time.Now()
		text, err := h.fetchVia(ctx, r.Proxy, target, po.timeout)
		latency := time.Since(started)

		if err == nil {
			h.scorer.RecordSuccess(r.Index, latency)
			if err := h.UpdateSettings(map[string]any{"preferredProxy": r.Index}); err != nil {
				h.log.Warn("failed to record preferred proxy", "error", err)
			}
			h.log.Debug("proxy succeeded",
				"proxy", r.Proxy.Name,
				"latency_ms", latency.Milliseconds(),
				"chars", utf16Len(text))
			return text, true
		}

		// A cancelled caller says nothing about the relay.
		if ctx.Err() != nil {
			h.log.Debug("page fetch cancelled", "url", target, "error", ctx.Err())
			return "", false
		}

		h.scorer.RecordFailure(r.Index)
		h.log.Warn("proxy failed",
			"proxy", r.Proxy.Name,
			"attempt", fmt.Sprintf("%d/%d", i+1, len(ranked)),
			"url", target,
			"error", err)

		if i < len(ranked)-1 && !sleep(ctx, h.config.ProxyDelay) {
			return "", false
		}
	}

	h.log.Error("all proxies failed", "url", target, "proxies", len(ranked))
	return "", false
}

// fetchVia requests target through p and returns the unwrapped, validated body.
func (h *Harvester) fetchVia(ctx context.Context, p proxy.Proxy, target string, timeout time.Duration) (string, error) {
	resp, err := h.fetcher.Fetch(ctx, p.URL(target), fetcher.Options{
		Method:    http.MethodGet,
		UserAgent: h.config.UserAgent,
		Timeout:   timeout,
		Headers: map[string]string{
			fetcher.HeaderAccept:       fetcher.AcceptHTML,
			fetcher.HeaderCacheControl: fetcher.NoStore,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return "", fmt.Errorf("%w: %d", fetcher.ErrHTTPStatus, resp.StatusCode)
	}

	text := p.Unwrap(resp.Body)
	if v := ClassifyPayload(text); !v.Valid(h.config.MinPageLength) {
		return "", fmt.Errorf("%w: html=%t length=%d", errInvalidPayload, v.IsHTML, v.Length)
	}
	return text, nil
}
