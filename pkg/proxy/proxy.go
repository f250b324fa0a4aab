// Package proxy models the CORS relays harvest fetches through, ranks them
// by observed reliability and latency, and checks their health.
package proxy

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Template placeholders understood by BuildURL.
const (
	// PlaceholderEscaped is replaced by the query-escaped target URL.
	PlaceholderEscaped = "{url}"
	// PlaceholderRaw is replaced by the target URL verbatim.
	PlaceholderRaw = "{rawurl}"
)

// Proxy is a relay that fetches a target URL on the caller's behalf.
// A proxy is identified by its position in the configured list.
type Proxy struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	URLTemplate string `json:"url_template" yaml:"url_template" mapstructure:"url_template" validate:"required,contains={"`
	// Envelope names the JSON field holding the page body when the relay
	// wraps its response (allorigins /get returns {"contents": "..."}).
	Envelope string `json:"envelope,omitempty" yaml:"envelope,omitempty" mapstructure:"envelope"`
}

// BuildURL substitutes target into a proxy URL template.
func BuildURL(template, target string) string {
	switch {
	case strings.Contains(template, PlaceholderEscaped):
		return strings.ReplaceAll(template, PlaceholderEscaped, url.QueryEscape(target))
	case strings.Contains(template, PlaceholderRaw):
		return strings.ReplaceAll(template, PlaceholderRaw, target)
	default:
		return template + target
	}
}

// URL returns the proxied form of target.
func (p Proxy) URL(target string) string {
	return BuildURL(p.URLTemplate, target)
}

// Host returns the relay's host, for log lines that should not carry the
// full (and long) proxied URL.
func (p Proxy) Host() string {
	u, err := url.Parse(strings.NewReplacer(PlaceholderEscaped, "", PlaceholderRaw, "").Replace(p.URLTemplate))
	if err != nil || u.Host == "" {
		return p.Name
	}
	return u.Host
}

// Unwrap extracts the page body from an enveloped response. Bodies that are
// not JSON objects, or that lack a non-empty envelope field, are returned
// unchanged.
func (p Proxy) Unwrap(body string) string {
	if p.Envelope == "" || !strings.HasPrefix(strings.TrimSpace(body), "{") {
		return body
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return body
	}
	raw, ok := envelope[p.Envelope]
	if !ok {
		return body
	}
	var contents string
	if err := json.Unmarshal(raw, &contents); err != nil || contents == "" {
		return body
	}
	return contents
}

// DefaultProxies returns the public relays in their configured order.
// Earlier entries win score ties.
func DefaultProxies() []Proxy {
	return []Proxy{
		{Name: "corsproxy.io", URLTemplate: "https://corsproxy.io/?{url}"},
		{Name: "allorigins-raw", URLTemplate: "https://api.allorigins.win/raw?url={url}"},
		{Name: "cors.sh", URLTemplate: "https://proxy.cors.sh/{rawurl}"},
		{Name: "codetabs", URLTemplate: "https://api.codetabs.com/v1/proxy?quest={url}"},
		{Name: "corsproxy.org", URLTemplate: "https://corsproxy.org/?{url}"},
		{Name: "cors.eu.org", URLTemplate: "https://cors.eu.org/{rawurl}"},
		{Name: "thingproxy", URLTemplate: "https://thingproxy.freeboard.io/fetch/{rawurl}"},
		{Name: "allorigins-get", URLTemplate: "https://api.allorigins.win/get?url={url}", Envelope: "contents"},
		{Name: "cors.lol", URLTemplate: "https://api.cors.lol/?url={url}"},
		{Name: "yacdn", URLTemplate: "https://yacdn.org/proxy/{rawurl}"},
		{Name: "cors-anywhere", URLTemplate: "https://cors-anywhere.herokuapp.com/{rawurl}"},
	}
}
