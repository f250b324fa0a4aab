package proxy

import (
	"strings"
	"testing"
)

const testTarget = "https://example.org/en/news/index.php?a=1&b=2"

// --- BuildURL Tests ---

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "escaped",
			template: "https://corsproxy.io/?{url}",
			want:     "https://corsproxy.io/?https%3A%2F%2Fexample.org%2Fen%2Fnews%2Findex.php%3Fa%3D1%26b%3D2",
		},
		{
			name:     "raw",
			template: "https://cors.eu.org/{rawurl}",
			want:     "https://cors.eu.org/" + testTarget,
		},
		{
			name:     "no placeholder appends",
			template: "https://relay.example/fetch/",
			want:     "https://relay.example/fetch/" + testTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildURL(tt.template, testTarget); got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxy_Host(t *testing.T) {
	tests := []struct {
		proxy Proxy
		want  string
	}{
		{Proxy{Name: "a", URLTemplate: "https://api.allorigins.win/raw?url={url}"}, "api.allorigins.win"},
		{Proxy{Name: "b", URLTemplate: "https://cors.eu.org/{rawurl}"}, "cors.eu.org"},
		{Proxy{Name: "fallback", URLTemplate: "not a url {url}"}, "fallback"},
	}

	for _, tt := range tests {
		if got := tt.proxy.Host(); got != tt.want {
			t.Errorf("Host() for %q = %q, want %q", tt.proxy.URLTemplate, got, tt.want)
		}
	}
}

// --- Unwrap Tests ---

func TestProxy_Unwrap(t *testing.T) {
	enveloped := Proxy{Name: "allorigins-get", Envelope: "contents"}
	plain := Proxy{Name: "corsproxy.io"}

	tests := []struct {
		name  string
		proxy Proxy
		body  string
		want  string
	}{
		{"envelope contents", enveloped, `{"contents":"<html>ok</html>","status":{"http_code":200}}`, "<html>ok</html>"},
		{"envelope missing field", enveloped, `{"status":{"http_code":500}}`, `{"status":{"http_code":500}}`},
		{"envelope empty contents", enveloped, `{"contents":""}`, `{"contents":""}`},
		{"envelope invalid json", enveloped, `{not json`, `{not json`},
		{"envelope html body", enveloped, "<html>raw</html>", "<html>raw</html>"},
		{"no envelope keeps json", plain, `{"contents":"<html>ok</html>"}`, `{"contents":"<html>ok</html>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.proxy.Unwrap(tt.body); got != tt.want {
				t.Errorf("Unwrap() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- DefaultProxies Tests ---

func TestDefaultProxies(t *testing.T) {
	proxies := DefaultProxies()
	if len(proxies) != 11 {
		t.Fatalf("expected 11 default proxies, got %d", len(proxies))
	}

	names := make(map[string]bool)
	envelopes := 0
	for _, p := range proxies {
		if names[p.Name] {
			t.Errorf("duplicate proxy name %q", p.Name)
		}
		names[p.Name] = true
		if !strings.Contains(p.URLTemplate, PlaceholderEscaped) && !strings.Contains(p.URLTemplate, PlaceholderRaw) {
			t.Errorf("proxy %q has no placeholder", p.Name)
		}
		if p.Envelope != "" {
			envelopes++
		}
	}
	if envelopes != 1 {
		t.Errorf("expected exactly one enveloped proxy, got %d", envelopes)
	}
	if proxies[0].Name != "corsproxy.io" {
		t.Errorf("first proxy = %q, want corsproxy.io", proxies[0].Name)
	}
}
