package extract

import (
	"net/url"
	"strings"
)

// ResolveLink turns an href into an absolute URL against base. Fragments,
// javascript: and mailto: links are rejected.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "#") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}

	linkURL, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	// Make absolute if relative
	if !linkURL.IsAbs() && base != nil {
		linkURL = base.ResolveReference(linkURL)
	}

	linkURL.Fragment = ""
	return linkURL.String(), true
}
