// Package content holds the normalized item model, the six content
// categories and the persisted content cache.
package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Category is a content category of the origin site.
type Category string

const (
	News         Category = "news"
	Events       Category = "events"
	Lectures     Category = "lectures"
	Publications Category = "publications"
	Members      Category = "members"
	Projects     Category = "projects"
)

// Categories lists every category in canonical order.
var Categories = []Category{News, Events, Lectures, Publications, Members, Projects}

// ErrUnknownCategory is returned for a category name outside Categories.
var ErrUnknownCategory = errors.New("unknown category")

// ParseCategory validates a category name.
func ParseCategory(name string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// Label returns the display name of c ("Publications").
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Item is a normalized scraped record.
type Item struct {
	ID       string            `json:"id" yaml:"id"`
	Title    string            `json:"title" yaml:"title"`
	Date     string            `json:"date" yaml:"date"`
	Summary  string            `json:"summary" yaml:"summary"`
	URL      string            `json:"url" yaml:"url"`
	Category Category          `json:"category" yaml:"category"`
	Pillar   string            `json:"pillar,omitempty" yaml:"pillar,omitempty"`
	ErefID   int               `json:"erefId,omitempty" yaml:"eref_id,omitempty"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// GenerateID derives a stable item id from title and date: the 32-bit
// shift-and-subtract string hash of "title|date" over UTF-16 code units,
// as lower-case hex of its absolute value, at most 12 characters.
func GenerateID(title, date string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(title + "|" + date)) {
		hash = (hash << 5) - hash + int32(unit)
	}

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	id := strconv.FormatInt(abs, 16)
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// Dedupe drops items whose ID was already seen, keeping first occurrences.
func Dedupe(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}
