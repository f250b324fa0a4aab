package content

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/store"
)

// CacheKey is the store key the content cache is persisted under.
const CacheKey = "cached_content"

// DefaultTTL is how long a fresh scrape stays valid.
const DefaultTTL = 24 * time.Hour

// Cached is the last known content of every category.
type Cached struct {
	News         []Item    `json:"news" yaml:"news"`
	Events       []Item    `json:"events" yaml:"events"`
	Lectures     []Item    `json:"lectures" yaml:"lectures"`
	Publications []Item    `json:"publications" yaml:"publications"`
	Members      []Item    `json:"members" yaml:"members"`
	Projects     []Item    `json:"projects" yaml:"projects"`
	CachedAt     time.Time `json:"cachedAt" yaml:"cached_at"`
	ExpiresAt    time.Time `json:"expiresAt" yaml:"expires_at"`
}

// NewCached returns content with every category present and empty.
func NewCached() *Cached {
	c := &Cached{}
	c.normalize()
	return c
}

func (c *Cached) slot(cat Category) *[]Item {
	switch cat {
	case News:
		return &c.News
	case Events:
		return &c.Events
	case Lectures:
		return &c.Lectures
	case Publications:
		return &c.Publications
	case Members:
		return &c.Members
	case Projects:
		return &c.Projects
	}
	return nil
}

// normalize replaces nil slices with empty ones so encoded content always
// carries six arrays.
func (c *Cached) normalize() {
	for _, cat := range Categories {
		if s := c.slot(cat); *s == nil {
			*s = []Item{}
		}
	}
}

// Items returns the items of cat (nil for an unknown category).
func (c *Cached) Items(cat Category) []Item {
	if s := c.slot(cat); s != nil {
		return *s
	}
	return nil
}

// SetItems replaces the items of cat.
func (c *Cached) SetItems(cat Category, items []Item) error {
	s := c.slot(cat)
	if s == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	if items == nil {
		items = []Item{}
	}
	*s = items
	return nil
}

// All flattens every category in canonical order.
func (c *Cached) All() []Item {
	var all []Item
	for _, cat := range Categories {
		all = append(all, c.Items(cat)...)
	}
	return all
}

// Counts returns the number of items per category.
func (c *Cached) Counts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, cat := range Categories {
		counts[cat] = len(c.Items(cat))
	}
	return counts
}

// Total returns the number of items across all categories.
func (c *Cached) Total() int {
	total := 0
	for _, cat := range Categories {
		total += len(c.Items(cat))
	}
	return total
}

// ValidAt reports whether the content has not expired at now.
func (c *Cached) ValidAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.After(now)
}

// Cache persists Cached to a store. Read-modify-write updates are serialised.
type Cache struct {
	mu    sync.Mutex
	store store.Store
	now   func() time.Time
}

// NewCache creates a cache over st.
func NewCache(st store.Store) *Cache {
	return &Cache{store: st, now: time.Now}
}

// SetClock overrides the time source (tests).
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Load returns the cached content, or empty content when nothing is cached.
func (c *Cache) Load() (*Cached, error) {
	cached := NewCached()
	if _, err := c.store.Get(CacheKey, cached); err != nil {
		return NewCached(), fmt.Errorf("failed to load content cache: %w", err)
	}
	cached.normalize()
	return cached, nil
}

// IsValid reports whether unexpired content is cached.
func (c *Cache) IsValid() bool {
	cached, err := c.Load()
	if err != nil {
		return false
	}
	return cached.ValidAt(c.now())
}

// Category returns the cached items of cat. Read errors yield nil.
func (c *Cache) Category(cat Category) []Item {
	cached, err := c.Load()
	if err != nil {
		logger.Debug("content cache unreadable", "category", cat, "error", err)
		return nil
	}
	return cached.Items(cat)
}

// Save stamps content with CachedAt = now and ExpiresAt = now + ttl and
// writes it as one value.
func (c *Cache) Save(content *Cached, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(content, ttl)
}

func (c *Cache) saveLocked(content *Cached, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now().UTC()
	content.normalize()
	content.CachedAt = now
	content.ExpiresAt = now.Add(ttl)

	// A refused write leaves the previous copy in place.
	if err := c.store.Set(CacheKey, content); err != nil {
		return fmt.Errorf("failed to save content cache: %w", err)
	}
	return nil
}

// UpdateCategory replaces one category in the cached content and re-stamps it.
func (c *Cache) UpdateCategory(cat Category, items []Item, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, err := c.Load()
	if err != nil {
		logger.Warn("content cache unreadable, starting fresh", "error", err)
	}
	if err := cached.SetItems(cat, items); err != nil {
		return err
	}
	return c.saveLocked(cached, ttl)
}

// Clear removes the cached content.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(CacheKey); err != nil {
		return fmt.Errorf("failed to clear content cache: %w", err)
	}
	return nil
}
