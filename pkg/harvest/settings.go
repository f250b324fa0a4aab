package harvest

import (
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/pkg/content"
)

// SettingsKey is the store key of the application settings document.
const SettingsKey = "app_settings"

// Settings is the part of the application settings harvest reads.
type Settings struct {
	CacheExpiryHours int  `json:"cacheExpiryHours,omitempty"`
	PreferredProxy   *int `json:"preferredProxy,omitempty"`
}

// CacheTTL returns the content cache lifetime, 24h when unset.
func (s Settings) CacheTTL() time.Duration {
	if s.CacheExpiryHours <= 0 {
		return content.DefaultTTL
	}
	return time.Duration(s.CacheExpiryHours) * time.Hour
}

// Settings reads the application settings. A missing or unreadable document
// yields the zero value.
func (h *Harvester) Settings() Settings {
	var s Settings
	if _, err := h.store.Get(SettingsKey, &s); err != nil {
		h.log.Debug("settings unreadable", "error", err)
		return Settings{}
	}
	return s
}

// UpdateSettings merges values into the settings document. Keys harvest
// does not know about are kept.
func (h *Harvester) UpdateSettings(values map[string]any) error {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()

	doc := map[string]any{}
	if _, err := h.store.Get(SettingsKey, &doc); err != nil || doc == nil {
		doc = map[string]any{}
	}
	for k, v := range values {
		doc[k] = v
	}
	if err := h.store.Set(SettingsKey, doc); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
