package content

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/harvest/pkg/store"
)

// SeenKey is the store key of the seen-item tracker.
const SeenKey = "seen_items"

// SeenEntry records when an item was first reported.
type SeenEntry struct {
	Title  string    `json:"title"`
	Date   string    `json:"date"`
	SeenAt time.Time `json:"seenAt"`
}

// SeenData is the persisted tracker document.
type SeenData struct {
	Items     map[string]SeenEntry `json:"items"`
	LastCheck time.Time            `json:"lastCheck,omitzero"`
}

// Seen tracks which items have already been reported, so later runs can
// surface only new ones.
type Seen struct {
	mu    sync.Mutex
	store store.Store
	now   func() time.Time
}

// NewSeen creates a tracker over st.
func NewSeen(st store.Store) *Seen {
	return &Seen{store: st, now: time.Now}
}

func (s *Seen) load() (SeenData, error) {
	data := SeenData{Items: map[string]SeenEntry{}}
	if _, err := s.store.Get(SeenKey, &data); err != nil {
		return SeenData{Items: map[string]SeenEntry{}}, fmt.Errorf("failed to load seen items: %w", err)
	}
	if data.Items == nil {
		data.Items = map[string]SeenEntry{}
	}
	return data, nil
}

// IsSeen reports whether id has been marked.
func (s *Seen) IsSeen(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := data.Items[id]
	return ok, nil
}

// Unseen returns the items not yet marked, in input order.
func (s *Seen) Unseen(items []Item) ([]Item, error) {
	s.mu.Lock()
	data, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := data.Items[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// MarkSeen records items. Items already marked keep their original SeenAt.
func (s *Seen) MarkSeen(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, it := range items {
		if _, ok := data.Items[it.ID]; ok {
			continue
		}
		data.Items[it.ID] = SeenEntry{Title: it.Title, Date: it.Date, SeenAt: now}
	}
	data.LastCheck = now

	if err := s.store.Set(SeenKey, data); err != nil {
		return fmt.Errorf("failed to save seen items: %w", err)
	}
	return nil
}

// Count returns the number of marked items.
func (s *Seen) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(data.Items), nil
}

// Clear forgets every marked item.
func (s *Seen) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(SeenKey, SeenData{Items: map[string]SeenEntry{}}); err != nil {
		return fmt.Errorf("failed to clear seen items: %w", err)
	}
	return nil
}
