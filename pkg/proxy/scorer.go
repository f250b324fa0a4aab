package proxy

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/store"
)

// ScoresKey is the store key the score table is persisted under.
const ScoresKey = "proxy_scores"

// Neutral values used for proxies with no history, so a new relay ranks
// between proven-good and proven-bad ones instead of at either end.
const (
	UnseenSuccessRate  = 0.5
	UnknownAvgLatency  = 10000.0 // ms
	latencyScoreFactor = 10000.0
)

// ScoreEntry is the observed history of one proxy.
type ScoreEntry struct {
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	TotalLatencyMs float64 `json:"totalLatency"`
}

// SuccessRate returns successes / attempts, or 0.5 for an unseen proxy.
func (e ScoreEntry) SuccessRate() float64 {
	total := e.Successes + e.Failures
	if total == 0 {
		return UnseenSuccessRate
	}
	return float64(e.Successes) / float64(total)
}

// AvgLatencyMs returns the mean latency of successful fetches, or 10000 when
// there are none.
func (e ScoreEntry) AvgLatencyMs() float64 {
	if e.Successes == 0 {
		return UnknownAvgLatency
	}
	return e.TotalLatencyMs / float64(e.Successes)
}

// Score is successRate * (10000 / avgLatency). Higher is better.
func (e ScoreEntry) Score() float64 {
	avg := e.AvgLatencyMs()
	if avg <= 0 {
		// Sub-millisecond relays (tests, loopback) still rank by success rate.
		avg = 1
	}
	return e.SuccessRate() * (latencyScoreFactor / avg)
}

// Ranked is a proxy with its current score.
type Ranked struct {
	Index        int
	Proxy        Proxy
	Score        float64
	SuccessRate  float64
	AvgLatencyMs float64
}

// Stat is the per-proxy row shown by the stats table.
type Stat struct {
	Index        int     `json:"index" yaml:"index"`
	Name         string  `json:"name" yaml:"name"`
	Successes    int     `json:"successes" yaml:"successes"`
	Failures     int     `json:"failures" yaml:"failures"`
	SuccessRate  float64 `json:"successRate" yaml:"success_rate"`
	AvgLatencyMs int64   `json:"avgLatency" yaml:"avg_latency_ms"`
}

// Scorer is the reputation table for the configured proxies. It is safe
// for concurrent use; every mutation is a locked read-modify-write and, with
// auto-save on, is written through to the store before the lock is released.
type Scorer struct {
	mu       sync.Mutex
	store    store.Store
	scores   map[int]ScoreEntry
	autoSave bool
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithAutoSave controls write-through persistence (default on).
func WithAutoSave(enabled bool) ScorerOption {
	return func(s *Scorer) {
		s.autoSave = enabled
	}
}

// NewScorer creates an empty score table backed by st. A nil store keeps
// scores in memory only.
func NewScorer(st store.Store, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		store:    st,
		scores:   make(map[int]ScoreEntry),
		autoSave: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory table with the persisted one. A missing or
// unreadable table leaves the scorer empty.
func (s *Scorer) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores = make(map[int]ScoreEntry)
	if s.store == nil {
		return nil
	}

	loaded := make(map[int]ScoreEntry)
	found, err := s.store.Get(ScoresKey, &loaded)
	if err != nil {
		return fmt.Errorf("failed to load proxy scores: %w", err)
	}
	if found {
		s.scores = loaded
	}
	return nil
}

// Save persists the table.
func (s *Scorer) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Scorer) saveLocked() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Set(ScoresKey, s.scores); err != nil {
		return fmt.Errorf("failed to save proxy scores: %w", err)
	}
	return nil
}

// persistLocked writes through when auto-save is on. Storage failures never
// reach the fetch path.
func (s *Scorer) persistLocked() {
	if !s.autoSave {
		return
	}
	if err := s.saveLocked(); err != nil {
		logger.Warn("proxy score write-through failed", "error", err)
	}
}

// RecordSuccess counts a valid fetch through proxy index.
func (s *Scorer) RecordSuccess(index int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.scores[index]
	e.Successes++
	e.TotalLatencyMs += math.Round(float64(latency) / float64(time.Millisecond))
	s.scores[index] = e
	s.persistLocked()
}

// RecordFailure counts a failed or rejected fetch through proxy index.
func (s *Scorer) RecordFailure(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.scores[index]
	e.Failures++
	s.scores[index] = e
	s.persistLocked()
}

// Entry returns the history of proxy index (zero value if unseen).
func (s *Scorer) Entry(index int) ScoreEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[index]
}

// Sorted ranks proxies by score, best first. Ties keep configured order.
func (s *Scorer) Sorted(proxies []Proxy) []Ranked {
	s.mu.Lock()
	ranked := make([]Ranked, len(proxies))
	for i, p := range proxies {
		e := s.scores[i]
		ranked[i] = Ranked{
			Index:        i,
			Proxy:        p,
			Score:        e.Score(),
			SuccessRate:  e.SuccessRate(),
			AvgLatencyMs: e.AvgLatencyMs(),
		}
	}
	s.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Stats returns one row per proxy in configured order.
func (s *Scorer) Stats(proxies []Proxy) []Stat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]Stat, len(proxies))
	for i, p := range proxies {
		e := s.scores[i]
		stats[i] = Stat{
			Index:        i,
			Name:         p.Name,
			Successes:    e.Successes,
			Failures:     e.Failures,
			SuccessRate:  e.SuccessRate(),
			AvgLatencyMs: int64(math.Round(e.AvgLatencyMs())),
		}
	}
	return stats
}

// Reset forgets all history and persists the empty table.
func (s *Scorer) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores = make(map[int]ScoreEntry)
	return s.saveLocked()
}
