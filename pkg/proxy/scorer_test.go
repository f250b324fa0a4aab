package proxy

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/harvest/pkg/store"
)

func threeProxies() []Proxy {
	return []Proxy{
		{Name: "a", URLTemplate: "https://a.example/?{url}"},
		{Name: "b", URLTemplate: "https://b.example/?{url}"},
		{Name: "c", URLTemplate: "https://c.example/?{url}"},
	}
}

// failingStore accepts reads and rejects every write.
type failingStore struct{ *store.Memory }

func (f *failingStore) Set(string, any) error { return errors.New("disk full") }

// --- ScoreEntry Tests ---

func TestScoreEntry_Defaults(t *testing.T) {
	var e ScoreEntry

	if e.SuccessRate() != 0.5 {
		t.Errorf("unseen SuccessRate() = %v, want 0.5", e.SuccessRate())
	}
	if e.AvgLatencyMs() != 10000 {
		t.Errorf("unseen AvgLatencyMs() = %v, want 10000", e.AvgLatencyMs())
	}
	if e.Score() != 0.5 {
		t.Errorf("unseen Score() = %v, want 0.5", e.Score())
	}
}

func TestScoreEntry_Score(t *testing.T) {
	tests := []struct {
		name  string
		entry ScoreEntry
		want  float64
	}{
		{"always fails", ScoreEntry{Failures: 4}, 0},
		{"fast and reliable", ScoreEntry{Successes: 2, TotalLatencyMs: 1000}, 20},
		{"half reliable", ScoreEntry{Successes: 1, Failures: 1, TotalLatencyMs: 2000}, 2.5},
		{"zero latency clamps", ScoreEntry{Successes: 1}, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Score(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Scorer Tests ---

func TestScorer_RecordAndEntry(t *testing.T) {
	s := NewScorer(nil)

	s.RecordSuccess(1, 800*time.Millisecond)
	s.RecordSuccess(1, 1200*time.Millisecond)
	s.RecordFailure(1)

	e := s.Entry(1)
	if e.Successes != 2 || e.Failures != 1 || e.TotalLatencyMs != 2000 {
		t.Errorf("Entry(1) = %+v", e)
	}
	if e.AvgLatencyMs() != 1000 {
		t.Errorf("AvgLatencyMs() = %v, want 1000", e.AvgLatencyMs())
	}
}

func TestScorer_Sorted_TieKeepsConfiguredOrder(t *testing.T) {
	s := NewScorer(nil)

	ranked := s.Sorted(threeProxies())
	for i, r := range ranked {
		if r.Index != i {
			t.Errorf("position %d has index %d, want configured order", i, r.Index)
		}
	}
}

func TestScorer_Sorted_Monotonic(t *testing.T) {
	s := NewScorer(nil)
	proxies := threeProxies()

	s.RecordSuccess(2, 500*time.Millisecond)
	before := s.Sorted(proxies)
	if before[0].Index != 2 {
		t.Fatalf("expected proxy 2 first after a success, got %d", before[0].Index)
	}

	// A failure can only lower a proxy's score; a success at or below its
	// current average latency can only raise it.
	scoreOf := func(index int) float64 {
		for _, r := range s.Sorted(proxies) {
			if r.Index == index {
				return r.Score
			}
		}
		return -1
	}

	prev := scoreOf(2)
	s.RecordFailure(2)
	if got := scoreOf(2); got > prev {
		t.Errorf("failure raised score: %v -> %v", prev, got)
	}

	prev = scoreOf(2)
	s.RecordSuccess(2, 500*time.Millisecond)
	if got := scoreOf(2); got < prev {
		t.Errorf("success lowered score: %v -> %v", prev, got)
	}
}

func TestScorer_UntestedNotStarved(t *testing.T) {
	s := NewScorer(nil)
	proxies := threeProxies()

	// Proxy 0 is a chronic failure; untested proxies 1 and 2 must outrank it.
	for i := 0; i < 5; i++ {
		s.RecordFailure(0)
	}

	ranked := s.Sorted(proxies)
	if ranked[len(ranked)-1].Index != 0 {
		t.Errorf("chronically failing proxy should rank last, order = %v", indexes(ranked))
	}
	if ranked[0].Score <= 0 {
		t.Errorf("untested proxy score = %v, want > 0", ranked[0].Score)
	}
}

func TestScorer_SlowSuccessStillBeatsUnseen(t *testing.T) {
	s := NewScorer(nil)

	// 100% at 9s average: 1.0 * 10000/9000 > 0.5 for an unseen proxy.
	s.RecordSuccess(2, 9*time.Second)

	ranked := s.Sorted(threeProxies())
	if ranked[0].Index != 2 {
		t.Errorf("order = %v, want proxy 2 first", indexes(ranked))
	}
}

func TestScorer_Stats(t *testing.T) {
	s := NewScorer(nil)
	s.RecordSuccess(0, 1499*time.Millisecond)
	s.RecordFailure(0)

	stats := s.Stats(threeProxies())
	if len(stats) != 3 {
		t.Fatalf("expected 3 stats, got %d", len(stats))
	}
	if stats[0].Name != "a" || stats[0].Successes != 1 || stats[0].Failures != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[0].SuccessRate != 0.5 || stats[0].AvgLatencyMs != 1499 {
		t.Errorf("stats[0] rate/latency = %v/%v", stats[0].SuccessRate, stats[0].AvgLatencyMs)
	}
	if stats[1].AvgLatencyMs != 10000 {
		t.Errorf("unseen avg latency = %d, want 10000", stats[1].AvgLatencyMs)
	}
}

// --- Persistence Tests ---

func TestScorer_WriteThroughAndLoad(t *testing.T) {
	st := store.NewMemory()
	s := NewScorer(st)

	s.RecordSuccess(2, 300*time.Millisecond)
	s.RecordFailure(0)

	reloaded := NewScorer(st)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if e := reloaded.Entry(2); e.Successes != 1 || e.TotalLatencyMs != 300 {
		t.Errorf("reloaded Entry(2) = %+v", e)
	}
	if e := reloaded.Entry(0); e.Failures != 1 {
		t.Errorf("reloaded Entry(0) = %+v", e)
	}
}

func TestScorer_NoAutoSave(t *testing.T) {
	st := store.NewMemory()
	s := NewScorer(st, WithAutoSave(false))
	s.RecordFailure(1)

	var raw map[int]ScoreEntry
	if found, _ := st.Get(ScoresKey, &raw); found {
		t.Fatal("scores persisted with auto-save off")
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if found, _ := st.Get(ScoresKey, &raw); !found || raw[1].Failures != 1 {
		t.Errorf("Save() did not persist, raw = %+v", raw)
	}
}

func TestScorer_StoreFailureSwallowed(t *testing.T) {
	s := NewScorer(&failingStore{Memory: store.NewMemory()})

	s.RecordSuccess(0, time.Second)
	s.RecordFailure(1)

	if s.Entry(0).Successes != 1 || s.Entry(1).Failures != 1 {
		t.Error("in-memory scores should survive a failing store")
	}
	if err := s.Save(); err == nil {
		t.Error("explicit Save() should report the store error")
	}
}

func TestScorer_Reset(t *testing.T) {
	st := store.NewMemory()
	s := NewScorer(st)
	s.RecordFailure(0)

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if s.Entry(0).Failures != 0 {
		t.Error("Reset() kept history")
	}

	reloaded := NewScorer(st)
	_ = reloaded.Load()
	if reloaded.Entry(0).Failures != 0 {
		t.Error("Reset() did not persist")
	}
}

func TestScorer_ConcurrentRecords(t *testing.T) {
	s := NewScorer(store.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.RecordSuccess(0, 10*time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			s.RecordFailure(0)
		}()
	}
	wg.Wait()

	e := s.Entry(0)
	if e.Successes != 50 || e.Failures != 50 {
		t.Errorf("lost updates: %+v", e)
	}
}

func indexes(ranked []Ranked) []int {
	out := make([]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.Index
	}
	return out
}
