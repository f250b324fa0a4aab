package commands

import (
	"testing"
	"time"

	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
)

func TestSummaryTable(t *testing.T) {
	cached := content.NewCached()
	_ = cached.SetItems(content.News, []content.Item{{ID: "a"}, {ID: "b"}})
	_ = cached.SetItems(content.Publications, []content.Item{{ID: "c"}})
	cached.CachedAt = time.Now()
	cached.ExpiresAt = cached.CachedAt.Add(time.Hour)

	table := summaryTable{
		cached: cached,
		statuses: map[content.Category]categoryState{
			content.News:   {Status: harvest.StatusSuccess},
			content.Events: {Status: harvest.StatusFailed, Error: "all proxies failed"},
		},
	}

	rows := table.Rows()
	if len(rows) != len(content.Categories)+1 {
		t.Fatalf("got %d rows, want %d", len(rows), len(content.Categories)+1)
	}
	if rows[0][0] != "News" || rows[0][1] != "success" || rows[0][2] != "2" {
		t.Errorf("news row = %v", rows[0])
	}
	if rows[1][1] != "failed" || rows[1][3] != "all proxies failed" {
		t.Errorf("events row = %v", rows[1])
	}
	if rows[2][1] != "-" {
		t.Errorf("unreported category status = %q, want -", rows[2][1])
	}
	total := rows[len(rows)-1]
	if total[0] != "Total" || total[2] != "3" || total[3] == "" {
		t.Errorf("total row = %v", total)
	}
}

func TestStatsTable(t *testing.T) {
	stats := []proxy.Stat{
		{Index: 0, Name: "relay", Successes: 1200, Failures: 3, SuccessRate: 0.5, AvgLatencyMs: 1500},
		{Index: 1, Name: "unseen", SuccessRate: 0.5, AvgLatencyMs: 10000},
	}
	table := statsTable(stats)
	rows := table.Rows()
	if len(rows) != len(stats) {
		t.Fatalf("got %d rows, want %d", len(rows), len(stats))
	}
	for i, row := range rows {
		if len(row) != len(table.Header()) {
			t.Errorf("row %d has %d columns, header has %d", i, len(row), len(table.Header()))
		}
	}

	want := []string{"0", "relay", "1,200", "3", "50%", "1.5s"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], want[i])
		}
	}
	if rows[1][5] != "10s" {
		t.Errorf("unseen relay latency = %q, want 10s", rows[1][5])
	}
}

func TestHealthTable(t *testing.T) {
	results := []proxy.HealthResult{
		{Index: 2, Name: "relay", Healthy: true, Latency: 1234567 * time.Microsecond},
		{Index: 3, Name: "down", Healthy: false, FromCache: true},
	}
	table := healthTable(results)
	rows := table.Rows()
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	want := [][]string{
		{"2", "relay", "true", "1.235s", "false"},
		{"3", "down", "false", "0s", "true"},
	}
	for r := range want {
		if len(rows[r]) != len(table.Header()) {
			t.Errorf("row %d has %d columns, header has %d", r, len(rows[r]), len(table.Header()))
			continue
		}
		for c := range want[r] {
			if rows[r][c] != want[r][c] {
				t.Errorf("row %d column %d = %q, want %q", r, c, rows[r][c], want[r][c])
			}
		}
	}
}

func TestReportTable_SystemFirst(t *testing.T) {
	report := scrapelog.Report{
		ByCategory: map[string]*scrapelog.CategoryReport{
			"news":   {Events: []scrapelog.Event{scrapelog.EventStart, scrapelog.EventSuccess}, LastStatus: scrapelog.EventSuccess},
			"system": {Events: []scrapelog.Event{scrapelog.EventStart}, LastStatus: scrapelog.EventStart},
			"custom": {Events: []scrapelog.Event{scrapelog.EventFailed}, LastStatus: scrapelog.EventFailed},
		},
	}

	rows := reportTable(report).Rows()
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][0] != "system" || rows[1][0] != "news" || rows[2][0] != "custom" {
		t.Errorf("row order = %v", rows)
	}
	if rows[1][2] != "2" {
		t.Errorf("news event count = %q", rows[1][2])
	}
}

func TestResultTable(t *testing.T) {
	rows := resultTable(harvest.Result{
		Category: content.Members,
		Data:     []content.Item{{ID: "x"}},
		Status:   harvest.StatusCached,
		Source:   harvest.SourceStore,
		Err:      "all proxies failed",
	}).Rows()

	want := []string{"Members", "cached", "store", "1", "all proxies failed"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], want[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer title here", 10, "a longe..."},
		{"Künstliche Intelligenz", 8, "Künst..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
