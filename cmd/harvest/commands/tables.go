package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/proxy"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
)

// addOutputFlags registers --format and --output on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringP("format", "f", "table", "output format: table, json, jsonl, yaml")
}

// openWriter creates the writer selected by --format and --output. The
// returned close function flushes the writer and closes any file.
func openWriter(cmd *cobra.Command) (output.Writer, output.Format, func(), error) {
	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return nil, "", nil, err
	}

	outFile := os.Stdout
	closeFile := func() {}
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return nil, "", nil, err
		}
		outFile = f
		closeFile = func() { _ = f.Close() }
	}

	writer, err := output.NewWriter(outFile, format)
	if err != nil {
		closeFile()
		return nil, "", nil, err
	}
	return writer, format, func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to write output", "error", err)
		}
		closeFile()
	}, nil
}

// summaryTable is the per-category overview printed after a scrape.
type summaryTable struct {
	cached   *content.Cached
	statuses map[content.Category]categoryState
}

type categoryState struct {
	Status harvest.Status
	Error  string
}

func (t summaryTable) Header() []string {
	return []string{"category", "status", "items", "note"}
}

func (t summaryTable) Rows() [][]string {
	counts := t.cached.Counts()
	rows := make([][]string, 0, len(content.Categories)+1)
	for _, cat := range content.Categories {
		state := t.statuses[cat]
		status := string(state.Status)
		if status == "" {
			status = "-"
		}
		rows = append(rows, []string{cat.Label(), status, humanize.Comma(int64(counts[cat])), state.Error})
	}
	note := ""
	if !t.cached.CachedAt.IsZero() {
		note = "cached " + humanize.Time(t.cached.CachedAt) + ", expires " + humanize.Time(t.cached.ExpiresAt)
	}
	rows = append(rows, []string{"Total", "", humanize.Comma(int64(t.cached.Total())), note})
	return rows
}

// itemTable lists items one per row.
type itemTable []content.Item

func (t itemTable) Header() []string {
	return []string{"category", "date", "title", "url"}
}

func (t itemTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, item := range t {
		rows = append(rows, []string{string(item.Category), item.Date, truncate(item.Title, 60), item.URL})
	}
	return rows
}

// resultTable shows the outcome of a single category retry.
type resultTable harvest.Result

func (t resultTable) Header() []string {
	return []string{"category", "status", "source", "items", "error"}
}

func (t resultTable) Rows() [][]string {
	return [][]string{{
		t.Category.Label(),
		string(t.Status),
		string(t.Source),
		strconv.Itoa(len(t.Data)),
		t.Err,
	}}
}

// statsTable is the relay reputation table.
type statsTable []proxy.Stat

func (t statsTable) Header() []string {
	return []string{"#", "proxy", "success", "fail", "rate", "avg latency"}
}

func (t statsTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			s.Name,
			humanize.Comma(int64(s.Successes)),
			humanize.Comma(int64(s.Failures)),
			fmt.Sprintf("%.0f%%", s.SuccessRate*100),
			(time.Duration(s.AvgLatencyMs) * time.Millisecond).String(),
		})
	}
	return rows
}

// healthTable lists check verdicts.
type healthTable []proxy.HealthResult

func (t healthTable) Header() []string {
	return []string{"#", "proxy", "healthy", "latency", "cached"}
}

func (t healthTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			r.Name,
			strconv.FormatBool(r.Healthy),
			r.Latency.Round(time.Millisecond).String(),
			strconv.FormatBool(r.FromCache),
		})
	}
	return rows
}

// reportTable summarises the latest scrape session per category.
type reportTable scrapelog.Report

func (t reportTable) Header() []string {
	return []string{"category", "last status", "events"}
}

func (t reportTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.ByCategory))
	seen := make(map[string]bool, len(t.ByCategory))
	order := append([]string{scrapelog.CategorySystem}, categoryNames()...)
	for _, name := range order {
		if cat, ok := t.ByCategory[name]; ok {
			rows = append(rows, t.row(name, cat))
			seen[name] = true
		}
	}
	for name, cat := range t.ByCategory {
		if !seen[name] {
			rows = append(rows, t.row(name, cat))
		}
	}
	return rows
}

func (t reportTable) row(name string, cat *scrapelog.CategoryReport) []string {
	return []string{name, string(cat.LastStatus), strconv.Itoa(len(cat.Events))}
}

// errorTable lists the errors of the latest session.
type errorTable []scrapelog.ErrorEntry

func (t errorTable) Header() []string {
	return []string{"time", "category", "error"}
}

func (t errorTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{e.Timestamp.Local().Format(time.TimeOnly), e.Category, e.Error})
	}
	return rows
}

func categoryNames() []string {
	names := make([]string, len(content.Categories))
	for i, c := range content.Categories {
		names[i] = string(c)
	}
	return names
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
