package commands

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch every category through the proxy relays",
	Long: `Scrape all six categories in parallel through the proxy relays.

Valid cached content is used unless --no-cache is given. Categories that
cannot be fetched fall back to their last cached items.

Examples:
  # Use the cache when possible, print a summary table
  harvest scrape

  # Force a fresh scrape and save every item as YAML
  harvest scrape --no-cache -f yaml -o content.yaml`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.Bool("no-cache", false, "ignore cached content and fetch fresh")
	flags.Bool("items", false, "print items instead of the summary (table format)")
	addOutputFlags(scrapeCmd)
}

// statusRecorder collects the final state of each category for the summary.
type statusRecorder struct {
	mu       sync.Mutex
	statuses map[content.Category]categoryState
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{statuses: make(map[content.Category]categoryState)}
}

func (r *statusRecorder) observer() harvest.Observer {
	return harvest.ObserverFuncs{
		CategoryStatus: func(cat content.Category, status harvest.Status, count int) {
			r.mu.Lock()
			state := r.statuses[cat]
			state.Status = status
			r.statuses[cat] = state
			r.mu.Unlock()
			logger.Debug("category status", "category", cat, "status", status, "count", count)
		},
		CategoryError: func(cat content.Category, message string) {
			r.mu.Lock()
			state := r.statuses[cat]
			state.Error = message
			r.statuses[cat] = state
			r.mu.Unlock()
		},
		ProxyHealth: func(healthy, total int) {
			logger.Debug("proxy health", "healthy", healthy, "total", total)
		},
	}
}

func (r *statusRecorder) snapshot() map[content.Category]categoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[content.Category]categoryState, len(r.statuses))
	for k, v := range r.statuses {
		out[k] = v
	}
	return out
}

func runScrape(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Debug("scrape command starting")

	writer, format, closeWriter, err := openWriter(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer closeWriter()

	recorder := newStatusRecorder()
	h, cleanup, err := buildHarvester(harvest.WithObserver(recorder.observer()))
	if err != nil {
		return err
	}
	defer cleanup()

	noCache, _ := cmd.Flags().GetBool("no-cache")
	logger.Info("starting scrape", "proxies", len(h.Proxies()), "use_cache", !noCache)

	start := time.Now()
	cached := h.ScrapeAll(ctx, !noCache, func(percent int, message string) {
		logInfo("[%3d%%] %s", percent, message)
	})
	logger.Info("scrape complete",
		"items", cached.Total(),
		"duration", time.Since(start).Round(time.Millisecond),
		"cached_at", humanize.Time(cached.CachedAt))

	showItems, _ := cmd.Flags().GetBool("items")
	switch {
	case format != output.FormatTable:
		err = writer.Write(cached)
	case showItems:
		err = writer.Write(itemTable(harvest.AllItems(cached)))
	default:
		err = writer.Write(summaryTable{cached: cached, statuses: recorder.snapshot()})
	}
	if err != nil {
		logger.Error("failed to write output", "error", err)
		return err
	}
	return nil
}
