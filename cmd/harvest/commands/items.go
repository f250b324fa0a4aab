package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List cached items",
	Long: `List the items in the content cache without fetching anything.

Examples:
  # Items not marked as seen yet
  harvest items --new

  # Show new publications, then mark them seen
  harvest items -c publications --new --mark-seen`,
	RunE: runItems,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the content cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when the cache was written and when it expires",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached content and seen-item marks",
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(itemsCmd, cacheCmd)
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)

	flags := itemsCmd.Flags()
	flags.StringSliceP("category", "c", nil, "only these categories (can be repeated)")
	flags.Bool("new", false, "only items not marked as seen")
	flags.Bool("mark-seen", false, "mark the listed items as seen")
	addOutputFlags(itemsCmd)

	cacheClearCmd.Flags().Bool("keep-seen", false, "keep seen-item marks")
}

func runItems(cmd *cobra.Command, args []string) error {
	setupLogging()

	names, _ := cmd.Flags().GetStringSlice("category")
	var cats []content.Category
	for _, name := range names {
		cat, err := content.ParseCategory(name)
		if err != nil {
			logError("%v (choose from %v)", err, categoryNames())
			return err
		}
		cats = append(cats, cat)
	}

	writer, format, closeWriter, err := openWriter(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer closeWriter()

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	cached, err := h.Cache().Load()
	if err != nil {
		logError("%v", err)
		return err
	}
	if cached.CachedAt.IsZero() {
		logInfo("Nothing cached yet, run 'harvest scrape' first")
	}

	items := harvest.AllItems(cached)
	if len(cats) > 0 {
		items = items[:0:0]
		for _, cat := range cats {
			items = append(items, cached.Items(cat)...)
		}
	}
	if onlyNew, _ := cmd.Flags().GetBool("new"); onlyNew {
		items = h.NewItems(items)
		logInfo("%s new items", humanize.Comma(int64(len(items))))
	}

	if format == output.FormatTable {
		err = writer.Write(itemTable(items))
	} else {
		anyItems := make([]any, len(items))
		for i, it := range items {
			anyItems[i] = it
		}
		err = writer.WriteAll(anyItems)
	}
	if err != nil {
		return err
	}

	if markSeen, _ := cmd.Flags().GetBool("mark-seen"); markSeen && len(items) > 0 {
		if err := h.Seen().MarkSeen(items); err != nil {
			logError("%v", err)
			return err
		}
		logger.Info("marked items seen", "count", len(items))
	}
	return nil
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	setupLogging()

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	cached, err := h.Cache().Load()
	if err != nil {
		logError("%v", err)
		return err
	}
	if cached.CachedAt.IsZero() {
		logInfo("Cache is empty")
		return nil
	}

	state := "valid"
	if !h.Cache().IsValid() {
		state = "expired"
	}
	seen, _ := h.Seen().Count()
	logInfo("Cache %s: %s items, written %s, expires %s, %s seen",
		state,
		humanize.Comma(int64(cached.Total())),
		humanize.Time(cached.CachedAt),
		humanize.Time(cached.ExpiresAt),
		humanize.Comma(int64(seen)))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	setupLogging()

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := h.Cache().Clear(); err != nil {
		logError("%v", err)
		return err
	}
	if keep, _ := cmd.Flags().GetBool("keep-seen"); !keep {
		if err := h.Seen().Clear(); err != nil {
			logError("%v", err)
			return err
		}
	}
	logInfo("Cache cleared")
	return nil
}
