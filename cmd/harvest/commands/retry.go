package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var retryCmd = &cobra.Command{
	Use:       "retry <category>",
	Short:     "Re-fetch a single category",
	Long:      `Re-fetch one category and, on success, update it in the cache.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: categoryNames(),
	RunE:      runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	addOutputFlags(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat, err := content.ParseCategory(args[0])
	if err != nil {
		logError("%v (choose from %v)", err, categoryNames())
		return err
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

	logInfo("Retrying %s...", cat.Label())
	result := h.RetryCategory(ctx, cat)
	logger.Info("retry complete", "category", cat, "status", result.Status, "items", len(result.Data))

	if format == output.FormatTable {
		err = writer.Write(resultTable(result))
	} else {
		err = writer.Write(result)
	}
	if err != nil {
		return err
	}

	if result.Status == harvest.StatusFailed {
		return fmt.Errorf("%s: %s", cat, result.Err)
	}
	return nil
}
