package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect and manage the proxy relays",
}

var proxiesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-relay success counts and latency",
	RunE:  runProxiesStats,
}

var proxiesHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check every relay now",
	Long: `Send a HEAD request for the check URL through every relay in parallel.

Health is advisory: scrapes rank relays by their recorded scores, not by
the result of this check.`,
	RunE: runProxiesHealth,
}

var proxiesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget all recorded relay scores",
	RunE:  runProxiesReset,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesStatsCmd, proxiesHealthCmd, proxiesResetCmd)

	addOutputFlags(proxiesStatsCmd)
	addOutputFlags(proxiesHealthCmd)
	proxiesHealthCmd.Flags().Bool("healthy-only", false, "list only healthy relays, fastest first")
}

func runProxiesStats(cmd *cobra.Command, args []string) error {
	setupLogging()

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

	stats := h.Scorer().Stats(h.Proxies())
	if format == output.FormatTable {
		return writer.Write(statsTable(stats))
	}
	return writer.Write(stats)
}

func runProxiesHealth(cmd *cobra.Command, args []string) error {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	logInfo("Probing %d relays...", len(h.Proxies()))
	results := h.CheckProxies(ctx)
	if healthyOnly, _ := cmd.Flags().GetBool("healthy-only"); healthyOnly {
		results = h.Health().Healthy(ctx, h.Proxies())
	}

	summary := h.Health().Summary(h.Proxies())
	logger.Info("proxy health", "healthy", summary.Healthy, "total", summary.Total)

	if format == output.FormatTable {
		return writer.Write(healthTable(results))
	}
	return writer.Write(results)
}

func runProxiesReset(cmd *cobra.Command, args []string) error {
	setupLogging()

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := h.Scorer().Reset(); err != nil {
		logError("%v", err)
		return err
	}
	h.Health().Clear()
	logInfo("Reset scores for %d relays", len(h.Proxies()))
	return nil
}
