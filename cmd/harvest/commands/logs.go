package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/scrapelog"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the scrape event log",
}

var logsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise the most recent scrape session",
	RunE:  runLogsReport,
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the log and report to scrape-logs-YYYY-MM-DD.json",
	RunE:  runLogsExport,
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every logged event",
	RunE:  runLogsClear,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsReportCmd, logsExportCmd, logsClearCmd)

	addOutputFlags(logsReportCmd)
	logsExportCmd.Flags().StringP("dir", "d", ".", "directory to write the export into")
}

func runLogsReport(cmd *cobra.Command, args []string) error {
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

	report := h.Events().Report()
	if format != output.FormatTable {
		return writer.Write(report)
	}

	if report.TotalLogs == 0 {
		logInfo("No scrape events logged")
		return nil
	}
	logInfo("%d events, %d started, %d succeeded, %d retried, %d failed, %d from cache",
		report.TotalLogs,
		report.ByEvent[scrapelog.EventStart],
		report.ByEvent[scrapelog.EventSuccess],
		report.ByEvent[scrapelog.EventRetry],
		report.ByEvent[scrapelog.EventFailed],
		report.ByEvent[scrapelog.EventCached])
	if err := writer.Write(reportTable(report)); err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		return writer.Write(errorTable(report.Errors))
	}
	return nil
}

func runLogsExport(cmd *cobra.Command, args []string) error {
	setupLogging()

	dir, _ := cmd.Flags().GetString("dir")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		logError("cannot create %s: %v", dir, err)
		return err
	}

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	path, err := h.Events().WriteFile(dir)
	if err != nil {
		logError("%v", err)
		return err
	}
	logInfo("Exported %d events to %s", h.Events().Len(), path)
	return nil
}

func runLogsClear(cmd *cobra.Command, args []string) error {
	setupLogging()

	h, cleanup, err := buildHarvester()
	if err != nil {
		return err
	}
	defer cleanup()

	h.Events().Clear()
	if err := h.Events().Save(); err != nil {
		logError("%v", err)
		return err
	}
	logInfo("Scrape log cleared")
	return nil
}
