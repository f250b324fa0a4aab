package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		writer, format, closeWriter, err := openWriter(cmd)
		if err != nil {
			return err
		}
		defer closeWriter()

		if format == output.FormatTable {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return err
		}
		return writer.Write(version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	addOutputFlags(versionCmd)
}
