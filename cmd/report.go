package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/weave"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a markdown summary of the graph and patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// a report never extracts, so a nil extractor is fine here
		coordinator := weave.NewCoordinator(e.Store, e.Graph, nil, e.Detector, weave.Config{})
		report, err := coordinator.Report(ctx)
		if err != nil {
			return err
		}

		if reportOut == "" {
			cmd.Print(report)
			return nil
		}
		if err := os.WriteFile(reportOut, []byte(report), 0o644); err != nil {
			return eris.Wrapf(err, "report: write %s", reportOut)
		}
		cmd.Printf("Report written to %s\n", reportOut)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
