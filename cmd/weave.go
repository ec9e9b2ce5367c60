package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/weave"
)

var weaveSince string

var weaveCmd = &cobra.Command{
	Use:   "weave",
	Short: "Run the pipeline: extract, merge into the graph, detect patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		e.Coordinator.SetProgress(func(stage weave.Stage, done, total int) {
			if total > 0 {
				cmd.Printf("%-12s %d/%d\n", stage, done, total)
			} else {
				cmd.Printf("%s\n", stage)
			}
		})

		var summary *weave.RunSummary
		if weaveSince != "" {
			since, err := time.Parse(time.RFC3339, weaveSince)
			if err != nil {
				return err
			}
			summary, err = e.Coordinator.ProcessNewData(ctx, since)
			if err != nil {
				return err
			}
		} else {
			summary, err = e.Coordinator.Run(ctx)
			if err != nil {
				return err
			}
		}

		cmd.Printf("\nProcessed %d records in %s\n", summary.RecordsProcessed, summary.Duration.Round(time.Millisecond))
		cmd.Printf("  entities added:        %d\n", summary.EntitiesAdded)
		cmd.Printf("  relationships added:   %d\n", summary.RelationshipsAdded)
		cmd.Printf("  relationships dropped: %d\n", summary.RelationshipsDropped)
		cmd.Printf("  extraction failures:   %d\n", summary.ExtractionFailures)
		cmd.Printf("  patterns detected:     %d\n", summary.PatternsDetected)
		return nil
	},
}

func init() {
	weaveCmd.Flags().StringVar(&weaveSince, "since", "", "only process records updated after this RFC3339 time")
	rootCmd.AddCommand(weaveCmd)
}
