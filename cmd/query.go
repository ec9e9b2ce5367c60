package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/model"
)

var (
	searchJSON  bool
	searchLimit int
	graphDepth  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entities by name or alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		matches, err := e.Graph.SearchEntities(ctx, args[0], searchLimit)
		if err != nil {
			return err
		}

		if searchJSON {
			return json.NewEncoder(os.Stdout).Encode(matches)
		}

		if len(matches) == 0 {
			cmd.Println("No entities found")
			return nil
		}
		for _, m := range matches {
			cmd.Printf("%s  %s (%s)  confidence=%.2f  seen=%d\n",
				m.ID, m.Name, m.Type, m.Confidence, m.OccurrenceCount)
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <entity-id>",
	Short: "Show the subgraph around an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		view, err := e.Graph.EntityGraph(ctx, args[0], graphDepth)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(view)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.Graph.Statistics(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("Entities:      %d\n", stats.TotalEntities)
		cmd.Printf("Relationships: %d\n", stats.TotalRelationships)

		types := make([]model.EntityType, 0, len(stats.EntitiesByType))
		for t := range stats.EntitiesByType {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, t := range types {
			cmd.Printf("  %-14s %d\n", t, stats.EntitiesByType[t])
		}

		if len(stats.TopEntities) > 0 {
			cmd.Println("\nMost observed:")
			for _, top := range stats.TopEntities {
				cmd.Printf("  %s (%s): %d\n", top.Name, top.Type, top.OccurrenceCount)
			}
		}
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List detected patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initQuery(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		patterns, err := e.Store.ListPatterns(ctx)
		if err != nil {
			return err
		}

		if len(patterns) == 0 {
			cmd.Println("No patterns detected yet; run `loom weave` first")
			return nil
		}
		for _, p := range patterns {
			cmd.Printf("[%s] %s  confidence=%.2f", p.Kind, p.Name, p.Confidence)
			if p.Temporal != nil && p.Temporal.Frequency != "" {
				cmd.Printf("  %s", p.Temporal.Frequency)
			}
			cmd.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "emit JSON")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results (0 for all)")
	graphCmd.Flags().IntVar(&graphDepth, "depth", 2, "traversal depth in hops")
	rootCmd.AddCommand(searchCmd, graphCmd, statsCmd, patternsCmd)
}
