package weave

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loomlabs/loom/internal/model"
)

// Report renders a markdown summary of the graph: record volume, entity
// counts, the most observed entities, and current patterns.
func (c *Coordinator) Report(ctx context.Context) (string, error) {
	stats, err := c.graph.Statistics(ctx)
	if err != nil {
		return "", err
	}
	counts, err := c.store.CountRawRecordsByKind(ctx)
	if err != nil {
		return "", err
	}
	patterns, err := c.store.ListPatterns(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Knowledge Graph Report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", time.Now().UTC().Format("2006-01-02 15:04 MST"))

	fmt.Fprintf(&b, "## Records\n\n")
	if len(counts) == 0 {
		fmt.Fprintf(&b, "No records ingested yet.\n\n")
	} else {
		for _, kind := range sortedCountKeys(counts) {
			fmt.Fprintf(&b, "- %s: %d\n", kind, counts[kind])
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Graph\n\n")
	fmt.Fprintf(&b, "%d entities, %d relationships\n\n", stats.TotalEntities, stats.TotalRelationships)
	for _, typ := range sortedTypeKeys(stats.EntitiesByType) {
		fmt.Fprintf(&b, "- %s: %d\n", typ, stats.EntitiesByType[typ])
	}
	if len(stats.EntitiesByType) > 0 {
		fmt.Fprintf(&b, "\n")
	}

	if len(stats.TopEntities) > 0 {
		fmt.Fprintf(&b, "## Most observed\n\n")
		for _, e := range stats.TopEntities {
			fmt.Fprintf(&b, "- %s (%s), seen in %d records\n", e.Name, e.Type, e.OccurrenceCount)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "## Patterns\n\n")
	if len(patterns) == 0 {
		fmt.Fprintf(&b, "No patterns detected.\n")
	} else {
		for _, p := range patterns {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.2f)", p.Kind, p.Name, p.Confidence)
			if p.Temporal != nil && p.Temporal.Frequency != "" {
				fmt.Fprintf(&b, ", %s", p.Temporal.Frequency)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	return b.String(), nil
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTypeKeys(m map[model.EntityType]int) []model.EntityType {
	keys := make([]model.EntityType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
