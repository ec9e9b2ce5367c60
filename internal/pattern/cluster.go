package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/model"
)

// detectClusters finds hub entities: nodes connected to at least
// ClusterMinNeighbors distinct other entities.
func (d *Detector) detectClusters(ctx context.Context) ([]model.Pattern, error) {
	entities, err := d.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := d.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}

	neighbors := make(map[string]map[string]bool)
	touching := make(map[string][]string)
	link := func(a, b string) {
		if neighbors[a] == nil {
			neighbors[a] = make(map[string]bool)
		}
		neighbors[a][b] = true
	}
	for _, r := range rels {
		link(r.FromID, r.ToID)
		link(r.ToID, r.FromID)
		touching[r.FromID] = append(touching[r.FromID], r.ID)
		if r.ToID != r.FromID {
			touching[r.ToID] = append(touching[r.ToID], r.ID)
		}
	}

	// connected is the denominator for significance: every entity with at
	// least one edge, hub or not.
	connected := len(neighbors)

	var patterns []model.Pattern
	for _, e := range entities {
		n := neighbors[e.ID]
		if len(n) < d.rules.ClusterMinNeighbors {
			continue
		}

		ids := make([]string, 0, len(n)+1)
		ids = append(ids, e.ID)
		for id := range n {
			ids = append(ids, id)
		}
		sort.Strings(ids[1:])

		patterns = append(patterns, model.Pattern{
			ID:                     uuid.New().String(),
			Kind:                   model.PatternCluster,
			Name:                   fmt.Sprintf("Cluster around %s", e.Name),
			Description:            fmt.Sprintf("%s connects %d entities", e.Name, len(n)),
			Confidence:             d.rules.ClusterConfidence,
			Significance:           float64(len(n)) / float64(connected),
			RelatedEntityIDs:       ids,
			RelatedRelationshipIDs: touching[e.ID],
			DetectedAt:             time.Now().UTC(),
			Metadata: map[string]any{
				"hub":       e.ID,
				"neighbors": len(n),
			},
		})
	}
	return patterns, nil
}
