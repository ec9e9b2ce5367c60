package graph

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/loomlabs/loom/internal/model"
)

// EntityGraph returns the subgraph reachable from the root entity within the
// given number of hops, following edges in both directions. Cycles are safe:
// each entity and relationship appears at most once regardless of how many
// paths reach it. Depth 0 returns the root alone.
func (m *Manager) EntityGraph(ctx context.Context, rootID string, depth int) (*model.GraphView, error) {
	root, err := m.store.GetEntity(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, eris.Wrapf(ErrEntityNotFound, "graph: traverse from %s", rootID)
	}
	if depth < 0 {
		depth = 0
	}

	view := &model.GraphView{Entities: []model.Entity{*root}}
	seenEntities := map[string]bool{rootID: true}
	seenRels := map[string]bool{}

	frontier := []string{rootID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			rels, err := m.store.ListRelationshipsForEntity(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				if !seenRels[rel.ID] {
					seenRels[rel.ID] = true
					view.Relationships = append(view.Relationships, rel)
				}

				neighbor := rel.ToID
				if neighbor == id {
					neighbor = rel.FromID
				}
				if seenEntities[neighbor] {
					continue
				}
				seenEntities[neighbor] = true

				e, err := m.store.GetEntity(ctx, neighbor)
				if err != nil {
					return nil, err
				}
				if e == nil {
					// dangling edge, skip the missing endpoint
					continue
				}
				view.Entities = append(view.Entities, *e)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return view, nil
}
