package graph

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/store"
)

// MergeEntities absorbs one entity into another: the absorbed entity's
// aliases, provenance, and relationships move to the kept entity, and the
// absorbed entity is deleted. Both entities must exist and share a type.
// The whole merge is applied atomically by the store.
func (m *Manager) MergeEntities(ctx context.Context, keepID, absorbID string) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keepID == absorbID {
		return nil, eris.New("graph: cannot merge entity into itself")
	}

	keep, err := m.store.GetEntity(ctx, keepID)
	if err != nil {
		return nil, err
	}
	if keep == nil {
		return nil, eris.Wrapf(ErrEntityNotFound, "graph: merge keep %s", keepID)
	}
	absorb, err := m.store.GetEntity(ctx, absorbID)
	if err != nil {
		return nil, err
	}
	if absorb == nil {
		return nil, eris.Wrapf(ErrEntityNotFound, "graph: merge absorb %s", absorbID)
	}
	if keep.Type != absorb.Type {
		return nil, eris.Errorf("graph: cannot merge %s into %s", absorb.Type, keep.Type)
	}

	now := time.Now().UTC()

	// Fold the absorbed node's identity and accounting into the kept one.
	keep.Aliases = dedupAliases(keep.Name, keep.Aliases, append(absorb.Aliases, absorb.Name))
	if absorb.Confidence > keep.Confidence {
		keep.Confidence = absorb.Confidence
	}
	keep.Attributes = mergeAttributes(absorb.Attributes, keep.Attributes)
	for _, p := range absorb.Sources {
		if !keep.HasProvenance(p) {
			keep.Sources = append(keep.Sources, p)
			keep.OccurrenceCount++
		}
	}
	if absorb.FirstSeen.Before(keep.FirstSeen) {
		keep.FirstSeen = absorb.FirstSeen
	}
	if absorb.LastSeen.After(keep.LastSeen) {
		keep.LastSeen = absorb.LastSeen
	}
	keep.UpdatedAt = now

	plan := store.MergePlan{
		Keep:           keep,
		DeleteEntityID: absorbID,
	}

	// Repoint every edge touching the absorbed entity. Edges that collide
	// with an existing (from, to, type) on the kept entity fold into it;
	// edges that become self-loops are dropped.
	absorbRels, err := m.store.ListRelationshipsForEntity(ctx, absorbID)
	if err != nil {
		return nil, err
	}
	keepRels, err := m.store.ListRelationshipsForEntity(ctx, keepID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[[3]string]*model.Relationship, len(keepRels))
	for i := range keepRels {
		r := &keepRels[i]
		byKey[[3]string{r.FromID, r.ToID, string(r.Type)}] = r
	}

	var dirty []*model.Relationship
	dirtySeen := make(map[string]bool)
	markDirty := func(r *model.Relationship) {
		if !dirtySeen[r.ID] {
			dirtySeen[r.ID] = true
			dirty = append(dirty, r)
		}
	}

	for i := range absorbRels {
		rel := &absorbRels[i]
		if rel.FromID == absorbID {
			rel.FromID = keepID
		}
		if rel.ToID == absorbID {
			rel.ToID = keepID
		}
		if rel.FromID == rel.ToID {
			plan.DeleteRelIDs = append(plan.DeleteRelIDs, rel.ID)
			continue
		}

		key := [3]string{rel.FromID, rel.ToID, string(rel.Type)}
		if existing, ok := byKey[key]; ok {
			if rel.Confidence > existing.Confidence {
				existing.Confidence = rel.Confidence
			}
			for _, p := range rel.Sources {
				if !existing.HasProvenance(p) {
					existing.Sources = append(existing.Sources, p)
				}
			}
			if rel.FirstSeen.Before(existing.FirstSeen) {
				existing.FirstSeen = rel.FirstSeen
			}
			if rel.LastSeen.After(existing.LastSeen) {
				existing.LastSeen = rel.LastSeen
			}
			existing.UpdatedAt = now
			markDirty(existing)
			plan.DeleteRelIDs = append(plan.DeleteRelIDs, rel.ID)
			continue
		}

		rel.UpdatedAt = now
		byKey[key] = rel
		markDirty(rel)
	}

	for _, r := range dirty {
		plan.UpsertRels = append(plan.UpsertRels, *r)
	}

	if err := m.store.ApplyMerge(ctx, plan); err != nil {
		return nil, err
	}

	zap.L().Info("merged entities",
		zap.String("kept", keepID),
		zap.String("absorbed", absorbID),
		zap.Int("repointed_relationships", len(plan.UpsertRels)),
		zap.Int("deleted_relationships", len(plan.DeleteRelIDs)),
	)
	return keep, nil
}
