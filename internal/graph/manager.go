// Package graph maintains the knowledge graph: identity-aware upserts of
// entities and relationships, merge of duplicate nodes, traversal, search,
// and export.
package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/store"
)

// ErrEntityNotFound is returned by operations addressing a missing entity id.
var ErrEntityNotFound = eris.New("graph: entity not found")

// Manager serializes all graph mutations behind one mutex, so concurrent
// callers never interleave the read-modify-write of an upsert.
type Manager struct {
	store store.Store
	mu    sync.Mutex
}

// NewManager wraps a store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// NormalizeName is the canonical form used for identity: names equal after
// trimming and lowercasing refer to the same entity within a type.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UpsertEntity folds a candidate into the graph. A candidate matching an
// existing entity of the same type by normalized name or alias updates that
// entity in place; otherwise a new entity is created. Returns the stored
// entity and whether it was newly created.
func (m *Manager) UpsertEntity(ctx context.Context, cand model.CandidateEntity, prov model.ProvenancePointer) (*model.Entity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertEntityLocked(ctx, cand, prov)
}

func (m *Manager) upsertEntityLocked(ctx context.Context, cand model.CandidateEntity, prov model.ProvenancePointer) (*model.Entity, bool, error) {
	if !model.ValidEntityType(cand.Type) {
		return nil, false, eris.Errorf("graph: invalid entity type %q", cand.Type)
	}
	name := strings.TrimSpace(cand.Name)
	if name == "" {
		return nil, false, eris.New("graph: empty entity name")
	}

	existing, err := m.findByName(ctx, cand.Type, name, cand.Aliases)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	observed := prov.ExtractedAt
	if observed.IsZero() {
		observed = now
	}

	if existing == nil {
		e := &model.Entity{
			ID:              uuid.New().String(),
			Type:            cand.Type,
			Name:            name,
			Aliases:         dedupAliases(name, nil, cand.Aliases),
			Confidence:      cand.Confidence,
			Attributes:      cloneAttributes(cand.Attributes),
			Sources:         []model.ProvenancePointer{prov},
			OccurrenceCount: 1,
			FirstSeen:       observed,
			LastSeen:        observed,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := m.store.PutEntity(ctx, e); err != nil {
			return nil, false, err
		}
		return e, true, nil
	}

	// Re-observation: confidence never decreases, occurrences only count
	// distinct records.
	if cand.Confidence > existing.Confidence {
		existing.Confidence = cand.Confidence
	}
	existing.Aliases = dedupAliases(existing.Name, existing.Aliases, append(cand.Aliases, name))
	existing.Attributes = mergeAttributes(existing.Attributes, cand.Attributes)
	if !existing.HasProvenance(prov) {
		existing.Sources = append(existing.Sources, prov)
		existing.OccurrenceCount++
	}
	if observed.After(existing.LastSeen) {
		existing.LastSeen = observed
	}
	if observed.Before(existing.FirstSeen) {
		existing.FirstSeen = observed
	}
	existing.UpdatedAt = now

	if err := m.store.PutEntity(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// findByName locates an entity of the given type whose name or aliases match
// any of the candidate's names after normalization.
func (m *Manager) findByName(ctx context.Context, t model.EntityType, name string, aliases []string) (*model.Entity, error) {
	wanted := map[string]bool{NormalizeName(name): true}
	for _, a := range aliases {
		if n := NormalizeName(a); n != "" {
			wanted[n] = true
		}
	}

	entities, err := m.store.ListEntitiesByType(ctx, t)
	if err != nil {
		return nil, err
	}
	for i := range entities {
		if wanted[NormalizeName(entities[i].Name)] {
			return &entities[i], nil
		}
		for _, a := range entities[i].Aliases {
			if wanted[NormalizeName(a)] {
				return &entities[i], nil
			}
		}
	}
	return nil, nil
}

// UpsertRelationship records a directed edge. Edges are unique on
// (from, to, type); a re-observation raises confidence to the max and
// appends provenance for previously unseen records.
func (m *Manager) UpsertRelationship(ctx context.Context, fromID, toID string, t model.RelationshipType, confidence float64, attrs map[string]any, prov model.ProvenancePointer) (*model.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRelationshipLocked(ctx, fromID, toID, t, confidence, attrs, prov)
}

func (m *Manager) upsertRelationshipLocked(ctx context.Context, fromID, toID string, t model.RelationshipType, confidence float64, attrs map[string]any, prov model.ProvenancePointer) (*model.Relationship, error) {
	if !model.ValidRelationshipType(t) {
		return nil, eris.Errorf("graph: invalid relationship type %q", t)
	}
	for _, id := range []string{fromID, toID} {
		e, err := m.store.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, eris.Wrapf(ErrEntityNotFound, "graph: relationship endpoint %s", id)
		}
	}

	now := time.Now().UTC()
	observed := prov.ExtractedAt
	if observed.IsZero() {
		observed = now
	}

	existing, err := m.store.FindRelationship(ctx, fromID, toID, t)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		r := &model.Relationship{
			ID:         uuid.New().String(),
			FromID:     fromID,
			ToID:       toID,
			Type:       t,
			Confidence: confidence,
			Attributes: cloneAttributes(attrs),
			Sources:    []model.ProvenancePointer{prov},
			FirstSeen:  observed,
			LastSeen:   observed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := m.store.PutRelationship(ctx, r); err != nil {
			return nil, err
		}
		return r, nil
	}

	if confidence > existing.Confidence {
		existing.Confidence = confidence
	}
	existing.Attributes = mergeAttributes(existing.Attributes, attrs)
	if !existing.HasProvenance(prov) {
		existing.Sources = append(existing.Sources, prov)
	}
	if observed.After(existing.LastSeen) {
		existing.LastSeen = observed
	}
	existing.UpdatedAt = now

	if err := m.store.PutRelationship(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ProcessExtractionResult folds one extraction result into the graph. It
// runs two passes: entities first, building a name-to-id map, then
// relationships resolved against that map. A relationship whose endpoint is
// not in the result's entities is dropped and counted, not an error.
func (m *Manager) ProcessExtractionResult(ctx context.Context, result model.ExtractionResult, prov model.ProvenancePointer) (model.ProcessSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var summary model.ProcessSummary
	nameToID := make(map[string]string)

	for _, cand := range result.Entities {
		e, created, err := m.upsertEntityLocked(ctx, cand, prov)
		if err != nil {
			return summary, err
		}
		if created {
			summary.EntitiesAdded++
		}
		nameToID[NormalizeName(cand.Name)] = e.ID
		for _, a := range cand.Aliases {
			if n := NormalizeName(a); n != "" {
				if _, taken := nameToID[n]; !taken {
					nameToID[n] = e.ID
				}
			}
		}
	}

	for _, cand := range result.Relationships {
		fromID, okFrom := nameToID[NormalizeName(cand.FromName)]
		toID, okTo := nameToID[NormalizeName(cand.ToName)]
		if !okFrom || !okTo {
			summary.RelationshipsDropped++
			zap.L().Warn("dropping relationship with unresolved endpoint",
				zap.String("from", cand.FromName),
				zap.String("to", cand.ToName),
				zap.String("type", string(cand.Type)),
			)
			continue
		}
		if fromID == toID {
			summary.RelationshipsDropped++
			continue
		}
		if _, err := m.upsertRelationshipLocked(ctx, fromID, toID, cand.Type, cand.Confidence, cand.Attributes, prov); err != nil {
			return summary, err
		}
		summary.RelationshipsAdded++
	}

	return summary, nil
}

// SearchEntities returns entities whose name or aliases contain the query,
// case-insensitively, in storage order. A positive limit truncates the
// result; zero or negative means no limit.
func (m *Manager) SearchEntities(ctx context.Context, query string, limit int) ([]model.Entity, error) {
	q := NormalizeName(query)
	if q == "" {
		return nil, eris.New("graph: empty search query")
	}

	entities, err := m.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	var matches []model.Entity
	for _, e := range entities {
		if entityMatches(&e, q) {
			matches = append(matches, e)
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

func entityMatches(e *model.Entity, normalizedQuery string) bool {
	if strings.Contains(NormalizeName(e.Name), normalizedQuery) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.Contains(NormalizeName(a), normalizedQuery) {
			return true
		}
	}
	return false
}

// topEntityCount bounds the Statistics leaderboard.
const topEntityCount = 10

// Statistics summarizes the graph: totals, per-type counts, and the most
// observed entities.
func (m *Manager) Statistics(ctx context.Context) (*model.Statistics, error) {
	entities, err := m.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := m.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.Statistics{
		TotalEntities:      len(entities),
		TotalRelationships: len(rels),
		EntitiesByType:     make(map[model.EntityType]int),
	}
	for _, e := range entities {
		stats.EntitiesByType[e.Type]++
	}

	top := make([]model.Entity, len(entities))
	copy(top, entities)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].OccurrenceCount > top[j].OccurrenceCount
	})
	if len(top) > topEntityCount {
		top = top[:topEntityCount]
	}
	stats.TopEntities = top

	return stats, nil
}

// Export snapshots the whole graph into a versioned document.
func (m *Manager) Export(ctx context.Context) (*model.GraphExport, error) {
	entities, err := m.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := m.store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return &model.GraphExport{
		Version:       model.ExportVersion,
		ExportedAt:    time.Now().UTC(),
		Entities:      entities,
		Relationships: rels,
	}, nil
}

// --- helpers ---

// dedupAliases keeps the first spelling of each normalized alias and drops
// any alias equal to the entity's own name.
func dedupAliases(name string, existing, incoming []string) []string {
	seen := map[string]bool{NormalizeName(name): true}
	var out []string
	for _, a := range append(existing, incoming...) {
		n := NormalizeName(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, strings.TrimSpace(a))
	}
	return out
}

func cloneAttributes(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// mergeAttributes overlays incoming values on the existing map; newer
// observations win on key conflicts.
func mergeAttributes(existing, incoming map[string]any) map[string]any {
	if len(incoming) == 0 {
		return existing
	}
	if existing == nil {
		existing = make(map[string]any, len(incoming))
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return existing
}
