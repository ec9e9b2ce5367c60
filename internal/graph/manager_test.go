package graph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewManager(s), s
}

func testProv(recordID string) model.ProvenancePointer {
	return model.ProvenancePointer{
		Source:      "mail",
		Kind:        model.KindMessage,
		RecordID:    recordID,
		ExtractedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func personCandidate(name string, confidence float64) model.CandidateEntity {
	return model.CandidateEntity{
		Type:       model.TypePerson,
		Name:       name,
		Confidence: confidence,
	}
}

func TestUpsertEntityCreatesAndMatches(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, created, err := m.UpsertEntity(ctx, personCandidate("Alice Chen", 0.8), testProv("r1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.OccurrenceCount)

	// same normalized name, different casing and whitespace
	second, created, err := m.UpsertEntity(ctx, personCandidate("  alice chen ", 0.6), testProv("r2"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	// confidence never decreases
	assert.Equal(t, 0.8, second.Confidence)

	// a higher-confidence observation raises it
	third, _, err := m.UpsertEntity(ctx, personCandidate("Alice Chen", 0.95), testProv("r3"))
	require.NoError(t, err)
	assert.Equal(t, 0.95, third.Confidence)
}

func TestUpsertEntitySameNameDifferentType(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	person, _, err := m.UpsertEntity(ctx, personCandidate("Mercury", 0.8), testProv("r1"))
	require.NoError(t, err)

	band, created, err := m.UpsertEntity(ctx, model.CandidateEntity{
		Type: model.TypeMusic, Name: "Mercury", Confidence: 0.8,
	}, testProv("r2"))
	require.NoError(t, err)
	assert.True(t, created, "identity is scoped per type")
	assert.NotEqual(t, person.ID, band.ID)
}

func TestUpsertEntityProvenanceDedup(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	prov := testProv("r1")
	_, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), prov)
	require.NoError(t, err)

	// re-processing the same record must not double-count
	e, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), prov)
	require.NoError(t, err)
	assert.Equal(t, 1, e.OccurrenceCount)
	assert.Len(t, e.Sources, 1)
}

func TestUpsertEntityMatchesByAlias(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	cand := personCandidate("Alice Chen", 0.8)
	cand.Aliases = []string{"Ali"}
	first, _, err := m.UpsertEntity(ctx, cand, testProv("r1"))
	require.NoError(t, err)

	second, created, err := m.UpsertEntity(ctx, personCandidate("ali", 0.7), testProv("r2"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertRelationshipUniquePerDirection(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	alice, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), testProv("r1"))
	require.NoError(t, err)
	bob, _, err := m.UpsertEntity(ctx, personCandidate("Bob", 0.8), testProv("r1"))
	require.NoError(t, err)

	first, err := m.UpsertRelationship(ctx, alice.ID, bob.ID, model.RelKnows, 0.6, nil, testProv("r1"))
	require.NoError(t, err)

	// same edge again: no duplicate, confidence maxed
	again, err := m.UpsertRelationship(ctx, alice.ID, bob.ID, model.RelKnows, 0.9, nil, testProv("r2"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 0.9, again.Confidence)

	// reverse direction is a distinct edge
	reverse, err := m.UpsertRelationship(ctx, bob.ID, alice.ID, model.RelKnows, 0.5, nil, testProv("r2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, reverse.ID)
}

func TestUpsertRelationshipMissingEndpoint(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	alice, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), testProv("r1"))
	require.NoError(t, err)

	_, err = m.UpsertRelationship(ctx, alice.ID, "ghost", model.RelKnows, 0.5, nil, testProv("r1"))
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestProcessExtractionResultTwoPass(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	result := model.ExtractionResult{
		Entities: []model.CandidateEntity{
			personCandidate("Alice", 0.9),
			{Type: model.TypeOrganization, Name: "Acme", Confidence: 0.8},
		},
		Relationships: []model.CandidateRelationship{
			{FromName: "Alice", ToName: "Acme", Type: model.RelWorksAt, Confidence: 0.8},
			// Carol was never extracted as an entity: dropped, not an error
			{FromName: "Alice", ToName: "Carol", Type: model.RelKnows, Confidence: 0.7},
		},
	}

	summary, err := m.ProcessExtractionResult(ctx, result, testProv("r1"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.EntitiesAdded)
	assert.Equal(t, 1, summary.RelationshipsAdded)
	assert.Equal(t, 1, summary.RelationshipsDropped)

	stats, err := m.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntities)
	assert.Equal(t, 1, stats.TotalRelationships)
}

func TestSearchEntities(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	cand := personCandidate("Alice Chen", 0.8)
	cand.Aliases = []string{"A. Chen"}
	_, _, err := m.UpsertEntity(ctx, cand, testProv("r1"))
	require.NoError(t, err)
	_, _, err = m.UpsertEntity(ctx, personCandidate("Bob", 0.8), testProv("r1"))
	require.NoError(t, err)

	matches, err := m.SearchEntities(ctx, "CHEN", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Alice Chen", matches[0].Name)

	matches, err = m.SearchEntities(ctx, "a. ch", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1, "aliases are searchable")

	_, err = m.SearchEntities(ctx, "  ", 0)
	require.Error(t, err)
}

func TestSearchEntitiesLimit(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"Ana Ruiz", "Anders Berg", "Anya Patel"} {
		_, _, err := m.UpsertEntity(ctx, personCandidate(name, 0.8), testProv("r1"))
		require.NoError(t, err)
	}

	matches, err := m.SearchEntities(ctx, "an", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// truncation keeps storage order: first two inserted
	assert.Equal(t, "Ana Ruiz", matches[0].Name)
	assert.Equal(t, "Anders Berg", matches[1].Name)

	matches, err = m.SearchEntities(ctx, "an", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 3, "zero means no limit")
}

func TestStatisticsTopEntities(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), testProv(recID(i)))
		require.NoError(t, err)
	}
	_, _, err := m.UpsertEntity(ctx, personCandidate("Bob", 0.8), testProv("r9"))
	require.NoError(t, err)

	stats, err := m.Statistics(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, stats.TopEntities)
	assert.Equal(t, "Alice", stats.TopEntities[0].Name)
	assert.Equal(t, 3, stats.TopEntities[0].OccurrenceCount)
	assert.Equal(t, map[model.EntityType]int{model.TypePerson: 2}, stats.EntitiesByType)
}

func recID(i int) string {
	return "rec-" + string(rune('a'+i))
}

func TestExport(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.UpsertEntity(ctx, personCandidate("Alice", 0.8), testProv("r1"))
	require.NoError(t, err)

	export, err := m.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExportVersion, export.Version)
	assert.Len(t, export.Entities, 1)
	assert.False(t, export.ExportedAt.IsZero())
}
