package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testRawRecord(source, kind, externalID string) *model.RawRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.RawRecord{
		ID:          uuid.New().String(),
		Source:      source,
		Kind:        kind,
		ExternalID:  externalID,
		Payload:     json.RawMessage(`{"subject": "hello"}`),
		ObservedAt:  now,
		LastUpdated: now,
	}
}

func testEntity(name string, typ model.EntityType) *model.Entity {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Entity{
		ID:              uuid.New().String(),
		Type:            typ,
		Name:            name,
		Confidence:      0.8,
		OccurrenceCount: 1,
		FirstSeen:       now,
		LastSeen:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testRelationship(fromID, toID string, typ model.RelationshipType) *model.Relationship {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Relationship{
		ID:         uuid.New().String(),
		FromID:     fromID,
		ToID:       toID,
		Type:       typ,
		Confidence: 0.7,
		FirstSeen:  now,
		LastSeen:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestUpsertRawRecordIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRawRecord("mail", model.KindMessage, "msg-1")
	require.NoError(t, s.UpsertRawRecord(ctx, rec))

	// same dedup key, different payload: must update, not duplicate
	again := testRawRecord("mail", model.KindMessage, "msg-1")
	again.Payload = json.RawMessage(`{"subject": "edited"}`)
	require.NoError(t, s.UpsertRawRecord(ctx, again))
	assert.Equal(t, rec.ID, again.ID, "upsert should adopt the existing id")

	counts, err := s.CountRawRecordsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.KindMessage: 1}, counts)

	got, err := s.GetRawRecord(ctx, "mail", model.KindMessage, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"subject": "edited"}`, string(got.Payload))
}

func TestGetRawRecordMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetRawRecord(context.Background(), "mail", model.KindMessage, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRawRecordsByKind(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, ext := range []string{"a", "b", "c"} {
		rec := testRawRecord("mail", model.KindMessage, ext)
		rec.ObservedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpsertRawRecord(ctx, rec))
	}
	require.NoError(t, s.UpsertRawRecord(ctx, testRawRecord("cal", model.KindEvent, "e1")))

	recs, err := s.ListRawRecordsByKind(ctx, model.KindMessage)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].ExternalID)
	assert.Equal(t, "c", recs[2].ExternalID)
}

func TestPutEntityPreservesInsertionOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testEntity("Alice", model.TypePerson)
	second := testEntity("Bob", model.TypePerson)
	require.NoError(t, s.PutEntity(ctx, first))
	require.NoError(t, s.PutEntity(ctx, second))

	// updating the first entity must not move it behind the second
	first.Confidence = 0.95
	require.NoError(t, s.PutEntity(ctx, first))

	entities, err := s.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Alice", entities[0].Name)
	assert.Equal(t, 0.95, entities[0].Confidence)
	assert.Equal(t, "Bob", entities[1].Name)
}

func TestEntityJSONColumnsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	e := testEntity("Alice Chen", model.TypePerson)
	e.Aliases = []string{"alice", "a. chen"}
	e.Attributes = map[string]any{"email": "alice@example.com"}
	e.Sources = []model.ProvenancePointer{
		{Source: "mail", Kind: model.KindMessage, RecordID: "r1", ExtractedAt: time.Now().UTC().Truncate(time.Second)},
	}
	require.NoError(t, s.PutEntity(ctx, e))

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.Aliases, got.Aliases)
	assert.Equal(t, "alice@example.com", got.Attributes["email"])
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "r1", got.Sources[0].RecordID)
}

func TestGetEntityMissing(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetEntity(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListEntitiesByType(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutEntity(ctx, testEntity("Alice", model.TypePerson)))
	require.NoError(t, s.PutEntity(ctx, testEntity("Acme", model.TypeOrganization)))
	require.NoError(t, s.PutEntity(ctx, testEntity("Bob", model.TypePerson)))

	people, err := s.ListEntitiesByType(ctx, model.TypePerson)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Alice", people[0].Name)
	assert.Equal(t, "Bob", people[1].Name)
}

func TestFindRelationship(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	alice := testEntity("Alice", model.TypePerson)
	acme := testEntity("Acme", model.TypeOrganization)
	require.NoError(t, s.PutEntity(ctx, alice))
	require.NoError(t, s.PutEntity(ctx, acme))

	rel := testRelationship(alice.ID, acme.ID, model.RelWorksAt)
	require.NoError(t, s.PutRelationship(ctx, rel))

	got, err := s.FindRelationship(ctx, alice.ID, acme.ID, model.RelWorksAt)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rel.ID, got.ID)

	// direction matters
	got, err = s.FindRelationship(ctx, acme.ID, alice.ID, model.RelWorksAt)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRelationshipsForEntity(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testEntity("A", model.TypePerson)
	b := testEntity("B", model.TypePerson)
	c := testEntity("C", model.TypePerson)
	for _, e := range []*model.Entity{a, b, c} {
		require.NoError(t, s.PutEntity(ctx, e))
	}

	require.NoError(t, s.PutRelationship(ctx, testRelationship(a.ID, b.ID, model.RelKnows)))
	require.NoError(t, s.PutRelationship(ctx, testRelationship(c.ID, a.ID, model.RelKnows)))
	require.NoError(t, s.PutRelationship(ctx, testRelationship(b.ID, c.ID, model.RelKnows)))

	rels, err := s.ListRelationshipsForEntity(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestRelationshipStrengthRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testEntity("A", model.TypePerson)
	b := testEntity("B", model.TypePerson)
	require.NoError(t, s.PutEntity(ctx, a))
	require.NoError(t, s.PutEntity(ctx, b))

	rel := testRelationship(a.ID, b.ID, model.RelKnows)
	strength := 0.42
	rel.Strength = &strength
	require.NoError(t, s.PutRelationship(ctx, rel))

	got, err := s.GetRelationship(ctx, rel.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Strength)
	assert.Equal(t, 0.42, *got.Strength)
}

func TestApplyMerge(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	keep := testEntity("Alice Chen", model.TypePerson)
	absorb := testEntity("A. Chen", model.TypePerson)
	other := testEntity("Acme", model.TypeOrganization)
	for _, e := range []*model.Entity{keep, absorb, other} {
		require.NoError(t, s.PutEntity(ctx, e))
	}

	stale := testRelationship(absorb.ID, other.ID, model.RelWorksAt)
	require.NoError(t, s.PutRelationship(ctx, stale))

	repointed := *stale
	repointed.FromID = keep.ID

	keep.Aliases = []string{"A. Chen"}
	require.NoError(t, s.ApplyMerge(ctx, MergePlan{
		Keep:           keep,
		DeleteEntityID: absorb.ID,
		UpsertRels:     []model.Relationship{repointed},
	}))

	gone, err := s.GetEntity(ctx, absorb.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	got, err := s.GetRelationship(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, keep.ID, got.FromID)

	kept, err := s.GetEntity(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A. Chen"}, kept.Aliases)
}

func TestReplacePatterns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	first := []model.Pattern{
		{ID: uuid.New().String(), Kind: model.PatternRoutine, Name: "old", Confidence: 0.5, DetectedAt: now},
	}
	require.NoError(t, s.ReplacePatterns(ctx, first))

	second := []model.Pattern{
		{
			ID: uuid.New().String(), Kind: model.PatternCluster, Name: "acme cluster",
			Confidence: 0.7, RelatedEntityIDs: []string{"e1", "e2"},
			Temporal:   &model.Temporal{Frequency: model.FreqWeekly},
			DetectedAt: now, Metadata: map[string]any{"count": float64(6)},
		},
	}
	require.NoError(t, s.ReplacePatterns(ctx, second))

	got, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acme cluster", got[0].Name)
	assert.Equal(t, []string{"e1", "e2"}, got[0].RelatedEntityIDs)
	require.NotNil(t, got[0].Temporal)
	assert.Equal(t, model.FreqWeekly, got[0].Temporal.Frequency)
	assert.Equal(t, float64(6), got[0].Metadata["count"])
}
