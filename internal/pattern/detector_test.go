package pattern

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/store"
)

func newTestDetector(t *testing.T) (*Detector, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pattern.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewDetector(s, DefaultRules()), s
}

func putMessages(t *testing.T, s store.Store, from string, times []time.Time) {
	t.Helper()
	for _, ts := range times {
		payload, err := json.Marshal(model.MessagePayload{From: from, Subject: "hi"})
		require.NoError(t, err)
		require.NoError(t, s.UpsertRawRecord(context.Background(), &model.RawRecord{
			ID: uuid.New().String(), Source: "mail", Kind: model.KindMessage,
			ExternalID: uuid.New().String(), Payload: payload,
			ObservedAt: ts, LastUpdated: ts,
		}))
	}
}

func putTransactions(t *testing.T, s store.Store, payee string, times []time.Time) {
	t.Helper()
	for _, ts := range times {
		payload, err := json.Marshal(model.TransactionPayload{Payee: payee, Amount: 12.5, Currency: "USD"})
		require.NoError(t, err)
		require.NoError(t, s.UpsertRawRecord(context.Background(), &model.RawRecord{
			ID: uuid.New().String(), Source: "bank", Kind: model.KindTransaction,
			ExternalID: uuid.New().String(), Payload: payload,
			ObservedAt: ts, LastUpdated: ts,
		}))
	}
}

func weeklyTimes(n int) []time.Time {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, 7*i)
	}
	return out
}

func TestDetectRoutinesCorrespondenceThreshold(t *testing.T) {
	d, s := newTestDetector(t)

	// four messages sit below the correspondence threshold of five
	putMessages(t, s, "alice@example.com", weeklyTimes(4))

	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patterns)

	putMessages(t, s, "alice@example.com", []time.Time{weeklyTimes(5)[4]})
	patterns, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, model.PatternRoutine, p.Kind)
	assert.Contains(t, p.Name, "alice@example.com")
	assert.InDelta(t, 0.25, p.Confidence, 1e-9) // 5/20
	assert.Equal(t, 5, p.Metadata["count"])
}

func TestDetectRoutinesSpendingThreshold(t *testing.T) {
	d, s := newTestDetector(t)

	putTransactions(t, s, "Corner Cafe", weeklyTimes(2))
	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patterns, "two transactions are not a routine")

	putTransactions(t, s, "Corner Cafe", []time.Time{weeklyTimes(3)[2]})
	patterns, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Contains(t, patterns[0].Name, "Corner Cafe")
	assert.InDelta(t, 0.3, patterns[0].Confidence, 1e-9) // 3/10
}

func TestDetectRoutinesSignificance(t *testing.T) {
	d, s := newTestDetector(t)

	// every message of the kind comes from the same sender
	putMessages(t, s, "alice@example.com", weeklyTimes(6))

	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.InDelta(t, 1.0, patterns[0].Significance, 1e-9, "6 of 6 messages")

	// four more messages from someone else dilute alice's share to 6/10
	putMessages(t, s, "bob@example.com", weeklyTimes(4))

	patterns, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.InDelta(t, 0.6, patterns[0].Significance, 1e-9)
}

func TestDetectRoutinesWeeklyCadence(t *testing.T) {
	d, s := newTestDetector(t)

	putMessages(t, s, "alice@example.com", weeklyTimes(6))

	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.NotNil(t, patterns[0].Temporal)
	assert.Equal(t, model.FreqWeekly, patterns[0].Temporal.Frequency)
	assert.Equal(t, 6, patterns[0].Metadata["count"])
}

func TestDetectRoutinesLinksEntities(t *testing.T) {
	d, s := newTestDetector(t)
	ctx := context.Background()

	now := time.Now().UTC()
	alice := &model.Entity{
		ID: uuid.New().String(), Type: model.TypePerson, Name: "Alice",
		Confidence: 0.9, OccurrenceCount: 6,
		FirstSeen: now, LastSeen: now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.PutEntity(ctx, alice))

	putMessages(t, s, "alice@example.com", weeklyTimes(6))

	patterns, err := d.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, []string{alice.ID}, patterns[0].RelatedEntityIDs,
		"the email local part resolves to the person entity")
}

func TestClassifyCadence(t *testing.T) {
	day := 24 * time.Hour
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	series := func(gap time.Duration, n int) []time.Time {
		out := make([]time.Time, n)
		for i := range out {
			out[i] = start.Add(time.Duration(i) * gap)
		}
		return out
	}

	assert.Equal(t, model.FreqOnce, classifyCadence(series(day, 1)))
	assert.Equal(t, model.FreqDaily, classifyCadence(series(day, 5)))
	assert.Equal(t, model.FreqWeekly, classifyCadence(series(7*day, 5)))
	assert.Equal(t, model.FreqMonthly, classifyCadence(series(30*day, 5)))
	assert.Equal(t, model.FreqYearly, classifyCadence(series(365*day, 3)))
	assert.Equal(t, model.FreqOnce, classifyCadence(series(500*day, 2)))
}

func putEntity(t *testing.T, s store.Store, name string, typ model.EntityType) *model.Entity {
	t.Helper()
	now := time.Now().UTC()
	e := &model.Entity{
		ID: uuid.New().String(), Type: typ, Name: name, Confidence: 0.8,
		OccurrenceCount: 1, FirstSeen: now, LastSeen: now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.PutEntity(context.Background(), e))
	return e
}

func putRel(t *testing.T, s store.Store, fromID, toID string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.PutRelationship(context.Background(), &model.Relationship{
		ID: uuid.New().String(), FromID: fromID, ToID: toID, Type: model.RelKnows,
		Confidence: 0.6, FirstSeen: now, LastSeen: now, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestDetectClusters(t *testing.T) {
	d, s := newTestDetector(t)

	hub := putEntity(t, s, "Alice", model.TypePerson)
	b := putEntity(t, s, "Bob", model.TypePerson)
	c := putEntity(t, s, "Carol", model.TypePerson)
	putRel(t, s, hub.ID, b.ID)
	putRel(t, s, c.ID, hub.ID)

	// two neighbors: not yet a cluster
	patterns, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patterns)

	dan := putEntity(t, s, "Dan", model.TypePerson)
	putRel(t, s, hub.ID, dan.ID)

	patterns, err = d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, model.PatternCluster, p.Kind)
	assert.Equal(t, 0.7, p.Confidence)
	assert.Equal(t, hub.ID, p.RelatedEntityIDs[0])
	assert.Len(t, p.RelatedEntityIDs, 4)
	assert.Equal(t, 3, p.Metadata["neighbors"])

	// hub has 3 neighbors of 4 entities carrying any edge
	assert.InDelta(t, 0.75, p.Significance, 1e-9)
	assert.Len(t, p.RelatedRelationshipIDs, 3, "every edge touches the hub")
}

func TestRunReplacesStoredPatterns(t *testing.T) {
	d, s := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, s.ReplacePatterns(ctx, []model.Pattern{
		{ID: uuid.New().String(), Kind: model.PatternRoutine, Name: "stale", DetectedAt: time.Now().UTC()},
	}))

	putMessages(t, s, "alice@example.com", weeklyTimes(5))

	patterns, err := d.Run(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	stored, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "stale", stored[0].Name)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correspondence:\n  min_count: 2\n  upper_bound: 4\n"), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Correspondence.MinCount)
	assert.Equal(t, 4, rules.Correspondence.UpperBound)
	// untouched sections keep defaults
	assert.Equal(t, 3, rules.Events.MinCount)
	assert.Equal(t, 3, rules.ClusterMinNeighbors)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
