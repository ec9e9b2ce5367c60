//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomlabs/loom/internal/graph"
	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/pattern"
	"github.com/loomlabs/loom/internal/store"
)

// newTestEnv wires a router over a throwaway sqlite store. The coordinator
// is left nil: these tests never hit POST /weave.
func newTestEnv(t *testing.T) *env {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return &env{
		Store:    s,
		Graph:    graph.NewManager(s),
		Detector: pattern.NewDetector(s, pattern.DefaultRules()),
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHealth(t *testing.T) {
	h := newRouter(newTestEnv(t))

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeIngestRecords(t *testing.T) {
	h := newRouter(newTestEnv(t))

	rec := doRequest(t, h, http.MethodPost, "/records",
		`[{"source":"gmail","kind":"message","external_id":"m-1","payload":{"from":"alice@example.com"}}]`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ingested":1}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodPost, "/records", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// missing external_id is rejected with a message
	rec = doRequest(t, h, http.MethodPost, "/records",
		`[{"source":"gmail","kind":"message"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeEntitiesAndGraph(t *testing.T) {
	e := newTestEnv(t)
	h := newRouter(e)
	ctx := context.Background()

	alice, _, err := e.Graph.UpsertEntity(ctx, model.CandidateEntity{Type: model.TypePerson, Name: "Alice Chen", Confidence: 0.9},
		model.ProvenancePointer{Source: "gmail", Kind: model.KindMessage, RecordID: "m-1"})
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodGet, "/entities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entities []model.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entities))
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice Chen", entities[0].Name)

	rec = doRequest(t, h, http.MethodGet, "/entities?q=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entities))
	assert.Len(t, entities, 1)

	rec = doRequest(t, h, http.MethodGet, "/entities?q=alice&limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/entities/"+alice.ID+"/graph?depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view model.GraphView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Entities, 1)

	rec = doRequest(t, h, http.MethodGet, "/entities/nope/graph", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/entities/"+alice.ID+"/graph?depth=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeMerge(t *testing.T) {
	e := newTestEnv(t)
	h := newRouter(e)
	ctx := context.Background()

	prov := model.ProvenancePointer{Source: "gmail", Kind: model.KindMessage, RecordID: "m-1"}
	keep, _, err := e.Graph.UpsertEntity(ctx, model.CandidateEntity{Type: model.TypePerson, Name: "Robert Diaz", Confidence: 0.8}, prov)
	require.NoError(t, err)
	absorb, _, err := e.Graph.UpsertEntity(ctx, model.CandidateEntity{Type: model.TypePerson, Name: "Bob Diaz", Confidence: 0.6},
		model.ProvenancePointer{Source: "gmail", Kind: model.KindMessage, RecordID: "m-2"})
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodPost, "/entities/"+keep.ID+"/merge/"+absorb.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var merged model.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &merged))
	assert.Contains(t, merged.Aliases, "Bob Diaz")

	rec = doRequest(t, h, http.MethodPost, "/entities/"+keep.ID+"/merge/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStatsAndExport(t *testing.T) {
	e := newTestEnv(t)
	h := newRouter(e)
	ctx := context.Background()

	_, _, err := e.Graph.UpsertEntity(ctx, model.CandidateEntity{Type: model.TypePerson, Name: "Alice Chen", Confidence: 0.9},
		model.ProvenancePointer{Source: "gmail", Kind: model.KindMessage, RecordID: "m-1"})
	require.NoError(t, err)

	rec := doRequest(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalEntities)

	rec = doRequest(t, h, http.MethodGet, "/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var export model.GraphExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, model.ExportVersion, export.Version)
	assert.Len(t, export.Entities, 1)

	rec = doRequest(t, h, http.MethodGet, "/patterns", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
