// Package store provides durable keyed storage for raw records, entities,
// relationships, and derived patterns, with sqlite and postgres drivers.
package store

import (
	"context"

	"github.com/loomlabs/loom/internal/model"
)

// MergePlan is the atomic unit applied when two entities are merged: the
// surviving entity row, repointed or collapsed relationship rows, redundant
// relationship rows to delete, and the absorbed entity to delete. Either all
// of it becomes visible or none of it does.
type MergePlan struct {
	Keep           *model.Entity
	DeleteEntityID string
	UpsertRels     []model.Relationship
	DeleteRelIDs   []string
}

// Store defines the persistence interface for the graph core. The graph
// manager is the sole mutator of entities and relationships; the ingestion
// path is the sole mutator of raw records.
type Store interface {
	// Raw records
	UpsertRawRecord(ctx context.Context, rec *model.RawRecord) error
	GetRawRecord(ctx context.Context, source, kind, externalID string) (*model.RawRecord, error)
	ListRecentRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error)
	ListRawRecordsByKind(ctx context.Context, kind string) ([]model.RawRecord, error)
	CountRawRecordsByKind(ctx context.Context) (map[string]int, error)

	// Entities
	PutEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)
	ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error)
	DeleteEntity(ctx context.Context, id string) error

	// Relationships
	PutRelationship(ctx context.Context, r *model.Relationship) error
	GetRelationship(ctx context.Context, id string) (*model.Relationship, error)
	ListRelationships(ctx context.Context) ([]model.Relationship, error)
	ListRelationshipsForEntity(ctx context.Context, entityID string) ([]model.Relationship, error)
	FindRelationship(ctx context.Context, fromID, toID string, t model.RelationshipType) (*model.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error

	// Entity merge (repoint + delete in one transaction)
	ApplyMerge(ctx context.Context, plan MergePlan) error

	// Patterns (each detection pass fully replaces the previous set)
	ReplacePatterns(ctx context.Context, patterns []model.Pattern) error
	ListPatterns(ctx context.Context) ([]model.Pattern, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
