package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/loomlabs/loom/internal/db"
	"github.com/loomlabs/loom/internal/model"
)

// PostgresStore implements Store against a pgx pool. It accepts the db.Pool
// interface so tests can substitute pgxmock.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to the given postgres DSN and returns a store backed
// by a connection pool.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	external_id  TEXT NOT NULL,
	payload      JSONB,
	observed_at  TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	UNIQUE(source, kind, external_id)
);

CREATE TABLE IF NOT EXISTS entities (
	seq              BIGSERIAL,
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	name             TEXT NOT NULL,
	aliases          JSONB NOT NULL DEFAULT '[]',
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	attributes       JSONB NOT NULL DEFAULT '{}',
	sources          JSONB NOT NULL DEFAULT '[]',
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	first_seen       TIMESTAMPTZ NOT NULL,
	last_seen        TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	strength   DOUBLE PRECISION,
	attributes JSONB NOT NULL DEFAULT '{}',
	sources    JSONB NOT NULL DEFAULT '[]',
	first_seen TIMESTAMPTZ NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE(from_id, to_id, type)
);

CREATE TABLE IF NOT EXISTS patterns (
	seq                      BIGSERIAL,
	id                       TEXT PRIMARY KEY,
	kind                     TEXT NOT NULL,
	name                     TEXT NOT NULL,
	description              TEXT,
	confidence               DOUBLE PRECISION NOT NULL DEFAULT 0,
	significance             DOUBLE PRECISION NOT NULL DEFAULT 0,
	related_entity_ids       JSONB NOT NULL DEFAULT '[]',
	related_relationship_ids JSONB NOT NULL DEFAULT '[]',
	temporal                 JSONB,
	detected_at              TIMESTAMPTZ NOT NULL,
	metadata                 JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_raw_records_kind ON raw_records(kind);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Raw records ---

func (s *PostgresStore) UpsertRawRecord(ctx context.Context, rec *model.RawRecord) error {
	existing, err := s.GetRawRecord(ctx, rec.Source, rec.Kind, rec.ExternalID)
	if err != nil {
		return err
	}

	if existing != nil {
		rec.ID = existing.ID
		_, err = s.pool.Exec(ctx,
			`UPDATE raw_records SET payload = $1, observed_at = $2, last_updated = $3 WHERE id = $4`,
			payloadText(rec.Payload), rec.ObservedAt.UTC(), rec.LastUpdated.UTC(), rec.ID,
		)
		return eris.Wrap(err, "postgres: update raw record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_records (id, source, kind, external_id, payload, observed_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Source, rec.Kind, rec.ExternalID, payloadText(rec.Payload),
		rec.ObservedAt.UTC(), rec.LastUpdated.UTC(),
	)
	return eris.Wrap(err, "postgres: insert raw record")
}

func (s *PostgresStore) GetRawRecord(ctx context.Context, source, kind, externalID string) (*model.RawRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records WHERE source = $1 AND kind = $2 AND external_id = $3`,
		source, kind, externalID,
	)
	rec, err := scanPgRawRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get raw record")
	}
	return rec, nil
}

func (s *PostgresStore) ListRecentRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records ORDER BY last_updated DESC, seq DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent raw records")
	}
	return collectPgRawRecords(rows)
}

func (s *PostgresStore) ListRawRecordsByKind(ctx context.Context, kind string) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records WHERE kind = $1 ORDER BY observed_at ASC, seq ASC`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list raw records kind %s", kind)
	}
	return collectPgRawRecords(rows)
}

func (s *PostgresStore) CountRawRecordsByKind(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM raw_records GROUP BY kind`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count raw records")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record count")
		}
		counts[kind] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count raw records iterate")
}

// --- Entities ---

const pgEntitySelect = `SELECT id, type, name, aliases, confidence, attributes, sources,
 occurrence_count, first_seen, last_seen, created_at, updated_at FROM entities`

func (s *PostgresStore) PutEntity(ctx context.Context, e *model.Entity) error {
	aliases, attrs, sources, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET type = $1, name = $2, aliases = $3, confidence = $4, attributes = $5,
		 sources = $6, occurrence_count = $7, first_seen = $8, last_seen = $9, updated_at = $10
		 WHERE id = $11`,
		string(e.Type), e.Name, aliases, e.Confidence, attrs, sources,
		e.OccurrenceCount, e.FirstSeen.UTC(), e.LastSeen.UTC(), e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update entity")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, type, name, aliases, confidence, attributes, sources,
		 occurrence_count, first_seen, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, string(e.Type), e.Name, aliases, e.Confidence, attrs, sources,
		e.OccurrenceCount, e.FirstSeen.UTC(), e.LastSeen.UTC(), e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert entity")
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx, pgEntitySelect+` WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx, pgEntitySelect+` ORDER BY seq ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	return collectPgEntities(rows)
}

func (s *PostgresStore) ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx, pgEntitySelect+` WHERE type = $1 ORDER BY seq ASC`, string(t))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list entities type %s", t)
	}
	return collectPgEntities(rows)
}

func (s *PostgresStore) DeleteEntity(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete entity %s", id)
}

// --- Relationships ---

const pgRelationshipSelect = `SELECT id, from_id, to_id, type, confidence, strength, attributes,
 sources, first_seen, last_seen, created_at, updated_at FROM relationships`

func (s *PostgresStore) PutRelationship(ctx context.Context, r *model.Relationship) error {
	attrs, sources, err := marshalRelationshipJSON(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE relationships SET from_id = $1, to_id = $2, type = $3, confidence = $4, strength = $5,
		 attributes = $6, sources = $7, first_seen = $8, last_seen = $9, updated_at = $10
		 WHERE id = $11`,
		r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, attrs, sources,
		r.FirstSeen.UTC(), r.LastSeen.UTC(), r.UpdatedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update relationship")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO relationships (id, from_id, to_id, type, confidence, strength, attributes,
		 sources, first_seen, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, attrs, sources,
		r.FirstSeen.UTC(), r.LastSeen.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert relationship")
}

func (s *PostgresStore) GetRelationship(ctx context.Context, id string) (*model.Relationship, error) {
	row := s.pool.QueryRow(ctx, pgRelationshipSelect+` WHERE id = $1`, id)
	r, err := scanRelationship(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get relationship %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRelationships(ctx context.Context) ([]model.Relationship, error) {
	rows, err := s.pool.Query(ctx, pgRelationshipSelect+` ORDER BY seq ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list relationships")
	}
	return collectPgRelationships(rows)
}

func (s *PostgresStore) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]model.Relationship, error) {
	rows, err := s.pool.Query(ctx,
		pgRelationshipSelect+` WHERE from_id = $1 OR to_id = $1 ORDER BY seq ASC`,
		entityID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list relationships for %s", entityID)
	}
	return collectPgRelationships(rows)
}

func (s *PostgresStore) FindRelationship(ctx context.Context, fromID, toID string, t model.RelationshipType) (*model.Relationship, error) {
	row := s.pool.QueryRow(ctx,
		pgRelationshipSelect+` WHERE from_id = $1 AND to_id = $2 AND type = $3`,
		fromID, toID, string(t),
	)
	r, err := scanRelationship(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find relationship")
	}
	return r, nil
}

func (s *PostgresStore) DeleteRelationship(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete relationship %s", id)
}

// --- Merge ---

func (s *PostgresStore) ApplyMerge(ctx context.Context, plan MergePlan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	aliases, attrs, sources, err := marshalEntityJSON(plan.Keep)
	if err != nil {
		return err
	}
	e := plan.Keep
	tag, err := tx.Exec(ctx,
		`UPDATE entities SET type = $1, name = $2, aliases = $3, confidence = $4, attributes = $5,
		 sources = $6, occurrence_count = $7, first_seen = $8, last_seen = $9, updated_at = $10
		 WHERE id = $11`,
		string(e.Type), e.Name, aliases, e.Confidence, attrs, sources,
		e.OccurrenceCount, e.FirstSeen.UTC(), e.LastSeen.UTC(), e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: merge update entity")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: merge target entity %s not found", e.ID)
	}

	for i := range plan.UpsertRels {
		r := &plan.UpsertRels[i]
		rattrs, rsources, err := marshalRelationshipJSON(r)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE relationships SET from_id = $1, to_id = $2, type = $3, confidence = $4, strength = $5,
			 attributes = $6, sources = $7, first_seen = $8, last_seen = $9, updated_at = $10
			 WHERE id = $11`,
			r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, rattrs, rsources,
			r.FirstSeen.UTC(), r.LastSeen.UTC(), r.UpdatedAt.UTC(), r.ID,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: merge update relationship")
		}
		if tag.RowsAffected() == 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO relationships (id, from_id, to_id, type, confidence, strength, attributes,
				 sources, first_seen, last_seen, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				r.ID, r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, rattrs, rsources,
				r.FirstSeen.UTC(), r.LastSeen.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
			)
			if err != nil {
				return eris.Wrap(err, "postgres: merge insert relationship")
			}
		}
	}

	for _, id := range plan.DeleteRelIDs {
		if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, id); err != nil {
			return eris.Wrapf(err, "postgres: merge delete relationship %s", id)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1`, plan.DeleteEntityID); err != nil {
		return eris.Wrapf(err, "postgres: merge delete entity %s", plan.DeleteEntityID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

// --- Patterns ---

func (s *PostgresStore) ReplacePatterns(ctx context.Context, patterns []model.Pattern) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace patterns")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM patterns`); err != nil {
		return eris.Wrap(err, "postgres: clear patterns")
	}

	for _, p := range patterns {
		entityIDs, relIDs, temporal, metadata, err := marshalPatternJSON(&p)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO patterns (id, kind, name, description, confidence, significance,
			 related_entity_ids, related_relationship_ids, temporal, detected_at, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, string(p.Kind), p.Name, p.Description, p.Confidence, p.Significance,
			entityIDs, relIDs, temporal, p.DetectedAt.UTC(), metadata,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert pattern")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace patterns")
}

func (s *PostgresStore) ListPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, description, confidence, significance,
		 related_entity_ids, related_relationship_ids, temporal, detected_at, metadata
		 FROM patterns ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patterns")
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	return patterns, eris.Wrap(rows.Err(), "postgres: list patterns iterate")
}

// --- scan helpers ---

func scanPgRawRecord(row pgx.Row) (*model.RawRecord, error) {
	var rec model.RawRecord
	var payload *string

	err := row.Scan(&rec.ID, &rec.Source, &rec.Kind, &rec.ExternalID, &payload,
		&rec.ObservedAt, &rec.LastUpdated)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		rec.Payload = json.RawMessage(*payload)
	}
	return &rec, nil
}

func collectPgRawRecords(rows pgx.Rows) ([]model.RawRecord, error) {
	defer rows.Close()
	var recs []model.RawRecord
	for rows.Next() {
		rec, err := scanPgRawRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: raw records iterate")
}

func collectPgEntities(rows pgx.Rows) ([]model.Entity, error) {
	defer rows.Close()
	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: entities iterate")
}

func collectPgRelationships(rows pgx.Rows) ([]model.Relationship, error) {
	defer rows.Close()
	var rels []model.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan relationship")
		}
		rels = append(rels, *r)
	}
	return rels, eris.Wrap(rows.Err(), "postgres: relationships iterate")
}
