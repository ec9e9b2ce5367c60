package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/loomlabs/loom/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	external_id  TEXT NOT NULL,
	payload      TEXT,
	observed_at  DATETIME NOT NULL,
	last_updated DATETIME NOT NULL,
	UNIQUE(source, kind, external_id)
);

CREATE TABLE IF NOT EXISTS entities (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	name             TEXT NOT NULL,
	aliases          TEXT NOT NULL DEFAULT '[]',
	confidence       REAL NOT NULL DEFAULT 0,
	attributes       TEXT NOT NULL DEFAULT '{}',
	sources          TEXT NOT NULL DEFAULT '[]',
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	first_seen       DATETIME NOT NULL,
	last_seen        DATETIME NOT NULL,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL,
	to_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	strength   REAL,
	attributes TEXT NOT NULL DEFAULT '{}',
	sources    TEXT NOT NULL DEFAULT '[]',
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(from_id, to_id, type)
);

CREATE TABLE IF NOT EXISTS patterns (
	id                       TEXT PRIMARY KEY,
	kind                     TEXT NOT NULL,
	name                     TEXT NOT NULL,
	description              TEXT,
	confidence               REAL NOT NULL DEFAULT 0,
	significance             REAL NOT NULL DEFAULT 0,
	related_entity_ids       TEXT NOT NULL DEFAULT '[]',
	related_relationship_ids TEXT NOT NULL DEFAULT '[]',
	temporal                 TEXT,
	detected_at              DATETIME NOT NULL,
	metadata                 TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_raw_records_kind ON raw_records(kind);
CREATE INDEX IF NOT EXISTS idx_raw_records_updated ON raw_records(last_updated);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Raw records ---

func (s *SQLiteStore) UpsertRawRecord(ctx context.Context, rec *model.RawRecord) error {
	existing, err := s.GetRawRecord(ctx, rec.Source, rec.Kind, rec.ExternalID)
	if err != nil {
		return err
	}

	if existing != nil {
		rec.ID = existing.ID
		_, err = s.db.ExecContext(ctx,
			`UPDATE raw_records SET payload = ?, observed_at = ?, last_updated = ? WHERE id = ?`,
			payloadText(rec.Payload), rec.ObservedAt.UTC(), rec.LastUpdated.UTC(), rec.ID,
		)
		return eris.Wrap(err, "sqlite: update raw record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_records (id, source, kind, external_id, payload, observed_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Kind, rec.ExternalID, payloadText(rec.Payload),
		rec.ObservedAt.UTC(), rec.LastUpdated.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert raw record")
}

func (s *SQLiteStore) GetRawRecord(ctx context.Context, source, kind, externalID string) (*model.RawRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records WHERE source = ? AND kind = ? AND external_id = ?`,
		source, kind, externalID,
	)
	rec, err := scanRawRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get raw record")
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecentRawRecords(ctx context.Context, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records ORDER BY last_updated DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent raw records")
	}
	return collectRawRecords(rows)
}

func (s *SQLiteStore) ListRawRecordsByKind(ctx context.Context, kind string) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, kind, external_id, payload, observed_at, last_updated
		 FROM raw_records WHERE kind = ? ORDER BY observed_at ASC, rowid ASC`,
		kind,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list raw records kind %s", kind)
	}
	return collectRawRecords(rows)
}

func (s *SQLiteStore) CountRawRecordsByKind(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM raw_records GROUP BY kind`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count raw records")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record count")
		}
		counts[kind] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count raw records iterate")
}

// --- Entities ---

// PutEntity inserts the entity, or updates it in place when the id already
// exists. Update-then-insert (instead of INSERT OR REPLACE) keeps the rowid
// stable so storage order reflects first insertion.
func (s *SQLiteStore) PutEntity(ctx context.Context, e *model.Entity) error {
	return putEntity(ctx, s.db, e)
}

func putEntity(ctx context.Context, tx dbtx, e *model.Entity) error {
	aliases, attrs, sources, err := marshalEntityJSON(e)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE entities SET type = ?, name = ?, aliases = ?, confidence = ?, attributes = ?,
		 sources = ?, occurrence_count = ?, first_seen = ?, last_seen = ?, updated_at = ?
		 WHERE id = ?`,
		string(e.Type), e.Name, aliases, e.Confidence, attrs, sources,
		e.OccurrenceCount, e.FirstSeen.UTC(), e.LastSeen.UTC(), e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update entity")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, type, name, aliases, confidence, attributes, sources,
		 occurrence_count, first_seen, last_seen, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Name, aliases, e.Confidence, attrs, sources,
		e.OccurrenceCount, e.FirstSeen.UTC(), e.LastSeen.UTC(), e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert entity")
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx, entitySelect+` WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return e, nil
}

const entitySelect = `SELECT id, type, name, aliases, confidence, attributes, sources,
 occurrence_count, first_seen, last_seen, created_at, updated_at FROM entities`

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, entitySelect+` ORDER BY rowid ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	return collectEntities(rows)
}

func (s *SQLiteStore) ListEntitiesByType(ctx context.Context, t model.EntityType) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, entitySelect+` WHERE type = ? ORDER BY rowid ASC`, string(t))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list entities type %s", t)
	}
	return collectEntities(rows)
}

func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete entity %s", id)
}

// --- Relationships ---

func (s *SQLiteStore) PutRelationship(ctx context.Context, r *model.Relationship) error {
	return putRelationship(ctx, s.db, r)
}

func putRelationship(ctx context.Context, tx dbtx, r *model.Relationship) error {
	attrs, sources, err := marshalRelationshipJSON(r)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE relationships SET from_id = ?, to_id = ?, type = ?, confidence = ?, strength = ?,
		 attributes = ?, sources = ?, first_seen = ?, last_seen = ?, updated_at = ?
		 WHERE id = ?`,
		r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, attrs, sources,
		r.FirstSeen.UTC(), r.LastSeen.UTC(), r.UpdatedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update relationship")
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO relationships (id, from_id, to_id, type, confidence, strength, attributes,
		 sources, first_seen, last_seen, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromID, r.ToID, string(r.Type), r.Confidence, r.Strength, attrs, sources,
		r.FirstSeen.UTC(), r.LastSeen.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert relationship")
}

const relationshipSelect = `SELECT id, from_id, to_id, type, confidence, strength, attributes,
 sources, first_seen, last_seen, created_at, updated_at FROM relationships`

func (s *SQLiteStore) GetRelationship(ctx context.Context, id string) (*model.Relationship, error) {
	row := s.db.QueryRowContext(ctx, relationshipSelect+` WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get relationship %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRelationships(ctx context.Context) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, relationshipSelect+` ORDER BY rowid ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list relationships")
	}
	return collectRelationships(rows)
}

func (s *SQLiteStore) ListRelationshipsForEntity(ctx context.Context, entityID string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx,
		relationshipSelect+` WHERE from_id = ? OR to_id = ? ORDER BY rowid ASC`,
		entityID, entityID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list relationships for %s", entityID)
	}
	return collectRelationships(rows)
}

func (s *SQLiteStore) FindRelationship(ctx context.Context, fromID, toID string, t model.RelationshipType) (*model.Relationship, error) {
	row := s.db.QueryRowContext(ctx,
		relationshipSelect+` WHERE from_id = ? AND to_id = ? AND type = ?`,
		fromID, toID, string(t),
	)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find relationship")
	}
	return r, nil
}

func (s *SQLiteStore) DeleteRelationship(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete relationship %s", id)
}

// --- Merge ---

// ApplyMerge applies an entity merge plan in a single transaction so the
// graph never becomes visible with a relationship referencing the absorbed
// entity.
func (s *SQLiteStore) ApplyMerge(ctx context.Context, plan MergePlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := putEntity(ctx, tx, plan.Keep); err != nil {
		return err
	}
	for i := range plan.UpsertRels {
		if err := putRelationship(ctx, tx, &plan.UpsertRels[i]); err != nil {
			return err
		}
	}
	for _, id := range plan.DeleteRelIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: merge delete relationship %s", id)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, plan.DeleteEntityID); err != nil {
		return eris.Wrapf(err, "sqlite: merge delete entity %s", plan.DeleteEntityID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

// --- Patterns ---

func (s *SQLiteStore) ReplacePatterns(ctx context.Context, patterns []model.Pattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace patterns")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM patterns`); err != nil {
		return eris.Wrap(err, "sqlite: clear patterns")
	}

	for _, p := range patterns {
		entityIDs, relIDs, temporal, metadata, err := marshalPatternJSON(&p)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO patterns (id, kind, name, description, confidence, significance,
			 related_entity_ids, related_relationship_ids, temporal, detected_at, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, string(p.Kind), p.Name, p.Description, p.Confidence, p.Significance,
			entityIDs, relIDs, temporal, p.DetectedAt.UTC(), metadata,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert pattern")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace patterns")
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, description, confidence, significance,
		 related_entity_ids, related_relationship_ids, temporal, detected_at, metadata
		 FROM patterns ORDER BY rowid ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
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
	return patterns, eris.Wrap(rows.Err(), "sqlite: list patterns iterate")
}

// --- helpers ---

// dbtx abstracts *sql.DB and *sql.Tx for the shared put helpers.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scannable interface {
	Scan(dest ...any) error
}

func payloadText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func marshalEntityJSON(e *model.Entity) (aliases, attrs, sources string, err error) {
	aliases, err = marshalList(e.Aliases)
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal aliases")
	}
	attrs, err = marshalMap(e.Attributes)
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal attributes")
	}
	sources, err = marshalAny(e.Sources, "[]")
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal sources")
	}
	return aliases, attrs, sources, nil
}

func marshalRelationshipJSON(r *model.Relationship) (attrs, sources string, err error) {
	attrs, err = marshalMap(r.Attributes)
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal attributes")
	}
	sources, err = marshalAny(r.Sources, "[]")
	if err != nil {
		return "", "", eris.Wrap(err, "sqlite: marshal sources")
	}
	return attrs, sources, nil
}

func marshalPatternJSON(p *model.Pattern) (entityIDs, relIDs string, temporal any, metadata string, err error) {
	entityIDs, err = marshalList(p.RelatedEntityIDs)
	if err != nil {
		return "", "", nil, "", eris.Wrap(err, "sqlite: marshal related entity ids")
	}
	relIDs, err = marshalList(p.RelatedRelationshipIDs)
	if err != nil {
		return "", "", nil, "", eris.Wrap(err, "sqlite: marshal related relationship ids")
	}
	if p.Temporal != nil {
		t, err := json.Marshal(p.Temporal)
		if err != nil {
			return "", "", nil, "", eris.Wrap(err, "sqlite: marshal temporal")
		}
		temporal = string(t)
	}
	metadata, err = marshalMap(p.Metadata)
	if err != nil {
		return "", "", nil, "", eris.Wrap(err, "sqlite: marshal metadata")
	}
	return entityIDs, relIDs, temporal, metadata, nil
}

func marshalList(list []string) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func marshalAny(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s == "null" {
		s = empty
	}
	return s, nil
}

func scanRawRecord(row scannable) (*model.RawRecord, error) {
	var rec model.RawRecord
	var payload sql.NullString

	err := row.Scan(&rec.ID, &rec.Source, &rec.Kind, &rec.ExternalID, &payload,
		&rec.ObservedAt, &rec.LastUpdated)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		rec.Payload = json.RawMessage(payload.String)
	}
	return &rec, nil
}

func collectRawRecords(rows *sql.Rows) ([]model.RawRecord, error) {
	defer rows.Close()
	var recs []model.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: raw records iterate")
}

func scanEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var typ, aliases, attrs, sources string

	err := row.Scan(&e.ID, &typ, &e.Name, &aliases, &e.Confidence, &attrs, &sources,
		&e.OccurrenceCount, &e.FirstSeen, &e.LastSeen, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = model.EntityType(typ)

	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal aliases")
	}
	if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
	}
	if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	return &e, nil
}

func collectEntities(rows *sql.Rows) ([]model.Entity, error) {
	defer rows.Close()
	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: entities iterate")
}

func scanRelationship(row scannable) (*model.Relationship, error) {
	var r model.Relationship
	var typ, attrs, sources string
	var strength sql.NullFloat64

	err := row.Scan(&r.ID, &r.FromID, &r.ToID, &typ, &r.Confidence, &strength,
		&attrs, &sources, &r.FirstSeen, &r.LastSeen, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = model.RelationshipType(typ)
	if strength.Valid {
		r.Strength = &strength.Float64
	}

	if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal attributes")
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	return &r, nil
}

func collectRelationships(rows *sql.Rows) ([]model.Relationship, error) {
	defer rows.Close()
	var rels []model.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relationship")
		}
		rels = append(rels, *r)
	}
	return rels, eris.Wrap(rows.Err(), "sqlite: relationships iterate")
}

func scanPattern(row scannable) (*model.Pattern, error) {
	var p model.Pattern
	var kind, entityIDs, relIDs, metadata string
	var description, temporal sql.NullString

	err := row.Scan(&p.ID, &kind, &p.Name, &description, &p.Confidence, &p.Significance,
		&entityIDs, &relIDs, &temporal, &p.DetectedAt, &metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pattern")
	}
	p.Kind = model.PatternKind(kind)
	p.Description = description.String

	if err := json.Unmarshal([]byte(entityIDs), &p.RelatedEntityIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal related entity ids")
	}
	if err := json.Unmarshal([]byte(relIDs), &p.RelatedRelationshipIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal related relationship ids")
	}
	if temporal.Valid && temporal.String != "" {
		p.Temporal = &model.Temporal{}
		if err := json.Unmarshal([]byte(temporal.String), p.Temporal); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal temporal")
		}
	}
	if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
	}
	return &p, nil
}
