package model

import "time"

// EntityType classifies a node in the graph. The set is closed: extraction
// candidates with a type outside this enum are discarded by the adapter.
type EntityType string

// Entity types.
const (
	TypePerson       EntityType = "person"
	TypeOrganization EntityType = "organization"
	TypePlace        EntityType = "place"
	TypeEvent        EntityType = "event"
	TypeProject      EntityType = "project"
	TypeTheme        EntityType = "theme"
	TypeValue        EntityType = "value"
	TypeGoal         EntityType = "goal"
	TypeSkill        EntityType = "skill"
	TypeRole         EntityType = "role"
	TypeHabit        EntityType = "habit"
	TypeInterest     EntityType = "interest"
	TypeProduct      EntityType = "product"
	TypeBook         EntityType = "book"
	TypeMusic        EntityType = "music"
)

var entityTypes = map[EntityType]bool{
	TypePerson: true, TypeOrganization: true, TypePlace: true,
	TypeEvent: true, TypeProject: true, TypeTheme: true, TypeValue: true,
	TypeGoal: true, TypeSkill: true, TypeRole: true, TypeHabit: true,
	TypeInterest: true, TypeProduct: true, TypeBook: true, TypeMusic: true,
}

// ValidEntityType reports whether t is a member of the closed entity enum.
func ValidEntityType(t EntityType) bool {
	return entityTypes[t]
}

// ProvenancePointer records which raw input item contributed to an entity or
// relationship observation. Pointers equal on (source, kind, record_id) are
// the same observation and must not double-count.
type ProvenancePointer struct {
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	RecordID    string    `json:"record_id"`
	ExtractedAt time.Time `json:"extracted_at"`
	Context     string    `json:"context,omitempty"`
}

// SameRecord reports whether two pointers reference the same raw record.
func (p ProvenancePointer) SameRecord(o ProvenancePointer) bool {
	return p.Source == o.Source && p.Kind == o.Kind && p.RecordID == o.RecordID
}

// Entity is a node in the graph. Within a type, the trimmed+lowercased name
// (and aliases) are unique; the graph manager enforces that on upsert.
type Entity struct {
	ID              string              `json:"id" db:"id"`
	Type            EntityType          `json:"type" db:"type"`
	Name            string              `json:"name" db:"name"`
	Aliases         []string            `json:"aliases,omitempty" db:"aliases"`
	Confidence      float64             `json:"confidence" db:"confidence"`
	Attributes      map[string]any      `json:"attributes,omitempty" db:"attributes"`
	Sources         []ProvenancePointer `json:"sources,omitempty" db:"sources"`
	OccurrenceCount int                 `json:"occurrence_count" db:"occurrence_count"`
	FirstSeen       time.Time           `json:"first_seen" db:"first_seen"`
	LastSeen        time.Time           `json:"last_seen" db:"last_seen"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// HasProvenance reports whether the entity already carries a pointer to the
// same raw record.
func (e *Entity) HasProvenance(p ProvenancePointer) bool {
	for _, s := range e.Sources {
		if s.SameRecord(p) {
			return true
		}
	}
	return false
}

// RelationshipType classifies a directed edge between two entities.
type RelationshipType string

// Relationship types.
const (
	RelKnows        RelationshipType = "KNOWS"
	RelMemberOf     RelationshipType = "MEMBER_OF"
	RelWorksAt      RelationshipType = "WORKS_AT"
	RelWorksOn      RelationshipType = "WORKS_ON"
	RelLocatedIn    RelationshipType = "LOCATED_IN"
	RelAttended     RelationshipType = "ATTENDED"
	RelOrganized    RelationshipType = "ORGANIZED"
	RelListensTo    RelationshipType = "LISTENS_TO"
	RelInterestedIn RelationshipType = "INTERESTED_IN"
	RelValues       RelationshipType = "VALUES"
	RelPursues      RelationshipType = "PURSUES"
	RelHasSkill     RelationshipType = "HAS_SKILL"
	RelHasRole      RelationshipType = "HAS_ROLE"
	RelPractices    RelationshipType = "PRACTICES"
	RelOwns         RelationshipType = "OWNS"
	RelRead         RelationshipType = "READ"
	RelRelatedTo    RelationshipType = "RELATED_TO"
)

var relationshipTypes = map[RelationshipType]bool{
	RelKnows: true, RelMemberOf: true, RelWorksAt: true, RelWorksOn: true,
	RelLocatedIn: true, RelAttended: true, RelOrganized: true,
	RelListensTo: true, RelInterestedIn: true, RelValues: true,
	RelPursues: true, RelHasSkill: true, RelHasRole: true,
	RelPractices: true, RelOwns: true, RelRead: true, RelRelatedTo: true,
}

// ValidRelationshipType reports whether t is a member of the closed edge enum.
func ValidRelationshipType(t RelationshipType) bool {
	return relationshipTypes[t]
}

// Relationship is a directed, typed edge between two entities.
// (from_id, to_id, type) is unique; re-observation merges into one row.
type Relationship struct {
	ID         string              `json:"id" db:"id"`
	FromID     string              `json:"from_id" db:"from_id"`
	ToID       string              `json:"to_id" db:"to_id"`
	Type       RelationshipType    `json:"type" db:"type"`
	Confidence float64             `json:"confidence" db:"confidence"`
	Strength   *float64            `json:"strength,omitempty" db:"strength"`
	Attributes map[string]any      `json:"attributes,omitempty" db:"attributes"`
	Sources    []ProvenancePointer `json:"sources,omitempty" db:"sources"`
	FirstSeen  time.Time           `json:"first_seen" db:"first_seen"`
	LastSeen   time.Time           `json:"last_seen" db:"last_seen"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" db:"updated_at"`
}

// HasProvenance reports whether the relationship already carries a pointer
// to the same raw record.
func (r *Relationship) HasProvenance(p ProvenancePointer) bool {
	for _, s := range r.Sources {
		if s.SameRecord(p) {
			return true
		}
	}
	return false
}

// Touches reports whether the relationship references the entity id as
// either endpoint.
func (r *Relationship) Touches(entityID string) bool {
	return r.FromID == entityID || r.ToID == entityID
}

// GraphView is the result of a depth-bounded neighborhood traversal.
type GraphView struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Statistics summarizes current graph state.
type Statistics struct {
	TotalEntities      int                `json:"total_entities"`
	TotalRelationships int                `json:"total_relationships"`
	EntitiesByType     map[EntityType]int `json:"entities_by_type"`
	TopEntities        []Entity           `json:"top_entities"`
}

// GraphExport is a full self-contained snapshot of the graph, suitable for
// backup or offline inspection.
type GraphExport struct {
	Version       int            `json:"version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// ExportVersion is the current GraphExport schema version.
const ExportVersion = 1
