package model

// CandidateEntity is an entity proposed by a single extraction, before
// identity resolution.
type CandidateEntity struct {
	Type       EntityType     `json:"type"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Confidence float64        `json:"confidence"`
}

// CandidateRelationship is an edge proposed by a single extraction.
// Endpoints are referenced by literal name: resolution to entity ids happens
// later in the graph manager, never in the adapter.
type CandidateRelationship struct {
	FromName   string           `json:"from_name"`
	ToName     string           `json:"to_name"`
	Type       RelationshipType `json:"type"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	Confidence float64          `json:"confidence"`
}

// ExtractionResult is the structured output of extracting one raw record.
// An empty result is a valid, non-fatal outcome.
type ExtractionResult struct {
	Entities      []CandidateEntity       `json:"entities"`
	Relationships []CandidateRelationship `json:"relationships"`
}

// Empty reports whether the extraction produced no candidates.
func (r ExtractionResult) Empty() bool {
	return len(r.Entities) == 0 && len(r.Relationships) == 0
}

// ProcessSummary reports the outcome of merging one extraction result.
type ProcessSummary struct {
	EntitiesAdded        int `json:"entities_added"`
	RelationshipsAdded   int `json:"relationships_added"`
	RelationshipsDropped int `json:"relationships_dropped"`
}

// Add accumulates another summary into s.
func (s *ProcessSummary) Add(o ProcessSummary) {
	s.EntitiesAdded += o.EntitiesAdded
	s.RelationshipsAdded += o.RelationshipsAdded
	s.RelationshipsDropped += o.RelationshipsDropped
}
