package model

import "time"

// PatternKind classifies a derived pattern.
type PatternKind string

// Pattern kinds.
const (
	PatternRoutine PatternKind = "routine"
	PatternTrend   PatternKind = "trend"
	PatternCycle   PatternKind = "cycle"
	PatternAnomaly PatternKind = "anomaly"
	PatternCluster PatternKind = "cluster"
)

// Frequency classifies the cadence of a recurring pattern.
type Frequency string

// Cadence classes.
const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
	FreqOnce    Frequency = "once"
)

// Temporal describes the time shape of a pattern.
type Temporal struct {
	Frequency Frequency `json:"frequency,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
}

// Pattern is a derived, non-authoritative summary computed from the graph
// and raw records. Patterns are fully regenerated on each detection pass.
type Pattern struct {
	ID                     string         `json:"id" db:"id"`
	Kind                   PatternKind    `json:"kind" db:"kind"`
	Name                   string         `json:"name" db:"name"`
	Description            string         `json:"description,omitempty" db:"description"`
	Confidence             float64        `json:"confidence" db:"confidence"`
	Significance           float64        `json:"significance" db:"significance"`
	RelatedEntityIDs       []string       `json:"related_entity_ids,omitempty" db:"related_entity_ids"`
	RelatedRelationshipIDs []string       `json:"related_relationship_ids,omitempty" db:"related_relationship_ids"`
	Temporal               *Temporal      `json:"temporal,omitempty" db:"temporal"`
	DetectedAt             time.Time      `json:"detected_at" db:"detected_at"`
	Metadata               map[string]any `json:"metadata,omitempty" db:"metadata"`
}
