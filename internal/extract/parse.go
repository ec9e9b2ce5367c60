package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/model"
)

// wire types mirror the JSON shape the model is instructed to emit.
// Confidence is a pointer so a missing field is distinguishable from 0.
type wireExtraction struct {
	Entities      []wireEntity       `json:"entities"`
	Relationships []wireRelationship `json:"relationships"`
}

type wireEntity struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases"`
	Attributes map[string]any `json:"attributes"`
	Confidence *float64       `json:"confidence"`
}

type wireRelationship struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
	Confidence *float64       `json:"confidence"`
}

// defaultConfidence is assumed when the model omits the field.
const defaultConfidence = 0.5

// parseExtraction decodes a model answer into candidate entities and
// relationships. Candidates with an unknown entity type are dropped;
// relationships with an unknown type degrade to RELATED_TO.
func parseExtraction(text string) (model.ExtractionResult, error) {
	var wire wireExtraction
	if err := json.Unmarshal([]byte(cleanJSON(text)), &wire); err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: parse model answer")
	}

	var result model.ExtractionResult
	for _, e := range wire.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		typ := model.EntityType(strings.ToLower(strings.TrimSpace(e.Type)))
		if !model.ValidEntityType(typ) {
			zap.L().Debug("dropping candidate with unknown entity type",
				zap.String("type", e.Type), zap.String("name", name))
			continue
		}
		result.Entities = append(result.Entities, model.CandidateEntity{
			Type:       typ,
			Name:       name,
			Aliases:    e.Aliases,
			Attributes: e.Attributes,
			Confidence: clampConfidence(e.Confidence),
		})
	}

	for _, r := range wire.Relationships {
		from := strings.TrimSpace(r.From)
		to := strings.TrimSpace(r.To)
		if from == "" || to == "" {
			continue
		}
		typ := model.RelationshipType(strings.ToUpper(strings.TrimSpace(r.Type)))
		if !model.ValidRelationshipType(typ) {
			typ = model.RelRelatedTo
		}
		result.Relationships = append(result.Relationships, model.CandidateRelationship{
			FromName:   from,
			ToName:     to,
			Type:       typ,
			Attributes: r.Attributes,
			Confidence: clampConfidence(r.Confidence),
		})
	}

	return result, nil
}

func clampConfidence(c *float64) float64 {
	if c == nil {
		return defaultConfidence
	}
	switch {
	case *c < 0:
		return 0
	case *c > 1:
		return 1
	default:
		return *c
	}
}

// cleanJSON strips markdown code fences and any prose around the JSON object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
