package extract

import (
	"fmt"
	"strings"

	"github.com/loomlabs/loom/internal/model"
)

const systemPromptTemplate = `You are an information extraction engine for a personal knowledge graph.
Given one record from the owner's personal data, identify the entities it mentions and the relationships between them.

Entity types (use exactly these values): %s
Relationship types (use exactly these values): %s

Respond with ONLY a JSON object in this shape, no prose before or after:
{
  "entities": [
    {"type": "person", "name": "Alice Chen", "aliases": ["alice"], "attributes": {"email": "alice@example.com"}, "confidence": 0.9}
  ],
  "relationships": [
    {"from": "Alice Chen", "to": "Acme Corp", "type": "WORKS_AT", "attributes": {}, "confidence": 0.8}
  ]
}

Rules:
- "from" and "to" in relationships must exactly match a "name" in the entities array.
- Use the most specific entity type that fits. Omit entities you cannot type.
- Confidence is a number between 0 and 1 reflecting how certain the record makes the fact.
- Prefer few, well-supported facts over speculative ones.`

func systemPrompt(knownUserName string) string {
	prompt := fmt.Sprintf(systemPromptTemplate,
		strings.Join(entityTypeNames(), ", "),
		strings.Join(relationshipTypeNames(), ", "),
	)
	if knownUserName != "" {
		prompt += fmt.Sprintf("\n- The owner of this data is %q. Resolve first-person references (I, me, my) to that person.", knownUserName)
	}
	return prompt
}

func userPrompt(rec *model.RawRecord, desc string) string {
	return fmt.Sprintf("Record kind: %s\nSource: %s\nObserved: %s\n\n%s",
		rec.Kind, rec.Source, rec.ObservedAt.Format("2006-01-02 15:04"), desc)
}

func entityTypeNames() []string {
	return []string{
		string(model.TypePerson), string(model.TypeOrganization), string(model.TypePlace),
		string(model.TypeEvent), string(model.TypeProject), string(model.TypeTheme),
		string(model.TypeValue), string(model.TypeGoal), string(model.TypeSkill),
		string(model.TypeRole), string(model.TypeHabit), string(model.TypeInterest),
		string(model.TypeProduct), string(model.TypeBook), string(model.TypeMusic),
	}
}

func relationshipTypeNames() []string {
	return []string{
		string(model.RelKnows), string(model.RelMemberOf), string(model.RelWorksAt),
		string(model.RelWorksOn), string(model.RelLocatedIn), string(model.RelAttended),
		string(model.RelOrganized), string(model.RelListensTo), string(model.RelInterestedIn),
		string(model.RelValues), string(model.RelPursues), string(model.RelHasSkill),
		string(model.RelHasRole), string(model.RelPractices), string(model.RelOwns),
		string(model.RelRead), string(model.RelRelatedTo),
	}
}
