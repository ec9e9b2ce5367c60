package pattern

import (
	"context"
	"strings"
)

// entityIndex maps normalized entity names and aliases to entity ids so
// detected routines can point back at graph nodes.
type entityIndex map[string][]string

func (d *Detector) entityIndex(ctx context.Context) (entityIndex, error) {
	entities, err := d.store.ListEntities(ctx)
	if err != nil {
		return nil, err
	}

	index := make(entityIndex)
	add := func(name, id string) {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			return
		}
		for _, existing := range index[n] {
			if existing == id {
				return
			}
		}
		index[n] = append(index[n], id)
	}

	for i := range entities {
		add(entities[i].Name, entities[i].ID)
		for _, a := range entities[i].Aliases {
			add(a, entities[i].ID)
		}
		if email, ok := entities[i].Attributes["email"].(string); ok {
			add(email, entities[i].ID)
		}
	}
	return index, nil
}

// match resolves a routine key to entity ids. An email key additionally
// matches on its local part, which often carries the person's name.
func (idx entityIndex) match(key string) []string {
	key = strings.ToLower(strings.TrimSpace(key))
	if ids, ok := idx[key]; ok {
		return ids
	}
	if at := strings.Index(key, "@"); at > 0 {
		local := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(key[:at])
		if ids, ok := idx[local]; ok {
			return ids
		}
		if ids, ok := idx[key[:at]]; ok {
			return ids
		}
	}
	return nil
}
