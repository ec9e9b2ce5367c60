// Package pattern derives behavioral patterns (routines, clusters, trends)
// from raw records and the graph. Patterns are regenerated in full on every
// detection pass; they summarize the graph and are never authoritative.
package pattern

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// GroupRule sets the thresholds for one routine detector. MinCount is the
// smallest group that counts as a routine; UpperBound is the count at which
// confidence saturates.
type GroupRule struct {
	MinCount   int `yaml:"min_count"`
	UpperBound int `yaml:"upper_bound"`
}

// Rules configures the detection pass.
type Rules struct {
	Correspondence GroupRule `yaml:"correspondence"`
	Events         GroupRule `yaml:"events"`
	Listening      GroupRule `yaml:"listening"`
	Spending       GroupRule `yaml:"spending"`

	ClusterMinNeighbors int     `yaml:"cluster_min_neighbors"`
	ClusterConfidence   float64 `yaml:"cluster_confidence"`
}

// DefaultRules returns the built-in thresholds.
func DefaultRules() Rules {
	return Rules{
		Correspondence:      GroupRule{MinCount: 5, UpperBound: 20},
		Events:              GroupRule{MinCount: 3, UpperBound: 10},
		Listening:           GroupRule{MinCount: 5, UpperBound: 20},
		Spending:            GroupRule{MinCount: 3, UpperBound: 10},
		ClusterMinNeighbors: 3,
		ClusterConfidence:   0.7,
	}
}

// LoadRules reads a YAML rules file, filling unset fields with defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "pattern: read rules %s", path)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, eris.Wrapf(err, "pattern: parse rules %s", path)
	}
	rules.applyDefaults()
	return rules, nil
}

func (r *Rules) applyDefaults() {
	def := DefaultRules()
	fillGroup(&r.Correspondence, def.Correspondence)
	fillGroup(&r.Events, def.Events)
	fillGroup(&r.Listening, def.Listening)
	fillGroup(&r.Spending, def.Spending)
	if r.ClusterMinNeighbors <= 0 {
		r.ClusterMinNeighbors = def.ClusterMinNeighbors
	}
	if r.ClusterConfidence <= 0 {
		r.ClusterConfidence = def.ClusterConfidence
	}
}

func fillGroup(g *GroupRule, def GroupRule) {
	if g.MinCount <= 0 {
		g.MinCount = def.MinCount
	}
	if g.UpperBound <= 0 {
		g.UpperBound = def.UpperBound
	}
}
