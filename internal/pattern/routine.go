package pattern

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/model"
)

// routineGroup is one recurring activity keyed by what it recurs around.
type routineGroup struct {
	key   string
	label string
	times []time.Time
}

// detectRoutines scans raw records for recurring activity: repeated
// correspondence with the same address, repeated events with the same title,
// repeated plays of the same artist, repeated transactions at the same payee.
func (d *Detector) detectRoutines(ctx context.Context) ([]model.Pattern, error) {
	index, err := d.entityIndex(ctx)
	if err != nil {
		return nil, err
	}

	var patterns []model.Pattern

	specs := []struct {
		kind  string
		rule  GroupRule
		group func(*model.RawRecord) (key, label string)
		name  func(label string) string
	}{
		{
			kind: model.KindMessage,
			rule: d.rules.Correspondence,
			group: func(rec *model.RawRecord) (string, string) {
				p, ok := decodeAs[*model.MessagePayload](rec)
				if !ok || p.From == "" {
					return "", ""
				}
				return strings.ToLower(p.From), p.From
			},
			name: func(label string) string { return fmt.Sprintf("Regular correspondence with %s", label) },
		},
		{
			kind: model.KindEvent,
			rule: d.rules.Events,
			group: func(rec *model.RawRecord) (string, string) {
				p, ok := decodeAs[*model.EventPayload](rec)
				if !ok || p.Title == "" {
					return "", ""
				}
				return strings.ToLower(strings.TrimSpace(p.Title)), p.Title
			},
			name: func(label string) string { return fmt.Sprintf("Recurring event: %s", label) },
		},
		{
			kind: model.KindPlay,
			rule: d.rules.Listening,
			group: func(rec *model.RawRecord) (string, string) {
				p, ok := decodeAs[*model.PlayPayload](rec)
				if !ok || p.Artist == "" {
					return "", ""
				}
				return strings.ToLower(strings.TrimSpace(p.Artist)), p.Artist
			},
			name: func(label string) string { return fmt.Sprintf("Listening habit: %s", label) },
		},
		{
			kind: model.KindTransaction,
			rule: d.rules.Spending,
			group: func(rec *model.RawRecord) (string, string) {
				p, ok := decodeAs[*model.TransactionPayload](rec)
				if !ok || p.Payee == "" {
					return "", ""
				}
				return strings.ToLower(strings.TrimSpace(p.Payee)), p.Payee
			},
			name: func(label string) string { return fmt.Sprintf("Recurring spending at %s", label) },
		},
	}

	for _, spec := range specs {
		recs, err := d.store.ListRawRecordsByKind(ctx, spec.kind)
		if err != nil {
			return nil, err
		}

		groups := groupRecords(recs, spec.group)
		for _, g := range groups {
			if len(g.times) < spec.rule.MinCount {
				continue
			}
			patterns = append(patterns, buildRoutine(g, spec.rule, spec.name(g.label), index, len(recs)))
		}
	}

	return patterns, nil
}

// groupRecords buckets records by key, in first-seen key order so detection
// output is deterministic.
func groupRecords(recs []model.RawRecord, group func(*model.RawRecord) (string, string)) []routineGroup {
	byKey := make(map[string]*routineGroup)
	var order []string
	for i := range recs {
		key, label := group(&recs[i])
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &routineGroup{key: key, label: label}
			byKey[key] = g
			order = append(order, key)
		}
		g.times = append(g.times, recs[i].ObservedAt)
	}

	out := make([]routineGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

func buildRoutine(g routineGroup, rule GroupRule, name string, index entityIndex, kindTotal int) model.Pattern {
	sort.Slice(g.times, func(i, j int) bool { return g.times[i].Before(g.times[j]) })

	count := len(g.times)
	confidence := math.Min(0.9, float64(count)/float64(rule.UpperBound))

	return model.Pattern{
		ID:               uuid.New().String(),
		Kind:             model.PatternRoutine,
		Name:             name,
		Description:      fmt.Sprintf("Observed %d times between %s and %s", count, g.times[0].Format("2006-01-02"), g.times[count-1].Format("2006-01-02")),
		Confidence:       confidence,
		// the group's share of all records of this kind
		Significance:     float64(count) / float64(kindTotal),
		RelatedEntityIDs: index.match(g.key),
		Temporal: &model.Temporal{
			Frequency: classifyCadence(g.times),
			Start:     g.times[0],
			End:       g.times[count-1],
		},
		DetectedAt: time.Now().UTC(),
		Metadata: map[string]any{
			"key":   g.key,
			"count": count,
		},
	}
}

// Cadence cutoffs on the mean gap between observations.
const (
	dailyCutoff   = 2 * 24 * time.Hour
	weeklyCutoff  = 10 * 24 * time.Hour
	monthlyCutoff = 45 * 24 * time.Hour
	yearlyCutoff  = 400 * 24 * time.Hour
)

// classifyCadence maps the mean interval of a sorted time series onto a
// frequency bucket. Fewer than two observations have no cadence.
func classifyCadence(sorted []time.Time) model.Frequency {
	if len(sorted) < 2 {
		return model.FreqOnce
	}
	span := sorted[len(sorted)-1].Sub(sorted[0])
	mean := span / time.Duration(len(sorted)-1)

	switch {
	case mean < dailyCutoff:
		return model.FreqDaily
	case mean < weeklyCutoff:
		return model.FreqWeekly
	case mean < monthlyCutoff:
		return model.FreqMonthly
	case mean < yearlyCutoff:
		return model.FreqYearly
	default:
		return model.FreqOnce
	}
}

func decodeAs[T any](rec *model.RawRecord) (T, bool) {
	var zero T
	decoded, err := model.DecodePayload(rec.Kind, rec.Payload)
	if err != nil || decoded == nil {
		return zero, false
	}
	typed, ok := decoded.(T)
	return typed, ok
}
