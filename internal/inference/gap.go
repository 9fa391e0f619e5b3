package inference

import (
	"contextgraph/internal/models"
)

// DefaultMaxGapValues caps the value lists returned in a gap summary.
const DefaultMaxGapValues = 100

// AnalyzeGap compares the hub's configured values with the values used by
// reality spokes that hold rows. Rejected relationships are ignored. Only
// valid foreign keys count towards usage; every reality spoke contributes
// to the unconfigured list.
func AnalyzeGap(hub models.Hub, rels []models.Relationship, tables []models.Table, maxValues int) models.GapSummary {
	if maxValues <= 0 {
		maxValues = DefaultMaxGapValues
	}
	snap := newSnapshot(tables)
	gap := models.GapSummary{
		SemanticType:    hub.SemanticType,
		HubTable:        hub.Table,
		HubColumn:       hub.Column,
		ConfiguredTotal: hub.Cardinality,
	}

	_, hubCol, ok := snap.column(hub.Ref())
	if !ok {
		gap.AwaitingReality = true
		return gap
	}
	hubSet := valueSet(hubCol)
	gap.Estimated = !hubCol.HasFullSample()

	used := make(map[string]struct{})
	unconfigured := make(map[string]struct{})
	reality := 0

	for _, r := range rels {
		if r.Target() != hub.Ref() || r.Status == models.StatusRejected {
			continue
		}
		t, c, ok := snap.column(r.Source())
		if !ok || t.TruthType != models.TruthReality || t.RowCount == 0 {
			continue
		}
		reality++
		if r.Estimated {
			gap.Estimated = true
		}
		for v := range valueSet(c) {
			_, inHub := hubSet[v]
			switch {
			case !inHub:
				unconfigured[v] = struct{}{}
			case r.IsValidFK:
				used[v] = struct{}{}
			}
		}
	}

	gap.UnconfiguredCount = len(unconfigured)
	gap.UnconfiguredValues = capped(sortedKeys(unconfigured), maxValues)

	if reality == 0 {
		gap.AwaitingReality = true
		return gap
	}

	usedTotal := len(used)
	unusedCount := gap.ConfiguredTotal - usedTotal
	if unusedCount < 0 {
		unusedCount = 0
	}
	gap.UsedTotal = &usedTotal
	gap.UnusedCount = &unusedCount

	unused := make(map[string]struct{})
	for v := range hubSet {
		if _, ok := used[v]; !ok {
			unused[v] = struct{}{}
		}
	}
	gap.UnusedValues = capped(sortedKeys(unused), maxValues)
	return gap
}

func capped(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
