package inference

import (
	"sort"

	"contextgraph/internal/models"
)

// CandidateThreshold is the lowest classification confidence a column needs
// to be considered as a hub.
const CandidateThreshold = 0.4

type hubCandidate struct {
	table models.Table
	col   models.Column
	conf  float64
}

// SelectHubs returns at most one hub per semantic type, ordered by type.
//
// A pin is honored whenever the pinned column exists in the snapshot. Otherwise
// configuration tables win when present, then the highest cardinality, then
// the earlier upload, then table and column name.
func SelectHubs(tables []models.Table, classes []models.Classification, pins map[string]models.HubPin) []models.Hub {
	snap := newSnapshot(tables)

	byType := make(map[string][]hubCandidate)
	for _, cl := range classes {
		if !cl.Classified() || cl.Confidence < CandidateThreshold {
			continue
		}
		t, c, ok := snap.column(cl.Ref)
		if !ok {
			continue
		}
		byType[cl.TypeID()] = append(byType[cl.TypeID()], hubCandidate{table: t, col: c, conf: cl.Confidence})
	}

	var hubs []models.Hub
	seen := make(map[string]bool)

	for typeID, pin := range pins {
		t, c, ok := snap.column(pin.Ref())
		if !ok {
			continue
		}
		seen[typeID] = true
		hubs = append(hubs, models.Hub{
			SemanticType: typeID,
			Table:        t.Name,
			Column:       c.Name,
			TruthType:    t.TruthType,
			Cardinality:  c.Cardinality,
			Confidence:   1.0,
			Method:       models.HubPinned,
		})
	}

	for typeID, cands := range byType {
		if seen[typeID] {
			continue
		}
		best := pickHub(cands)
		hubs = append(hubs, models.Hub{
			SemanticType: typeID,
			Table:        best.table.Name,
			Column:       best.col.Name,
			TruthType:    best.table.TruthType,
			Cardinality:  best.col.Cardinality,
			Confidence:   best.conf,
			Method:       models.HubHeuristic,
		})
	}

	sort.Slice(hubs, func(i, j int) bool { return hubs[i].SemanticType < hubs[j].SemanticType })
	return hubs
}

func pickHub(cands []hubCandidate) hubCandidate {
	var config []hubCandidate
	for _, c := range cands {
		if c.table.TruthType == models.TruthConfiguration {
			config = append(config, c)
		}
	}
	if len(config) > 0 {
		cands = config
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.col.Cardinality != b.col.Cardinality {
			return a.col.Cardinality > b.col.Cardinality
		}
		if !a.table.UploadedAt.Equal(b.table.UploadedAt) {
			return a.table.UploadedAt.Before(b.table.UploadedAt)
		}
		if a.table.Name != b.table.Name {
			return a.table.Name < b.table.Name
		}
		return a.col.Name < b.col.Name
	})
	return cands[0]
}
