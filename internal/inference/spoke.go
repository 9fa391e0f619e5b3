package inference

import (
	"math"

	"contextgraph/internal/models"
)

const (
	// ValidFKCoverage is the coverage a spoke needs to count as a foreign key.
	ValidFKCoverage = 95.0
	// DefaultExactSetThreshold bounds the distinct-set size for which
	// coverage is reported as exact.
	DefaultExactSetThreshold = 10000
)

// Coverage compares a spoke column's values against its hub's values.
type Coverage struct {
	Pct       float64
	Estimated bool
	Matched   int
	Distinct  int
}

// MeasureCoverage computes the share of the spoke's distinct values present
// in the hub. The result is exact only when both sample sets are complete
// and no larger than threshold.
func MeasureCoverage(spoke, hub models.Column, threshold int) Coverage {
	if threshold <= 0 {
		threshold = DefaultExactSetThreshold
	}
	spokeSet := valueSet(spoke)
	hubSet := valueSet(hub)

	cov := Coverage{
		Distinct: len(spokeSet),
		Estimated: !(spoke.HasFullSample() && hub.HasFullSample() &&
			spoke.Cardinality <= threshold && hub.Cardinality <= threshold),
	}
	if len(spokeSet) == 0 {
		return cov
	}
	for v := range spokeSet {
		if _, ok := hubSet[v]; ok {
			cov.Matched++
		}
	}
	cov.Pct = roundTo(100*float64(cov.Matched)/float64(len(spokeSet)), 2)
	return cov
}

// IsValidFK reports whether coverage and cardinality make a spoke a
// usable foreign key.
func IsValidFK(coveragePct float64, spokeCardinality int) bool {
	return coveragePct >= ValidFKCoverage && spokeCardinality > 0
}

// DetectSpokes relates every other column of the hub's semantic type to the
// hub. Relationships come back with status pending; reconciliation happens
// later.
func DetectSpokes(hub models.Hub, tables []models.Table, classes []models.Classification, threshold int) []models.Relationship {
	snap := newSnapshot(tables)
	_, hubCol, ok := snap.column(hub.Ref())
	if !ok {
		return nil
	}

	var rels []models.Relationship
	for _, cl := range classes {
		if !cl.Classified() || cl.TypeID() != hub.SemanticType || cl.Ref == hub.Ref() {
			continue
		}
		t, c, ok := snap.column(cl.Ref)
		if !ok {
			continue
		}
		rels = append(rels, relate(hub, hubCol, t, c, cl.Confidence, cl.Method, threshold))
	}
	return rels
}

func relate(hub models.Hub, hubCol models.Column, t models.Table, c models.Column, spokeConf float64, method models.ClassificationMethod, threshold int) models.Relationship {
	cov := MeasureCoverage(c, hubCol, threshold)
	return models.Relationship{
		RelationshipKey: models.RelationshipKey{
			SourceTable:  t.Name,
			SourceColumn: c.Name,
			TargetTable:  hub.Table,
			TargetColumn: hub.Column,
		},
		SemanticType:     hub.SemanticType,
		SourceTruthType:  t.TruthType,
		CoveragePct:      cov.Pct,
		Estimated:        cov.Estimated,
		IsValidFK:        IsValidFK(cov.Pct, c.Cardinality),
		SpokeCardinality: c.Cardinality,
		HubCardinality:   hubCol.Cardinality,
		Confidence:       roundTo(math.Min(spokeConf, hub.Confidence)*cov.Pct/100, 4),
		Status:           models.StatusPending,
		Method:           method,
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
