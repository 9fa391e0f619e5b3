// Package inference turns classified columns into a context graph: one hub
// per semantic type, spoke relationships measured by value coverage, and
// configured-vs-used gap summaries. Everything here is a pure function of
// its inputs.
package inference

import (
	"sort"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/models"
)

type Input struct {
	ProjectID         string
	Tables            []models.Table
	Classifications   []models.Classification
	Overrides         models.OverrideSet
	TaxonomyVersion   string
	ExactSetThreshold int
	MaxGapValues      int
}

// Analyze assembles the graph. Output ordering is deterministic: hubs and
// gaps by semantic type, relationships by semantic type, source table and
// source column.
func Analyze(in Input) models.Graph {
	fingerprint := Fingerprint(in.Tables)
	graph := models.Graph{
		ProjectID:     in.ProjectID,
		Hubs:          []models.Hub{},
		Relationships: []models.Relationship{},
		Gaps:          []models.GapSummary{},
	}
	graph.Summary.SnapshotFingerprint = fingerprint
	graph.Summary.TaxonomyVersion = in.TaxonomyVersion
	graph.Summary.SemanticTypes = []string{}

	if len(in.Tables) == 0 {
		graph.Classifications = in.Classifications
		graph.Summary.Message = apperrors.ErrNoData.Error()
		return graph
	}

	in.Classifications = ApplyPins(in.Tables, in.Classifications, in.Overrides.HubPins)
	graph.Classifications = in.Classifications
	hubs := SelectHubs(in.Tables, in.Classifications, in.Overrides.HubPins)

	var rels []models.Relationship
	for _, h := range hubs {
		rels = append(rels, DetectSpokes(h, in.Tables, in.Classifications, in.ExactSetThreshold)...)
	}
	rels = Reconcile(rels, in, hubs, fingerprint)
	SortRelationships(rels)

	for _, h := range hubs {
		graph.Gaps = append(graph.Gaps, AnalyzeGap(h, rels, in.Tables, in.MaxGapValues))
	}

	graph.Hubs = append(graph.Hubs, hubs...)
	graph.Relationships = append(graph.Relationships, rels...)
	graph.Summary = summarize(graph, in)
	graph.Summary.SnapshotFingerprint = fingerprint
	return graph
}

// ApplyPins returns a copy of classes in which every pinned column that
// exists in the snapshot carries the pinned semantic type with method
// override and full confidence.
func ApplyPins(tables []models.Table, classes []models.Classification, pins map[string]models.HubPin) []models.Classification {
	out := append([]models.Classification(nil), classes...)
	if len(pins) == 0 {
		return out
	}
	typeIDs := make([]string, 0, len(pins))
	for typeID := range pins {
		typeIDs = append(typeIDs, typeID)
	}
	sort.Strings(typeIDs)

	snap := newSnapshot(tables)
	for _, typeID := range typeIDs {
		ref := pins[typeID].Ref()
		if _, _, ok := snap.column(ref); !ok {
			continue
		}
		pinned := models.Classification{
			Ref:          ref,
			SemanticType: &typeID,
			Confidence:   1.0,
			Method:       models.MethodOverride,
		}
		found := false
		for i := range out {
			if out[i].Ref == ref {
				out[i] = pinned
				found = true
			}
		}
		if !found {
			out = append(out, pinned)
		}
	}
	return out
}

// Reconcile applies stored overrides to freshly detected relationships.
// Confirmed and rejected overrides replace the computed status. A deleted
// override drops the relationship only while the snapshot is the one it was
// deleted against. Manual overrides add relationships the detector missed.
func Reconcile(rels []models.Relationship, in Input, hubs []models.Hub, fingerprint string) []models.Relationship {
	overrides := in.Overrides.Relationships
	out := make([]models.Relationship, 0, len(rels))
	detected := make(map[models.RelationshipKey]bool, len(rels))

	for _, r := range rels {
		detected[r.RelationshipKey] = true
		o, ok := overrides[r.RelationshipKey]
		if !ok {
			out = append(out, r)
			continue
		}
		if o.Status == models.OverrideDeleted {
			if o.SnapshotFingerprint == fingerprint {
				continue
			}
			out = append(out, r)
			continue
		}
		r.Status = statusOf(o)
		if o.Manual {
			r.Confidence = 1.0
			r.Method = models.MethodManual
		}
		out = append(out, r)
	}

	snap := newSnapshot(in.Tables)
	hubByRef := make(map[models.ColumnRef]models.Hub, len(hubs))
	for _, h := range hubs {
		hubByRef[h.Ref()] = h
	}
	classByRef := make(map[models.ColumnRef]models.Classification, len(in.Classifications))
	for _, cl := range in.Classifications {
		classByRef[cl.Ref] = cl
	}

	keys := make([]models.RelationshipKey, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, k := range keys {
		o := overrides[k]
		if !o.Manual || o.Status == models.OverrideDeleted || detected[k] {
			continue
		}
		if r, ok := manualRelationship(o, snap, hubByRef, classByRef, in.ExactSetThreshold); ok {
			out = append(out, r)
		}
	}
	return out
}

// ManualRelationship describes a user-declared relationship against the
// current snapshot. It fails when either column no longer exists.
func ManualRelationship(o models.Override, in Input, hubs []models.Hub) (models.Relationship, bool) {
	hubByRef := make(map[models.ColumnRef]models.Hub, len(hubs))
	for _, h := range hubs {
		hubByRef[h.Ref()] = h
	}
	classByRef := make(map[models.ColumnRef]models.Classification, len(in.Classifications))
	for _, cl := range in.Classifications {
		classByRef[cl.Ref] = cl
	}
	return manualRelationship(o, newSnapshot(in.Tables), hubByRef, classByRef, in.ExactSetThreshold)
}

func manualRelationship(o models.Override, snap snapshot, hubs map[models.ColumnRef]models.Hub, classes map[models.ColumnRef]models.Classification, threshold int) (models.Relationship, bool) {
	st, sc, ok := snap.column(o.Key.Source())
	if !ok {
		return models.Relationship{}, false
	}
	_, tc, ok := snap.column(o.Key.Target())
	if !ok {
		return models.Relationship{}, false
	}

	semanticType := ""
	if h, ok := hubs[o.Key.Target()]; ok {
		semanticType = h.SemanticType
	} else if cl, ok := classes[o.Key.Target()]; ok && cl.Classified() {
		semanticType = cl.TypeID()
	} else if cl, ok := classes[o.Key.Source()]; ok && cl.Classified() {
		semanticType = cl.TypeID()
	}

	cov := MeasureCoverage(sc, tc, threshold)
	return models.Relationship{
		RelationshipKey:  o.Key,
		SemanticType:     semanticType,
		SourceTruthType:  st.TruthType,
		CoveragePct:      cov.Pct,
		Estimated:        cov.Estimated,
		IsValidFK:        IsValidFK(cov.Pct, sc.Cardinality),
		SpokeCardinality: sc.Cardinality,
		HubCardinality:   tc.Cardinality,
		Confidence:       1.0,
		Status:           statusOf(o),
		Method:           models.MethodManual,
	}, true
}

func statusOf(o models.Override) models.RelationshipStatus {
	switch o.Status {
	case models.OverrideConfirmed:
		return models.StatusConfirmed
	case models.OverrideRejected:
		return models.StatusRejected
	default:
		return models.StatusPending
	}
}

// SortRelationships orders by semantic type, source and then target.
func SortRelationships(rels []models.Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.SemanticType != b.SemanticType {
			return a.SemanticType < b.SemanticType
		}
		if a.SourceTable != b.SourceTable {
			return a.SourceTable < b.SourceTable
		}
		if a.SourceColumn != b.SourceColumn {
			return a.SourceColumn < b.SourceColumn
		}
		if a.TargetTable != b.TargetTable {
			return a.TargetTable < b.TargetTable
		}
		return a.TargetColumn < b.TargetColumn
	})
}

func summarize(g models.Graph, in Input) models.GraphSummary {
	s := models.GraphSummary{
		HubCount:        len(g.Hubs),
		SpokeCount:      len(g.Relationships),
		SemanticTypes:   make([]string, 0, len(g.Hubs)),
		TableCount:      len(in.Tables),
		TaxonomyVersion: in.TaxonomyVersion,
	}
	for _, h := range g.Hubs {
		s.SemanticTypes = append(s.SemanticTypes, h.SemanticType)
	}
	for _, t := range in.Tables {
		if t.TruthType == models.TruthReality && t.RowCount > 0 {
			s.HasRealityData = true
		}
	}
	for _, cl := range in.Classifications {
		if cl.Classified() {
			s.ClassifiedColumns++
		} else {
			s.UnclassifiedColumns++
		}
	}
	return s
}
