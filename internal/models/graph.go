package models

import "time"

type HubMethod string

const (
	HubHeuristic HubMethod = "heuristic"
	HubPinned    HubMethod = "pinned"
)

// Hub is the single authoritative column for a semantic type.
type Hub struct {
	SemanticType string    `json:"semantic_type"`
	Table        string    `json:"table"`
	Column       string    `json:"column"`
	TruthType    TruthType `json:"truth_type"`
	Cardinality  int       `json:"cardinality"`
	Confidence   float64   `json:"confidence"`
	Method       HubMethod `json:"method"`
}

func (h Hub) Ref() ColumnRef {
	return ColumnRef{Table: h.Table, Column: h.Column}
}

type RelationshipStatus string

const (
	StatusPending   RelationshipStatus = "pending"
	StatusConfirmed RelationshipStatus = "confirmed"
	StatusRejected  RelationshipStatus = "rejected"
)

// RelationshipKey identifies a spoke → hub pair within a project.
type RelationshipKey struct {
	SourceTable  string `json:"source_table" form:"source_table" binding:"required"`
	SourceColumn string `json:"source_column" form:"source_column" binding:"required"`
	TargetTable  string `json:"target_table" form:"target_table" binding:"required"`
	TargetColumn string `json:"target_column" form:"target_column" binding:"required"`
}

func (k RelationshipKey) Source() ColumnRef {
	return ColumnRef{Table: k.SourceTable, Column: k.SourceColumn}
}

func (k RelationshipKey) Target() ColumnRef {
	return ColumnRef{Table: k.TargetTable, Column: k.TargetColumn}
}

func (k RelationshipKey) String() string {
	return k.Source().String() + "->" + k.Target().String()
}

// Relationship is a spoke column related to a hub by value overlap.
type Relationship struct {
	RelationshipKey
	SemanticType     string               `json:"semantic_type"`
	SourceTruthType  TruthType            `json:"source_truth_type"`
	CoveragePct      float64              `json:"coverage_pct"`
	Estimated        bool                 `json:"estimated"`
	IsValidFK        bool                 `json:"is_valid_fk"`
	SpokeCardinality int                  `json:"spoke_cardinality"`
	HubCardinality   int                  `json:"hub_cardinality"`
	Confidence       float64              `json:"confidence"`
	Status           RelationshipStatus   `json:"status"`
	Method           ClassificationMethod `json:"method"`
}

// GapSummary is the configured-vs-used delta for one hub. UsedTotal and
// UnusedCount are nil while AwaitingReality is set.
type GapSummary struct {
	SemanticType       string   `json:"semantic_type"`
	HubTable           string   `json:"hub_table"`
	HubColumn          string   `json:"hub_column"`
	ConfiguredTotal    int      `json:"configured_total"`
	UsedTotal          *int     `json:"used_total,omitempty"`
	UnusedCount        *int     `json:"unused_count,omitempty"`
	UnconfiguredCount  int      `json:"unconfigured_count"`
	UnusedValues       []string `json:"unused_values,omitempty"`
	UnconfiguredValues []string `json:"unconfigured_values,omitempty"`
	AwaitingReality    bool     `json:"awaiting_reality"`
	Estimated          bool     `json:"estimated"`
}

type GraphSummary struct {
	HubCount            int      `json:"hub_count"`
	SpokeCount          int      `json:"spoke_count"`
	SemanticTypes       []string `json:"semantic_types"`
	HasRealityData      bool     `json:"has_reality_data"`
	TableCount          int      `json:"table_count"`
	ClassifiedColumns   int      `json:"classified_columns"`
	UnclassifiedColumns int      `json:"unclassified_columns"`
	SnapshotFingerprint string   `json:"snapshot_fingerprint"`
	TaxonomyVersion     string   `json:"taxonomy_version"`
	Message             string   `json:"message,omitempty"`
}

// Graph is the full analysis output for one project.
type Graph struct {
	ProjectID       string           `json:"project_id"`
	Hubs            []Hub            `json:"hubs"`
	Relationships   []Relationship   `json:"relationships"`
	Gaps            []GapSummary     `json:"gaps"`
	Classifications []Classification `json:"classifications,omitempty"`
	Summary         GraphSummary     `json:"summary"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// JoinStep is one equality join between two tables.
type JoinStep struct {
	FromTable    string `json:"from_table"`
	FromColumn   string `json:"from_column"`
	ToTable      string `json:"to_table"`
	ToColumn     string `json:"to_column"`
	SemanticType string `json:"semantic_type"`
}

// JoinPath chains joins from one table to another through hub/spoke edges.
type JoinPath struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Steps []JoinStep `json:"steps"`
}
