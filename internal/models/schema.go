package models

import (
	"time"

	"github.com/google/uuid"
)

// TruthType tags what a table represents: configured lookup values or
// observed transactional data.
type TruthType string

const (
	TruthConfiguration TruthType = "configuration"
	TruthReality       TruthType = "reality"
	TruthOther         TruthType = "other"
)

// ParseTruthType maps free-form tags to a TruthType, defaulting to other.
func ParseTruthType(s string) TruthType {
	switch TruthType(s) {
	case TruthConfiguration, TruthReality:
		return TruthType(s)
	case "config":
		return TruthConfiguration
	default:
		return TruthOther
	}
}

type Column struct {
	Name         string   `json:"name" yaml:"name"`
	DataType     string   `json:"data_type,omitempty" yaml:"data_type"`
	Cardinality  int      `json:"cardinality" yaml:"cardinality"`
	SampleValues []string `json:"sample_values,omitempty" yaml:"sample_values"`
}

// HasFullSample reports whether the sample holds every distinct value.
func (c Column) HasFullSample() bool {
	return len(c.SampleValues) >= c.Cardinality
}

type Table struct {
	ProjectID  uuid.UUID `json:"project_id" yaml:"-"`
	Name       string    `json:"name" yaml:"name"`
	TruthType  TruthType `json:"truth_type" yaml:"truth_type"`
	RowCount   int64     `json:"row_count" yaml:"row_count"`
	UploadedAt time.Time `json:"uploaded_at" yaml:"uploaded_at"`
	Columns    []Column  `json:"columns" yaml:"columns"`
}

// ColumnRef addresses one column within a project snapshot.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (r ColumnRef) String() string {
	return r.Table + "." + r.Column
}

// Less orders refs by table then column.
func (r ColumnRef) Less(o ColumnRef) bool {
	if r.Table != o.Table {
		return r.Table < o.Table
	}
	return r.Column < o.Column
}
