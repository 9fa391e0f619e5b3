package models

// SemanticType is a canonical entity category used to match columns across
// unrelated tables. Types are data: they come from the embedded taxonomy or
// from a custom taxonomy file.
type SemanticType struct {
	ID          string      `json:"id" yaml:"id"`
	Label       string      `json:"label" yaml:"label"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Signals     []string    `json:"signals" yaml:"signals"`
	Values      *ValueRules `json:"values,omitempty" yaml:"values"`
	Source      string      `json:"source" yaml:"-"` // "embedded" or "custom"
}

// ValueRules describe the expected shape of a type's values. A sample value
// matches when it satisfies any pattern or is in the enumeration, and its
// length is within bounds.
type ValueRules struct {
	Patterns  []string `json:"patterns,omitempty" yaml:"patterns"`
	Enum      []string `json:"enum,omitempty" yaml:"enum"`
	MinLength int      `json:"min_length,omitempty" yaml:"min_length"`
	MaxLength int      `json:"max_length,omitempty" yaml:"max_length"`
}

// ClassificationMethod records how a column got its semantic type.
type ClassificationMethod string

const (
	MethodRule     ClassificationMethod = "rule"
	MethodLLM      ClassificationMethod = "llm"
	MethodOverride ClassificationMethod = "override"
	MethodManual   ClassificationMethod = "manual"
)

// Classification is the result for one column. A nil SemanticType means the
// column is unclassified and takes no part in hub or spoke computation.
type Classification struct {
	Ref          ColumnRef            `json:"ref"`
	SemanticType *string              `json:"semantic_type"`
	Confidence   float64              `json:"confidence"`
	Method       ClassificationMethod `json:"method"`
	Ambiguous    bool                 `json:"ambiguous,omitempty"`
}

// Classified reports whether the column carries a semantic type.
func (c Classification) Classified() bool {
	return c.SemanticType != nil
}

// TypeID returns the semantic type id, or "" when unclassified.
func (c Classification) TypeID() string {
	if c.SemanticType == nil {
		return ""
	}
	return *c.SemanticType
}
