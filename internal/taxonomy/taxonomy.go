// Package taxonomy loads the closed, versioned list of semantic types plus
// user-supplied custom entries. Adding a type only requires data.
package taxonomy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"contextgraph/internal/models"
)

// Entry is a semantic type with its value rules compiled.
type Entry struct {
	models.SemanticType
	// Signals split into alternatives, lowercased: [["company","cmpy"],["code","cd"]].
	SignalGroups [][]string
	patterns     []*regexp.Regexp
	enum         map[string]struct{}
}

// HasValueRules reports whether the type declares any value-format rule.
func (e *Entry) HasValueRules() bool {
	return len(e.patterns) > 0 || len(e.enum) > 0
}

// MatchValue reports whether a single sample value fits the type's rules.
func (e *Entry) MatchValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || !e.HasValueRules() {
		return false
	}
	if r := e.Values; r != nil {
		if r.MinLength > 0 && len(v) < r.MinLength {
			return false
		}
		if r.MaxLength > 0 && len(v) > r.MaxLength {
			return false
		}
	}
	if _, ok := e.enum[strings.ToUpper(v)]; ok {
		return true
	}
	for _, p := range e.patterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}

// Taxonomy is an immutable, id-sorted set of entries.
type Taxonomy struct {
	Version string
	Custom  bool
	entries []*Entry
	byID    map[string]*Entry
}

func newTaxonomy(version string) *Taxonomy {
	return &Taxonomy{Version: version, byID: make(map[string]*Entry)}
}

// New builds a taxonomy directly from semantic types. Mostly used by tests.
func New(version string, types []models.SemanticType) (*Taxonomy, error) {
	t := newTaxonomy(version)
	for _, st := range types {
		if err := t.add(st, "embedded"); err != nil {
			return nil, err
		}
	}
	t.sort()
	return t, nil
}

func (t *Taxonomy) add(st models.SemanticType, source string) error {
	st.ID = strings.TrimSpace(st.ID)
	if st.ID == "" {
		return fmt.Errorf("semantic type without id")
	}
	if _, exists := t.byID[st.ID]; exists {
		return fmt.Errorf("semantic type %q already defined", st.ID)
	}
	if len(st.Signals) == 0 {
		return fmt.Errorf("semantic type %q has no signals", st.ID)
	}
	st.Source = source
	if st.Label == "" {
		st.Label = st.ID
	}

	entry := &Entry{SemanticType: st, enum: make(map[string]struct{})}
	for _, sig := range st.Signals {
		var alts []string
		for _, a := range strings.Split(sig, "|") {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				alts = append(alts, a)
			}
		}
		if len(alts) == 0 {
			return fmt.Errorf("semantic type %q has an empty signal", st.ID)
		}
		entry.SignalGroups = append(entry.SignalGroups, alts)
	}
	if st.Values != nil {
		for _, p := range st.Values.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("semantic type %q: invalid pattern %q: %w", st.ID, p, err)
			}
			entry.patterns = append(entry.patterns, re)
		}
		for _, v := range st.Values.Enum {
			entry.enum[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
		}
	}

	t.entries = append(t.entries, entry)
	t.byID[st.ID] = entry
	return nil
}

func (t *Taxonomy) sort() {
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].ID < t.entries[j].ID })
}

// Entries returns all entries ordered by id.
func (t *Taxonomy) Entries() []*Entry {
	return t.entries
}

func (t *Taxonomy) Get(id string) (*Entry, bool) {
	e, ok := t.byID[id]
	return e, ok
}

func (t *Taxonomy) Len() int {
	return len(t.entries)
}

// Types returns the plain semantic types, ordered by id.
func (t *Taxonomy) Types() []models.SemanticType {
	out := make([]models.SemanticType, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.SemanticType)
	}
	return out
}
