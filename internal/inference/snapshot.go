package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"contextgraph/internal/models"
)

// snapshot indexes a project's tables for lookups by column ref.
type snapshot struct {
	tables  map[string]models.Table
	columns map[models.ColumnRef]models.Column
}

func newSnapshot(tables []models.Table) snapshot {
	s := snapshot{
		tables:  make(map[string]models.Table, len(tables)),
		columns: make(map[models.ColumnRef]models.Column),
	}
	for _, t := range tables {
		s.tables[t.Name] = t
		for _, c := range t.Columns {
			s.columns[models.ColumnRef{Table: t.Name, Column: c.Name}] = c
		}
	}
	return s
}

func (s snapshot) column(ref models.ColumnRef) (models.Table, models.Column, bool) {
	t, ok := s.tables[ref.Table]
	if !ok {
		return models.Table{}, models.Column{}, false
	}
	c, ok := s.columns[ref]
	return t, c, ok
}

// normalize trims and upper-cases a value so "abc " and "ABC" compare equal.
func normalize(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// valueSet is the set of normalized, non-blank sample values of a column.
func valueSet(c models.Column) map[string]struct{} {
	set := make(map[string]struct{}, len(c.SampleValues))
	for _, v := range c.SampleValues {
		if n := normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fingerprint hashes the parts of a snapshot that influence analysis. Two
// snapshots with the same fingerprint produce the same graph.
func Fingerprint(tables []models.Table) string {
	ordered := make([]models.Table, len(tables))
	copy(ordered, tables)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}

	for _, t := range ordered {
		write("table", t.Name, string(t.TruthType), strconv.FormatInt(t.RowCount, 10))
		cols := make([]models.Column, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			write("column", c.Name, strconv.Itoa(c.Cardinality))
			write(sortedKeys(valueSet(c))...)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
