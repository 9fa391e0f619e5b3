package classifier

import (
	"strings"

	"contextgraph/internal/taxonomy"
)

const (
	nameWeight  = 0.6
	valueWeight = 0.4

	exactMatch     = 1.0
	substringMatch = 0.5
	minSubstring   = 3
)

// signalIndex is a taxonomy entry with its signal alternatives stemmed once.
type signalIndex struct {
	entry  *taxonomy.Entry
	groups [][]signal
}

type signal struct {
	raw     string
	stemmed string
}

func newSignalIndex(e *taxonomy.Entry) signalIndex {
	idx := signalIndex{entry: e}
	for _, alts := range e.SignalGroups {
		group := make([]signal, 0, len(alts))
		for _, a := range alts {
			group = append(group, signal{raw: a, stemmed: stem(a)})
		}
		idx.groups = append(idx.groups, group)
	}
	return idx
}

type token struct {
	raw     string
	stemmed string
}

func stemTokens(tokens []string) []token {
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, token{raw: t, stemmed: stem(t)})
	}
	return out
}

// nameScore is the mean, over the type's signal groups, of the best match
// between any alternative and any column token.
func (idx signalIndex) nameScore(tokens []token) float64 {
	if len(idx.groups) == 0 {
		return 0
	}
	var total float64
	for _, group := range idx.groups {
		total += groupScore(group, tokens)
	}
	return total / float64(len(idx.groups))
}

func groupScore(group []signal, tokens []token) float64 {
	best := 0.0
	for _, s := range group {
		for _, t := range tokens {
			if t.raw == s.raw || t.stemmed == s.stemmed {
				return exactMatch
			}
			if contains(t.raw, s.raw) || contains(s.raw, t.raw) {
				best = substringMatch
			}
		}
	}
	return best
}

func contains(haystack, needle string) bool {
	return len(needle) >= minSubstring && len(haystack) > len(needle) && strings.Contains(haystack, needle)
}

// valueScore is the fraction of non-blank samples that fit the type's value
// rules, or 0 when the type declares none.
func valueScore(e *taxonomy.Entry, samples []string) float64 {
	if !e.HasValueRules() {
		return 0
	}
	var seen, matched int
	for _, v := range samples {
		if strings.TrimSpace(v) == "" {
			continue
		}
		seen++
		if e.MatchValue(v) {
			matched++
		}
	}
	if seen == 0 {
		return 0
	}
	return float64(matched) / float64(seen)
}

func combine(name, value float64) float64 {
	return nameWeight*name + valueWeight*value
}
