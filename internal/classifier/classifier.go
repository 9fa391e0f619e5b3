// Package classifier assigns each column a semantic type from the taxonomy.
// A deterministic rule pass scores every column first; only ambiguous
// columns are escalated to an optional language model.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/models"
	"contextgraph/internal/taxonomy"
)

const (
	// AcceptThreshold is the rule confidence at which a column is
	// classified without escalation.
	AcceptThreshold = 0.8
	// CandidateThreshold is the lowest confidence that still counts.
	CandidateThreshold = 0.4
	// fallbackCap bounds the confidence of an ambiguous column that the
	// model could not resolve.
	fallbackCap = 0.5
)

// Options tunes language model fan-out. Zero values fall back to defaults.
type Options struct {
	Concurrency   int
	RatePerSecond float64
	Timeout       time.Duration
	MaxSamples    int
	MaxCandidates int
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = 20
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 5
	}
	return o
}

// Classifier assigns taxonomy semantic types to snapshot columns.
type Classifier struct {
	tax     *taxonomy.Taxonomy
	index   []signalIndex
	llm     LLM
	cache   *LabelCache
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
}

// New builds a classifier. llm and cache may be nil: without a model every
// ambiguous column falls back to its capped rule result.
func New(tax *taxonomy.Taxonomy, llm LLM, cache *LabelCache, opts Options, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache, _ = NewLabelCache(0, nil, logger)
	}
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	c := &Classifier{
		tax:     tax,
		llm:     llm,
		cache:   cache,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		opts:    opts,
		logger:  logger.With("component", "classifier"),
	}
	for _, e := range tax.Entries() {
		c.index = append(c.index, newSignalIndex(e))
	}
	return c
}

func (c *Classifier) Taxonomy() *taxonomy.Taxonomy {
	return c.tax
}

// HasLLM reports whether ambiguous columns can be escalated.
func (c *Classifier) HasLLM() bool {
	return c.llm != nil
}

type candidate struct {
	entry *taxonomy.Entry
	conf  float64
}

type pendingColumn struct {
	slot  int
	cands []candidate
	tied  []candidate
	req   Request
	key   string
}

// Classify returns one classification per column, tables ordered by name
// and columns in snapshot order. It never fails: model problems degrade the
// affected columns only.
func (c *Classifier) Classify(ctx context.Context, tables []models.Table) []models.Classification {
	ordered := make([]models.Table, len(tables))
	copy(ordered, tables)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	var (
		results   []models.Classification
		pending   []*pendingColumn
		hubCounts = make(map[string]int)
	)

	for _, t := range ordered {
		for _, col := range t.Columns {
			ref := models.ColumnRef{Table: t.Name, Column: col.Name}
			cands := c.score(t, col)
			slot := len(results)
			results = append(results, models.Classification{Ref: ref, Method: models.MethodRule})

			if len(cands) == 0 {
				continue
			}

			top := cands[0]
			tied := tiedWith(cands)
			if len(tied) == 1 {
				hubCounts[top.entry.ID]++
				if top.conf >= AcceptThreshold {
					results[slot] = classified(ref, top.entry.ID, top.conf, models.MethodRule, false)
					continue
				}
			}

			p := &pendingColumn{slot: slot, cands: cands, tied: tied}
			p.req = c.request(t, col, cands)
			p.key = cacheKey(c.tax.Version, p.req)
			pending = append(pending, p)
		}
	}

	if len(pending) == 0 {
		return results
	}

	answers := c.resolve(ctx, pending)
	for _, p := range pending {
		ref := results[p.slot].Ref
		if label, ok := answers[p.slot]; ok {
			results[p.slot] = fromAnswer(ref, label, p.cands)
			continue
		}
		results[p.slot] = c.fallback(ref, p, hubCounts)
	}
	return results
}

func (c *Classifier) score(t models.Table, col models.Column) []candidate {
	tokens := stemTokens(columnTokens(t.Name, col.Name))
	var cands []candidate
	for _, idx := range c.index {
		ns := idx.nameScore(tokens)
		if ns == 0 {
			continue
		}
		conf := round(combine(ns, valueScore(idx.entry, col.SampleValues)))
		if conf < CandidateThreshold {
			continue
		}
		cands = append(cands, candidate{entry: idx.entry, conf: conf})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].conf != cands[j].conf {
			return cands[i].conf > cands[j].conf
		}
		return cands[i].entry.ID < cands[j].entry.ID
	})
	return cands
}

func (c *Classifier) request(t models.Table, col models.Column, cands []candidate) Request {
	samples := col.SampleValues
	if len(samples) > c.opts.MaxSamples {
		samples = samples[:c.opts.MaxSamples]
	}
	if len(cands) > c.opts.MaxCandidates {
		cands = cands[:c.opts.MaxCandidates]
	}
	types := make([]models.SemanticType, 0, len(cands))
	for _, cd := range cands {
		types = append(types, cd.entry.SemanticType)
	}
	return Request{
		Table:      t.Name,
		Column:     col.Name,
		TruthType:  t.TruthType,
		Samples:    samples,
		Candidates: types,
	}
}

// fallback picks the best rule candidate when the model gave no answer.
func (c *Classifier) fallback(ref models.ColumnRef, p *pendingColumn, hubCounts map[string]int) models.Classification {
	pick := p.tied[0]
	if len(p.tied) > 1 {
		tied := append([]candidate(nil), p.tied...)
		sort.SliceStable(tied, func(i, j int) bool {
			ci, cj := hubCounts[tied[i].entry.ID], hubCounts[tied[j].entry.ID]
			if ci != cj {
				return ci < cj
			}
			return tied[i].entry.ID < tied[j].entry.ID
		})
		pick = tied[0]

		ids := make([]string, 0, len(tied))
		for _, cd := range tied {
			ids = append(ids, cd.entry.ID)
		}
		c.logger.Warn("resolved tie without model",
			"column", ref.String(),
			"candidates", ids,
			"semantic_type", pick.entry.ID,
			"error", apperrors.ErrAmbiguousTaxonomy,
		)
	}

	conf := pick.conf
	if conf < AcceptThreshold {
		conf = math.Min(conf, fallbackCap)
	}
	return classified(ref, pick.entry.ID, conf, models.MethodRule, true)
}

func fromAnswer(ref models.ColumnRef, label string, cands []candidate) models.Classification {
	if label == NoneLabel {
		return models.Classification{Ref: ref, Method: models.MethodLLM, Ambiguous: true}
	}
	conf := AcceptThreshold
	for _, cd := range cands {
		if cd.entry.ID == label {
			conf = math.Max(conf, cd.conf)
			break
		}
	}
	return classified(ref, label, conf, models.MethodLLM, true)
}

// resolve asks the model about every pending column not already cached.
// Calls run on a bounded pool with a context detached from the caller, so a
// cancelled run returns at once while in-flight calls still fill the cache.
func (c *Classifier) resolve(ctx context.Context, pending []*pendingColumn) map[int]string {
	var (
		mu      sync.Mutex
		answers = make(map[int]string, len(pending))
		misses  []*pendingColumn
	)

	for _, p := range pending {
		if label, ok := c.cache.Get(ctx, p.key); ok && c.validLabel(label, p.req) {
			answers[p.slot] = label
			continue
		}
		misses = append(misses, p)
	}
	if len(misses) == 0 {
		return answers
	}
	if c.llm == nil {
		c.logger.Debug("ambiguous columns left at rule confidence",
			"count", len(misses),
			"error", apperrors.ErrClassifierUnavailable,
		)
		return answers
	}

	detached := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range misses {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				label, err := c.ask(ctx, detached, p)
				if err != nil {
					c.logger.Warn("model classification failed",
						"table", p.req.Table,
						"column", p.req.Column,
						"error", err,
					)
					return nil
				}
				mu.Lock()
				answers[p.slot] = label
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Info("analysis cancelled, leaving unanswered columns at rule confidence")
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[int]string, len(answers))
	for k, v := range answers {
		out[k] = v
	}
	return out
}

func (c *Classifier) ask(ctx, detached context.Context, p *pendingColumn) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrClassifierUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(detached, c.opts.Timeout)
	defer cancel()

	label, err := c.llm.Classify(callCtx, p.req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrClassifierUnavailable, err)
	}
	if !c.validLabel(label, p.req) {
		return "", fmt.Errorf("%w: unexpected label %q", apperrors.ErrClassifierUnavailable, label)
	}

	c.cache.Set(callCtx, p.key, label)
	return label, nil
}

func (c *Classifier) validLabel(label string, req Request) bool {
	if label == NoneLabel {
		return true
	}
	for _, cd := range req.Candidates {
		if cd.ID == label {
			return true
		}
	}
	return false
}

func tiedWith(cands []candidate) []candidate {
	n := 1
	for n < len(cands) && cands[n].conf == cands[0].conf {
		n++
	}
	return cands[:n]
}

func classified(ref models.ColumnRef, typeID string, conf float64, method models.ClassificationMethod, ambiguous bool) models.Classification {
	id := typeID
	return models.Classification{
		Ref:          ref,
		SemanticType: &id,
		Confidence:   conf,
		Method:       method,
		Ambiguous:    ambiguous,
	}
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
