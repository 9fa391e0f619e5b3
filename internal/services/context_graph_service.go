package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/classifier"
	"contextgraph/internal/inference"
	"contextgraph/internal/models"

	"github.com/google/uuid"
)

// conflictWindow is how close two writes by different actors must be to
// count as a concurrent edit.
const conflictWindow = 2 * time.Second

type SnapshotProvider interface {
	GetTables(ctx context.Context, projectID uuid.UUID) ([]models.Table, error)
}

type OverrideStore interface {
	ListOverrides(ctx context.Context, projectID uuid.UUID) ([]models.Override, error)
	GetOverride(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey) (*models.Override, error)
	SaveOverride(ctx context.Context, o *models.Override) error
	ListHubPins(ctx context.Context, projectID uuid.UUID) ([]models.HubPin, error)
	SaveHubPin(ctx context.Context, p *models.HubPin) error
	DeleteHubPin(ctx context.Context, projectID uuid.UUID, semanticType string) (bool, error)
}

// GraphCache keeps the last computed graph per project.
type GraphCache interface {
	GetGraph(ctx context.Context, projectID string) (*models.Graph, error)
	SetGraph(ctx context.Context, g *models.Graph) error
	DeleteGraph(ctx context.Context, projectID string) error
}

type ContextGraphOptions struct {
	ExactSetThreshold int
	MaxGapValues      int
}

type ContextGraphService struct {
	snapshots  SnapshotProvider
	overrides  OverrideStore
	graphs     GraphCache
	classifier *classifier.Classifier
	opts       ContextGraphOptions
	logger     *slog.Logger
	locks      projectLocks
	now        func() time.Time
}

// NewContextGraphService creates a new ContextGraphService
func NewContextGraphService(
	snapshots SnapshotProvider,
	overrides OverrideStore,
	graphs GraphCache,
	cls *classifier.Classifier,
	opts ContextGraphOptions,
	logger *slog.Logger,
) *ContextGraphService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ExactSetThreshold <= 0 {
		opts.ExactSetThreshold = inference.DefaultExactSetThreshold
	}
	if opts.MaxGapValues <= 0 {
		opts.MaxGapValues = inference.DefaultMaxGapValues
	}
	return &ContextGraphService{
		snapshots:  snapshots,
		overrides:  overrides,
		graphs:     graphs,
		classifier: cls,
		opts:       opts,
		logger:     logger.With("component", "context_graph"),
		locks:      projectLocks{locks: make(map[uuid.UUID]*sync.Mutex), gens: make(map[uuid.UUID]uint64)},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Analyze runs the full pipeline for a project and caches the result as the
// last known graph. Only a snapshot failure aborts the run.
//
// Classification runs without the project lock. When an override or pin is
// written meanwhile, the graph is reconciled again under the lock against the
// stored overrides before it replaces the cached one.
func (s *ContextGraphService) Analyze(ctx context.Context, projectID uuid.UUID) (*models.Graph, error) {
	start := time.Now()
	tables, err := s.snapshots.GetTables(ctx, projectID)
	if err != nil {
		return nil, apperrors.NewSnapshotError(projectID.String(), err)
	}

	gen := s.locks.generation(projectID)
	set, err := s.overrideSet(ctx, projectID)
	if err != nil {
		return nil, err
	}

	in := inference.Input{
		ProjectID:         projectID.String(),
		Tables:            tables,
		Classifications:   s.classifier.Classify(ctx, tables),
		Overrides:         set,
		TaxonomyVersion:   s.classifier.Taxonomy().Version,
		ExactSetThreshold: s.opts.ExactSetThreshold,
		MaxGapValues:      s.opts.MaxGapValues,
	}
	graph := inference.Analyze(in)

	unlock := s.locks.lock(projectID)
	defer unlock()

	if s.locks.generation(projectID) != gen {
		if in.Overrides, err = s.overrideSet(ctx, projectID); err != nil {
			return nil, err
		}
		graph = inference.Analyze(in)
		s.logger.Debug("overrides changed during analysis, reconciled again", "project_id", projectID)
	}
	graph.GeneratedAt = s.now()

	if len(tables) == 0 {
		s.logger.Info("analysis skipped", "project_id", projectID, "reason", apperrors.ErrNoData)
	} else {
		s.logger.Info("analysis complete",
			"project_id", projectID,
			"tables", len(tables),
			"hubs", graph.Summary.HubCount,
			"relationships", graph.Summary.SpokeCount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if err := s.graphs.SetGraph(ctx, &graph); err != nil {
		s.logger.Warn("failed to cache graph", "project_id", projectID, "error", err)
	}
	return &graph, nil
}

// LastKnown returns the cached graph without recomputing.
func (s *ContextGraphService) LastKnown(ctx context.Context, projectID uuid.UUID) (*models.Graph, error) {
	g, err := s.graphs.GetGraph(ctx, projectID.String())
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("no analysis for project %s: %w", projectID, apperrors.ErrNotFound)
	}
	return g, nil
}

// Relationships returns the relationships of the last known graph.
func (s *ContextGraphService) Relationships(ctx context.Context, projectID uuid.UUID) ([]models.Relationship, error) {
	g, err := s.LastKnown(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return g.Relationships, nil
}

// Confirm records a confirmation or rejection for a relationship.
func (s *ContextGraphService) Confirm(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey, confirmed bool, actor string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	status := models.OverrideRejected
	if confirmed {
		status = models.OverrideConfirmed
	}
	tables, err := s.snapshots.GetTables(ctx, projectID)
	if err != nil {
		s.logger.Warn("snapshot unavailable, cached gaps not refreshed", "project_id", projectID, "error", err)
		tables = nil
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	o := &models.Override{ProjectID: projectID, Key: key, Status: status, UpdatedBy: actor, UpdatedAt: s.now()}
	if err := s.write(ctx, o); err != nil {
		return err
	}

	s.patchGraph(ctx, projectID, tables, func(g *models.Graph) {
		for i := range g.Relationships {
			if g.Relationships[i].RelationshipKey == key {
				g.Relationships[i].Status = statusFor(status)
			}
		}
	})
	return nil
}

// CreateManual declares a relationship the detector did not find. Both
// columns must exist in the current snapshot.
func (s *ContextGraphService) CreateManual(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey, actor string) (*models.Relationship, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	tables, err := s.snapshots.GetTables(ctx, projectID)
	if err != nil {
		return nil, apperrors.NewSnapshotError(projectID.String(), err)
	}

	in := inference.Input{
		ProjectID:         projectID.String(),
		Tables:            tables,
		ExactSetThreshold: s.opts.ExactSetThreshold,
	}
	var hubs []models.Hub
	if g, _ := s.graphs.GetGraph(ctx, projectID.String()); g != nil {
		hubs = g.Hubs
		in.Classifications = g.Classifications
	} else {
		in.Classifications = s.classifier.Classify(ctx, tables)
	}

	o := &models.Override{
		ProjectID: projectID,
		Key:       key,
		Status:    models.OverrideConfirmed,
		Manual:    true,
		UpdatedBy: actor,
		UpdatedAt: s.now(),
	}
	rel, ok := inference.ManualRelationship(*o, in, hubs)
	if !ok {
		return nil, fmt.Errorf("column %s or %s: %w", key.Source(), key.Target(), apperrors.ErrNotFound)
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	if err := s.write(ctx, o); err != nil {
		return nil, err
	}

	s.patchGraph(ctx, projectID, tables, func(g *models.Graph) {
		for i := range g.Relationships {
			if g.Relationships[i].RelationshipKey == key {
				g.Relationships[i] = rel
				return
			}
		}
		g.Relationships = append(g.Relationships, rel)
		inference.SortRelationships(g.Relationships)
	})
	return &rel, nil
}

// Delete hides a relationship until the schema snapshot changes.
func (s *ContextGraphService) Delete(ctx context.Context, projectID uuid.UUID, key models.RelationshipKey, actor string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	tables, err := s.snapshots.GetTables(ctx, projectID)
	if err != nil {
		return apperrors.NewSnapshotError(projectID.String(), err)
	}
	fingerprint := inference.Fingerprint(tables)

	unlock := s.locks.lock(projectID)
	defer unlock()

	o := &models.Override{
		ProjectID:           projectID,
		Key:                 key,
		Status:              models.OverrideDeleted,
		SnapshotFingerprint: fingerprint,
		UpdatedBy:           actor,
		UpdatedAt:           s.now(),
	}
	if err := s.write(ctx, o); err != nil {
		return err
	}

	s.patchGraph(ctx, projectID, tables, func(g *models.Graph) {
		kept := g.Relationships[:0]
		for _, r := range g.Relationships {
			if r.RelationshipKey != key {
				kept = append(kept, r)
			}
		}
		g.Relationships = kept
	})
	return nil
}

// PinHub forces a column to be the hub for a semantic type on the next
// analysis.
func (s *ContextGraphService) PinHub(ctx context.Context, projectID uuid.UUID, pin models.HubPin, actor string) (*models.HubPin, error) {
	if _, ok := s.classifier.Taxonomy().Get(pin.SemanticType); !ok {
		return nil, fmt.Errorf("unknown semantic type %q: %w", pin.SemanticType, apperrors.ErrInvalidKey)
	}
	tables, err := s.snapshots.GetTables(ctx, projectID)
	if err != nil {
		return nil, apperrors.NewSnapshotError(projectID.String(), err)
	}
	if !hasColumn(tables, pin.Ref()) {
		return nil, fmt.Errorf("column %s: %w", pin.Ref(), apperrors.ErrNotFound)
	}

	unlock := s.locks.lock(projectID)
	defer unlock()

	pin.ProjectID = projectID
	pin.UpdatedBy = actor
	pin.UpdatedAt = s.now()
	pin.Prepare()
	if err := s.overrides.SaveHubPin(ctx, &pin); err != nil {
		return nil, err
	}
	s.locks.bump(projectID)
	s.logger.Info("hub pinned", "project_id", projectID, "semantic_type", pin.SemanticType, "column", pin.Ref().String(), "actor", pin.UpdatedBy)
	return &pin, nil
}

func (s *ContextGraphService) UnpinHub(ctx context.Context, projectID uuid.UUID, semanticType string) error {
	unlock := s.locks.lock(projectID)
	defer unlock()

	removed, err := s.overrides.DeleteHubPin(ctx, projectID, semanticType)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("hub pin %q: %w", semanticType, apperrors.ErrNotFound)
	}
	s.locks.bump(projectID)
	return nil
}

func (s *ContextGraphService) HubPins(ctx context.Context, projectID uuid.UUID) ([]models.HubPin, error) {
	return s.overrides.ListHubPins(ctx, projectID)
}

func (s *ContextGraphService) Overrides(ctx context.Context, projectID uuid.UUID) ([]models.Override, error) {
	return s.overrides.ListOverrides(ctx, projectID)
}

// JoinPath finds the shortest join chain between two tables in the last
// known graph, analyzing first when nothing is cached.
func (s *ContextGraphService) JoinPath(ctx context.Context, projectID uuid.UUID, from, to string) (*models.JoinPath, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("from and to tables are required: %w", apperrors.ErrInvalidKey)
	}
	g, err := s.graphs.GetGraph(ctx, projectID.String())
	if err != nil || g == nil {
		g, err = s.Analyze(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}
	path, err := inference.FindJoinPath(g.Relationships, from, to)
	if err != nil {
		return nil, err
	}
	return &path, nil
}

// SemanticTypes lists the loaded taxonomy.
func (s *ContextGraphService) SemanticTypes() []models.SemanticType {
	return s.classifier.Taxonomy().Types()
}

func (s *ContextGraphService) TaxonomyVersion() string {
	return s.classifier.Taxonomy().Version
}

func (s *ContextGraphService) overrideSet(ctx context.Context, projectID uuid.UUID) (models.OverrideSet, error) {
	overrides, err := s.overrides.ListOverrides(ctx, projectID)
	if err != nil {
		return models.OverrideSet{}, fmt.Errorf("failed to load overrides: %w", err)
	}
	pins, err := s.overrides.ListHubPins(ctx, projectID)
	if err != nil {
		return models.OverrideSet{}, fmt.Errorf("failed to load hub pins: %w", err)
	}
	return models.NewOverrideSet(overrides, pins), nil
}

// write saves an override. The caller holds the project lock. Concurrent edits are resolved by the store (last
// write wins) and only logged here.
func (s *ContextGraphService) write(ctx context.Context, o *models.Override) error {
	prev, err := s.overrides.GetOverride(ctx, o.ProjectID, o.Key)
	if err != nil {
		return err
	}
	o.Prepare()
	if prev != nil {
		o.ID = prev.ID
		o.CreatedAt = prev.CreatedAt
		o.Manual = o.Manual || prev.Manual
		if isConflict(prev, o) {
			s.logger.Warn("override conflict",
				"project_id", o.ProjectID,
				"key", o.Key.String(),
				"previous_actor", prev.UpdatedBy,
				"actor", o.UpdatedBy,
				"error", apperrors.ErrOverrideConflict,
			)
		}
	}
	if err := s.overrides.SaveOverride(ctx, o); err != nil {
		return err
	}
	s.locks.bump(o.ProjectID)
	s.logger.Info("override saved", "project_id", o.ProjectID, "key", o.Key.String(), "status", o.Status, "actor", o.UpdatedBy)
	return nil
}

func isConflict(prev, next *models.Override) bool {
	if prev.UpdatedAt.After(next.UpdatedAt) {
		return true
	}
	return prev.UpdatedBy != next.UpdatedBy && next.UpdatedAt.Sub(prev.UpdatedAt) < conflictWindow
}

// patchGraph applies a mutation to the cached graph so reads reflect it
// before the next analysis. Gaps are recomputed when tables is the snapshot
// the cached graph was built from; otherwise they wait for the next analysis.
func (s *ContextGraphService) patchGraph(ctx context.Context, projectID uuid.UUID, tables []models.Table, fn func(g *models.Graph)) {
	g, err := s.graphs.GetGraph(ctx, projectID.String())
	if err != nil || g == nil {
		return
	}
	g.Relationships = append([]models.Relationship(nil), g.Relationships...)
	fn(g)

	g.Summary.SpokeCount = len(g.Relationships)
	g.Summary.SemanticTypes = make([]string, 0, len(g.Hubs))
	for _, h := range g.Hubs {
		g.Summary.SemanticTypes = append(g.Summary.SemanticTypes, h.SemanticType)
	}
	if tables != nil && inference.Fingerprint(tables) == g.Summary.SnapshotFingerprint {
		g.Gaps = make([]models.GapSummary, 0, len(g.Hubs))
		for _, h := range g.Hubs {
			g.Gaps = append(g.Gaps, inference.AnalyzeGap(h, g.Relationships, tables, s.opts.MaxGapValues))
		}
	}

	if err := s.graphs.SetGraph(ctx, g); err != nil {
		s.logger.Warn("failed to update cached graph, dropping it", "project_id", projectID, "error", err)
		_ = s.graphs.DeleteGraph(ctx, projectID.String())
	}
}

func validateKey(key models.RelationshipKey) error {
	if strings.TrimSpace(key.SourceTable) == "" || strings.TrimSpace(key.SourceColumn) == "" ||
		strings.TrimSpace(key.TargetTable) == "" || strings.TrimSpace(key.TargetColumn) == "" {
		return apperrors.ErrInvalidKey
	}
	if key.Source() == key.Target() {
		return fmt.Errorf("source and target are the same column: %w", apperrors.ErrInvalidKey)
	}
	return nil
}

func hasColumn(tables []models.Table, ref models.ColumnRef) bool {
	for _, t := range tables {
		if t.Name != ref.Table {
			continue
		}
		for _, c := range t.Columns {
			if c.Name == ref.Column {
				return true
			}
		}
	}
	return false
}

func statusFor(s models.OverrideStatus) models.RelationshipStatus {
	switch s {
	case models.OverrideConfirmed:
		return models.StatusConfirmed
	case models.OverrideRejected:
		return models.StatusRejected
	}
	return models.StatusPending
}

// IsClientError reports whether err was caused by bad input.
func IsClientError(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidKey)
}

// projectLocks serializes writes per project and counts them, so an
// analysis can tell whether overrides changed while it ran.
type projectLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
	gens  map[uuid.UUID]uint64
}

func (l *projectLocks) lock(projectID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (l *projectLocks) generation(projectID uuid.UUID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gens[projectID]
}

func (l *projectLocks) bump(projectID uuid.UUID) {
	l.mu.Lock()
	l.gens[projectID]++
	l.mu.Unlock()
}
