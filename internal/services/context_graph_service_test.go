package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/classifier"
	"contextgraph/internal/database"
	"contextgraph/internal/logging"
	"contextgraph/internal/models"
	"contextgraph/internal/repositories"
	"contextgraph/internal/taxonomy"
)

var earnKey = models.RelationshipKey{
	SourceTable: "payroll_lines", SourceColumn: "earn_code",
	TargetTable: "earnings_codes", TargetColumn: "code",
}

func payrollTables(rows int64) []models.Table {
	return []models.Table{
		{
			Name:       "earnings_codes",
			TruthType:  models.TruthConfiguration,
			RowCount:   4,
			UploadedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Columns: []models.Column{
				{Name: "code", Cardinality: 4, SampleValues: []string{"REG", "OT", "HOL", "VAC"}},
			},
		},
		{
			Name:       "payroll_lines",
			TruthType:  models.TruthReality,
			RowCount:   rows,
			UploadedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Columns: []models.Column{
				{Name: "earn_code", Cardinality: 2, SampleValues: []string{"REG", "OT"}},
				{Name: "hours", Cardinality: 2, SampleValues: []string{"8", "40"}},
			},
		},
	}
}

type fixture struct {
	svc       *ContextGraphService
	snapshots *repositories.StaticSnapshotProvider
	store     *repositories.SQLiteOverrideRepository
	project   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test wrap the override store the service sees.
func newFixtureWith(t *testing.T, wrap func(OverrideStore) OverrideStore) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "overrides.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tax, err := taxonomy.NewLoader().Load()
	require.NoError(t, err)
	graphs, err := repositories.NewMemoryGraphCache(8)
	require.NoError(t, err)

	project := uuid.New()
	snapshots := &repositories.StaticSnapshotProvider{
		Tables: map[uuid.UUID][]models.Table{project: payrollTables(100)},
	}
	store := repositories.NewSQLiteOverrideRepository(db)
	cls := classifier.New(tax, nil, nil, classifier.Options{}, logging.Discard())

	var overrides OverrideStore = store
	if wrap != nil {
		overrides = wrap(store)
	}

	return &fixture{
		svc:       NewContextGraphService(snapshots, overrides, graphs, cls, ContextGraphOptions{}, logging.Discard()),
		snapshots: snapshots,
		store:     store,
		project:   project,
	}
}

func TestAnalyzeCachesLastKnownGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LastKnown(ctx, f.project)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	assert.False(t, g.GeneratedAt.IsZero())
	require.Len(t, g.Relationships, 1)
	assert.Equal(t, earnKey, g.Relationships[0].RelationshipKey)
	assert.Equal(t, models.StatusPending, g.Relationships[0].Status)

	rels, err := f.svc.Relationships(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, g.Relationships, rels)
}

func TestAnalyzeWithoutTables(t *testing.T) {
	f := newFixture(t)
	g, err := f.svc.Analyze(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, g.Hubs)
	assert.Equal(t, apperrors.ErrNoData.Error(), g.Summary.Message)
}

func TestAnalyzeSnapshotFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.snapshots.Err = errors.New("connection refused")

	_, err := f.svc.Analyze(context.Background(), f.project)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	var snapErr *apperrors.SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, f.project.String(), snapErr.ProjectID)
}

func TestConfirmAndRejectSurviveReanalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)

	require.NoError(t, f.svc.Confirm(ctx, f.project, earnKey, false, "alice"))
	rels, err := f.svc.Relationships(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rels[0].Status)

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, g.Relationships[0].Status)

	require.NoError(t, f.svc.Confirm(ctx, f.project, earnKey, true, "alice"))
	g, err = f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, g.Relationships[0].Status)
}

func TestConfirmRejectsInvalidKey(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Confirm(context.Background(), f.project, models.RelationshipKey{SourceTable: "a"}, true, "alice")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
	assert.True(t, IsClientError(err))
}

func TestDeleteHoldsUntilSnapshotChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.project, earnKey, "alice"))
	rels, err := f.svc.Relationships(ctx, f.project)
	require.NoError(t, err)
	assert.Empty(t, rels)

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	assert.Empty(t, g.Relationships)

	f.snapshots.Tables[f.project] = payrollTables(250)
	g, err = f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, g.Relationships, 1)
	assert.Equal(t, models.StatusPending, g.Relationships[0].Status)
}

func TestCreateManualRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)

	key := models.RelationshipKey{
		SourceTable: "payroll_lines", SourceColumn: "hours",
		TargetTable: "earnings_codes", TargetColumn: "code",
	}
	rel, err := f.svc.CreateManual(ctx, f.project, key, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rel.Confidence)
	assert.Equal(t, models.MethodManual, rel.Method)
	assert.Equal(t, models.StatusConfirmed, rel.Status)
	assert.Equal(t, "earnings_code", rel.SemanticType)
	assert.False(t, rel.IsValidFK)

	rels, err := f.svc.Relationships(ctx, f.project)
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, g.Relationships, 2)
	assert.Equal(t, 2, g.Summary.SpokeCount)

	o, err := f.store.GetOverride(ctx, f.project, key)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.Manual)
	assert.Equal(t, "alice", o.UpdatedBy)
}

func TestCreateManualUnknownColumn(t *testing.T) {
	f := newFixture(t)
	key := models.RelationshipKey{
		SourceTable: "payroll_lines", SourceColumn: "missing",
		TargetTable: "earnings_codes", TargetColumn: "code",
	}
	_, err := f.svc.CreateManual(context.Background(), f.project, key, "alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPinAndUnpinHub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pin, err := f.svc.PinHub(ctx, f.project, models.HubPin{
		SemanticType: "earnings_code", Table: "payroll_lines", Column: "earn_code",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", pin.UpdatedBy)

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, g.Hubs, 1)
	assert.Equal(t, models.HubPinned, g.Hubs[0].Method)
	assert.Equal(t, "payroll_lines", g.Hubs[0].Table)

	require.NoError(t, f.svc.UnpinHub(ctx, f.project, "earnings_code"))
	assert.ErrorIs(t, f.svc.UnpinHub(ctx, f.project, "earnings_code"), apperrors.ErrNotFound)

	g, err = f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, "earnings_codes", g.Hubs[0].Table)
}

func TestPinHubValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PinHub(ctx, f.project, models.HubPin{SemanticType: "nope", Table: "payroll_lines", Column: "earn_code"}, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)

	_, err = f.svc.PinHub(ctx, f.project, models.HubPin{SemanticType: "earnings_code", Table: "payroll_lines", Column: "nope"}, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJoinPathAnalyzesOnDemand(t *testing.T) {
	f := newFixture(t)
	path, err := f.svc.JoinPath(context.Background(), f.project, "payroll_lines", "earnings_codes")
	require.NoError(t, err)
	require.Len(t, path.Steps, 1)
	assert.Equal(t, "earn_code", path.Steps[0].FromColumn)
	assert.Equal(t, "code", path.Steps[0].ToColumn)

	_, err = f.svc.JoinPath(context.Background(), f.project, "payroll_lines", "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentOverridesLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.svc.Confirm(ctx, f.project, earnKey, i%2 == 0, fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()

	overrides, err := f.svc.Overrides(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Contains(t, []models.OverrideStatus{models.OverrideConfirmed, models.OverrideRejected}, overrides[0].Status)
}

// pausingStore holds one ListHubPins call until released, leaving an
// analysis parked after it has read the relationship overrides.
type pausingStore struct {
	OverrideStore
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListHubPins(ctx context.Context, projectID uuid.UUID) ([]models.HubPin, error) {
	if p.armed.CompareAndSwap(true, false) {
		close(p.paused)
		<-p.release
	}
	return p.OverrideStore.ListHubPins(ctx, projectID)
}

func TestAnalyzeKeepsOverridesWrittenWhileRunning(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ctx context.Context, f *fixture) error
		check  func(t *testing.T, rels []models.Relationship)
	}{
		{
			name: "confirm",
			mutate: func(ctx context.Context, f *fixture) error {
				return f.svc.Confirm(ctx, f.project, earnKey, true, "alice")
			},
			check: func(t *testing.T, rels []models.Relationship) {
				require.Len(t, rels, 1)
				assert.Equal(t, models.StatusConfirmed, rels[0].Status)
			},
		},
		{
			name: "delete",
			mutate: func(ctx context.Context, f *fixture) error {
				return f.svc.Delete(ctx, f.project, earnKey, "alice")
			},
			check: func(t *testing.T, rels []models.Relationship) {
				assert.Empty(t, rels)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &pausingStore{paused: make(chan struct{}), release: make(chan struct{})}
			f := newFixtureWith(t, func(s OverrideStore) OverrideStore {
				store.OverrideStore = s
				return store
			})
			ctx := context.Background()

			_, err := f.svc.Analyze(ctx, f.project)
			require.NoError(t, err)

			type result struct {
				graph *models.Graph
				err   error
			}
			done := make(chan result, 1)
			store.armed.Store(true)
			go func() {
				g, err := f.svc.Analyze(ctx, f.project)
				done <- result{graph: g, err: err}
			}()

			select {
			case <-store.paused:
			case <-time.After(5 * time.Second):
				t.Fatal("analysis never reached the override store")
			}

			require.NoError(t, tt.mutate(ctx, f))
			rels, err := f.svc.Relationships(ctx, f.project)
			require.NoError(t, err)
			tt.check(t, rels)

			close(store.release)
			var res result
			select {
			case res = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("analysis did not finish")
			}
			require.NoError(t, res.err)
			tt.check(t, res.graph.Relationships)

			rels, err = f.svc.Relationships(ctx, f.project)
			require.NoError(t, err)
			tt.check(t, rels)
		})
	}
}

func TestMutationsRefreshCachedGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Analyze(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, g.Gaps, 1)
	require.NotNil(t, g.Gaps[0].UsedTotal)
	assert.Equal(t, 2, *g.Gaps[0].UsedTotal)
	assert.Zero(t, g.Gaps[0].UnconfiguredCount)

	hours := models.RelationshipKey{
		SourceTable: "payroll_lines", SourceColumn: "hours",
		TargetTable: "earnings_codes", TargetColumn: "code",
	}
	_, err = f.svc.CreateManual(ctx, f.project, hours, "alice")
	require.NoError(t, err)
	g, err = f.svc.LastKnown(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Summary.SpokeCount)
	assert.Equal(t, 2, g.Gaps[0].UnconfiguredCount)
	assert.Equal(t, []string{"40", "8"}, g.Gaps[0].UnconfiguredValues)

	require.NoError(t, f.svc.Confirm(ctx, f.project, hours, false, "alice"))
	g, err = f.svc.LastKnown(ctx, f.project)
	require.NoError(t, err)
	assert.Zero(t, g.Gaps[0].UnconfiguredCount)

	require.NoError(t, f.svc.Delete(ctx, f.project, earnKey, "alice"))
	g, err = f.svc.LastKnown(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Summary.SpokeCount)
	assert.Equal(t, []string{"earnings_code"}, g.Summary.SemanticTypes)
	require.Len(t, g.Gaps, 1)
	assert.True(t, g.Gaps[0].AwaitingReality)
	assert.Nil(t, g.Gaps[0].UsedTotal)
}

func TestSemanticTypes(t *testing.T) {
	f := newFixture(t)
	types := f.svc.SemanticTypes()
	assert.NotEmpty(t, types)
	assert.NotEmpty(t, f.svc.TaxonomyVersion())
}
