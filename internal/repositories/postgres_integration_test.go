package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"contextgraph/internal/database"
	"contextgraph/internal/models"
)

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("contextgraph"),
		postgres.WithUsername("contextgraph"),
		postgres.WithPassword("contextgraph"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.RunMigrations(ctx, pool))
	return pool
}

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestPostgresRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pool := startPostgres(t, ctx)
	project := uuid.New()

	t.Run("snapshot round trip", func(t *testing.T) {
		snapshots := NewSnapshotRepository(pool)
		require.NoError(t, snapshots.ReplaceTable(ctx, project, models.Table{
			Name: "earnings_codes", TruthType: models.TruthConfiguration, RowCount: 2,
			Columns: []models.Column{
				{Name: "code", Cardinality: 2, SampleValues: []string{"REG", "OT"}},
				{Name: "description", Cardinality: 2},
			},
		}))
		require.NoError(t, snapshots.ReplaceTable(ctx, project, models.Table{
			Name: "empty_upload", TruthType: models.TruthReality,
		}))

		tables, err := snapshots.GetTables(ctx, project)
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, "earnings_codes", tables[0].Name)
		assert.Equal(t, models.TruthConfiguration, tables[0].TruthType)
		require.Len(t, tables[0].Columns, 2)
		assert.Equal(t, "code", tables[0].Columns[0].Name)
		assert.Equal(t, []string{"REG", "OT"}, tables[0].Columns[0].SampleValues)
		assert.Empty(t, tables[1].Columns)

		none, err := snapshots.GetTables(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("schema profile", func(t *testing.T) {
		_, err := pool.Exec(ctx, `
			CREATE SCHEMA src;
			CREATE TABLE src.earnings_codes (code text, rate numeric);
			INSERT INTO src.earnings_codes VALUES ('REG', 1), ('OT', 1.5), ('OT', 1.5), (NULL, 2);`)
		require.NoError(t, err)

		schemas := NewSchemaRepository(pool, 10)
		tables, err := schemas.GetTables(ctx, "src")
		require.NoError(t, err)
		assert.Equal(t, []string{"earnings_codes"}, tables)

		table, err := schemas.ProfileTable(ctx, "src", "earnings_codes", models.TruthConfiguration)
		require.NoError(t, err)
		assert.Equal(t, int64(4), table.RowCount)
		require.Len(t, table.Columns, 2)
		assert.Equal(t, "code", table.Columns[0].Name)
		assert.Equal(t, 2, table.Columns[0].Cardinality)
		assert.Equal(t, []string{"OT", "REG"}, table.Columns[0].SampleValues)
		assert.Equal(t, 3, table.Columns[1].Cardinality)
	})

	t.Run("overrides", func(t *testing.T) {
		repo := NewOverrideRepository(pool)
		now := time.Now().UTC()

		require.NoError(t, repo.SaveOverride(ctx, &models.Override{
			ProjectID: project, Key: testKey, Status: models.OverrideRejected, UpdatedAt: now,
		}))
		require.NoError(t, repo.SaveOverride(ctx, &models.Override{
			ProjectID: project, Key: testKey, Status: models.OverrideConfirmed, UpdatedAt: now.Add(-time.Minute),
		}))

		got, err := repo.GetOverride(ctx, project, testKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.OverrideRejected, got.Status, "older write must not win")

		list, err := repo.ListOverrides(ctx, project)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, repo.SaveHubPin(ctx, &models.HubPin{ProjectID: project, SemanticType: "job_code", Table: "jobs", Column: "code"}))
		pins, err := repo.ListHubPins(ctx, project)
		require.NoError(t, err)
		require.Len(t, pins, 1)

		removed, err := repo.DeleteHubPin(ctx, project, "job_code")
		require.NoError(t, err)
		assert.True(t, removed)
		pins, err = repo.ListHubPins(ctx, project)
		require.NoError(t, err)
		assert.Empty(t, pins)
	})
}

func TestRedisRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	repo := NewRedisRepository(startRedis(t, ctx), time.Minute)

	_, ok, err := repo.GetLabel(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetLabel(ctx, "k1", "job_code"))
	label, ok, err := repo.GetLabel(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "job_code", label)

	g, err := repo.GetGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, repo.SetGraph(ctx, &models.Graph{ProjectID: "p1", Hubs: []models.Hub{{SemanticType: "job_code"}}}))
	g, err = repo.GetGraph(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "job_code", g.Hubs[0].SemanticType)

	require.NoError(t, repo.DeleteGraph(ctx, "p1"))
	g, err = repo.GetGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, g)
}
