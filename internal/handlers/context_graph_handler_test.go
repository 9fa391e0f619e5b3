package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextgraph/internal/classifier"
	"contextgraph/internal/database"
	"contextgraph/internal/logging"
	"contextgraph/internal/middlewares"
	"contextgraph/internal/models"
	"contextgraph/internal/repositories"
	"contextgraph/internal/services"
	"contextgraph/internal/taxonomy"
	"contextgraph/internal/utils"
)

var testSecret = []byte("test-secret")

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type harness struct {
	router    *gin.Engine
	snapshots *repositories.StaticSnapshotProvider
	store     *repositories.SQLiteOverrideRepository
	project   uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "overrides.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tax, err := taxonomy.NewLoader().Load()
	require.NoError(t, err)
	graphs, err := repositories.NewMemoryGraphCache(8)
	require.NoError(t, err)

	project := uuid.New()
	snapshots := &repositories.StaticSnapshotProvider{Tables: map[uuid.UUID][]models.Table{
		project: {
			{
				Name: "earnings_codes", TruthType: models.TruthConfiguration, RowCount: 3,
				UploadedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				Columns:    []models.Column{{Name: "code", Cardinality: 3, SampleValues: []string{"REG", "OT", "VAC"}}},
			},
			{
				Name: "payroll_lines", TruthType: models.TruthReality, RowCount: 50,
				UploadedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				Columns: []models.Column{
					{Name: "earn_code", Cardinality: 2, SampleValues: []string{"REG", "OT"}},
					{Name: "hours", Cardinality: 2, SampleValues: []string{"8", "40"}},
				},
			},
		},
	}}
	store := repositories.NewSQLiteOverrideRepository(db)
	cls := classifier.New(tax, nil, nil, classifier.Options{}, logging.Discard())
	svc := services.NewContextGraphService(snapshots, store, graphs, cls, services.ContextGraphOptions{}, logging.Discard())

	h := NewContextGraphHandler(svc)
	router := gin.New()
	graph := router.Group("/api/v1/projects/:id/context-graph", middlewares.Identify(testSecret))
	graph.POST("/analyze", h.Analyze)
	graph.GET("/relationships", h.GetRelationships)
	graph.DELETE("/relationships", h.DeleteRelationship)
	graph.POST("/relationships/confirm", h.ConfirmRelationship)
	graph.POST("/relationships/create", h.CreateRelationship)
	graph.GET("/hubs/pin", h.ListHubPins)
	graph.POST("/hubs/pin", h.PinHub)
	graph.DELETE("/hubs/pin", h.UnpinHub)
	graph.GET("/join-path", h.JoinPath)
	graph.GET("/semantic-types", h.SemanticTypes)

	return &harness{router: router, snapshots: snapshots, store: store, project: project}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1/projects/"+h.project.String()+"/context-graph"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := newHarness(t)

	w, env := h.do(t, http.MethodPost, "/analyze", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)

	var g models.Graph
	require.NoError(t, json.Unmarshal(env.Data, &g))
	require.Len(t, g.Hubs, 1)
	assert.Equal(t, "earnings_codes", g.Hubs[0].Table)
	require.Len(t, g.Relationships, 1)
	assert.True(t, g.Relationships[0].IsValidFK)
}

func TestRelationshipsBeforeAnalyzeIsNotFound(t *testing.T) {
	h := newHarness(t)
	w, env := h.do(t, http.MethodGet, "/relationships", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error", env.Status)
}

func TestSnapshotFailureIsServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.snapshots.Err = errors.New("catalog offline")

	w, env := h.do(t, http.MethodPost, "/analyze", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"retryable": true}`, string(env.Data))
	assert.Contains(t, env.Error, "catalog offline")
}

func TestInvalidProjectID(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/not-a-uuid/context-graph/analyze", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmRecordsActor(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/analyze", nil, "")

	token, err := utils.GenerateJWT("alice", testSecret, time.Minute)
	require.NoError(t, err)

	body := map[string]any{
		"source_table": "payroll_lines", "source_column": "earn_code",
		"target_table": "earnings_codes", "target_column": "code",
		"confirmed": true,
	}
	w, _ := h.do(t, http.MethodPost, "/relationships/confirm", body, token)
	require.Equal(t, http.StatusOK, w.Code)

	o, err := h.store.GetOverride(t.Context(), h.project, models.RelationshipKey{
		SourceTable: "payroll_lines", SourceColumn: "earn_code",
		TargetTable: "earnings_codes", TargetColumn: "code",
	})
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, models.OverrideConfirmed, o.Status)
	assert.Equal(t, "alice", o.UpdatedBy)

	_, env := h.do(t, http.MethodGet, "/relationships", nil, "")
	var rels []models.Relationship
	require.NoError(t, json.Unmarshal(env.Data, &rels))
	require.Len(t, rels, 1)
	assert.Equal(t, models.StatusConfirmed, rels[0].Status)
}

func TestConfirmValidation(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodPost, "/relationships/confirm", map[string]any{
		"source_table": "payroll_lines", "source_column": "earn_code",
		"target_table": "earnings_codes", "target_column": "code",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "confirmed is required")

	w, _ = h.do(t, http.MethodPost, "/relationships/confirm", map[string]any{"confirmed": true}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, http.MethodPost, "/analyze", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndDeleteRelationship(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/analyze", nil, "")

	w, env := h.do(t, http.MethodPost, "/relationships/create", map[string]string{
		"source_table": "payroll_lines", "source_column": "hours",
		"target_table": "earnings_codes", "target_column": "code",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var rel models.Relationship
	require.NoError(t, json.Unmarshal(env.Data, &rel))
	assert.Equal(t, 1.0, rel.Confidence)
	assert.Equal(t, models.MethodManual, rel.Method)

	w, _ = h.do(t, http.MethodDelete,
		"/relationships?source_table=payroll_lines&source_column=hours&target_table=earnings_codes&target_column=code", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, env = h.do(t, http.MethodPost, "/analyze", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var g models.Graph
	require.NoError(t, json.Unmarshal(env.Data, &g))
	for _, r := range g.Relationships {
		assert.NotEqual(t, "hours", r.SourceColumn)
	}

	w, _ = h.do(t, http.MethodDelete, "/relationships?source_table=payroll_lines", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRelationshipUnknownColumn(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(t, http.MethodPost, "/relationships/create", map[string]string{
		"source_table": "payroll_lines", "source_column": "nope",
		"target_table": "earnings_codes", "target_column": "code",
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHubPinEndpoints(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodPost, "/hubs/pin", map[string]string{
		"semantic_type": "earnings_code", "table": "payroll_lines", "column": "earn_code",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, env := h.do(t, http.MethodGet, "/hubs/pin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var pins []models.HubPin
	require.NoError(t, json.Unmarshal(env.Data, &pins))
	require.Len(t, pins, 1)
	assert.Equal(t, "anonymous", pins[0].UpdatedBy)

	w, _ = h.do(t, http.MethodPost, "/hubs/pin", map[string]string{
		"semantic_type": "not_a_type", "table": "payroll_lines", "column": "earn_code",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodDelete, "/hubs/pin?semantic_type=earnings_code", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(t, http.MethodDelete, "/hubs/pin?semantic_type=earnings_code", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = h.do(t, http.MethodDelete, "/hubs/pin", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinPathEndpoint(t *testing.T) {
	h := newHarness(t)

	w, env := h.do(t, http.MethodGet, "/join-path?from=payroll_lines&to=earnings_codes", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var path models.JoinPath
	require.NoError(t, json.Unmarshal(env.Data, &path))
	require.Len(t, path.Steps, 1)

	w, _ = h.do(t, http.MethodGet, "/join-path?from=payroll_lines", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSemanticTypesEndpoint(t *testing.T) {
	h := newHarness(t)
	w, env := h.do(t, http.MethodGet, "/semantic-types", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Version       string                `json:"version"`
		SemanticTypes []models.SemanticType `json:"semantic_types"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Version)
	assert.NotEmpty(t, data.SemanticTypes)
}
