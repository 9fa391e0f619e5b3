package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/middlewares"
	"contextgraph/internal/models"
	"contextgraph/internal/responses"
	"contextgraph/internal/services"
)

type ContextGraphHandler struct {
	service *services.ContextGraphService
}

func NewContextGraphHandler(service *services.ContextGraphService) *ContextGraphHandler {
	return &ContextGraphHandler{
		service: service,
	}
}

type confirmRequest struct {
	models.RelationshipKey
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// Analyze handles POST /api/v1/projects/:id/context-graph/analyze
func (h *ContextGraphHandler) Analyze(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	graph, err := h.service.Analyze(c.Request.Context(), projectID)
	if err != nil {
		fail(c, err, "Failed to analyze project")
		return
	}

	message := "Context graph generated successfully"
	if graph.Summary.Message != "" {
		message = graph.Summary.Message
	}
	responses.Success(c, http.StatusOK, graph, message)
}

// GetRelationships handles GET /api/v1/projects/:id/context-graph/relationships
func (h *ContextGraphHandler) GetRelationships(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	rels, err := h.service.Relationships(c.Request.Context(), projectID)
	if err != nil {
		fail(c, err, "Failed to load relationships")
		return
	}

	responses.Success(c, http.StatusOK, rels, "Relationships retrieved successfully")
}

// ConfirmRelationship handles POST /api/v1/projects/:id/context-graph/relationships/confirm
func (h *ContextGraphHandler) ConfirmRelationship(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.service.Confirm(c.Request.Context(), projectID, req.RelationshipKey, *req.Confirmed, middlewares.Actor(c)); err != nil {
		fail(c, err, "Failed to update relationship")
		return
	}

	message := "Relationship rejected"
	if *req.Confirmed {
		message = "Relationship confirmed"
	}
	responses.Success(c, http.StatusOK, req.RelationshipKey, message)
}

// CreateRelationship handles POST /api/v1/projects/:id/context-graph/relationships/create
func (h *ContextGraphHandler) CreateRelationship(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	var key models.RelationshipKey
	if err := c.ShouldBindJSON(&key); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	rel, err := h.service.CreateManual(c.Request.Context(), projectID, key, middlewares.Actor(c))
	if err != nil {
		fail(c, err, "Failed to create relationship")
		return
	}

	responses.Success(c, http.StatusCreated, rel, "Relationship created successfully")
}

// DeleteRelationship handles DELETE /api/v1/projects/:id/context-graph/relationships
func (h *ContextGraphHandler) DeleteRelationship(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	var key models.RelationshipKey
	if err := c.ShouldBindQuery(&key); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid relationship key")
		return
	}

	if err := h.service.Delete(c.Request.Context(), projectID, key, middlewares.Actor(c)); err != nil {
		fail(c, err, "Failed to delete relationship")
		return
	}

	responses.Success(c, http.StatusOK, key, "Relationship deleted")
}

// PinHub handles POST /api/v1/projects/:id/context-graph/hubs/pin
func (h *ContextGraphHandler) PinHub(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	var pin models.HubPin
	if err := c.ShouldBindJSON(&pin); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	saved, err := h.service.PinHub(c.Request.Context(), projectID, pin, middlewares.Actor(c))
	if err != nil {
		fail(c, err, "Failed to pin hub")
		return
	}

	responses.Success(c, http.StatusOK, saved, "Hub pinned")
}

// UnpinHub handles DELETE /api/v1/projects/:id/context-graph/hubs/pin
func (h *ContextGraphHandler) UnpinHub(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	semanticType := c.Query("semantic_type")
	if semanticType == "" {
		responses.Fail(c, http.StatusBadRequest, nil, "semantic_type is required")
		return
	}

	if err := h.service.UnpinHub(c.Request.Context(), projectID, semanticType); err != nil {
		fail(c, err, "Failed to unpin hub")
		return
	}

	responses.Success(c, http.StatusOK, gin.H{"semantic_type": semanticType}, "Hub unpinned")
}

// ListHubPins handles GET /api/v1/projects/:id/context-graph/hubs/pin
func (h *ContextGraphHandler) ListHubPins(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	pins, err := h.service.HubPins(c.Request.Context(), projectID)
	if err != nil {
		fail(c, err, "Failed to list hub pins")
		return
	}
	if pins == nil {
		pins = []models.HubPin{}
	}

	responses.Success(c, http.StatusOK, pins, "Hub pins retrieved successfully")
}

// JoinPath handles GET /api/v1/projects/:id/context-graph/join-path
func (h *ContextGraphHandler) JoinPath(c *gin.Context) {
	projectID, ok := projectParam(c)
	if !ok {
		return
	}

	path, err := h.service.JoinPath(c.Request.Context(), projectID, c.Query("from"), c.Query("to"))
	if err != nil {
		fail(c, err, "Failed to find join path")
		return
	}

	responses.Success(c, http.StatusOK, path, "Join path found")
}

// SemanticTypes handles GET /api/v1/projects/:id/context-graph/semantic-types
func (h *ContextGraphHandler) SemanticTypes(c *gin.Context) {
	responses.Success(c, http.StatusOK, gin.H{
		"version":        h.service.TaxonomyVersion(),
		"semantic_types": h.service.SemanticTypes(),
	}, "Semantic types retrieved successfully")
}

func projectParam(c *gin.Context) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid project ID format")
		return uuid.Nil, false
	}
	return projectID, true
}

// fail maps service errors onto HTTP statuses. Snapshot failures are the
// only retryable ones.
func fail(c *gin.Context, err error, message string) {
	var snapErr *apperrors.SnapshotError
	switch {
	case errors.As(err, &snapErr):
		_ = c.Error(err)
		responses.JSON(c, http.StatusServiceUnavailable, responses.StatusError,
			gin.H{"retryable": snapErr.Retryable}, message, err)
	case errors.Is(err, apperrors.ErrNotFound):
		responses.Fail(c, http.StatusNotFound, err, message)
	case services.IsClientError(err):
		responses.Fail(c, http.StatusBadRequest, err, message)
	default:
		responses.Fail(c, http.StatusInternalServerError, err, message)
	}
}
