package routes

import (
	"contextgraph/internal/handlers"

	"github.com/gin-gonic/gin"
)

type ContextGraphRoutes struct {
	handler  *handlers.ContextGraphHandler
	identify gin.HandlerFunc
}

func NewContextGraphRoutes(handler *handlers.ContextGraphHandler, identify gin.HandlerFunc) *ContextGraphRoutes {
	return &ContextGraphRoutes{handler: handler, identify: identify}
}

func (r *ContextGraphRoutes) RegisterRoutes(router *gin.RouterGroup) {
	graph := router.Group("/projects/:id/context-graph")
	graph.Use(r.identify)
	{
		graph.POST("/analyze", r.handler.Analyze)

		graph.GET("/relationships", r.handler.GetRelationships)
		graph.DELETE("/relationships", r.handler.DeleteRelationship)
		graph.POST("/relationships/confirm", r.handler.ConfirmRelationship)
		graph.POST("/relationships/create", r.handler.CreateRelationship)

		graph.GET("/hubs/pin", r.handler.ListHubPins)
		graph.POST("/hubs/pin", r.handler.PinHub)
		graph.DELETE("/hubs/pin", r.handler.UnpinHub)

		graph.GET("/join-path", r.handler.JoinPath)
		graph.GET("/semantic-types", r.handler.SemanticTypes)
	}
}
