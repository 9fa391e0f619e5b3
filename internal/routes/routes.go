package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contextgraph/internal/handlers"
)

func RegisterRoutes(router *gin.Engine, contextGraphHandler *handlers.ContextGraphHandler, identify gin.HandlerFunc) {
	api := router.Group("/api/v1")

	contextGraphRoutes := NewContextGraphRoutes(contextGraphHandler, identify)
	contextGraphRoutes.RegisterRoutes(api)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
