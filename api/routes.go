package api

import (
	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/eternal-regression/api/handlers"
	"github.com/NethermindEth/eternal-regression/insights"
)

// SetupRoutes initializes all API endpoints
func SetupRoutes(router *gin.Engine, h *handlers.Handler, ins *insights.Handler) {
	api := router.Group("/api")
	{
		api.GET("/cast", h.GetCast)
		api.POST("/regressions", h.StartRegression)
		api.GET("/regressions", h.ListRegressions)
		api.GET("/regressions/:id", h.GetRegression)
		api.DELETE("/regressions/:id", h.CancelRegression)
		api.GET("/regressions/:id/events", h.GetEvents)
		api.GET("/regressions/:id/transcript", h.GetTranscript)
		api.GET("/regressions/:id/analysis", ins.GetAnalysis)
		api.GET("/regressions/:id/visualization", ins.GetVisualization)
		api.GET("/regressions/:id/export", ins.GetExport)
		api.GET("/regressions/:id/narrative", ins.GetNarrative)
	}
	router.GET("/ws", h.HandleWebSocket)
}
