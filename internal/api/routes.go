package api

import (
	"github.com/gin-gonic/gin"

	"stockcast/internal/api/handlers"
	"stockcast/internal/realtime"
)

// SetupRoutes wires every HTTP endpoint onto the router.
func SetupRoutes(
	router *gin.Engine,
	prediction *handlers.PredictionHandler,
	health *handlers.HealthHandler,
	hub *realtime.Hub,
) {
	router.GET("/health", health.Health)

	if hub != nil {
		router.GET("/ws", gin.WrapF(hub.ServeWS))
	}

	v1 := router.Group("/api/v1")
	{
		predictions := v1.Group("/predictions")
		{
			predictions.GET("/models", prediction.ListModels)
			predictions.GET("/models/:symbol", prediction.GetModel)
			predictions.DELETE("/models/:symbol", prediction.DeleteModel)
			predictions.POST("/train/:symbol", prediction.Train)
			predictions.GET("/lstm/:symbol", prediction.PredictTrained)
			predictions.GET("/:symbol", prediction.GetForecast)
		}
	}
}
