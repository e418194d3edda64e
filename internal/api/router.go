package api

import (
	"github.com/W3LABS/points_engine/internal/websocket"
	"github.com/gin-gonic/gin"
)

// SetupRouter initializes the Gin router and sets up the routes
func SetupRouter(handler *Handler, wsManager *websocket.Manager) *gin.Engine {
	r := gin.Default()
	r.Use(ErrorMiddleware())

	// User-related routes
	r.GET("/user/:address", handler.GetUserProfile)
	r.GET("/user/:address/points", handler.GetUserPoints)
	r.GET("/user/:address/rank", handler.GetUserRank)
	r.POST("/user/:address/transactions", handler.IngestTransactions)
	r.POST("/user/:address/recompute", handler.RecomputePoints)
	r.POST("/user/:address/sync", handler.SyncFromExplorer)

	// Leaderboard route
	r.GET("/leaderboard", handler.GetLeaderboard)

	// Maintenance route
	r.POST("/admin/recalculate", handler.RecalculateAll)

	// WebSocket route
	r.GET("/ws", func(c *gin.Context) {
		wsManager.HandleWebSocket(c.Writer, c.Request)
	})

	return r
}
