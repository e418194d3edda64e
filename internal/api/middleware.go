package api

import (
	"github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/pkg/logger"
	"github.com/gin-gonic/gin"
)

func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			switch e := err.(type) {
			case *errors.NotFoundError:
				c.JSON(404, gin.H{"error": e.Error()})
			case *errors.ExplorerError:
				// The sync failed upstream; whatever points the caller
				// last saw are still valid, so say so instead of
				// pretending success or wiping the display.
				logger.Error("Explorer error: %v", e)
				c.JSON(502, gin.H{
					"error": "explorer sync failed, last known points are unchanged",
					"retry": true,
				})
			case *errors.ConflictError:
				logger.Warn("Concurrency conflict: %v", e)
				c.JSON(409, gin.H{"error": "a concurrent recompute is in progress, retry", "retry": true})
			case *errors.DatabaseError:
				logger.Error("Database error: %v", e)
				c.JSON(500, gin.H{"error": "Internal server error"})
			case *errors.APIError:
				logger.Error("API error: %v", e)
				c.JSON(e.StatusCode, gin.H{"error": e.Message})
			default:
				logger.Error("Unexpected error: %v", e)
				c.JSON(500, gin.H{"error": "Internal server error"})
			}
			c.Abort()
		}
	}
}
