package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/vectorstore"
)

var startTime = time.Now()

// HandleHealth reports service liveness plus the state of the vector
// backend and embedding provider.
func HandleHealth(store vectorstore.VectorStore, embedder ai.Embedder) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeHealth := store.Health(c.Request.Context())

		status := http.StatusOK
		if storeHealth.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":         storeHealth.Status,
			"uptime_seconds": int64(time.Since(startTime).Seconds()),
			"vector_store":   storeHealth,
			"embeddings": gin.H{
				"provider":  embedder.Name(),
				"dimension": embedder.Dimension(),
			},
		})
	}
}
