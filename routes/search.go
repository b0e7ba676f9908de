package routes

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"merchant-docs-rag/services"
	"merchant-docs-rag/utils"
)

// HandleSearch runs retrieval over one or more namespaces.
// GET /api/search?q=...&namespaces=a,b&top_k=5
func HandleSearch(retriever *services.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			utils.RespondWithBadRequest(c, "missing_query", "Query parameter 'q' is required")
			return
		}

		var namespaces []string
		if raw := c.Query("namespaces"); raw != "" {
			for _, ns := range strings.Split(raw, ",") {
				if ns = strings.TrimSpace(ns); ns != "" {
					namespaces = append(namespaces, ns)
				}
			}
		}

		topK := 0
		if k, err := strconv.Atoi(c.DefaultQuery("top_k", "5")); err == nil && k > 0 && k <= 50 {
			topK = k
		}

		results, err := retriever.Query(c.Request.Context(), query, namespaces, topK)
		if err != nil {
			utils.RespondWithInternalError(c, "search_failed", "Search failed")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   query,
			"count":   len(results),
			"results": results,
		})
	}
}

// HandleQualityReport returns the corpus quality audit, as JSON or as a
// markdown report when ?format=markdown.
func HandleQualityReport(reviewer *services.QualityReviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := reviewer.Review()
		if c.Query("format") == "markdown" {
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown()))
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
