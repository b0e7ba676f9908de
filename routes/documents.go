package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/models"
	"merchant-docs-rag/services"
	"merchant-docs-rag/utils"
)

// EnqueueFunc hands a registered document to the background pipeline.
// path is the spooled copy on disk, readable by out-of-process workers.
type EnqueueFunc func(doc *models.Document, path string) error

// HandleDocumentUpload accepts a multipart document, spools it to disk,
// registers it as pending, and enqueues it for background indexing.
func HandleDocumentUpload(cfg *config.Config, registry *services.DocumentRegistry, enqueue EnqueueFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "file_too_large", "File size exceeds maximum limit")
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "no_file", "No file provided")
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "file_too_large", "File size exceeds maximum limit")
			return
		}

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize))
		if err != nil {
			utils.RespondWithInternalError(c, "file_read_error", "Failed to read file")
			return
		}

		doc := &models.Document{
			ID:         uuid.NewString(),
			Name:       header.Filename,
			MimeType:   header.Header.Get("Content-Type"),
			Size:       header.Size,
			Content:    content,
			Namespace:  c.PostForm("namespace"),
			SourceLink: c.PostForm("source_link"),
			Status:     models.StatusPending,
			Stage:      models.StageUploaded,
			UploadedAt: time.Now(),
		}

		// Spool to disk so a worker process can pick the bytes up even if
		// this process restarts before indexing finishes.
		spoolPath := cfg.DocumentSpoolPath(doc.ID)
		if err := os.MkdirAll(filepath.Dir(spoolPath), 0755); err != nil {
			utils.RespondWithInternalError(c, "directory_error", "Failed to create upload directory")
			return
		}
		if err := os.WriteFile(spoolPath, content, 0600); err != nil {
			utils.RespondWithInternalError(c, "file_save_error", "Failed to save file")
			return
		}

		registry.Save(doc)

		if err := enqueue(doc, spoolPath); err != nil {
			registry.Delete(doc.ID)
			os.Remove(spoolPath)
			utils.RespondWithInternalError(c, "queue_error", "Failed to enqueue processing task")
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":     "Document accepted for processing",
			"document_id": doc.ID,
			"status":      doc.Status,
			"name":        doc.Name,
			"size":        doc.Size,
			"uploaded_at": doc.UploadedAt,
		})
	}
}

// CheckDocumentStatus reports where a document is in the pipeline.
func CheckDocumentStatus(registry *services.DocumentRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := registry.Get(c.Param("documentID"))
		if !ok {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id": doc.ID,
			"name":        doc.Name,
			"status":      doc.Status,
			"stage":       doc.Stage,
			"extraction":  doc.Extraction,
			"chunk_count": doc.ChunkCount,
			"uploaded_at": doc.UploadedAt,
			"error":       doc.ErrorMsg,
		})
	}
}

// ListDocuments pages through known documents, newest first.
func ListDocuments(registry *services.DocumentRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		pageInt := 1
		limitInt := 10
		if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
			pageInt = p
		}
		if l, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && l > 0 && l <= 100 {
			limitInt = l
		}

		all := registry.List()
		total := len(all)
		start := (pageInt - 1) * limitInt
		if start > total {
			start = total
		}
		end := start + limitInt
		if end > total {
			end = total
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": all[start:end],
			"pagination": gin.H{
				"page":        pageInt,
				"limit":       limitInt,
				"total":       total,
				"total_pages": (total + limitInt - 1) / limitInt,
			},
		})
	}
}

// HandleDocumentDelete removes a document's vectors and its registry entry.
func HandleDocumentDelete(registry *services.DocumentRegistry, indexer *services.Indexer) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("documentID")
		doc, ok := registry.Get(documentID)
		if !ok {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		if err := indexer.DeleteDocument(c.Request.Context(), documentID, doc.Namespace); err != nil {
			utils.RespondWithInternalError(c, "delete_failed", "Failed to delete document vectors")
			return
		}
		registry.Delete(documentID)

		c.JSON(http.StatusOK, gin.H{
			"message":     "Document deleted",
			"document_id": documentID,
		})
	}
}
