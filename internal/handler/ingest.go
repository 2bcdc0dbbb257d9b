package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/ingest"
	"github.com/contosowiki/sage/internal/types"
)

// IngestHandler binds the document-ingest endpoints to the Ingest
// Pipeline. These sit outside the conversational request flow (a crawler
// or admin tool calls them directly), so they skip the Orchestrator
// entirely.
type IngestHandler struct {
	pipeline *ingest.Pipeline
}

func NewIngestHandler(pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestRequest is the request body for POST /v1/documents.
type IngestRequest struct {
	ID           string   `json:"id" binding:"required"`
	SourceURL    string   `json:"source_url" binding:"required"`
	SourceKind   string   `json:"source_kind" binding:"required"`
	Title        string   `json:"title"`
	Text         string   `json:"text" binding:"required"`
	LastModified string   `json:"last_modified"`
	Tags         []string `json:"tags"`
}

// Ingest handles POST /v1/documents: re-chunk, re-embed, and re-index a
// document only if its content actually changed.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"code": string(sageerrors.BadRequest), "msg": "invalid request body: " + err.Error()})
		return
	}

	lastModified := time.Now()
	if req.LastModified != "" {
		if t, err := time.Parse(time.RFC3339, req.LastModified); err == nil {
			lastModified = t
		}
	}

	changed, err := h.pipeline.Ingest(c.Request.Context(), ingest.Input{
		ID:           req.ID,
		SourceURL:    req.SourceURL,
		SourceKind:   types.SourceKind(req.SourceKind),
		Title:        req.Title,
		Text:         req.Text,
		LastModified: lastModified,
		Tags:         req.Tags,
	})
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(200, gin.H{"code": 0, "msg": "success", "data": gin.H{"changed": changed}})
}

// Purge handles DELETE /v1/documents/:id.
func (h *IngestHandler) Purge(c *gin.Context) {
	id := c.Param("id")
	if err := h.pipeline.Purge(c.Request.Context(), id); err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(200, gin.H{"code": 0, "msg": "success"})
}

func writeIngestError(c *gin.Context, err error) {
	code := sageerrors.InternalError
	status := 500
	if se, ok := err.(*sageerrors.Error); ok {
		code = se.Code
		status = httpStatusFor(code)
	}
	c.JSON(status, gin.H{"code": string(code), "msg": err.Error()})
}
