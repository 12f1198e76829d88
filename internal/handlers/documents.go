package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/repository"
)

const maxUploadBytes = 50 << 20

// UploadDocument stores one file in object storage. Multipart form with a
// "file" part and a "kind" field.
func (h *Handler) UploadDocument(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}

	kind := c.PostForm("kind")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 50MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("upload open failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer file.Close()

	doc, err := h.docs.Upload(c.Request.Context(), orgID, kind, fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		h.logger.Error("upload failed", "org_id", orgID, "kind", kind, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// ListDocuments lists the org's uploaded documents, newest first.
func (h *Handler) ListDocuments(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}

	docs, err := h.store.Documents.GetByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("document list failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GetDocument returns a document record with a short-lived download URL.
func (h *Handler) GetDocument(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}
	docID, ok := parseUUIDParam(c, "docID")
	if !ok {
		return
	}

	doc, err := h.store.Documents.GetByID(c.Request.Context(), docID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && doc.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if err != nil {
		h.logger.Error("document get failed", "doc_id", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load document"})
		return
	}

	url, err := h.docs.PresignedGet(c.Request.Context(), doc, 15*time.Minute)
	if err != nil {
		h.logger.Error("presign failed", "doc_id", docID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate download link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": doc, "download_url": url})
}
