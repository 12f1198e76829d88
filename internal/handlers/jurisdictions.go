package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/jurisdiction"
)

// ListJurisdictions lists every pack key available on disk.
func (h *Handler) ListJurisdictions(c *gin.Context) {
	keys, err := h.loader.List()
	if err != nil {
		h.logger.Error("jurisdiction list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list jurisdictions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jurisdictions": keys})
}

// GetJurisdiction loads and returns one pack, e.g.
// GET /api/v1/jurisdictions/us/md/gaithersburg.
func (h *Handler) GetJurisdiction(c *gin.Context) {
	key := jurisdiction.Key(strings.TrimPrefix(c.Param("key"), "/"))

	pack, err := h.loader.Load(c.Request.Context(), key)
	if errors.Is(err, jurisdiction.ErrPackNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "jurisdiction not found"})
		return
	}
	var corrupt *jurisdiction.PackCorruptError
	if errors.As(err, &corrupt) {
		h.logger.Error("corrupt jurisdiction pack", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jurisdiction pack is invalid"})
		return
	}
	if err != nil {
		h.logger.Error("jurisdiction load failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load jurisdiction"})
		return
	}

	c.JSON(http.StatusOK, pack)
}

type resolveRequest struct {
	Address1 string `json:"address1"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state" binding:"required"`
	Postal   string `json:"postal"`
}

// ResolveAddress maps an address to its authority-having-jurisdiction key.
func (h *Handler) ResolveAddress(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city and state are required"})
		return
	}

	key, err := jurisdiction.Resolve(req.City, req.State)
	if errors.Is(err, jurisdiction.ErrUnsupportedJurisdiction) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":            "address is outside the supported service area",
			"supported_cities": jurisdiction.KnownCities(),
		})
		return
	}
	if err != nil {
		h.logger.Error("resolve failed", "city", req.City, "state", req.State, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve address"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ahj_key": key})
}
