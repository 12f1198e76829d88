package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/models"
)

type createOrgRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateOrg creates an organization with the caller as its owner.
func (h *Handler) CreateOrg(c *gin.Context) {
	var req createOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	ctx := c.Request.Context()
	org := &models.Org{Name: req.Name}
	if err := h.store.Orgs.Create(ctx, org); err != nil {
		h.logger.Error("org create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create organization"})
		return
	}

	member := &models.OrgUser{
		UserEmail: middleware.GetEmail(c),
		Role:      models.RoleOwner,
		OrgID:     org.ID,
	}
	if err := h.store.Orgs.AddUser(ctx, member); err != nil {
		h.logger.Error("owner membership failed", "org_id", org.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create organization"})
		return
	}

	c.JSON(http.StatusCreated, org)
}

// ListMyOrgs lists the organizations the caller belongs to.
func (h *Handler) ListMyOrgs(c *gin.Context) {
	orgs, err := h.store.Orgs.GetByUserEmail(c.Request.Context(), middleware.GetEmail(c))
	if err != nil {
		h.logger.Error("org list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list organizations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orgs": orgs})
}

// GetOrg returns one organization with the caller's role in it.
func (h *Handler) GetOrg(c *gin.Context) {
	member, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}

	org, err := h.store.Orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("org get failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"org": org, "role": member.Role})
}

type addMemberRequest struct {
	Email string      `json:"email" binding:"required,email"`
	Role  models.Role `json:"role" binding:"required"`
}

// AddOrgMember adds a user to the org. Owner only.
func (h *Handler) AddOrgMember(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, models.RoleOwner)
	if !ok {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Role.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and a valid role are required"})
		return
	}

	member := &models.OrgUser{
		UserEmail: req.Email,
		Role:      req.Role,
		OrgID:     orgID,
	}
	if err := h.store.Orgs.AddUser(c.Request.Context(), member); err != nil {
		h.logger.Error("add member failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	c.JSON(http.StatusCreated, member)
}

// OrgTimeline returns the org's full audit trail, newest first.
func (h *Handler) OrgTimeline(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}

	events, err := h.store.Events.GetByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("org timeline failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load timeline"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
