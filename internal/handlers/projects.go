package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/repository"
)

type createLocationRequest struct {
	Address1 string  `json:"address1" binding:"required"`
	Address2 *string `json:"address2"`
	City     string  `json:"city" binding:"required"`
	State    string  `json:"state" binding:"required"`
	Postal   string  `json:"postal" binding:"required"`
	ParcelID *string `json:"parcel_id"`
}

// CreateLocation records a project site, resolving its authority at create
// time so every later lookup is a plain read.
func (h *Handler) CreateLocation(c *gin.Context) {
	if _, _, ok := h.requireMember(c, writeRoles...); !ok {
		return
	}

	var req createLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address1, city, state and postal are required"})
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
		h.logger.Error("resolve failed", "city", req.City, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve address"})
		return
	}

	loc := &models.Location{
		Address1: req.Address1,
		Address2: req.Address2,
		City:     req.City,
		State:    req.State,
		Postal:   req.Postal,
		ParcelID: req.ParcelID,
		AHJKey:   key.String(),
	}
	if err := h.store.Projects.CreateLocation(c.Request.Context(), loc); err != nil {
		h.logger.Error("location create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create location"})
		return
	}

	c.JSON(http.StatusCreated, loc)
}

type createProjectRequest struct {
	Name         string   `json:"name" binding:"required"`
	LocationID   string   `json:"location_id" binding:"required,uuid"`
	ValuationUSD *int64   `json:"valuation_usd"`
	TradeTags    []string `json:"trade_tags"`
}

// CreateProject creates a project at an existing location.
func (h *Handler) CreateProject(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and location_id are required"})
		return
	}
	if req.ValuationUSD != nil && *req.ValuationUSD < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valuation_usd must not be negative"})
		return
	}

	ctx := c.Request.Context()
	locID, err := uuid.Parse(req.LocationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return
	}
	if _, err := h.store.Projects.GetLocation(ctx, locID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
			return
		}
		h.logger.Error("location lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create project"})
		return
	}

	project := &models.Project{
		OrgID:        orgID,
		Name:         req.Name,
		LocationID:   locID,
		ValuationUSD: req.ValuationUSD,
		TradeTags:    req.TradeTags,
	}
	if err := h.store.Projects.Create(ctx, project); err != nil {
		h.logger.Error("project create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create project"})
		return
	}

	c.JSON(http.StatusCreated, project)
}

// ListProjects lists the org's projects.
func (h *Handler) ListProjects(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}

	projects, err := h.store.Projects.GetByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error("project list failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject returns one project with its location.
func (h *Handler) GetProject(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	project, err := h.store.Projects.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && project.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		h.logger.Error("project get failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load project"})
		return
	}

	location, err := h.store.Projects.GetLocation(ctx, project.LocationID)
	if err != nil {
		h.logger.Error("location get failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project, "location": location})
}

type updateProjectRequest struct {
	Name         *string  `json:"name"`
	ValuationUSD *int64   `json:"valuation_usd"`
	TradeTags    []string `json:"trade_tags"`
}

// UpdateProject patches a project's mutable fields. The location is fixed;
// a moved project is a new project.
func (h *Handler) UpdateProject(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ValuationUSD != nil && *req.ValuationUSD < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valuation_usd must not be negative"})
		return
	}

	ctx := c.Request.Context()
	project, err := h.store.Projects.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && project.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		h.logger.Error("project get failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update project"})
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.ValuationUSD != nil {
		project.ValuationUSD = req.ValuationUSD
	}
	if req.TradeTags != nil {
		project.TradeTags = req.TradeTags
	}
	if err := h.store.Projects.Update(ctx, project); err != nil {
		h.logger.Error("project update failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update project"})
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject removes a project that has no permit cases.
func (h *Handler) DeleteProject(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, models.RoleOwner)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	project, err := h.store.Projects.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && project.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		h.logger.Error("project get failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete project"})
		return
	}

	cases, err := h.store.Cases.GetByProject(ctx, projectID)
	if err != nil {
		h.logger.Error("case lookup failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete project"})
		return
	}
	if len(cases) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "project has permit cases"})
		return
	}

	if err := h.store.Projects.Delete(ctx, projectID); err != nil {
		h.logger.Error("project delete failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete project"})
		return
	}

	c.Status(http.StatusNoContent)
}
