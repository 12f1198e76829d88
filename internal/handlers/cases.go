package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/repository"
	"github.com/permitsync/permitsync/internal/services/packaging"
	"github.com/permitsync/permitsync/internal/services/precheck"
)

type createCaseRequest struct {
	ProjectID  string `json:"project_id" binding:"required,uuid"`
	PermitType string `json:"permit_type" binding:"required"`
}

// CreateCase opens a permit case for a project. The required-forms and
// required-attachments manifest is seeded from the jurisdiction pack so the
// checklist is visible from day one.
func (h *Handler) CreateCase(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}

	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id and permit_type are required"})
		return
	}

	ctx := c.Request.Context()
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return
	}
	project, err := h.store.Projects.GetByID(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && project.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		h.logger.Error("project lookup failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create case"})
		return
	}

	location, err := h.store.Projects.GetLocation(ctx, project.LocationID)
	if err != nil {
		h.logger.Error("location lookup failed", "project_id", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create case"})
		return
	}

	pack, err := h.loader.Load(ctx, jurisdiction.Key(location.AHJKey))
	if errors.Is(err, jurisdiction.ErrPackNotFound) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no rule pack for jurisdiction " + location.AHJKey})
		return
	}
	if err != nil {
		h.logger.Error("pack load failed", "key", location.AHJKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create case"})
		return
	}

	def, ok := pack.PermitTypes[req.PermitType]
	if !ok {
		types := make([]string, 0, len(pack.PermitTypes))
		for t := range pack.PermitTypes {
			types = append(types, t)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           "permit type not offered by jurisdiction",
			"supported_types": types,
		})
		return
	}

	forms := make(map[string]models.FormEntry, len(def.Forms))
	for _, name := range def.Forms {
		forms[name] = models.FormEntry{Required: true}
	}
	attachments := make(map[string]models.AttachmentEntry, len(def.Attachments))
	for _, kind := range def.Attachments {
		attachments[kind] = models.AttachmentEntry{Required: true}
	}

	pc := &models.PermitCase{
		OrgID:       orgID,
		ProjectID:   projectID,
		AHJKey:      location.AHJKey,
		PermitType:  req.PermitType,
		Forms:       forms,
		Attachments: attachments,
	}
	if err := h.store.Cases.Create(ctx, pc); err != nil {
		h.logger.Error("case create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create case"})
		return
	}

	event := &models.Event{
		OrgID:    orgID,
		Entity:   "PermitCase",
		EntityID: pc.ID,
		Actor:    middleware.GetEmail(c),
		Action:   "CASE_CREATED",
	}
	if err := h.store.Events.Create(ctx, event); err != nil {
		h.logger.Warn("case created but event insert failed", "case_id", pc.ID, "error", err)
	}

	c.JSON(http.StatusCreated, pc)
}

// GetCase returns one case.
func (h *Handler) GetCase(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, pc)
}

// ListCases lists the org's cases, optionally filtered by project.
func (h *Handler) ListCases(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if projectParam := c.Query("project_id"); projectParam != "" {
		projectID, err := uuid.Parse(projectParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		cases, err := h.store.Cases.GetByProject(ctx, projectID)
		if err != nil {
			h.logger.Error("case list failed", "project_id", projectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list cases"})
			return
		}
		filtered := cases[:0]
		for _, pc := range cases {
			if pc.OrgID == orgID {
				filtered = append(filtered, pc)
			}
		}
		c.JSON(http.StatusOK, gin.H{"cases": filtered})
		return
	}

	cases, err := h.store.Cases.GetByOrg(ctx, orgID)
	if err != nil {
		h.logger.Error("case list failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list cases"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

// RunPrecheck validates the case against its jurisdiction's rules, estimates
// fees, and advances it to precheck_ready.
func (h *Handler) RunPrecheck(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}

	result, err := h.precheck.Run(c.Request.Context(), pc.ID, middleware.GetEmail(c))
	switch {
	case errors.Is(err, precheck.ErrInvalidPermitType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jurisdiction.ErrPackNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no rule pack for jurisdiction " + pc.AHJKey})
		return
	case err != nil:
		h.logger.Error("precheck failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pre-check failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// BuildPackage assembles the submission package and advances the case to
// packaged.
func (h *Handler) BuildPackage(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}

	manifest, updated, err := h.packager.Build(c.Request.Context(), pc.ID, middleware.GetEmail(c))
	switch {
	case errors.Is(err, packaging.ErrNotPrechecked):
		c.JSON(http.StatusConflict, gin.H{"error": "run pre-check before packaging"})
		return
	case errors.Is(err, packaging.ErrIncomplete):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "manifest": manifest})
		return
	case err != nil:
		h.logger.Error("packaging failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "packaging failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"manifest": manifest, "case": updated})
}

// SubmitCase queues the portal submission and returns the job for polling.
func (h *Handler) SubmitCase(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}
	if pc.Status != models.StatusPackaged {
		c.JSON(http.StatusConflict, gin.H{"error": "case must be packaged before submission"})
		return
	}

	job, err := h.workflow.EnqueueSubmit(pc.ID, middleware.GetEmail(c))
	if err != nil {
		h.logger.Error("submit enqueue failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue submission"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// PollCase queues a portal status refresh and returns the job for polling.
func (h *Handler) PollCase(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}
	if pc.PortalCaseID == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "case has not been submitted"})
		return
	}

	job, err := h.workflow.EnqueuePoll(pc.ID, middleware.GetEmail(c))
	if err != nil {
		h.logger.Error("poll enqueue failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue status poll"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// CaseTimeline returns the case's audit trail, oldest first.
func (h *Handler) CaseTimeline(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}

	events, err := h.store.Events.GetByEntity(c.Request.Context(), "PermitCase", pc.ID)
	if err != nil {
		h.logger.Error("timeline failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load timeline"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type manifestFormPatch struct {
	Filled *bool          `json:"filled"`
	Fields map[string]any `json:"fields"` // field name -> answer; null clears
}

type manifestPatchRequest struct {
	Forms       map[string]manifestFormPatch `json:"forms"`
	Attachments map[string]*string           `json:"attachments"` // kind -> uploaded URI; null clears
}

// UpdateManifest records form answers, marks forms filled, and marks
// attachments uploaded on the case manifest. Manifest keys outside the
// pack's requirements are accepted so extra supporting documents can ride
// along.
func (h *Handler) UpdateManifest(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}

	var req manifestPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid manifest patch"})
		return
	}

	forms := pc.Forms
	if forms == nil {
		forms = map[string]models.FormEntry{}
	}
	for name, patch := range req.Forms {
		entry := forms[name]
		if patch.Filled != nil {
			entry.Filled = *patch.Filled
		}
		if len(patch.Fields) > 0 && entry.Fields == nil {
			entry.Fields = map[string]any{}
		}
		for field, value := range patch.Fields {
			if value == nil {
				delete(entry.Fields, field)
				continue
			}
			entry.Fields[field] = value
		}
		forms[name] = entry
	}

	attachments := pc.Attachments
	if attachments == nil {
		attachments = map[string]models.AttachmentEntry{}
	}
	for kind, uri := range req.Attachments {
		entry := attachments[kind]
		if uri == nil {
			entry.Uploaded = false
			entry.URI = nil
		} else {
			entry.Uploaded = true
			entry.URI = uri
		}
		attachments[kind] = entry
	}

	updated, err := h.store.Cases.UpdateWithEvent(c.Request.Context(), pc.ID, models.CasePatch{
		Forms:       forms,
		Attachments: attachments,
	}, models.Event{
		OrgID:  orgID,
		Actor:  middleware.GetEmail(c),
		Action: "MANIFEST_UPDATED",
	})
	if err != nil {
		h.logger.Error("manifest update failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update manifest"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// GetJob returns the state of a queued background job.
func (h *Handler) GetJob(c *gin.Context) {
	jobID, ok := parseUUIDParam(c, "jobID")
	if !ok {
		return
	}
	job, found := h.queue.Get(jobID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// orgCase loads the case in the path and checks it belongs to orgID. Callers
// must stop when ok is false; the response has already been written.
func (h *Handler) orgCase(c *gin.Context, orgID uuid.UUID) (*models.PermitCase, bool) {
	caseID, ok := parseUUIDParam(c, "caseID")
	if !ok {
		return nil, false
	}
	pc, err := h.store.Cases.GetByID(c.Request.Context(), caseID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && pc.OrgID != orgID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("case lookup failed", "case_id", caseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return pc, true
}
