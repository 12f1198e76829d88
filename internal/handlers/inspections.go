package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/models"
)

type requestInspectionRequest struct {
	Type string `json:"type" binding:"required"`
}

// RequestInspection queues an inspection request with the jurisdiction's
// portal. Prerequisite and scheduling-window checks run in the job.
func (h *Handler) RequestInspection(c *gin.Context) {
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

	var req requestInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return
	}

	job, err := h.workflow.EnqueueInspection(pc.ID, req.Type, middleware.GetEmail(c))
	if err != nil {
		h.logger.Error("inspection enqueue failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue inspection request"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// ListInspections lists a case's inspections, oldest first.
func (h *Handler) ListInspections(c *gin.Context) {
	_, orgID, ok := h.requireMember(c, anyRole...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}

	inspections, err := h.store.Inspections.GetByCase(c.Request.Context(), pc.ID)
	if err != nil {
		h.logger.Error("inspection list failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list inspections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inspections": inspections})
}

type recordInspectionResultRequest struct {
	Result string `json:"result" binding:"required,oneof=pass fail partial"`
}

// RecordInspectionResult records the outcome of a completed inspection.
// Results normally arrive from the portal, but mock portals never report
// them, so staff can enter them by hand.
func (h *Handler) RecordInspectionResult(c *gin.Context) {
	member, orgID, ok := h.requireMember(c, writeRoles...)
	if !ok {
		return
	}
	pc, ok := h.orgCase(c, orgID)
	if !ok {
		return
	}
	inspectionID, ok := parseUUIDParam(c, "inspectionID")
	if !ok {
		return
	}

	var req recordInspectionResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result must be pass, fail or partial"})
		return
	}

	ctx := c.Request.Context()
	inspections, err := h.store.Inspections.GetByCase(ctx, pc.ID)
	if err != nil {
		h.logger.Error("inspection lookup failed", "case_id", pc.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var target *models.Inspection
	for i := range inspections {
		if inspections[i].ID == inspectionID {
			target = &inspections[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "inspection not found"})
		return
	}
	if target.ScheduledFor == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "inspection has not been scheduled"})
		return
	}

	target.Result = &req.Result
	if err := h.store.Inspections.Update(ctx, target); err != nil {
		h.logger.Error("inspection update failed", "inspection_id", inspectionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record result"})
		return
	}

	after, _ := json.Marshal(target)
	event := &models.Event{
		OrgID:     orgID,
		Entity:    "Inspection",
		EntityID:  inspectionID,
		Action:    "INSPECTION_RESULTED",
		Actor:     member.UserEmail,
		After:     after,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Events.Create(ctx, event); err != nil {
		h.logger.Warn("inspection event append failed", "inspection_id", inspectionID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"inspection": target})
}
