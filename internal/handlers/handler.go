// Package handlers exposes the HTTP API. Handlers do request parsing and
// access control; the services own the domain logic.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/repository"
	"github.com/permitsync/permitsync/internal/services/auth"
	"github.com/permitsync/permitsync/internal/services/documents"
	"github.com/permitsync/permitsync/internal/services/packaging"
	"github.com/permitsync/permitsync/internal/services/precheck"
	"github.com/permitsync/permitsync/internal/services/queue"
	"github.com/permitsync/permitsync/internal/services/workflow"
)

// Handler bundles the dependencies the HTTP layer needs.
type Handler struct {
	store    *repository.Store
	loader   *jurisdiction.Loader
	auth     *auth.Service
	precheck *precheck.Orchestrator
	packager *packaging.Builder
	workflow *workflow.Workflow
	queue    *queue.Queue
	docs     *documents.Service
	logger   *slog.Logger
}

func New(store *repository.Store, loader *jurisdiction.Loader, authSvc *auth.Service,
	pre *precheck.Orchestrator, packager *packaging.Builder, wf *workflow.Workflow,
	q *queue.Queue, docs *documents.Service, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		loader:   loader,
		auth:     authSvc,
		precheck: pre,
		packager: packager,
		workflow: wf,
		queue:    q,
		docs:     docs,
		logger:   logger,
	}
}

// Register wires all routes onto the router group.
func (h *Handler) Register(r *gin.Engine, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Health)

	pub := r.Group("/auth")
	{
		pub.POST("/magic-link", h.RequestMagicLink)
		pub.GET("/verify", h.VerifyMagicLink)
	}

	api := r.Group("/api/v1", authMW)
	{
		api.POST("/auth/logout", h.Logout)

		api.POST("/orgs", h.CreateOrg)
		api.GET("/orgs", h.ListMyOrgs)
		api.GET("/orgs/:orgID", h.GetOrg)
		api.POST("/orgs/:orgID/members", h.AddOrgMember)
		api.GET("/orgs/:orgID/timeline", h.OrgTimeline)

		api.GET("/jurisdictions", h.ListJurisdictions)
		api.GET("/jurisdictions/*key", h.GetJurisdiction)
		api.POST("/resolve", h.ResolveAddress)

		api.POST("/orgs/:orgID/locations", h.CreateLocation)
		api.POST("/orgs/:orgID/projects", h.CreateProject)
		api.GET("/orgs/:orgID/projects", h.ListProjects)
		api.GET("/orgs/:orgID/projects/:projectID", h.GetProject)
		api.PATCH("/orgs/:orgID/projects/:projectID", h.UpdateProject)
		api.DELETE("/orgs/:orgID/projects/:projectID", h.DeleteProject)

		api.POST("/orgs/:orgID/cases", h.CreateCase)
		api.GET("/orgs/:orgID/cases", h.ListCases)
		api.GET("/orgs/:orgID/cases/:caseID", h.GetCase)
		api.POST("/orgs/:orgID/cases/:caseID/precheck", h.RunPrecheck)
		api.POST("/orgs/:orgID/cases/:caseID/package", h.BuildPackage)
		api.POST("/orgs/:orgID/cases/:caseID/submit", h.SubmitCase)
		api.POST("/orgs/:orgID/cases/:caseID/poll", h.PollCase)
		api.GET("/orgs/:orgID/cases/:caseID/timeline", h.CaseTimeline)
		api.PATCH("/orgs/:orgID/cases/:caseID/manifest", h.UpdateManifest)

		api.POST("/orgs/:orgID/cases/:caseID/inspections", h.RequestInspection)
		api.GET("/orgs/:orgID/cases/:caseID/inspections", h.ListInspections)
		api.PATCH("/orgs/:orgID/cases/:caseID/inspections/:inspectionID", h.RecordInspectionResult)

		api.POST("/orgs/:orgID/documents", h.UploadDocument)
		api.GET("/orgs/:orgID/documents", h.ListDocuments)
		api.GET("/orgs/:orgID/documents/:docID", h.GetDocument)

		api.GET("/jobs/:jobID", h.GetJob)
	}
}

// Health reports liveness and database pool state.
func (h *Handler) Health(c *gin.Context) {
	stats := h.store.PoolStats()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"open_connections": stats.OpenConnections,
	})
}

// requireMember checks that the caller belongs to the org in the path with
// one of the given roles and returns the membership. Callers must stop when
// ok is false; the response has already been written.
func (h *Handler) requireMember(c *gin.Context, roles ...models.Role) (*models.OrgUser, uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Param("orgID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid org id"})
		return nil, uuid.Nil, false
	}

	member, err := h.store.Orgs.GetUser(c.Request.Context(), middleware.GetEmail(c), orgID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this organization"})
		return nil, uuid.Nil, false
	}
	if err != nil {
		h.logger.Error("membership lookup failed", "org_id", orgID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, uuid.Nil, false
	}

	for _, role := range roles {
		if member.Role == role {
			return member, orgID, true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	return nil, uuid.Nil, false
}

// anyRole is the role set for read endpoints.
var anyRole = []models.Role{models.RoleOwner, models.RoleStaff, models.RoleReadOnly}

// writeRoles is the role set for mutating endpoints.
var writeRoles = []models.Role{models.RoleOwner, models.RoleStaff}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
