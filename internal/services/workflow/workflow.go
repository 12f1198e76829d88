// Package workflow runs the portal-facing side of a case's lifecycle as
// queued jobs: submission, status polling, and inspection scheduling.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/services/packaging"
	"github.com/permitsync/permitsync/internal/services/portal"
	"github.com/permitsync/permitsync/internal/services/queue"
)

var (
	// ErrNotPackaged is returned when submission is attempted before packaging.
	ErrNotPackaged = errors.New("case has not been packaged")
	// ErrNotSubmitted is returned when a portal operation needs a portal case ID
	// the case does not have yet.
	ErrNotSubmitted = errors.New("case has not been submitted to a portal")
	// ErrPrerequisites is returned when an inspection's prerequisite inspections
	// have not passed.
	ErrPrerequisites = errors.New("inspection prerequisites not met")
	// ErrUnknownInspection is returned for inspection types the pack does not list.
	ErrUnknownInspection = errors.New("inspection type not offered by jurisdiction")
)

// Storage is the persistence surface the workflow jobs need.
type Storage interface {
	GetPermitCase(ctx context.Context, id uuid.UUID) (*models.PermitCase, error)
	GetCasesByStatus(ctx context.Context, status models.CaseStatus) ([]models.PermitCase, error)
	UpdateCaseWithEvent(ctx context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error)
	CreateInspection(ctx context.Context, inspection *models.Inspection) error
	GetInspectionsByCase(ctx context.Context, caseID uuid.UUID) ([]models.Inspection, error)
}

// PackLoader resolves jurisdiction keys to loaded packs.
type PackLoader interface {
	Load(ctx context.Context, key jurisdiction.Key) (*jurisdiction.Pack, error)
}

// Notifier sends case updates to the applicant.
type Notifier interface {
	SendStatusUpdate(ctx context.Context, email, caseID, status string) error
	SendInspectionReminder(ctx context.Context, email, caseID, inspectionType, scheduledFor string) error
}

// SubmitPayload asks for a packaged case to be filed with its portal.
type SubmitPayload struct {
	CaseID uuid.UUID `json:"case_id"`
	Actor  string    `json:"actor"`
}

// PollPayload asks for a submitted case's portal status to be refreshed.
type PollPayload struct {
	CaseID uuid.UUID `json:"case_id"`
	Actor  string    `json:"actor"`
}

// InspectionPayload asks for an inspection to be scheduled through the portal.
type InspectionPayload struct {
	CaseID uuid.UUID `json:"case_id"`
	Type   string    `json:"type"`
	Actor  string    `json:"actor"`
}

// Workflow owns the job handlers. It enqueues follow-up work on the same
// queue it consumes from.
type Workflow struct {
	store    Storage
	loader   PackLoader
	registry *portal.Registry
	queue    *queue.Queue
	notify   Notifier
	logger   *slog.Logger
}

func New(store Storage, loader PackLoader, registry *portal.Registry, q *queue.Queue,
	notify Notifier, logger *slog.Logger) *Workflow {
	return &Workflow{
		store:    store,
		loader:   loader,
		registry: registry,
		queue:    q,
		notify:   notify,
		logger:   logger,
	}
}

// RegisterHandlers installs the workflow's job handlers on its queue.
func (w *Workflow) RegisterHandlers() {
	w.queue.Register(queue.JobSubmitPermit, w.handleSubmit)
	w.queue.Register(queue.JobPollStatus, w.handlePoll)
	w.queue.Register(queue.JobScheduleInspection, w.handleInspection)
}

// EnqueueSubmit schedules a portal submission for the case.
func (w *Workflow) EnqueueSubmit(caseID uuid.UUID, actor string) (*queue.Job, error) {
	return w.queue.Enqueue(queue.JobSubmitPermit, SubmitPayload{CaseID: caseID, Actor: actor})
}

// EnqueuePoll schedules a portal status refresh for the case.
func (w *Workflow) EnqueuePoll(caseID uuid.UUID, actor string) (*queue.Job, error) {
	return w.queue.Enqueue(queue.JobPollStatus, PollPayload{CaseID: caseID, Actor: actor})
}

// PollActiveCases enqueues a status poll for every case still awaiting a
// portal decision. Meant to run on a timer so statuses refresh without
// anyone clicking poll.
func (w *Workflow) PollActiveCases(ctx context.Context) {
	active := []models.CaseStatus{models.StatusSubmitted, models.StatusPending, models.StatusRFI}
	for _, status := range active {
		cases, err := w.store.GetCasesByStatus(ctx, status)
		if err != nil {
			w.logger.Error("active case sweep failed", "status", status, "error", err)
			continue
		}
		for _, c := range cases {
			if _, err := w.EnqueuePoll(c.ID, "system"); err != nil {
				w.logger.Warn("could not enqueue status poll", "case_id", c.ID, "error", err)
			}
		}
	}
}

// EnqueueInspection schedules an inspection request for the case.
func (w *Workflow) EnqueueInspection(caseID uuid.UUID, inspectionType, actor string) (*queue.Job, error) {
	return w.queue.Enqueue(queue.JobScheduleInspection, InspectionPayload{
		CaseID: caseID, Type: inspectionType, Actor: actor,
	})
}

func (w *Workflow) handleSubmit(ctx context.Context, payload json.RawMessage) error {
	var p SubmitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	c, err := w.store.GetPermitCase(ctx, p.CaseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if c.PortalCaseID != nil {
		// Retried after a partial failure; the filing already happened.
		return nil
	}
	if c.Status != models.StatusPackaged {
		return fmt.Errorf("%w: status is %s", ErrNotPackaged, c.Status)
	}

	pack, err := w.loader.Load(ctx, jurisdiction.Key(c.AHJKey))
	if err != nil {
		return fmt.Errorf("load pack %s: %w", c.AHJKey, err)
	}
	manifest, missing, err := packaging.BuildManifest(c, pack)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", packaging.ErrIncomplete, missing)
	}

	driver, err := w.registry.ForSubmission(pack, c.PermitType)
	if err != nil {
		return err
	}
	result, err := driver.Submit(ctx, *manifest)
	if err != nil {
		return fmt.Errorf("portal submit: %w", err)
	}

	status := models.StatusSubmitted
	if _, err := w.store.UpdateCaseWithEvent(ctx, c.ID, models.CasePatch{
		Status:       &status,
		PortalCaseID: &result.PortalCaseID,
	}, models.Event{
		OrgID:  c.OrgID,
		Actor:  p.Actor,
		Action: "PERMIT_SUBMITTED",
	}); err != nil {
		return fmt.Errorf("persist submission: %w", err)
	}

	w.logger.Info("permit submitted", "case_id", c.ID, "portal_case_id", result.PortalCaseID,
		"driver", driver.Name())
	if err := w.notify.SendStatusUpdate(ctx, p.Actor, c.ID.String(), status.String()); err != nil {
		w.logger.Warn("status notification failed", "case_id", c.ID, "error", err)
	}

	if _, err := w.EnqueuePoll(c.ID, p.Actor); err != nil {
		w.logger.Warn("could not enqueue status poll", "case_id", c.ID, "error", err)
	}
	return nil
}

func (w *Workflow) handlePoll(ctx context.Context, payload json.RawMessage) error {
	var p PollPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	c, err := w.store.GetPermitCase(ctx, p.CaseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if c.PortalCaseID == nil {
		return ErrNotSubmitted
	}

	pack, err := w.loader.Load(ctx, jurisdiction.Key(c.AHJKey))
	if err != nil {
		return fmt.Errorf("load pack %s: %w", c.AHJKey, err)
	}
	driver, err := w.registry.ForSubmission(pack, c.PermitType)
	if err != nil {
		return err
	}

	portalStatus, err := driver.PollStatus(ctx, *c.PortalCaseID)
	if err != nil {
		return fmt.Errorf("poll status: %w", err)
	}

	status, ok := mapPortalStatus(portalStatus)
	if !ok {
		w.logger.Warn("unrecognized portal status", "case_id", c.ID, "portal_status", portalStatus)
		return nil
	}
	if status == c.Status {
		return nil
	}

	if _, err := w.store.UpdateCaseWithEvent(ctx, c.ID, models.CasePatch{
		Status: &status,
	}, models.Event{
		OrgID:  c.OrgID,
		Actor:  "system",
		Action: "STATUS_UPDATED",
	}); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	w.logger.Info("portal status updated", "case_id", c.ID, "from", c.Status, "to", status)
	if p.Actor != "" && p.Actor != "system" {
		if err := w.notify.SendStatusUpdate(ctx, p.Actor, c.ID.String(), status.String()); err != nil {
			w.logger.Warn("status notification failed", "case_id", c.ID, "error", err)
		}
	}
	return nil
}

func (w *Workflow) handleInspection(ctx context.Context, payload json.RawMessage) error {
	var p InspectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	c, err := w.store.GetPermitCase(ctx, p.CaseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if c.PortalCaseID == nil {
		return ErrNotSubmitted
	}

	pack, err := w.loader.Load(ctx, jurisdiction.Key(c.AHJKey))
	if err != nil {
		return fmt.Errorf("load pack %s: %w", c.AHJKey, err)
	}
	rule, ok := findInspectionRule(pack, p.Type)
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownInspection, p.Type, pack.Key)
	}

	if err := w.checkPrerequisites(ctx, c.ID, rule); err != nil {
		return err
	}

	driver, err := w.registry.ForSubmission(pack, c.PermitType)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	notBefore := portal.NextSlot(rule.Window, now)
	scheduledFor, err := driver.RequestInspection(ctx, *c.PortalCaseID, p.Type, notBefore)
	if err != nil {
		return fmt.Errorf("request inspection: %w", err)
	}

	inspection := &models.Inspection{
		CaseID:       c.ID,
		Type:         p.Type,
		RequestedAt:  &now,
		ScheduledFor: &scheduledFor,
	}
	if err := w.store.CreateInspection(ctx, inspection); err != nil {
		return fmt.Errorf("persist inspection: %w", err)
	}

	w.logger.Info("inspection scheduled", "case_id", c.ID, "type", p.Type,
		"scheduled_for", scheduledFor)
	if p.Actor != "" && p.Actor != "system" {
		if err := w.notify.SendInspectionReminder(ctx, p.Actor, c.ID.String(), p.Type,
			scheduledFor.Format(time.RFC3339)); err != nil {
			w.logger.Warn("inspection notification failed", "case_id", c.ID, "error", err)
		}
	}
	return nil
}

// checkPrerequisites requires every prerequisite inspection type to have a
// passing result on record.
func (w *Workflow) checkPrerequisites(ctx context.Context, caseID uuid.UUID, rule jurisdiction.InspectionRule) error {
	if len(rule.Prerequisites) == 0 {
		return nil
	}
	existing, err := w.store.GetInspectionsByCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load inspections: %w", err)
	}
	passed := make(map[string]bool)
	for _, insp := range existing {
		if insp.Result != nil && *insp.Result == "pass" {
			passed[insp.Type] = true
		}
	}
	for _, prereq := range rule.Prerequisites {
		if !passed[prereq] {
			return fmt.Errorf("%w: %s requires passing %s", ErrPrerequisites, rule.Type, prereq)
		}
	}
	return nil
}

func findInspectionRule(pack *jurisdiction.Pack, inspectionType string) (jurisdiction.InspectionRule, bool) {
	for _, rule := range pack.Inspections {
		if rule.Type == inspectionType {
			return rule, true
		}
	}
	return jurisdiction.InspectionRule{}, false
}

func mapPortalStatus(s string) (models.CaseStatus, bool) {
	switch s {
	case "submitted":
		return models.StatusSubmitted, true
	case "pending", "in_review":
		return models.StatusPending, true
	case "rfi", "more_info_required":
		return models.StatusRFI, true
	case "approved", "issued":
		return models.StatusApproved, true
	case "rejected", "denied":
		return models.StatusRejected, true
	case "closed":
		return models.StatusClosed, true
	}
	return "", false
}
