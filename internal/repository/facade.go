package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// The workflow services consume storage through small interfaces; these
// wrappers give Store that surface without exposing the sub-repositories.

// GetPermitCase retrieves a permit case by ID.
func (s *Store) GetPermitCase(ctx context.Context, id uuid.UUID) (*models.PermitCase, error) {
	return s.Cases.GetByID(ctx, id)
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.Projects.GetByID(ctx, id)
}

// GetCasesByStatus lists all cases in a lifecycle state.
func (s *Store) GetCasesByStatus(ctx context.Context, status models.CaseStatus) ([]models.PermitCase, error) {
	return s.Cases.GetByStatus(ctx, status)
}

// UpdateCaseWithEvent atomically patches a case and appends its audit event.
func (s *Store) UpdateCaseWithEvent(ctx context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error) {
	return s.Cases.UpdateWithEvent(ctx, id, patch, event)
}

// CreateEvent appends an audit event outside a case update.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	return s.Events.Create(ctx, event)
}

// CreateInspection creates an inspection record.
func (s *Store) CreateInspection(ctx context.Context, inspection *models.Inspection) error {
	return s.Inspections.Create(ctx, inspection)
}

// GetInspectionsByCase lists a case's inspections, oldest first.
func (s *Store) GetInspectionsByCase(ctx context.Context, caseID uuid.UUID) ([]models.Inspection, error) {
	return s.Inspections.GetByCase(ctx, caseID)
}
