package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// InspectionRepo handles inspection database operations
type InspectionRepo struct {
	db *sql.DB
}

// Create creates an inspection record
func (r *InspectionRepo) Create(ctx context.Context, inspection *models.Inspection) error {
	if inspection.ID == uuid.Nil {
		inspection.ID = uuid.New()
	}
	inspection.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inspections (id, case_id, type, requested_at, scheduled_for, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inspection.ID, inspection.CaseID, inspection.Type, inspection.RequestedAt,
		inspection.ScheduledFor, inspection.Result, inspection.CreatedAt,
	)
	return err
}

// GetByCase retrieves all inspections for a case, oldest first
func (r *InspectionRepo) GetByCase(ctx context.Context, caseID uuid.UUID) ([]models.Inspection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, case_id, type, requested_at, scheduled_for, result, created_at
		 FROM inspections WHERE case_id = $1 ORDER BY created_at`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var inspections []models.Inspection
	for rows.Next() {
		var inspection models.Inspection
		err := rows.Scan(&inspection.ID, &inspection.CaseID, &inspection.Type,
			&inspection.RequestedAt, &inspection.ScheduledFor, &inspection.Result,
			&inspection.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, inspection)
	}

	return inspections, rows.Err()
}

// Update updates an inspection's schedule and result
func (r *InspectionRepo) Update(ctx context.Context, inspection *models.Inspection) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE inspections SET requested_at = $1, scheduled_for = $2, result = $3 WHERE id = $4`,
		inspection.RequestedAt, inspection.ScheduledFor, inspection.Result, inspection.ID,
	)
	return err
}
