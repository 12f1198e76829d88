package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/permitsync/permitsync/internal/models"
)

// ProjectRepo handles project and location database operations
type ProjectRepo struct {
	db *sql.DB
}

// CreateLocation creates a location record
func (r *ProjectRepo) CreateLocation(ctx context.Context, loc *models.Location) error {
	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	loc.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO locations (id, address1, address2, city, state, postal, parcel_id, ahj_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		loc.ID, loc.Address1, loc.Address2, loc.City, loc.State, loc.Postal,
		loc.ParcelID, loc.AHJKey, loc.CreatedAt,
	)
	return err
}

// GetLocation retrieves a location by ID
func (r *ProjectRepo) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var loc models.Location
	err := r.db.QueryRowContext(ctx,
		`SELECT id, address1, address2, city, state, postal, parcel_id, ahj_key, created_at
		 FROM locations WHERE id = $1`,
		id,
	).Scan(&loc.ID, &loc.Address1, &loc.Address2, &loc.City, &loc.State,
		&loc.Postal, &loc.ParcelID, &loc.AHJKey, &loc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	return &loc, nil
}

// Create creates a project record
func (r *ProjectRepo) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, org_id, name, location_id, valuation_usd, trade_tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID, project.OrgID, project.Name, project.LocationID,
		project.ValuationUSD, pq.Array(project.TradeTags), project.CreatedAt, project.UpdatedAt,
	)
	return err
}

// GetByID retrieves a project by ID
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, location_id, valuation_usd, trade_tags, created_at, updated_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&project.ID, &project.OrgID, &project.Name, &project.LocationID,
		&project.ValuationUSD, pq.Array(&project.TradeTags), &project.CreatedAt, &project.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// GetByOrg retrieves all projects for an organization, newest first
func (r *ProjectRepo) GetByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, name, location_id, valuation_usd, trade_tags, created_at, updated_at
		 FROM projects WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var project models.Project
		err := rows.Scan(&project.ID, &project.OrgID, &project.Name, &project.LocationID,
			&project.ValuationUSD, pq.Array(&project.TradeTags), &project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

// Update updates a project's mutable fields
func (r *ProjectRepo) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = $1, valuation_usd = $2, trade_tags = $3, updated_at = $4
		 WHERE id = $5`,
		project.Name, project.ValuationUSD, pq.Array(project.TradeTags),
		project.UpdatedAt, project.ID,
	)
	return err
}

// Delete removes a project
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}
