package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// OrgRepo handles organization and membership database operations
type OrgRepo struct {
	db *sql.DB
}

// Create creates a new organization
func (r *OrgRepo) Create(ctx context.Context, org *models.Org) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orgs (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt,
	)
	return err
}

// GetByID retrieves an organization by ID
func (r *OrgRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Org, error) {
	var org models.Org
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM orgs WHERE id = $1`,
		id,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get org: %w", err)
	}

	return &org, nil
}

// GetByUserEmail retrieves every organization a user belongs to
func (r *OrgRepo) GetByUserEmail(ctx context.Context, email string) ([]models.Org, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.created_at
		 FROM orgs o
		 INNER JOIN org_users ou ON o.id = ou.org_id
		 WHERE ou.user_email = $1
		 ORDER BY o.created_at`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orgs: %w", err)
	}
	defer rows.Close()

	var orgs []models.Org
	for rows.Next() {
		var org models.Org
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan org: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// AddUser creates a membership record
func (r *OrgRepo) AddUser(ctx context.Context, member *models.OrgUser) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	member.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO org_users (id, user_email, role, org_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		member.ID, member.UserEmail, member.Role, member.OrgID, member.CreatedAt,
	)
	return err
}

// GetUser retrieves a user's membership in an organization
func (r *OrgRepo) GetUser(ctx context.Context, email string, orgID uuid.UUID) (*models.OrgUser, error) {
	var member models.OrgUser
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_email, role, org_id, created_at
		 FROM org_users WHERE user_email = $1 AND org_id = $2`,
		email, orgID,
	).Scan(&member.ID, &member.UserEmail, &member.Role, &member.OrgID, &member.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get org user: %w", err)
	}

	return &member, nil
}
