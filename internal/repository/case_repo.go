package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// CaseRepo handles permit case database operations
type CaseRepo struct {
	db *sql.DB
}

const caseColumns = `id, org_id, project_id, ahj_key, permit_type, status, portal_case_id, fee_estimate_usd, forms, attachments, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*models.PermitCase, error) {
	var (
		c                models.PermitCase
		formsJSON        []byte
		attachmentsJSON  []byte
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.ProjectID, &c.AHJKey, &c.PermitType,
		&c.Status, &c.PortalCaseID, &c.FeeEstimateUSD, &formsJSON, &attachmentsJSON,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(formsJSON) > 0 {
		if err := json.Unmarshal(formsJSON, &c.Forms); err != nil {
			return nil, fmt.Errorf("failed to decode forms manifest: %w", err)
		}
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &c.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments manifest: %w", err)
		}
	}
	return &c, nil
}

// Create creates a permit case
func (r *CaseRepo) Create(ctx context.Context, c *models.PermitCase) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.StatusDraft
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	formsJSON, err := json.Marshal(c.Forms)
	if err != nil {
		return fmt.Errorf("failed to encode forms manifest: %w", err)
	}
	attachmentsJSON, err := json.Marshal(c.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode attachments manifest: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO permit_cases (`+caseColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.OrgID, c.ProjectID, c.AHJKey, c.PermitType, c.Status,
		c.PortalCaseID, c.FeeEstimateUSD, formsJSON, attachmentsJSON,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByID retrieves a permit case by ID
func (r *CaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PermitCase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM permit_cases WHERE id = $1`, id)

	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permit case: %w", err)
	}
	return c, nil
}

// GetByProject retrieves all cases for a project, newest first
func (r *CaseRepo) GetByProject(ctx context.Context, projectID uuid.UUID) ([]models.PermitCase, error) {
	return r.list(ctx, `SELECT `+caseColumns+` FROM permit_cases WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
}

// GetByOrg retrieves all cases for an organization, newest first
func (r *CaseRepo) GetByOrg(ctx context.Context, orgID uuid.UUID) ([]models.PermitCase, error) {
	return r.list(ctx, `SELECT `+caseColumns+` FROM permit_cases WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
}

// GetByStatus retrieves all cases in a given lifecycle state
func (r *CaseRepo) GetByStatus(ctx context.Context, status models.CaseStatus) ([]models.PermitCase, error) {
	return r.list(ctx, `SELECT `+caseColumns+` FROM permit_cases WHERE status = $1 ORDER BY created_at`, status)
}

func (r *CaseRepo) list(ctx context.Context, query string, arg interface{}) ([]models.PermitCase, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query permit cases: %w", err)
	}
	defer rows.Close()

	var cases []models.PermitCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permit case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// UpdateWithEvent applies a patch to a case and appends an audit event carrying
// before/after snapshots, in one transaction. Either both writes land or
// neither does; the case is never left updated without its audit record.
func (r *CaseRepo) UpdateWithEvent(ctx context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM permit_cases WHERE id = $1 FOR UPDATE`, id)
	before, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permit case: %w", err)
	}

	after := *before
	if patch.Status != nil {
		after.Status = *patch.Status
	}
	if patch.PortalCaseID != nil {
		after.PortalCaseID = patch.PortalCaseID
	}
	if patch.FeeEstimateUSD != nil {
		after.FeeEstimateUSD = patch.FeeEstimateUSD
	}
	if patch.Forms != nil {
		after.Forms = patch.Forms
	}
	if patch.Attachments != nil {
		after.Attachments = patch.Attachments
	}
	after.UpdatedAt = time.Now()

	formsJSON, err := json.Marshal(after.Forms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode forms manifest: %w", err)
	}
	attachmentsJSON, err := json.Marshal(after.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments manifest: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE permit_cases
		 SET status = $1, portal_case_id = $2, fee_estimate_usd = $3, forms = $4, attachments = $5, updated_at = $6
		 WHERE id = $7`,
		after.Status, after.PortalCaseID, after.FeeEstimateUSD,
		formsJSON, attachmentsJSON, after.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update permit case: %w", err)
	}

	beforeSnapshot, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	afterSnapshot, err := json.Marshal(&after)
	if err != nil {
		return nil, fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Entity = "PermitCase"
	event.EntityID = id
	event.Before = beforeSnapshot
	event.After = afterSnapshot
	event.CreatedAt = time.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, org_id, entity, entity_id, actor, action, before, after, evidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.OrgID, event.Entity, event.EntityID, event.Actor,
		event.Action, event.Before, event.After, event.Evidence, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit case update: %w", err)
	}
	return &after, nil
}
