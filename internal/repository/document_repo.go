package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// DocumentRepo handles document database operations
type DocumentRepo struct {
	db *sql.DB
}

// Create creates a document record
func (r *DocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, org_id, kind, uri, checksum, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.OrgID, doc.Kind, doc.URI, doc.Checksum, doc.CreatedAt,
	)
	return err
}

// GetByID retrieves a document by ID
func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, kind, uri, checksum, created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.OrgID, &doc.Kind, &doc.URI, &doc.Checksum, &doc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// GetByOrg retrieves all documents for an organization, newest first
func (r *DocumentRepo) GetByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, kind, uri, checksum, created_at
		 FROM documents WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		err := rows.Scan(&doc.ID, &doc.OrgID, &doc.Kind, &doc.URI, &doc.Checksum, &doc.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
