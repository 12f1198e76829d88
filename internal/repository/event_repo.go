package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// EventRepo handles audit event database operations. Events are append-only.
type EventRepo struct {
	db *sql.DB
}

// Create appends an audit event
func (r *EventRepo) Create(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, org_id, entity, entity_id, actor, action, before, after, evidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.OrgID, event.Entity, event.EntityID, event.Actor,
		event.Action, event.Before, event.After, event.Evidence, event.CreatedAt,
	)
	return err
}

// GetByEntity retrieves the audit trail for one entity, newest first
func (r *EventRepo) GetByEntity(ctx context.Context, entity string, entityID uuid.UUID) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, entity, entity_id, actor, action, before, after, evidence, created_at
		 FROM events WHERE entity = $1 AND entity_id = $2 ORDER BY created_at DESC`,
		entity, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByOrg retrieves an organization's audit trail, newest first
func (r *EventRepo) GetByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, entity, entity_id, actor, action, before, after, evidence, created_at
		 FROM events WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var event models.Event
		err := rows.Scan(&event.ID, &event.OrgID, &event.Entity, &event.EntityID,
			&event.Actor, &event.Action, &event.Before, &event.After,
			&event.Evidence, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
