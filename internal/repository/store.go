// Package repository persists the application's records in Postgres.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/permitsync/permitsync/internal/config"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store bundles one repository per aggregate over a shared connection pool.
type Store struct {
	db *sql.DB

	Orgs        *OrgRepo
	Projects    *ProjectRepo
	Cases       *CaseRepo
	Events      *EventRepo
	Inspections *InspectionRepo
	Documents   *DocumentRepo
	Sessions    *SessionRepo
}

// Open connects to Postgres and wires the repositories.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:          db,
		Orgs:        &OrgRepo{db: db},
		Projects:    &ProjectRepo{db: db},
		Cases:       &CaseRepo{db: db},
		Events:      &EventRepo{db: db},
		Inspections: &InspectionRepo{db: db},
		Documents:   &DocumentRepo{db: db},
		Sessions:    &SessionRepo{db: db},
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PoolStats returns the current database connection pool statistics
func (s *Store) PoolStats() sql.DBStats {
	return s.db.Stats()
}
