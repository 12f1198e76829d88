package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/models"
)

// SessionRepo handles auth session database operations
type SessionRepo struct {
	db *sql.DB
}

// Create creates an auth session
func (r *SessionRepo) Create(ctx context.Context, session *models.AuthSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, user_email, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserEmail, session.Token, session.ExpiresAt, session.CreatedAt,
	)
	return err
}

// GetByToken retrieves a session by its token
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*models.AuthSession, error) {
	var session models.AuthSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_email, token, expires_at, created_at
		 FROM auth_sessions WHERE token = $1`,
		token,
	).Scan(&session.ID, &session.UserEmail, &session.Token, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// Delete removes a session by its token
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token)
	return err
}

// DeleteExpired sweeps sessions past their expiry
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
