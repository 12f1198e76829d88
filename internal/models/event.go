package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable audit record. Before and After hold JSON snapshots of
// the touched entity; they are never rewritten after insert.
type Event struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrgID     uuid.UUID       `json:"org_id" db:"org_id"`
	Entity    string          `json:"entity" db:"entity"` // "PermitCase","Inspection","Project"
	EntityID  uuid.UUID       `json:"entity_id" db:"entity_id"`
	Actor     string          `json:"actor" db:"actor"`   // user email or "system"
	Action    string          `json:"action" db:"action"` // "PRECHECK_COMPLETED","PACKAGE_BUILT","PERMIT_SUBMITTED"
	Before    json.RawMessage `json:"before,omitempty" db:"before"`
	After     json.RawMessage `json:"after,omitempty" db:"after"`
	Evidence  *string         `json:"evidence,omitempty" db:"evidence"` // object storage URI
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// AuthSession represents an active login session
type AuthSession struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	Token     string    `json:"-" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
