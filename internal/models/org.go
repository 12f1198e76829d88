package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a member's permission level within an organization.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleStaff    Role = "staff"
	RoleReadOnly Role = "read_only"
)

// IsValid returns true if the role is a recognized value.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleStaff, RoleReadOnly:
		return true
	}
	return false
}

// Org represents a contractor organization
type Org struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OrgUser represents a user's membership in an organization
type OrgUser struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	Role      Role      `json:"role" db:"role"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
