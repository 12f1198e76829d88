package models

import (
	"time"

	"github.com/google/uuid"
)

// Location represents a physical project site with its resolved authority
type Location struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Address1  string    `json:"address1" db:"address1"`
	Address2  *string   `json:"address2,omitempty" db:"address2"`
	City      string    `json:"city" db:"city"`
	State     string    `json:"state" db:"state"`
	Postal    string    `json:"postal" db:"postal"`
	ParcelID  *string   `json:"parcel_id,omitempty" db:"parcel_id"`
	AHJKey    string    `json:"ahj_key" db:"ahj_key"` // e.g. "us/md/gaithersburg"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Project represents a construction project
type Project struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrgID        uuid.UUID `json:"org_id" db:"org_id"`
	Name         string    `json:"name" db:"name"`
	LocationID   uuid.UUID `json:"location_id" db:"location_id"`
	ValuationUSD *int64    `json:"valuation_usd,omitempty" db:"valuation_usd"`
	TradeTags    []string  `json:"trade_tags" db:"trade_tags"` // ["electrical","plumbing","structural"]
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
