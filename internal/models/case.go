package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus represents the lifecycle state of a permit case.
type CaseStatus string

const (
	StatusDraft         CaseStatus = "draft"
	StatusPrecheckReady CaseStatus = "precheck_ready"
	StatusPackaged      CaseStatus = "packaged"
	StatusSubmitted     CaseStatus = "submitted"
	StatusRFI           CaseStatus = "rfi"
	StatusPending       CaseStatus = "pending"
	StatusApproved      CaseStatus = "approved"
	StatusRejected      CaseStatus = "rejected"
	StatusClosed        CaseStatus = "closed"
)

// IsValid returns true if the status is a recognized value.
func (s CaseStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPrecheckReady, StatusPackaged, StatusSubmitted,
		StatusRFI, StatusPending, StatusApproved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s CaseStatus) String() string {
	return string(s)
}

// FormEntry tracks one required form in a case's manifest. Fields holds the
// applicant's answers keyed by field name, as decoded JSON values.
type FormEntry struct {
	Filled   bool           `json:"filled"`
	Required bool           `json:"required"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// AttachmentEntry tracks one expected attachment in a case's manifest
type AttachmentEntry struct {
	Uploaded bool    `json:"uploaded"`
	Required bool    `json:"required"`
	URI      *string `json:"uri,omitempty"`
}

// PermitCase represents one permit application tracked against a jurisdiction
type PermitCase struct {
	ID             uuid.UUID                  `json:"id" db:"id"`
	OrgID          uuid.UUID                  `json:"org_id" db:"org_id"`
	ProjectID      uuid.UUID                  `json:"project_id" db:"project_id"`
	AHJKey         string                     `json:"ahj_key" db:"ahj_key"`
	PermitType     string                     `json:"permit_type" db:"permit_type"` // e.g. "residential_kitchen_remodel"
	Status         CaseStatus                 `json:"status" db:"status"`
	PortalCaseID   *string                    `json:"portal_case_id,omitempty" db:"portal_case_id"`
	FeeEstimateUSD *int64                     `json:"fee_estimate_usd,omitempty" db:"fee_estimate_usd"`
	Forms          map[string]FormEntry       `json:"forms" db:"-"`
	Attachments    map[string]AttachmentEntry `json:"attachments" db:"-"`
	CreatedAt      time.Time                  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at" db:"updated_at"`
}

// CasePatch holds the mutable fields of a case update. Nil fields are left unchanged.
type CasePatch struct {
	Status         *CaseStatus
	PortalCaseID   *string
	FeeEstimateUSD *int64
	Forms          map[string]FormEntry
	Attachments    map[string]AttachmentEntry
}

// Inspection represents a field inspection scheduled against a case
type Inspection struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	CaseID       uuid.UUID  `json:"case_id" db:"case_id"`
	Type         string     `json:"type" db:"type"` // "framing","final","electrical_rough"
	RequestedAt  *time.Time `json:"requested_at,omitempty" db:"requested_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty" db:"scheduled_for"`
	Result       *string    `json:"result,omitempty" db:"result"` // "pass"/"fail"/"partial"
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Document represents an uploaded file held in object storage
type Document struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Kind      string    `json:"kind" db:"kind"` // "plans","site_plan","license","insurance_acord25"
	URI       string    `json:"uri" db:"uri"`
	Checksum  string    `json:"checksum" db:"checksum"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
