package jurisdiction

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortalKind describes how a jurisdiction accepts submissions.
type PortalKind string

const (
	PortalNone       PortalKind = "none"
	PortalEmail      PortalKind = "email"
	PortalUpload     PortalKind = "upload"
	PortalAccelaLike PortalKind = "accela_like"
	PortalCustom     PortalKind = "custom"
)

// IsValid returns true if the portal kind is a recognized value.
func (k PortalKind) IsValid() bool {
	switch k {
	case PortalNone, PortalEmail, PortalUpload, PortalAccelaLike, PortalCustom:
		return true
	}
	return false
}

// Pack is the authoritative rule-set for one jurisdiction: its permit types,
// field rules, fee schedule and inspection catalog. Packs are immutable once
// loaded and read-only to all consumers.
type Pack struct {
	Key         Key                      `json:"id"`
	Name        string                   `json:"name"`
	Coverage    Coverage                 `json:"coverage"`
	Portal      PortalInfo               `json:"portal"`
	PermitTypes map[string]PermitTypeDef `json:"permit_types"`
	Fees        []FeeRule                `json:"fees"`
	Inspections []InspectionRule         `json:"inspections"`
}

// Coverage describes the geographic area a pack governs.
type Coverage struct {
	State  string `json:"state"`
	County string `json:"county"`
	City   string `json:"city,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// PortalInfo describes the jurisdiction's submission portal.
type PortalInfo struct {
	Kind    PortalKind `json:"kind"`
	BaseURL string     `json:"base_url,omitempty"`
	Auth    string     `json:"auth,omitempty"` // "none" | "basic" | "form"
}

// PermitTypeDef defines one permit type a jurisdiction issues.
type PermitTypeDef struct {
	Label       string               `json:"label"`
	Forms       []string             `json:"forms"`       // required form templates
	Attachments []string             `json:"attachments"` // required attachment kinds
	Fields      map[string]FieldRule `json:"fields"`
	Submission  SubmissionInfo       `json:"submission"`
}

// SubmissionInfo carries how and where applications for a permit type are filed.
type SubmissionInfo struct {
	Method       string `json:"method"` // "portal" | "email" | "in_person"
	PortalDriver string `json:"portal_driver,omitempty"`
	FeeSchedule  string `json:"fee_schedule"`
	SLADays      int    `json:"sla_days,omitempty"`
}

// FieldRule is a validation constraint for one form field. All set constraints
// must pass; unset ones are skipped.
type FieldRule struct {
	Required bool     `json:"required,omitempty"`
	Min      *float64 `json:"min,omitempty"` // numeric value or string length
	Max      *float64 `json:"max,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// FeeKind tags the computation variant of a fee rule.
type FeeKind string

const (
	// FeeFlat is a fixed amount applied when the case's permit type matches.
	FeeFlat FeeKind = "flat"
	// FeeValuation is a percentage-of-valuation fee applied by price tier.
	FeeValuation FeeKind = "valuation"
	// FeeConditional is a fixed amount gated by a predicate over form data.
	FeeConditional FeeKind = "conditional"
)

// FeeRule is one fee line item. The Kind discriminates which of the remaining
// fields are meaningful; rules are evaluated independently and enumerated in
// pack declaration order.
type FeeRule struct {
	ID   string
	Name string
	Kind FeeKind

	// Flat and conditional fees.
	Amount decimal.Decimal

	// Flat: the permit type this fee applies to.
	PermitType string

	// Valuation: inclusive tier bounds (nil TierMax = open-ended) and rate.
	TierMin decimal.Decimal
	TierMax *decimal.Decimal
	Rate    decimal.Decimal

	// Conditional: predicate identifier, e.g. "plan_review", "inspection_fee".
	FeeType string
}

// SchedulingWindow constrains when an inspection may be booked.
type SchedulingWindow struct {
	MinDaysOut    int            `yaml:"min_days_out"`
	MaxDaysOut    int            `yaml:"max_days_out"`
	AvailableDays []time.Weekday `yaml:"available_days"` // 0=Sunday
}

// InspectionRule describes one inspection type a jurisdiction performs. It is
// not evaluated during pre-check; the inspection scheduling workflow consumes it.
type InspectionRule struct {
	Type          string            `yaml:"type"`
	Label         string            `yaml:"label"`
	Prerequisites []string          `yaml:"prerequisites"`
	Window        *SchedulingWindow `yaml:"scheduling_window"`
}
