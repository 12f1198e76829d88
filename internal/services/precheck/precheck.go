// Package precheck runs a permit case through its jurisdiction's rules and
// fee schedule, producing a readiness checklist and persisting the outcome.
package precheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/forms"
	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/services/fees"
	"github.com/permitsync/permitsync/internal/services/validation"
)

// ErrInvalidPermitType is returned when a case names a permit type its
// jurisdiction pack does not offer.
var ErrInvalidPermitType = errors.New("permit type not offered by jurisdiction")

// Checklist item statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusWarning = "warning"
)

// energyCodeThreshold is the valuation above which energy code compliance
// documentation is flagged for review.
const energyCodeThreshold = 10000

// Storage is the persistence surface the orchestrator needs.
type Storage interface {
	GetPermitCase(ctx context.Context, id uuid.UUID) (*models.PermitCase, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateCaseWithEvent(ctx context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error)
}

// PackLoader resolves jurisdiction keys to loaded packs.
type PackLoader interface {
	Load(ctx context.Context, key jurisdiction.Key) (*jurisdiction.Pack, error)
}

// ChecklistItem is one line of the readiness report shown to the applicant.
type ChecklistItem struct {
	Item    string `json:"item"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Result is the full outcome of a pre-check run.
type Result struct {
	Checklist  []ChecklistItem            `json:"checklist"`
	Validation validation.Result          `json:"validation"`
	Fees       fees.Calculation           `json:"fees"`
	PermitType jurisdiction.PermitTypeDef `json:"permit_type"`
	Case       *models.PermitCase         `json:"case"`
}

// Orchestrator coordinates the resolver, validator, and fee calculator for a
// single case and records the outcome atomically.
type Orchestrator struct {
	store  Storage
	loader PackLoader
	logger *slog.Logger
}

func NewOrchestrator(store Storage, loader PackLoader, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, loader: loader, logger: logger}
}

// Run executes the pre-check for caseID on behalf of actor. On success the
// case moves to precheck_ready with its fee estimate set and a
// PRECHECK_COMPLETED event appended, in one transaction. Any failure before
// the persist step leaves the case untouched.
func (o *Orchestrator) Run(ctx context.Context, caseID uuid.UUID, actor string) (*Result, error) {
	c, err := o.store.GetPermitCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}

	project, err := o.store.GetProject(ctx, c.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	pack, err := o.loader.Load(ctx, jurisdiction.Key(c.AHJKey))
	if err != nil {
		return nil, fmt.Errorf("load pack %s: %w", c.AHJKey, err)
	}

	def, ok := pack.PermitTypes[c.PermitType]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrInvalidPermitType, c.PermitType, pack.Key)
	}

	form := buildForm(project, c)
	vres := validation.Validate(pack, c.PermitType, form)
	fcalc := fees.Calculate(pack, c.PermitType, form)
	checklist := buildChecklist(def, form, vres)

	estimate := fcalc.TotalFee.Round(0).IntPart()
	status := models.StatusPrecheckReady
	updated, err := o.store.UpdateCaseWithEvent(ctx, caseID, models.CasePatch{
		Status:         &status,
		FeeEstimateUSD: &estimate,
	}, models.Event{
		OrgID:  c.OrgID,
		Actor:  actor,
		Action: "PRECHECK_COMPLETED",
	})
	if err != nil {
		return nil, fmt.Errorf("persist precheck: %w", err)
	}

	o.logger.Info("precheck completed",
		"case_id", caseID,
		"ahj", c.AHJKey,
		"permit_type", c.PermitType,
		"valid", vres.IsValid,
		"fee_estimate_usd", estimate,
	)

	return &Result{
		Checklist:  checklist,
		Validation: vres,
		Fees:       fcalc,
		PermitType: def,
		Case:       updated,
	}, nil
}

// buildForm assembles the validator's view of a case: every answer recorded
// on the forms manifest, the project's valuation and trade tags, plus every
// attachment the case manifest marks as uploaded. The project's valuation is
// authoritative and overrides any valuation answered on a form.
func buildForm(project *models.Project, c *models.PermitCase) forms.Data {
	data := forms.Data{
		Fields:      map[string]forms.Value{},
		Attachments: map[string]string{},
	}
	for _, entry := range c.Forms {
		for name, raw := range entry.Fields {
			if v := forms.FromAny(raw); v.Kind() != forms.KindAbsent {
				data.Fields[name] = v
			}
		}
	}
	if project.ValuationUSD != nil {
		data.Fields[forms.ValuationField] = forms.Number(float64(*project.ValuationUSD))
	}
	if len(project.TradeTags) > 0 {
		data.Fields["trade_tags"] = forms.String(strings.Join(project.TradeTags, ","))
	}
	for kind, entry := range c.Attachments {
		if !entry.Uploaded {
			continue
		}
		uri := ""
		if entry.URI != nil {
			uri = *entry.URI
		}
		data.Attachments[kind] = uri
	}
	return data
}

func buildChecklist(def jurisdiction.PermitTypeDef, form forms.Data, vres validation.Result) []ChecklistItem {
	var items []ChecklistItem

	var fieldFailures []string
	attachmentFailed := map[string]bool{}
	for _, e := range vres.Errors {
		if e.Code == validation.CodeMissingAttachment {
			attachmentFailed[e.Field] = true
			continue
		}
		fieldFailures = append(fieldFailures, fmt.Sprintf("%s (%s)", e.Field, e.Code))
	}

	item := ChecklistItem{Item: "Application fields complete and within limits", Status: StatusPassed}
	if len(fieldFailures) > 0 {
		item.Status = StatusFailed
		item.Details = fmt.Sprintf("%d field problem(s): %v", len(fieldFailures), fieldFailures)
	}
	items = append(items, item)

	for _, attachment := range def.Attachments {
		item := ChecklistItem{
			Item:   "Required attachment: " + attachment,
			Status: StatusPassed,
		}
		if attachmentFailed["attachments."+attachment] {
			item.Status = StatusFailed
			item.Details = "not yet uploaded"
		}
		items = append(items, item)
	}

	for _, w := range vres.Warnings {
		items = append(items, ChecklistItem{
			Item:    "Advisory",
			Status:  StatusWarning,
			Details: w,
		})
	}

	if valuation, ok := form.Valuation(); ok && valuation > energyCodeThreshold {
		items = append(items, ChecklistItem{
			Item:    "Energy code compliance",
			Status:  StatusWarning,
			Details: "Projects over $10,000 may require energy code compliance documentation",
		})
	}

	return items
}
