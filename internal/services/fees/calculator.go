// Package fees computes permit fee estimates from a jurisdiction pack's fee
// schedule and submitted form data.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/permitsync/permitsync/internal/forms"
	"github.com/permitsync/permitsync/internal/jurisdiction"
)

// Conditional fee predicates recognized by the calculator. Unknown predicates
// never apply.
const (
	FeeTypePlanReview    = "plan_review"
	FeeTypeInspectionFee = "inspection_fee"
)

// LineItem is one fee in the estimate's breakdown.
type LineItem struct {
	FeeID       string          `json:"fee_id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Calculation string          `json:"calculation,omitempty"`
}

// Calculation is a fee estimate: the itemized breakdown in pack declaration
// order and its sum. Errors carries calculation failures as data; an estimate
// is best-effort, so a failure degrades the result instead of aborting it.
type Calculation struct {
	TotalFee  decimal.Decimal `json:"total_fee"`
	Breakdown []LineItem      `json:"breakdown"`
	Errors    []string        `json:"errors,omitempty"`
}

// Calculate composes three fee sources: flat fees whose permit type matches
// (all of them), at most one valuation tier, and conditional fees whose
// predicate holds. Each line rounds independently before summation. A panic
// while evaluating rules is converted into an Errors entry and the total
// reflects whatever was accumulated first.
func Calculate(pack *jurisdiction.Pack, permitType string, form forms.Data) (calc Calculation) {
	calc.TotalFee = decimal.Zero

	defer func() {
		if r := recover(); r != nil {
			calc.Errors = append(calc.Errors, fmt.Sprintf("error calculating fees: %v", r))
		}
	}()

	valuation, hasValuation := form.Valuation()
	// A zero valuation is treated as no valuation: no tier line is emitted.
	hasValuation = hasValuation && valuation > 0
	valuationDec := decimal.NewFromFloat(valuation)
	tierApplied := false

	for _, rule := range pack.Fees {
		switch rule.Kind {
		case jurisdiction.FeeFlat:
			if rule.PermitType != permitType {
				continue
			}
			calc.Breakdown = append(calc.Breakdown, LineItem{
				FeeID:  rule.ID,
				Name:   rule.Name,
				Amount: rule.Amount,
			})
			calc.TotalFee = calc.TotalFee.Add(rule.Amount)

		case jurisdiction.FeeValuation:
			// At most one tier contributes; no match is silent, not an error.
			if !hasValuation || tierApplied {
				continue
			}
			if valuationDec.LessThan(rule.TierMin) {
				continue
			}
			if rule.TierMax != nil && valuationDec.GreaterThan(*rule.TierMax) {
				continue
			}
			tierApplied = true
			percent := rule.Rate.Mul(decimal.NewFromInt(100))
			amount := valuationDec.Mul(rule.Rate).Round(0)
			calc.Breakdown = append(calc.Breakdown, LineItem{
				FeeID:       rule.ID,
				Name:        fmt.Sprintf("Valuation Fee (%s%%)", percent),
				Amount:      amount,
				Calculation: fmt.Sprintf("$%s × %s%% = $%s", valuationDec, percent, amount),
			})
			calc.TotalFee = calc.TotalFee.Add(amount)

		case jurisdiction.FeeConditional:
			if !predicateHolds(rule.FeeType, form) {
				continue
			}
			calc.Breakdown = append(calc.Breakdown, LineItem{
				FeeID:  rule.ID,
				Name:   rule.Name,
				Amount: rule.Amount,
			})
			calc.TotalFee = calc.TotalFee.Add(rule.Amount)
		}
	}

	return calc
}

func predicateHolds(feeType string, form forms.Data) bool {
	switch feeType {
	case FeeTypePlanReview:
		return form.HasAttachment("plans")
	case FeeTypeInspectionFee:
		return true
	default:
		return false
	}
}
