package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitsync/permitsync/internal/forms"
	"github.com/permitsync/permitsync/internal/jurisdiction"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func rate(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func kitchenPack() *jurisdiction.Pack {
	return &jurisdiction.Pack{
		Key: "us/md/gaithersburg",
		Fees: []jurisdiction.FeeRule{
			{
				ID:         "base_residential_kitchen_remodel",
				Name:       "Base Fee: residential kitchen remodel",
				Kind:       jurisdiction.FeeFlat,
				Amount:     dec(125),
				PermitType: "residential_kitchen_remodel",
			},
			{
				ID:      "valuation_tier_0",
				Kind:    jurisdiction.FeeValuation,
				TierMin: dec(0),
				TierMax: decPtr(10000),
				Rate:    rate("0.015"),
			},
			{
				ID:      "valuation_tier_1",
				Kind:    jurisdiction.FeeValuation,
				TierMin: dec(10001),
				TierMax: decPtr(50000),
				Rate:    rate("0.02"),
			},
			{
				ID:      "additional_plan_review",
				Name:    "Additional Fee: plan review",
				Kind:    jurisdiction.FeeConditional,
				Amount:  dec(75),
				FeeType: FeeTypePlanReview,
			},
			{
				ID:      "additional_inspection_fee",
				Name:    "Additional Fee: inspection fee",
				Kind:    jurisdiction.FeeConditional,
				Amount:  dec(50),
				FeeType: FeeTypeInspectionFee,
			},
		},
	}
}

func formWith(valuation float64, withPlans bool) forms.Data {
	data := forms.Data{
		Fields:      map[string]forms.Value{forms.ValuationField: forms.Number(valuation)},
		Attachments: map[string]string{},
	}
	if withPlans {
		data.Attachments["plans"] = "s3://bucket/plans.pdf"
	}
	return data
}

func TestCalculate(t *testing.T) {
	t.Run("valuation 5000 with plans totals 325", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(5000, true))

		require.Len(t, calc.Breakdown, 4)
		assert.True(t, calc.Breakdown[0].Amount.Equal(dec(125)), "base fee")
		assert.True(t, calc.Breakdown[1].Amount.Equal(dec(75)), "5000 at 1.5%")
		assert.True(t, calc.Breakdown[2].Amount.Equal(dec(75)), "plan review")
		assert.True(t, calc.Breakdown[3].Amount.Equal(dec(50)), "inspection fee")
		assert.True(t, calc.TotalFee.Equal(dec(325)), "got %s", calc.TotalFee)
		assert.Empty(t, calc.Errors)
	})

	t.Run("valuation 25000 without plans totals 675", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(25000, false))

		require.Len(t, calc.Breakdown, 3)
		assert.True(t, calc.Breakdown[1].Amount.Equal(dec(500)), "25000 at 2%")
		assert.True(t, calc.TotalFee.Equal(dec(675)), "got %s", calc.TotalFee)
	})

	t.Run("should apply at most one tier", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(10000, false))

		var tiers []LineItem
		for _, item := range calc.Breakdown {
			if item.FeeID == "valuation_tier_0" || item.FeeID == "valuation_tier_1" {
				tiers = append(tiers, item)
			}
		}
		require.Len(t, tiers, 1, "boundary valuation matches exactly one tier")
		assert.Equal(t, "valuation_tier_0", tiers[0].FeeID, "upper bound is inclusive")
		assert.True(t, tiers[0].Amount.Equal(dec(150)))
	})

	t.Run("should skip tiers when valuation exceeds them all", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(90000, false))

		for _, item := range calc.Breakdown {
			assert.NotContains(t, item.FeeID, "valuation_tier", "no tier covers 90000")
		}
		assert.Empty(t, calc.Errors, "an uncovered valuation is not an error")
		assert.True(t, calc.TotalFee.Equal(dec(175)), "base plus inspection only, got %s", calc.TotalFee)
	})

	t.Run("should skip flat fees for other permit types", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "deck_construction", formWith(5000, false))

		for _, item := range calc.Breakdown {
			assert.NotEqual(t, "base_residential_kitchen_remodel", item.FeeID)
		}
	})

	t.Run("should handle open-ended tiers", func(t *testing.T) {
		pack := kitchenPack()
		pack.Fees[2].TierMax = nil
		calc := Calculate(pack, "residential_kitchen_remodel", formWith(200000, false))

		found := false
		for _, item := range calc.Breakdown {
			if item.FeeID == "valuation_tier_1" {
				found = true
				assert.True(t, item.Amount.Equal(dec(4000)))
			}
		}
		assert.True(t, found, "open-ended tier catches large valuations")
	})

	t.Run("should skip valuation fees without a valuation", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", forms.Data{})

		require.Len(t, calc.Breakdown, 2, "base and inspection only")
		assert.True(t, calc.TotalFee.Equal(dec(175)))
	})

	t.Run("should treat a zero valuation as no valuation", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(0, false))

		require.Len(t, calc.Breakdown, 2, "no zero-dollar tier line")
		assert.True(t, calc.TotalFee.Equal(dec(175)))
	})

	t.Run("should ignore unknown conditional predicates", func(t *testing.T) {
		pack := kitchenPack()
		pack.Fees = append(pack.Fees, jurisdiction.FeeRule{
			ID:      "additional_mystery",
			Kind:    jurisdiction.FeeConditional,
			Amount:  dec(999),
			FeeType: "mystery",
		})
		calc := Calculate(pack, "residential_kitchen_remodel", formWith(5000, false))

		for _, item := range calc.Breakdown {
			assert.NotEqual(t, "additional_mystery", item.FeeID)
		}
	})

	t.Run("total always equals sum of breakdown", func(t *testing.T) {
		for _, valuation := range []float64{0, 999, 10000, 10001, 49999, 50000} {
			calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(valuation, true))
			sum := decimal.Zero
			for _, item := range calc.Breakdown {
				sum = sum.Add(item.Amount)
			}
			assert.True(t, calc.TotalFee.Equal(sum), "valuation %v: total %s vs sum %s",
				valuation, calc.TotalFee, sum)
		}
	})

	t.Run("should round tier amounts to whole dollars", func(t *testing.T) {
		calc := Calculate(kitchenPack(), "residential_kitchen_remodel", formWith(333, false))
		for _, item := range calc.Breakdown {
			if item.FeeID == "valuation_tier_0" {
				assert.True(t, item.Amount.Equal(dec(5)), "4.995 rounds to 5, got %s", item.Amount)
			}
		}
	})
}
