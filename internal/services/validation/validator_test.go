package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitsync/permitsync/internal/forms"
	"github.com/permitsync/permitsync/internal/jurisdiction"
)

func floatPtr(f float64) *float64 { return &f }

func testPack() *jurisdiction.Pack {
	return &jurisdiction.Pack{
		Key:  "us/md/testville",
		Name: "Testville, MD",
		PermitTypes: map[string]jurisdiction.PermitTypeDef{
			"residential_kitchen_remodel": {
				Label:       "Residential Kitchen Remodel",
				Attachments: []string{"plans", "license"},
				Fields: map[string]jurisdiction.FieldRule{
					"valuation_usd":         {Required: true, Min: floatPtr(500)},
					"contractor_license":    {Required: true, Pattern: `^MHIC-[0-9]{5,6}$`},
					"scope_description":     {Required: true, Min: floatPtr(20), Max: floatPtr(2000)},
					"water_heater_replaced": {Options: []string{"yes", "no"}},
				},
			},
		},
	}
}

func completeForm() forms.Data {
	return forms.Data{
		Fields: map[string]forms.Value{
			"valuation_usd":      forms.Number(5000),
			"contractor_license": forms.String("MHIC-12345"),
			"scope_description":  forms.String("Full kitchen remodel with new circuits"),
		},
		Attachments: map[string]string{
			"plans":   "s3://bucket/plans.pdf",
			"license": "s3://bucket/license.pdf",
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("should pass a complete submission", func(t *testing.T) {
		result := Validate(testPack(), "residential_kitchen_remodel", completeForm())
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
	})

	t.Run("should fail fast on unknown permit type", func(t *testing.T) {
		result := Validate(testPack(), "moon_base", completeForm())
		assert.False(t, result.IsValid)
		require.Len(t, result.Errors, 1, "field rules are not evaluated for unknown types")
		assert.Equal(t, CodeInvalidPermitType, result.Errors[0].Code)
	})

	t.Run("should report every missing required field and attachment", func(t *testing.T) {
		result := Validate(testPack(), "residential_kitchen_remodel", forms.Data{})
		assert.False(t, result.IsValid)

		codes := map[string]int{}
		for _, e := range result.Errors {
			codes[e.Code]++
		}
		assert.Equal(t, 3, codes[CodeRequiredField])
		assert.Equal(t, 2, codes[CodeMissingAttachment])
	})

	t.Run("should report one required error per missing field", func(t *testing.T) {
		form := completeForm()
		delete(form.Fields, "scope_description")
		result := Validate(testPack(), "residential_kitchen_remodel", form)

		var fieldErrs []Error
		for _, e := range result.Errors {
			if e.Field == "scope_description" {
				fieldErrs = append(fieldErrs, e)
			}
		}
		require.Len(t, fieldErrs, 1, "missing required field skips the min/max checks")
		assert.Equal(t, CodeRequiredField, fieldErrs[0].Code)
	})

	t.Run("should check numeric bounds", func(t *testing.T) {
		form := completeForm()
		form.Fields["valuation_usd"] = forms.Number(200)
		result := Validate(testPack(), "residential_kitchen_remodel", form)

		assert.False(t, result.IsValid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, CodeMinValue, result.Errors[0].Code)
		assert.Equal(t, "valuation_usd", result.Errors[0].Field)
	})

	t.Run("should check string length bounds", func(t *testing.T) {
		form := completeForm()
		form.Fields["scope_description"] = forms.String("too short")
		result := Validate(testPack(), "residential_kitchen_remodel", form)

		require.Len(t, result.Errors, 1)
		assert.Equal(t, CodeMinLength, result.Errors[0].Code)
	})

	t.Run("should check pattern and options", func(t *testing.T) {
		form := completeForm()
		form.Fields["contractor_license"] = forms.String("12345")
		form.Fields["water_heater_replaced"] = forms.String("maybe")
		result := Validate(testPack(), "residential_kitchen_remodel", form)

		codes := map[string]bool{}
		for _, e := range result.Errors {
			codes[e.Code] = true
		}
		assert.True(t, codes[CodeInvalidFormat])
		assert.True(t, codes[CodeInvalidOption])
	})

	t.Run("should skip optional empty fields", func(t *testing.T) {
		form := completeForm()
		// water_heater_replaced is optional and absent
		result := Validate(testPack(), "residential_kitchen_remodel", form)
		assert.True(t, result.IsValid)
	})

	t.Run("should warn on low valuation without failing", func(t *testing.T) {
		form := completeForm()
		form.Fields["valuation_usd"] = forms.Number(800)
		result := Validate(testPack(), "residential_kitchen_remodel", form)

		assert.True(t, result.IsValid, "warnings never block")
		assert.NotEmpty(t, result.Warnings)
	})

	t.Run("should produce deterministic error order", func(t *testing.T) {
		first := Validate(testPack(), "residential_kitchen_remodel", forms.Data{})
		second := Validate(testPack(), "residential_kitchen_remodel", forms.Data{})
		assert.Equal(t, first.Errors, second.Errors)
	})
}
