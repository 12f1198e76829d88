// Package validation checks a permit application's form data and attachments
// against a jurisdiction pack's permit-type rules.
package validation

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/permitsync/permitsync/internal/forms"
	"github.com/permitsync/permitsync/internal/jurisdiction"
)

// Error codes. Field-level problems are returned as data, never as Go errors,
// so callers can present every problem at once.
const (
	CodeInvalidPermitType = "INVALID_PERMIT_TYPE"
	CodeRequiredField     = "REQUIRED_FIELD"
	CodeMinValue          = "MIN_VALUE"
	CodeMinLength         = "MIN_LENGTH"
	CodeMaxValue          = "MAX_VALUE"
	CodeMaxLength         = "MAX_LENGTH"
	CodeInvalidFormat     = "INVALID_FORMAT"
	CodeInvalidOption     = "INVALID_OPTION"
	CodeMissingAttachment = "MISSING_ATTACHMENT"
)

// lowValuationThreshold is the soft floor below which a warning (not an error)
// is attached to the result.
const lowValuationThreshold = 1000

// Error describes one failed rule on one field.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Result accumulates everything wrong (and advisory) with a submission.
// IsValid is true iff Errors is empty; warnings never block.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []Error  `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate evaluates form data against the named permit type's rules.
//
// An unknown permit type fails fast with a single INVALID_PERMIT_TYPE error.
// Otherwise every field rule and required-attachment check runs to completion;
// a single field can accumulate several errors.
func Validate(pack *jurisdiction.Pack, permitType string, form forms.Data) Result {
	var errs []Error
	var warnings []string

	def, ok := pack.PermitTypes[permitType]
	if !ok {
		errs = append(errs, Error{
			Field:   "permitType",
			Message: fmt.Sprintf("Invalid permit type: %s", permitType),
			Code:    CodeInvalidPermitType,
		})
		return Result{IsValid: false, Errors: errs}
	}

	for _, name := range sortedFieldNames(def.Fields) {
		errs = append(errs, validateField(name, form.Field(name), def.Fields[name])...)
	}

	for _, attachment := range def.Attachments {
		if !form.HasAttachment(attachment) {
			errs = append(errs, Error{
				Field:   "attachments." + attachment,
				Message: fmt.Sprintf("Required attachment missing: %s", attachment),
				Code:    CodeMissingAttachment,
			})
		}
	}

	if valuation, ok := form.Valuation(); ok && valuation < lowValuationThreshold {
		warnings = append(warnings, "Low valuation amount may require additional documentation")
	}

	return Result{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func validateField(name string, value forms.Value, rule jurisdiction.FieldRule) []Error {
	var errs []Error

	if rule.Required && value.IsEmpty() {
		return append(errs, Error{
			Field:   name,
			Message: fmt.Sprintf("%s is required", name),
			Code:    CodeRequiredField,
		})
	}
	if value.IsEmpty() {
		return nil
	}

	if rule.Min != nil {
		if n, ok := value.AsNumber(); ok && n < *rule.Min {
			errs = append(errs, Error{
				Field:   name,
				Message: fmt.Sprintf("%s must be at least %v", name, *rule.Min),
				Code:    CodeMinValue,
			})
		}
		if s, ok := value.AsString(); ok && float64(len(s)) < *rule.Min {
			errs = append(errs, Error{
				Field:   name,
				Message: fmt.Sprintf("%s must be at least %v characters", name, *rule.Min),
				Code:    CodeMinLength,
			})
		}
	}

	if rule.Max != nil {
		if n, ok := value.AsNumber(); ok && n > *rule.Max {
			errs = append(errs, Error{
				Field:   name,
				Message: fmt.Sprintf("%s cannot exceed %v", name, *rule.Max),
				Code:    CodeMaxValue,
			})
		}
		if s, ok := value.AsString(); ok && float64(len(s)) > *rule.Max {
			errs = append(errs, Error{
				Field:   name,
				Message: fmt.Sprintf("%s cannot exceed %v characters", name, *rule.Max),
				Code:    CodeMaxLength,
			})
		}
	}

	if rule.Pattern != "" {
		if s, ok := value.AsString(); ok {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil || !re.MatchString(s) {
				errs = append(errs, Error{
					Field:   name,
					Message: fmt.Sprintf("%s format is invalid", name),
					Code:    CodeInvalidFormat,
				})
			}
		}
	}

	if len(rule.Options) > 0 {
		if s, ok := value.AsString(); ok && !contains(rule.Options, s) {
			errs = append(errs, Error{
				Field:   name,
				Message: fmt.Sprintf("%s must be one of the allowed options", name),
				Code:    CodeInvalidOption,
			})
		}
	}

	return errs
}

// sortedFieldNames fixes evaluation order so repeated runs produce errors in
// the same sequence.
func sortedFieldNames(fields map[string]jurisdiction.FieldRule) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
