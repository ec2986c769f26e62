// Package validate provides field-level request validation producing the
// shared {field, message} error shape the API returns with 422 responses.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/retailcore/rebates-api/internal/domain"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the collected validation failures for one request.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Errors) add(field, format string, args ...any) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns the error interface, nil when no failures were collected.
func (e Errors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

var (
	skuCodeRe = regexp.MustCompile(`^[a-zA-Z0-9]{3,8}$`)
	emailRe   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	rucRe     = regexp.MustCompile(`^\d{11}$`)
)

// SKUCodes checks the SKU lookup request: 1..100 codes, each 3..8
// alphanumeric characters after trimming.
func SKUCodes(codes []string) error {
	var errs Errors
	if len(codes) == 0 {
		errs.add("sku_codes", "must contain at least one code")
		return errs
	}
	if len(codes) > 100 {
		errs.add("sku_codes", "must contain at most 100 codes (got %d)", len(codes))
		return errs
	}
	for i, c := range codes {
		if !skuCodeRe.MatchString(strings.TrimSpace(c)) {
			errs.add(fmt.Sprintf("sku_codes[%d]", i), "must be 3-8 alphanumeric characters")
		}
	}
	return errs.OrNil()
}

// Email checks basic address shape; full RFC parsing is not the goal here.
func Email(field, v string) *FieldError {
	if len(v) > 320 || !emailRe.MatchString(v) {
		return &FieldError{Field: field, Message: "must be a valid email address"}
	}
	return nil
}

// Agreement checks an agreement payload for create or replace.
func Agreement(a domain.Agreement) error {
	var errs Errors

	if a.BusinessUnitID <= 0 {
		errs.add("business_unit_id", "must be a positive integer")
	}
	if a.AgreementTypeID == "" {
		errs.add("agreement_type_id", "is required")
	}
	if !a.StatusID.Valid() {
		errs.add("status_id", "must be one of the defined status codes")
	}
	if a.RebateTypeID == "" {
		errs.add("rebate_type_id", "is required")
	}
	if a.ConceptID == "" {
		errs.add("concept_id", "is required")
	}
	if len(a.Description) > 70 {
		errs.add("description", "must be at most 70 characters")
	}
	if len(a.ActivityName) > 100 {
		errs.add("activity_name", "must be at most 100 characters")
	}
	if !a.SourceSystem.Valid() {
		errs.add("source_system", "must be SPF or PMM")
	}
	if a.SourceSystem == domain.SourceSPF && a.SPFCode == "" {
		errs.add("spf_code", "is required for SPF agreements")
	}
	if a.SourceSystem == domain.SourcePMM && a.PMMUsername == "" {
		errs.add("pmm_username", "is required for PMM agreements")
	}
	if a.UnitPrice == "" {
		errs.add("unit_price", "is required")
	}
	if a.BillingType == "" {
		errs.add("billing_type", "is required")
	}
	if a.StartDate != nil && a.EndDate != nil && a.EndDate.Before(*a.StartDate) {
		errs.add("end_date", "must not be before start_date")
	}

	for i, p := range a.Products {
		if strings.TrimSpace(p.SKUCode) == "" {
			errs.add(fmt.Sprintf("products[%d].sku_code", i), "is required")
		}
	}
	for i, r := range a.StoreRules {
		if r.StoreID <= 0 {
			errs.add(fmt.Sprintf("store_rules[%d].store_id", i), "must be a positive integer")
		}
		if !r.Status.Valid() {
			errs.add(fmt.Sprintf("store_rules[%d].status", i), "must be INCLUDE or EXCLUDE")
		}
	}
	for i, f := range a.ExcludedFlags {
		if f.ExcludedFlagID == "" {
			errs.add(fmt.Sprintf("excluded_flags[%d].excluded_flag_id", i), "is required")
		}
	}

	return errs.OrNil()
}

// SearchFilter checks pagination bounds and normalizes the date range.
func SearchFilter(f domain.SearchFilter) error {
	var errs Errors
	if f.Limit < 1 || f.Limit > 500 {
		errs.add("limit", "must be 1..500")
	}
	if f.Offset < 0 {
		errs.add("offset", "must be >= 0")
	}
	if f.StartDateFrom != nil && f.EndDateTo != nil && f.EndDateTo.Before(*f.StartDateFrom) {
		errs.add("end_date_to", "must not be before start_date_from")
	}
	for i, s := range f.StatusIDs {
		if !domain.AgreementStatus(s).Valid() {
			errs.add(fmt.Sprintf("status_ids[%d]", i), "unknown status code %q", s)
		}
	}
	for i, e := range f.CreatedByEmails {
		if fe := Email(fmt.Sprintf("created_by_emails[%d]", i), e); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs.OrNil()
}

// Store checks a store payload for create or update.
func Store(s domain.Store) error {
	var errs Errors
	if s.BusinessUnitID <= 0 {
		errs.add("business_unit_id", "must be a positive integer")
	}
	if s.StoreCode <= 0 {
		errs.add("store_id", "must be a positive integer")
	}
	if strings.TrimSpace(s.Name) == "" {
		errs.add("name", "is required")
	}
	if len(s.Name) > 255 {
		errs.add("name", "must be at most 255 characters")
	}
	return errs.OrNil()
}

// Supplier checks a supplier payload. RUC is 11 digits.
func Supplier(s domain.Supplier) error {
	var errs Errors
	if !rucRe.MatchString(s.RUC) {
		errs.add("ruc", "must be exactly 11 digits")
	}
	if strings.TrimSpace(s.Name) == "" {
		errs.add("name", "is required")
	}
	return errs.OrNil()
}
