package domain

import "time"

// SearchFilter carries the agreement search criteria. Every field is
// optional; the set is forwarded to the search_agreements database function
// unchanged, no filtering happens in this process.
type SearchFilter struct {
	BusinessUnitID  int        `json:"business_unit_id"`
	DivisionCodes   []string   `json:"division_codes,omitempty"`
	StatusIDs       []string   `json:"status_ids,omitempty"`
	CreatedByEmails []string   `json:"created_by_emails,omitempty"`
	AgreementNumber *int       `json:"agreement_number,omitempty"`
	SKUCode         string     `json:"sku_code,omitempty"`
	Description     string     `json:"description,omitempty"`
	RebateTypeID    string     `json:"rebate_type_id,omitempty"`
	ConceptID       string     `json:"concept_id,omitempty"`
	SPFCode         string     `json:"spf_code,omitempty"`
	SPFDescription  string     `json:"spf_description,omitempty"`
	StartDateFrom   *time.Time `json:"start_date_from,omitempty"`
	EndDateTo       *time.Time `json:"end_date_to,omitempty"`
	SupplierRUC     string     `json:"supplier_ruc,omitempty"`
	SupplierName    string     `json:"supplier_name,omitempty"`
	StoreGroupingID string     `json:"store_grouping_id,omitempty"`
	PMMUsername     string     `json:"pmm_username,omitempty"`
	Limit           int        `json:"limit"`
	Offset          int        `json:"offset"`
}

// SearchResult is one row returned by search_agreements, plus the total
// match count the function reports on every row.
type SearchResult struct {
	Agreements []Agreement `json:"agreements"`
	TotalCount int64       `json:"total_count"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}
