// Package domain holds the core entities of the rebate agreements service.
// Types here are storage-agnostic; repositories and handlers map to and from
// them.
package domain

import "time"

// SourceSystem identifies where an agreement originated.
type SourceSystem string

const (
	SourceSPF SourceSystem = "SPF"
	SourcePMM SourceSystem = "PMM"
)

func (s SourceSystem) Valid() bool {
	return s == SourceSPF || s == SourcePMM
}

// AgreementStatus is the fixed status enumeration. Values are the string
// codes stored in the database, not display names.
type AgreementStatus string

const (
	StatusGenerated AgreementStatus = "1"
	StatusApproved  AgreementStatus = "2"
	StatusCancelled AgreementStatus = "3"
	StatusExpired   AgreementStatus = "4"
	StatusDraft     AgreementStatus = "5"
	StatusRejected  AgreementStatus = "6"
	StatusDeleted   AgreementStatus = "7"
)

var statusNames = map[AgreementStatus]string{
	StatusGenerated: "GENERATED",
	StatusApproved:  "APPROVED",
	StatusCancelled: "CANCELLED",
	StatusExpired:   "EXPIRED",
	StatusDraft:     "DRAFT",
	StatusRejected:  "REJECTED",
	StatusDeleted:   "DELETED",
}

func (s AgreementStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Name returns the display name for a status code, or "" if unknown.
func (s AgreementStatus) Name() string { return statusNames[s] }

// StoreRuleStatus says whether a store is included in or excluded from an
// agreement's scope.
type StoreRuleStatus string

const (
	StoreRuleInclude StoreRuleStatus = "INCLUDE"
	StoreRuleExclude StoreRuleStatus = "EXCLUDE"
)

func (s StoreRuleStatus) Valid() bool {
	return s == StoreRuleInclude || s == StoreRuleExclude
}

// Agreement is a commercial rebate agreement. AgreementNumber is unique per
// business unit among active rows.
type Agreement struct {
	ID              int64            `json:"id"`
	BusinessUnitID  int              `json:"business_unit_id"`
	AgreementNumber *int             `json:"agreement_number,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	AgreementTypeID string           `json:"agreement_type_id"`
	StatusID        AgreementStatus  `json:"status_id"`
	StatusName      string           `json:"status_name,omitempty"`
	RebateTypeID    string           `json:"rebate_type_id"`
	RebateTypeName  string           `json:"rebate_type_name,omitempty"`
	ConceptID       string           `json:"concept_id"`
	ConceptName     string           `json:"concept_name,omitempty"`
	Description     string           `json:"description,omitempty"`
	ActivityName    string           `json:"activity_name,omitempty"`
	SourceSystem    SourceSystem     `json:"source_system"`
	SPFCode         string           `json:"spf_code,omitempty"`
	SPFDescription  string           `json:"spf_description,omitempty"`
	CurrencyID      *int             `json:"currency_id,omitempty"`
	UnitPrice       string           `json:"unit_price"`
	BillingType     string           `json:"billing_type"`
	PMMUsername     string           `json:"pmm_username,omitempty"`
	StoreGroupingID string           `json:"store_grouping_id,omitempty"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	CreatedBy       string           `json:"created_by_user_email"`
	UpdatedAt       time.Time        `json:"updated_at"`
	StatusUpdatedBy string           `json:"updated_status_by_user_email,omitempty"`
	Products        []Product        `json:"products,omitempty"`
	StoreRules      []StoreRule      `json:"store_rules,omitempty"`
	ExcludedFlags   []ExcludedFlag   `json:"excluded_flags,omitempty"`
}

// Product is a SKU covered by an agreement, with the merchandising
// hierarchy and supplier captured at assignment time.
type Product struct {
	ID                 int64     `json:"id"`
	AgreementID        int64     `json:"agreement_id"`
	SKUCode            string    `json:"sku_code"`
	SKUDescription     string    `json:"sku_description,omitempty"`
	DivisionCode       string    `json:"division_code,omitempty"`
	DivisionName       string    `json:"division_name,omitempty"`
	DepartmentCode     string    `json:"department_code,omitempty"`
	DepartmentName     string    `json:"department_name,omitempty"`
	SubdepartmentCode  string    `json:"subdepartment_code,omitempty"`
	SubdepartmentName  string    `json:"subdepartment_name,omitempty"`
	ClassCode          string    `json:"class_code,omitempty"`
	ClassName          string    `json:"class_name,omitempty"`
	SubclassCode       string    `json:"subclass_code,omitempty"`
	SubclassName       string    `json:"subclass_name,omitempty"`
	BrandID            string    `json:"brand_id,omitempty"`
	BrandName          string    `json:"brand_name,omitempty"`
	SupplierID         *int64    `json:"supplier_id,omitempty"`
	SupplierName       string    `json:"supplier_name,omitempty"`
	SupplierRUC        string    `json:"supplier_ruc,omitempty"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	CreatedBy          string    `json:"created_by_user_email"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StoreRule includes or excludes a single store from an agreement.
type StoreRule struct {
	ID          int64           `json:"id"`
	AgreementID int64           `json:"agreement_id"`
	StoreID     int64           `json:"store_id"`
	Status      StoreRuleStatus `json:"status"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	CreatedBy   string          `json:"created_by_user_email"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ExcludedFlag marks a lookup-defined flag excluded from an agreement.
type ExcludedFlag struct {
	ID             int64     `json:"id"`
	AgreementID    int64     `json:"agreement_id"`
	ExcludedFlagID string    `json:"excluded_flag_id"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by_user_email"`
	UpdatedAt      time.Time `json:"updated_at"`
}
