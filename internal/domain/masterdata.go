package domain

import "time"

// Store is a physical or online store belonging to a business unit.
// StoreCode is unique within the business unit.
type Store struct {
	ID             int64     `json:"id"`
	BusinessUnitID int       `json:"business_unit_id"`
	StoreCode      int       `json:"store_id"`
	Name           string    `json:"name"`
	ZoneID         *int      `json:"zone_id,omitempty"`
	ZoneName       string    `json:"zone_name,omitempty"`
	ChannelID      *int      `json:"channel_id,omitempty"`
	ChannelName    string    `json:"channel_name,omitempty"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Supplier is a reference entity keyed by RUC (tax registration code).
type Supplier struct {
	ID        int64     `json:"id"`
	RUC       string    `json:"ruc"`
	Name      string    `json:"name"`
	Grouping  string    `json:"grouping,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Division is a top-level merchandising hierarchy node, read from the
// analytics warehouse.
type Division struct {
	DivisionID   int    `json:"division_id"`
	DivisionCode string `json:"division_code"`
	DivisionName string `json:"division_name"`
}

// LookupCategory groups lookup values under a stable code
// (REBATE_TYPE, CONCEPT, BILLING_TYPE, ...).
type LookupCategory struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	AllowHierarchy bool   `json:"allow_hierarchy"`
	Active         bool   `json:"active"`
}

// LookupValue is one selectable option inside a category. OptionKey is
// unique per category; Metadata carries free-form attributes.
type LookupValue struct {
	ID           int64             `json:"id"`
	CategoryID   int64             `json:"category_id"`
	OptionKey    string            `json:"option_key"`
	DisplayValue string            `json:"display_value"`
	OptionValue  string            `json:"option_value,omitempty"`
	ParentID     *int64            `json:"parent_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SortOrder    int               `json:"sort_order"`
	Active       bool              `json:"active"`
}

// Module is an application module a user can be granted access to.
type Module struct {
	ID             int64  `json:"id"`
	BusinessUnitID int    `json:"business_unit_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Active         bool   `json:"is_active"`
}

// SKU is a read-only product row from the analytics warehouse.
type SKU struct {
	Code              string `json:"sku"`
	Description       string `json:"sku_description"`
	ReplacementCost   string `json:"replacement_cost"`
	StateID           int    `json:"state_id"`
	BrandID           int    `json:"brand_id"`
	BrandName         string `json:"brand_name"`
	SubclassID        int    `json:"subclass_id"`
	SubclassCode      string `json:"subclass_code"`
	SubclassName      string `json:"subclass_name"`
	ClassID           int    `json:"class_id"`
	ClassCode         string `json:"class_code"`
	ClassName         string `json:"class_name"`
	SubdepartmentID   int    `json:"subdepartment_id"`
	SubdepartmentCode string `json:"subdepartment_code"`
	SubdepartmentName string `json:"subdepartment_name"`
	DepartmentID      int    `json:"department_id"`
	DepartmentCode    string `json:"department_code"`
	DepartmentName    string `json:"department_name"`
	DivisionID        int    `json:"division_id"`
	DivisionCode      string `json:"division_code"`
	DivisionName      string `json:"division_name"`
	SupplierID        int64  `json:"supplier_id"`
	SupplierRUC       string `json:"supplier_ruc"`
	SupplierName      string `json:"supplier_name"`
}
