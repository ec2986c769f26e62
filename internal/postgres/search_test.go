package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/retailcore/rebates-api/internal/domain"
)

func TestSearchArgs_EmptyFilterPassesNulls(t *testing.T) {
	args := searchArgs(domain.SearchFilter{BusinessUnitID: 5, Limit: 50})

	for _, key := range []string{
		"division_codes", "status_ids", "created_by_emails",
		"sku_code", "description", "rebate_type_id", "concept_id",
		"spf_code", "spf_description", "supplier_ruc", "supplier_name",
		"store_grouping_id", "pmm_username",
	} {
		v, ok := args[key]
		if !ok {
			t.Errorf("missing arg %q", key)
			continue
		}
		switch tv := v.(type) {
		case []string:
			if tv != nil {
				t.Errorf("arg %q should be nil slice, got %v", key, tv)
			}
		case *string:
			if tv != nil {
				t.Errorf("arg %q should be nil, got %v", key, *tv)
			}
		default:
			t.Errorf("arg %q has unexpected type %T", key, v)
		}
	}

	if args["business_unit_id"] != 5 || args["limit"] != 50 || args["offset"] != 0 {
		t.Errorf("scalar args wrong: %v", args)
	}
	if v := args["agreement_number"].(*int); v != nil {
		t.Errorf("agreement_number should be nil, got %v", *v)
	}
	if v := args["start_date"].(*time.Time); v != nil {
		t.Errorf("start_date should be nil, got %v", *v)
	}
}

func TestSearchArgs_SetValuesPassThrough(t *testing.T) {
	num := 4711
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := domain.SearchFilter{
		BusinessUnitID:  5,
		DivisionCodes:   []string{"D01", "D02"},
		StatusIDs:       []string{"1", "2"},
		AgreementNumber: &num,
		SKUCode:         "41217739",
		StartDateFrom:   &from,
		SupplierRUC:     "20123456789",
		Limit:           25,
		Offset:          50,
	}
	args := searchArgs(f)

	if got := args["division_codes"].([]string); len(got) != 2 || got[0] != "D01" {
		t.Errorf("division_codes = %v", got)
	}
	if got := args["agreement_number"].(*int); got == nil || *got != 4711 {
		t.Errorf("agreement_number = %v", got)
	}
	if got := args["sku_code"].(*string); got == nil || *got != "41217739" {
		t.Errorf("sku_code = %v", got)
	}
	if got := args["start_date"].(*time.Time); got == nil || !got.Equal(from) {
		t.Errorf("start_date = %v", got)
	}
	if args["limit"] != 25 || args["offset"] != 50 {
		t.Errorf("pagination args = %v / %v", args["limit"], args["offset"])
	}
}

func TestSearchSQL_NamesEveryParameter(t *testing.T) {
	// every named arg must appear in the function call and vice versa
	args := searchArgs(domain.SearchFilter{})
	for key := range args {
		if !strings.Contains(searchSQL, "@"+key) {
			t.Errorf("searchSQL missing placeholder @%s", key)
		}
	}
	if !strings.Contains(searchSQL, "search_agreements(") {
		t.Error("searchSQL must call search_agreements")
	}
}

func TestNullIfEmptyAndDeref(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("empty string should map to nil")
	}
	if v := nullIfEmpty("x"); v == nil || *v != "x" {
		t.Errorf("got %v", v)
	}
	if deref(nil) != "" {
		t.Error("nil should deref to empty string")
	}
	s := "y"
	if deref(&s) != "y" {
		t.Error("deref should return value")
	}
}
