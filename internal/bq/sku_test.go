package bq

import (
	"context"
	"strings"
	"testing"
)

func TestRenderSKUQuery_WildcardsAndJoins(t *testing.T) {
	q := renderSKUQuery("retail-analytics", []string{"412177", "889ABC"})

	if !strings.Contains(q, "'412177%', '889ABC%'") {
		t.Errorf("patterns not wildcarded/joined:\n%s", q)
	}
	if !strings.Contains(q, "`retail-analytics.master_data.sku_catalog`") {
		t.Errorf("project not interpolated into table reference:\n%s", q)
	}
	if !strings.Contains(q, "LIKE ANY") {
		t.Errorf("missing LIKE ANY clause:\n%s", q)
	}
}

func TestRenderSKUQuery_AlwaysLimited(t *testing.T) {
	codes := make([]string, 100)
	for i := range codes {
		codes[i] = "412" + strings.Repeat("0", 2) + string(rune('A'+i%26))
	}
	q := renderSKUQuery("p", codes)
	if !strings.HasSuffix(q, "LIMIT 20") {
		t.Errorf("query must end with LIMIT 20, got:\n%s", q)
	}
}

func TestRenderSKUQuery_DeduplicatesPreservingOrder(t *testing.T) {
	q := renderSKUQuery("p", []string{"AAA", "BBB", "AAA", " BBB "})
	if got := strings.Count(q, "'AAA%'"); got != 1 {
		t.Errorf("AAA appears %d times", got)
	}
	if !strings.Contains(q, "'AAA%', 'BBB%'") {
		t.Errorf("order not preserved:\n%s", q)
	}
}

func TestRenderSKUQuery_StripsMetacharacters(t *testing.T) {
	q := renderSKUQuery("p", []string{"41'2%_\\177"})
	if !strings.Contains(q, "'412177%'") {
		t.Errorf("metacharacters not stripped:\n%s", q)
	}
	if strings.Contains(q, "''") || strings.Contains(q, "\\") {
		t.Errorf("quote or escape leaked into query:\n%s", q)
	}
}

func TestSKURowToDomain(t *testing.T) {
	r := skuRow{
		SKU:             "41217739",
		SKUDescription:  "WIDGET 40W",
		ReplacementCost: 12.5,
		StateID:         1,
		BrandID:         7,
		BrandName:       "ACME",
		DivisionID:      3,
		DivisionCode:    "D03",
		DivisionName:    "HOME",
		SupplierID:      900,
		SupplierRUC:     "20123456789",
		SupplierName:    "ACME SA",
	}
	s := r.toDomain()
	if s.Code != "41217739" || s.ReplacementCost != "12.50" {
		t.Errorf("mapping wrong: %+v", s)
	}
	if s.DivisionCode != "D03" || s.SupplierRUC != "20123456789" {
		t.Errorf("hierarchy mapping wrong: %+v", s)
	}
}

func TestProbe_NilClient(t *testing.T) {
	var c *Client
	if err := c.Probe()(context.Background()); err == nil {
		t.Error("nil client should fail the probe")
	}
}
