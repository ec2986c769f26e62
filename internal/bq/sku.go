// Package bq runs the read-only SKU lookup against the analytics warehouse.
// There is exactly one statement: a static template over the SKU catalog,
// LIKE ANY across the supplied codes, hard LIMIT 20.
package bq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/health"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// MaxRows is fixed in the query template; the endpoint never returns more.
const MaxRows = 20

const skuQueryTemplate = "SELECT" + `
	sku, sku_description, replacement_cost, state_id,
	brand_id, brand_name,
	subclass_id, subclass_code, subclass_name,
	class_id, class_code, class_name,
	subdepartment_id, subdepartment_code, subdepartment_name,
	department_id, department_code, department_name,
	division_id, division_code, division_name,
	supplier_id, supplier_ruc, supplier_name
FROM ` + "`%s.master_data.sku_catalog`" + `
WHERE sku LIKE ANY (%s)
LIMIT %d`

// renderSKUQuery builds the statement for the given project and codes.
// Codes are deduplicated preserving order, quoted, and suffixed with the %
// wildcard so prefixes match. Codes are validated upstream as alphanumeric;
// quotes are stripped here anyway.
func renderSKUQuery(project string, codes []string) string {
	seen := make(map[string]struct{}, len(codes))
	patterns := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		c = strings.NewReplacer("'", "", "\\", "", "%", "", "_", "").Replace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		patterns = append(patterns, "'"+c+"%'")
	}
	return fmt.Sprintf(skuQueryTemplate, project, strings.Join(patterns, ", "), MaxRows)
}

type skuRow struct {
	SKU               string  `bigquery:"sku"`
	SKUDescription    string  `bigquery:"sku_description"`
	ReplacementCost   float64 `bigquery:"replacement_cost"`
	StateID           int64   `bigquery:"state_id"`
	BrandID           int64   `bigquery:"brand_id"`
	BrandName         string  `bigquery:"brand_name"`
	SubclassID        int64   `bigquery:"subclass_id"`
	SubclassCode      string  `bigquery:"subclass_code"`
	SubclassName      string  `bigquery:"subclass_name"`
	ClassID           int64   `bigquery:"class_id"`
	ClassCode         string  `bigquery:"class_code"`
	ClassName         string  `bigquery:"class_name"`
	SubdepartmentID   int64   `bigquery:"subdepartment_id"`
	SubdepartmentCode string  `bigquery:"subdepartment_code"`
	SubdepartmentName string  `bigquery:"subdepartment_name"`
	DepartmentID      int64   `bigquery:"department_id"`
	DepartmentCode    string  `bigquery:"department_code"`
	DepartmentName    string  `bigquery:"department_name"`
	DivisionID        int64   `bigquery:"division_id"`
	DivisionCode      string  `bigquery:"division_code"`
	DivisionName      string  `bigquery:"division_name"`
	SupplierID        int64   `bigquery:"supplier_id"`
	SupplierRUC       string  `bigquery:"supplier_ruc"`
	SupplierName      string  `bigquery:"supplier_name"`
}

func (r skuRow) toDomain() domain.SKU {
	return domain.SKU{
		Code:              r.SKU,
		Description:       r.SKUDescription,
		ReplacementCost:   fmt.Sprintf("%.2f", r.ReplacementCost),
		StateID:           int(r.StateID),
		BrandID:           int(r.BrandID),
		BrandName:         r.BrandName,
		SubclassID:        int(r.SubclassID),
		SubclassCode:      r.SubclassCode,
		SubclassName:      r.SubclassName,
		ClassID:           int(r.ClassID),
		ClassCode:         r.ClassCode,
		ClassName:         r.ClassName,
		SubdepartmentID:   int(r.SubdepartmentID),
		SubdepartmentCode: r.SubdepartmentCode,
		SubdepartmentName: r.SubdepartmentName,
		DepartmentID:      int(r.DepartmentID),
		DepartmentCode:    r.DepartmentCode,
		DepartmentName:    r.DepartmentName,
		DivisionID:        int(r.DivisionID),
		DivisionCode:      r.DivisionCode,
		DivisionName:      r.DivisionName,
		SupplierID:        r.SupplierID,
		SupplierRUC:       r.SupplierRUC,
		SupplierName:      r.SupplierName,
	}
}

const divisionsQuery = `SELECT division_id, division_code, division_name
FROM ` + "`%s.master_data.divisions`" + `
ORDER BY division_code`

// queriesPerSecond caps outbound warehouse queries per instance. Scans are
// billed, so a misbehaving caller must not be able to fan out to BigQuery
// even if it slips past the HTTP-level limiter.
const queriesPerSecond = 5

// Client wraps the BigQuery connection for SKU and division lookups.
type Client struct {
	bq       *bigquery.Client
	project  string
	timeout  time.Duration
	throttle *rate.Limiter
	obs      func(result string, d time.Duration)
}

// New connects using a service-account credentials file.
func New(ctx context.Context, project, credentialsFile string, timeout time.Duration,
	obs func(result string, d time.Duration)) (*Client, error) {

	c, err := bigquery.NewClient(ctx, project, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, xerrors.Wrap(err, "create bigquery client")
	}
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &Client{
		bq:       c,
		project:  project,
		timeout:  timeout,
		throttle: rate.NewLimiter(queriesPerSecond, 2*queriesPerSecond),
		obs:      obs,
	}, nil
}

func (c *Client) Close() error { return c.bq.Close() }

// Probe reports whether the client is usable. A full dry-run per health
// check would bill queries, so this only verifies configuration.
func (c *Client) Probe() health.CheckFunc {
	return func(ctx context.Context) error {
		if c == nil || c.bq == nil {
			return xerrors.New("bigquery client not configured")
		}
		return nil
	}
}

// SKUsByCodes runs the template and maps rows. The warehouse enforces the
// row cap via LIMIT; this method never post-filters.
func (c *Client) SKUsByCodes(ctx context.Context, codes []string) ([]domain.SKU, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.throttle.Wait(ctx); err != nil {
		c.obs("throttled", time.Since(start))
		return nil, xerrors.Wrap(err, "wait for query slot")
	}

	q := c.bq.Query(renderSKUQuery(c.project, codes))
	it, err := q.Read(ctx)
	if err != nil {
		c.obs("error", time.Since(start))
		return nil, xerrors.Wrap(err, "run sku query")
	}

	var out []domain.SKU
	for {
		var row skuRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			c.obs("error", time.Since(start))
			return nil, xerrors.Wrap(err, "read sku row")
		}
		out = append(out, row.toDomain())
	}

	c.obs("ok", time.Since(start))
	return out, nil
}

// Divisions returns the merchandising divisions from the warehouse.
func (c *Client) Divisions(ctx context.Context) ([]domain.Division, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.throttle.Wait(ctx); err != nil {
		c.obs("throttled", time.Since(start))
		return nil, xerrors.Wrap(err, "wait for query slot")
	}

	q := c.bq.Query(fmt.Sprintf(divisionsQuery, c.project))
	it, err := q.Read(ctx)
	if err != nil {
		c.obs("error", time.Since(start))
		return nil, xerrors.Wrap(err, "run divisions query")
	}

	var out []domain.Division
	for {
		var row struct {
			DivisionID   int64  `bigquery:"division_id"`
			DivisionCode string `bigquery:"division_code"`
			DivisionName string `bigquery:"division_name"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			c.obs("error", time.Since(start))
			return nil, xerrors.Wrap(err, "read division row")
		}
		out = append(out, domain.Division{
			DivisionID:   int(row.DivisionID),
			DivisionCode: row.DivisionCode,
			DivisionName: row.DivisionName,
		})
	}

	c.obs("ok", time.Since(start))
	return out, nil
}
