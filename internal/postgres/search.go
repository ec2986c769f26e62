package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// searchSQL invokes the search_agreements database function. All filtering,
// ordering, and pagination happen inside the function; every row carries the
// total match count.
const searchSQL = `
SELECT * FROM ` + schema + `.search_agreements(
	p_business_unit_id  => @business_unit_id,
	p_division_codes    => @division_codes,
	p_status_ids        => @status_ids,
	p_created_by_emails => @created_by_emails,
	p_agreement_number  => @agreement_number,
	p_sku_code          => @sku_code,
	p_description       => @description,
	p_rebate_type_id    => @rebate_type_id,
	p_concept_id        => @concept_id,
	p_spf_code          => @spf_code,
	p_spf_description   => @spf_description,
	p_start_date        => @start_date,
	p_end_date          => @end_date,
	p_supplier_ruc      => @supplier_ruc,
	p_supplier_name     => @supplier_name,
	p_store_grouping_id => @store_grouping_id,
	p_pmm_username      => @pmm_username,
	p_limit             => @limit,
	p_offset            => @offset
)`

// searchArgs maps the filter to named arguments, passing NULL for anything
// the caller left unset so the function's own defaults apply.
func searchArgs(f domain.SearchFilter) pgx.NamedArgs {
	args := pgx.NamedArgs{
		"business_unit_id":  f.BusinessUnitID,
		"division_codes":    nilIfEmptySlice(f.DivisionCodes),
		"status_ids":        nilIfEmptySlice(f.StatusIDs),
		"created_by_emails": nilIfEmptySlice(f.CreatedByEmails),
		"agreement_number":  f.AgreementNumber,
		"sku_code":          nullIfEmpty(f.SKUCode),
		"description":       nullIfEmpty(f.Description),
		"rebate_type_id":    nullIfEmpty(f.RebateTypeID),
		"concept_id":        nullIfEmpty(f.ConceptID),
		"spf_code":          nullIfEmpty(f.SPFCode),
		"spf_description":   nullIfEmpty(f.SPFDescription),
		"start_date":        f.StartDateFrom,
		"end_date":          f.EndDateTo,
		"supplier_ruc":      nullIfEmpty(f.SupplierRUC),
		"supplier_name":     nullIfEmpty(f.SupplierName),
		"store_grouping_id": nullIfEmpty(f.StoreGroupingID),
		"pmm_username":      nullIfEmpty(f.PMMUsername),
		"limit":             f.Limit,
		"offset":            f.Offset,
	}
	return args
}

func nilIfEmptySlice(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// Search forwards the filter set to search_agreements and returns its rows
// unchanged.
func (r *AgreementRepo) Search(ctx context.Context, f domain.SearchFilter) (domain.SearchResult, error) {
	defer r.timed("search_agreements")()

	rows, err := r.db.Query(ctx, searchSQL, searchArgs(f))
	if err != nil {
		return domain.SearchResult{}, xerrors.Wrap(err, "call search_agreements")
	}
	defer rows.Close()

	out := domain.SearchResult{Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		var a domain.Agreement
		var statusName, rebateName, conceptName *string
		var desc, activity, spfCode, spfDesc, pmm, grouping *string
		var totalCount int64

		if err := rows.Scan(
			&a.ID, &a.BusinessUnitID, &a.AgreementNumber, &a.StartDate, &a.EndDate,
			&a.AgreementTypeID, &a.StatusID, &statusName,
			&a.RebateTypeID, &rebateName,
			&a.ConceptID, &conceptName,
			&desc, &activity, &a.SourceSystem,
			&spfCode, &spfDesc, &a.CurrencyID, &a.UnitPrice,
			&a.BillingType, &pmm, &grouping,
			&a.CreatedAt, &a.CreatedBy, &a.UpdatedAt,
			&totalCount,
		); err != nil {
			return domain.SearchResult{}, xerrors.Wrap(err, "scan search row")
		}

		a.StatusName = deref(statusName)
		a.RebateTypeName = deref(rebateName)
		a.ConceptName = deref(conceptName)
		a.Description = deref(desc)
		a.ActivityName = deref(activity)
		a.SPFCode = deref(spfCode)
		a.SPFDescription = deref(spfDesc)
		a.PMMUsername = deref(pmm)
		a.StoreGroupingID = deref(grouping)
		a.Active = true

		out.Agreements = append(out.Agreements, a)
		out.TotalCount = totalCount
	}
	if err := rows.Err(); err != nil {
		return domain.SearchResult{}, xerrors.Wrap(err, "iterate search rows")
	}
	return out, nil
}
