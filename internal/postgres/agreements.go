package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// DB is the subset of pgxpool.Pool the repositories use. Kept narrow so
// tests can substitute fakes.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Observer receives per-query timings; wired to metrics.ObserveDBQuery.
type Observer func(operation string, d time.Duration)

type AgreementRepo struct {
	db  DB
	obs Observer
}

func NewAgreementRepo(db DB, obs Observer) *AgreementRepo {
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &AgreementRepo{db: db, obs: obs}
}

// ExistsByNumber reports whether an active agreement with the number exists
// in the business unit.
func (r *AgreementRepo) ExistsByNumber(ctx context.Context, businessUnitID, number int) (bool, error) {
	defer r.timed("agreement_exists")()

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM `+schema+`.agreements
			WHERE business_unit_id = $1 AND agreement_number = $2 AND active
		)`, businessUnitID, number).Scan(&exists)
	if err != nil {
		return false, xerrors.Wrap(err, "query agreement exists")
	}
	return exists, nil
}

// Create inserts the agreement and its child collections in one transaction.
func (r *AgreementRepo) Create(ctx context.Context, a domain.Agreement) (domain.Agreement, error) {
	defer r.timed("agreement_create")()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "begin create agreement")
	}
	defer tx.Rollback(ctx)

	if a.AgreementNumber != nil {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM `+schema+`.agreements
				WHERE business_unit_id = $1 AND agreement_number = $2 AND active
			)`, a.BusinessUnitID, *a.AgreementNumber).Scan(&exists)
		if err != nil {
			return domain.Agreement{}, xerrors.Wrap(err, "check duplicate agreement number")
		}
		if exists {
			return domain.Agreement{}, ErrDuplicateAgreementNumber
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO `+schema+`.agreements (
			business_unit_id, agreement_number, start_date, end_date,
			agreement_type_id, status_id, rebate_type_id, concept_id,
			description, activity_name, source_system, spf_code,
			spf_description, currency_id, unit_price, billing_type,
			pmm_username, store_grouping_id, active, created_by_user_email
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,true,$19)
		RETURNING id, created_at, updated_at`,
		a.BusinessUnitID, a.AgreementNumber, a.StartDate, a.EndDate,
		a.AgreementTypeID, a.StatusID, a.RebateTypeID, a.ConceptID,
		nullIfEmpty(a.Description), nullIfEmpty(a.ActivityName), a.SourceSystem,
		nullIfEmpty(a.SPFCode), nullIfEmpty(a.SPFDescription), a.CurrencyID,
		a.UnitPrice, a.BillingType, nullIfEmpty(a.PMMUsername),
		nullIfEmpty(a.StoreGroupingID), a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "insert agreement")
	}

	if err := insertChildren(ctx, tx, a.ID, a.CreatedBy, a.Products, a.StoreRules, a.ExcludedFlags); err != nil {
		return domain.Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "commit create agreement")
	}
	a.Active = true
	return a, nil
}

// Replace updates the agreement row and swaps its child collections in one
// transaction, recording who changed the status.
func (r *AgreementRepo) Replace(ctx context.Context, id int64, a domain.Agreement, updatedBy string) (domain.Agreement, error) {
	defer r.timed("agreement_replace")()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "begin replace agreement")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE `+schema+`.agreements SET
			start_date = $2, end_date = $3, agreement_type_id = $4,
			status_id = $5, rebate_type_id = $6, concept_id = $7,
			description = $8, activity_name = $9, spf_code = $10,
			spf_description = $11, currency_id = $12, unit_price = $13,
			billing_type = $14, pmm_username = $15, store_grouping_id = $16,
			updated_status_by_user_email = $17, updated_at = now()
		WHERE id = $1 AND active`,
		id, a.StartDate, a.EndDate, a.AgreementTypeID,
		a.StatusID, a.RebateTypeID, a.ConceptID,
		nullIfEmpty(a.Description), nullIfEmpty(a.ActivityName), nullIfEmpty(a.SPFCode),
		nullIfEmpty(a.SPFDescription), a.CurrencyID, a.UnitPrice,
		a.BillingType, nullIfEmpty(a.PMMUsername), nullIfEmpty(a.StoreGroupingID),
		updatedBy,
	)
	if err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "update agreement")
	}
	if tag.RowsAffected() == 0 {
		return domain.Agreement{}, ErrNotFound
	}

	for _, table := range []string{"agreement_products", "agreement_store_rules", "agreement_excluded_flags"} {
		if _, err := tx.Exec(ctx, `
			UPDATE `+schema+`.`+table+`
			SET active = false, updated_status_by_user_email = $2, updated_at = now()
			WHERE agreement_id = $1 AND active`, id, updatedBy); err != nil {
			return domain.Agreement{}, xerrors.Wrapf(err, "deactivate %s", table)
		}
	}

	if err := insertChildren(ctx, tx, id, updatedBy, a.Products, a.StoreRules, a.ExcludedFlags); err != nil {
		return domain.Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "commit replace agreement")
	}

	return r.GetByID(ctx, id)
}

func insertChildren(ctx context.Context, tx pgx.Tx, agreementID int64, by string,
	products []domain.Product, rules []domain.StoreRule, flags []domain.ExcludedFlag) error {

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
			INSERT INTO `+schema+`.agreement_products (
				agreement_id, sku_code, sku_description,
				division_code, division_name, department_code, department_name,
				subdepartment_code, subdepartment_name, class_code, class_name,
				subclass_code, subclass_name, brand_id, brand_name,
				supplier_id, supplier_name, supplier_ruc,
				active, created_by_user_email
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,true,$19)`,
			agreementID, p.SKUCode, nullIfEmpty(p.SKUDescription),
			nullIfEmpty(p.DivisionCode), nullIfEmpty(p.DivisionName),
			nullIfEmpty(p.DepartmentCode), nullIfEmpty(p.DepartmentName),
			nullIfEmpty(p.SubdepartmentCode), nullIfEmpty(p.SubdepartmentName),
			nullIfEmpty(p.ClassCode), nullIfEmpty(p.ClassName),
			nullIfEmpty(p.SubclassCode), nullIfEmpty(p.SubclassName),
			nullIfEmpty(p.BrandID), nullIfEmpty(p.BrandName),
			p.SupplierID, nullIfEmpty(p.SupplierName), nullIfEmpty(p.SupplierRUC),
			by)
	}
	for _, sr := range rules {
		batch.Queue(`
			INSERT INTO `+schema+`.agreement_store_rules (
				agreement_id, store_id, status, active, created_by_user_email
			) VALUES ($1,$2,$3,true,$4)`,
			agreementID, sr.StoreID, sr.Status, by)
	}
	for _, f := range flags {
		batch.Queue(`
			INSERT INTO `+schema+`.agreement_excluded_flags (
				agreement_id, excluded_flag_id, active, created_by_user_email
			) VALUES ($1,$2,true,$3)`,
			agreementID, f.ExcludedFlagID, by)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return xerrors.Wrap(err, "insert agreement children")
	}
	return nil
}

// GetByID loads the agreement with lookup display values and its active
// child collections.
func (r *AgreementRepo) GetByID(ctx context.Context, id int64) (domain.Agreement, error) {
	defer r.timed("agreement_get")()

	var a domain.Agreement
	var statusName, rebateName, conceptName *string
	var desc, activity, spfCode, spfDesc, pmm, grouping, updatedBy *string

	err := r.db.QueryRow(ctx, `
		SELECT a.id, a.business_unit_id, a.agreement_number, a.start_date, a.end_date,
		       a.agreement_type_id, a.status_id, st.display_value,
		       a.rebate_type_id, rt.display_value,
		       a.concept_id, co.display_value,
		       a.description, a.activity_name, a.source_system,
		       a.spf_code, a.spf_description, a.currency_id, a.unit_price,
		       a.billing_type, a.pmm_username, a.store_grouping_id, a.active,
		       a.created_at, a.created_by_user_email, a.updated_at,
		       a.updated_status_by_user_email
		FROM `+schema+`.agreements a
		LEFT JOIN `+schema+`.lookup_value st
			ON st.option_key = a.status_id AND st.category_id =
			   (SELECT id FROM `+schema+`.lookup_category WHERE code = 'AGREEMENT_STATUSES')
		LEFT JOIN `+schema+`.lookup_value rt
			ON rt.option_key = a.rebate_type_id AND rt.category_id =
			   (SELECT id FROM `+schema+`.lookup_category WHERE code = 'REBATE_TYPE')
		LEFT JOIN `+schema+`.lookup_value co
			ON co.option_key = a.concept_id AND co.category_id =
			   (SELECT id FROM `+schema+`.lookup_category WHERE code = 'CONCEPT')
		WHERE a.id = $1 AND a.active`, id,
	).Scan(
		&a.ID, &a.BusinessUnitID, &a.AgreementNumber, &a.StartDate, &a.EndDate,
		&a.AgreementTypeID, &a.StatusID, &statusName,
		&a.RebateTypeID, &rebateName,
		&a.ConceptID, &conceptName,
		&desc, &activity, &a.SourceSystem,
		&spfCode, &spfDesc, &a.CurrencyID, &a.UnitPrice,
		&a.BillingType, &pmm, &grouping, &a.Active,
		&a.CreatedAt, &a.CreatedBy, &a.UpdatedAt,
		&updatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agreement{}, ErrNotFound
	}
	if err != nil {
		return domain.Agreement{}, xerrors.Wrap(err, "query agreement")
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
	a.StatusUpdatedBy = deref(updatedBy)

	if a.Products, err = r.products(ctx, id); err != nil {
		return domain.Agreement{}, err
	}
	if a.StoreRules, err = r.storeRules(ctx, id); err != nil {
		return domain.Agreement{}, err
	}
	if a.ExcludedFlags, err = r.excludedFlags(ctx, id); err != nil {
		return domain.Agreement{}, err
	}
	return a, nil
}

func (r *AgreementRepo) products(ctx context.Context, agreementID int64) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, agreement_id, sku_code, sku_description,
		       division_code, division_name, department_code, department_name,
		       subdepartment_code, subdepartment_name, class_code, class_name,
		       subclass_code, subclass_name, brand_id, brand_name,
		       supplier_id, supplier_name, supplier_ruc,
		       active, created_at, created_by_user_email, updated_at
		FROM `+schema+`.agreement_products
		WHERE agreement_id = $1 AND active
		ORDER BY id`, agreementID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query agreement products")
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		var skuDesc, divC, divN, depC, depN, sdC, sdN, clC, clN, scC, scN, brID, brN, supN, supR *string
		if err := rows.Scan(
			&p.ID, &p.AgreementID, &p.SKUCode, &skuDesc,
			&divC, &divN, &depC, &depN,
			&sdC, &sdN, &clC, &clN,
			&scC, &scN, &brID, &brN,
			&p.SupplierID, &supN, &supR,
			&p.Active, &p.CreatedAt, &p.CreatedBy, &p.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(err, "scan agreement product")
		}
		p.SKUDescription = deref(skuDesc)
		p.DivisionCode, p.DivisionName = deref(divC), deref(divN)
		p.DepartmentCode, p.DepartmentName = deref(depC), deref(depN)
		p.SubdepartmentCode, p.SubdepartmentName = deref(sdC), deref(sdN)
		p.ClassCode, p.ClassName = deref(clC), deref(clN)
		p.SubclassCode, p.SubclassName = deref(scC), deref(scN)
		p.BrandID, p.BrandName = deref(brID), deref(brN)
		p.SupplierName, p.SupplierRUC = deref(supN), deref(supR)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *AgreementRepo) storeRules(ctx context.Context, agreementID int64) ([]domain.StoreRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, agreement_id, store_id, status, active,
		       created_at, created_by_user_email, updated_at
		FROM `+schema+`.agreement_store_rules
		WHERE agreement_id = $1 AND active
		ORDER BY id`, agreementID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query agreement store rules")
	}
	defer rows.Close()

	var out []domain.StoreRule
	for rows.Next() {
		var sr domain.StoreRule
		if err := rows.Scan(&sr.ID, &sr.AgreementID, &sr.StoreID, &sr.Status,
			&sr.Active, &sr.CreatedAt, &sr.CreatedBy, &sr.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan store rule")
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *AgreementRepo) excludedFlags(ctx context.Context, agreementID int64) ([]domain.ExcludedFlag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, agreement_id, excluded_flag_id, active,
		       created_at, created_by_user_email, updated_at
		FROM `+schema+`.agreement_excluded_flags
		WHERE agreement_id = $1 AND active
		ORDER BY id`, agreementID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query excluded flags")
	}
	defer rows.Close()

	var out []domain.ExcludedFlag
	for rows.Next() {
		var f domain.ExcludedFlag
		if err := rows.Scan(&f.ID, &f.AgreementID, &f.ExcludedFlagID, &f.Active,
			&f.CreatedAt, &f.CreatedBy, &f.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan excluded flag")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *AgreementRepo) timed(op string) func() {
	start := time.Now()
	return func() { r.obs(op, time.Since(start)) }
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
