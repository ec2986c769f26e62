package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// LookupRepo reads lookup categories and their values
// (REBATE_TYPE, CONCEPT, BILLING_TYPE, AGREEMENT_STATUSES, ...).
type LookupRepo struct {
	db  DB
	obs Observer
}

func NewLookupRepo(db DB, obs Observer) *LookupRepo {
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &LookupRepo{db: db, obs: obs}
}

// ValuesByCategory returns the active values of a category ordered by
// sort_order then display value.
func (r *LookupRepo) ValuesByCategory(ctx context.Context, categoryCode string) ([]domain.LookupValue, error) {
	start := time.Now()
	defer func() { r.obs("lookup_values", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
		SELECT v.id, v.category_id, v.option_key, v.display_value,
		       v.option_value, v.parent_id, v.metadata, v.sort_order, v.active
		FROM `+schema+`.lookup_value v
		JOIN `+schema+`.lookup_category c ON c.id = v.category_id
		WHERE c.code = $1 AND c.active AND v.active
		ORDER BY v.sort_order, v.display_value`, categoryCode)
	if err != nil {
		return nil, xerrors.Wrap(err, "query lookup values")
	}
	defer rows.Close()

	var out []domain.LookupValue
	for rows.Next() {
		v, err := scanLookupValue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "iterate lookup values")
	}
	if out == nil {
		// distinguish "unknown category" from "category with no values"
		var exists bool
		if err := r.db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM `+schema+`.lookup_category WHERE code = $1 AND active)`,
			categoryCode).Scan(&exists); err != nil {
			return nil, xerrors.Wrap(err, "query lookup category")
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return out, nil
}

// Value returns one option of a category by its option key.
func (r *LookupRepo) Value(ctx context.Context, categoryCode, optionKey string) (domain.LookupValue, error) {
	start := time.Now()
	defer func() { r.obs("lookup_value", time.Since(start)) }()

	row := r.db.QueryRow(ctx, `
		SELECT v.id, v.category_id, v.option_key, v.display_value,
		       v.option_value, v.parent_id, v.metadata, v.sort_order, v.active
		FROM `+schema+`.lookup_value v
		JOIN `+schema+`.lookup_category c ON c.id = v.category_id
		WHERE c.code = $1 AND v.option_key = $2 AND c.active AND v.active`,
		categoryCode, optionKey)

	v, err := scanLookupValue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LookupValue{}, ErrNotFound
	}
	return v, err
}

type scanner interface{ Scan(dest ...any) error }

func scanLookupValue(s scanner) (domain.LookupValue, error) {
	var v domain.LookupValue
	var optionValue *string
	if err := s.Scan(&v.ID, &v.CategoryID, &v.OptionKey, &v.DisplayValue,
		&optionValue, &v.ParentID, &v.Metadata, &v.SortOrder, &v.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LookupValue{}, err
		}
		return domain.LookupValue{}, xerrors.Wrap(err, "scan lookup value")
	}
	v.OptionValue = deref(optionValue)
	return v, nil
}

// ModuleRepo reads application modules and per-user grants.
type ModuleRepo struct {
	db  DB
	obs Observer
}

func NewModuleRepo(db DB, obs Observer) *ModuleRepo {
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &ModuleRepo{db: db, obs: obs}
}

// ForUser returns the active modules granted to the user in the business
// unit.
func (r *ModuleRepo) ForUser(ctx context.Context, email string, businessUnitID int) ([]domain.Module, error) {
	start := time.Now()
	defer func() { r.obs("modules_for_user", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.business_unit_id, m.name, m.description, m.is_active
		FROM `+schema+`.modules m
		JOIN `+schema+`.module_users mu ON mu.module_id = m.id
		WHERE mu.user_email = $1 AND m.business_unit_id = $2 AND m.is_active
		ORDER BY m.name`, email, businessUnitID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query user modules")
	}
	defer rows.Close()

	var out []domain.Module
	for rows.Next() {
		var m domain.Module
		var desc *string
		if err := rows.Scan(&m.ID, &m.BusinessUnitID, &m.Name, &desc, &m.Active); err != nil {
			return nil, xerrors.Wrap(err, "scan module")
		}
		m.Description = deref(desc)
		out = append(out, m)
	}
	return out, rows.Err()
}
