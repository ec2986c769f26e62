package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/retailcore/rebates-api/internal/domain"
	"github.com/retailcore/rebates-api/internal/xerrors"
)

// StoreRepo reads and writes the stores reference table.
type StoreRepo struct {
	db  DB
	obs Observer
}

func NewStoreRepo(db DB, obs Observer) *StoreRepo {
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &StoreRepo{db: db, obs: obs}
}

func (r *StoreRepo) ListActive(ctx context.Context, businessUnitID int) ([]domain.Store, error) {
	start := time.Now()
	defer func() { r.obs("stores_list", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
		SELECT id, business_unit_id, store_id, name, zone_id, zone_name,
		       channel_id, channel_name, is_active, created_at, updated_at
		FROM `+schema+`.stores
		WHERE business_unit_id = $1 AND is_active
		ORDER BY store_id`, businessUnitID)
	if err != nil {
		return nil, xerrors.Wrap(err, "query stores")
	}
	defer rows.Close()

	var out []domain.Store
	for rows.Next() {
		var s domain.Store
		var zoneName, channelName *string
		if err := rows.Scan(&s.ID, &s.BusinessUnitID, &s.StoreCode, &s.Name,
			&s.ZoneID, &zoneName, &s.ChannelID, &channelName,
			&s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan store")
		}
		s.ZoneName, s.ChannelName = deref(zoneName), deref(channelName)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StoreRepo) GetByID(ctx context.Context, id int64) (domain.Store, error) {
	start := time.Now()
	defer func() { r.obs("store_get", time.Since(start)) }()

	var s domain.Store
	var zoneName, channelName *string
	err := r.db.QueryRow(ctx, `
		SELECT id, business_unit_id, store_id, name, zone_id, zone_name,
		       channel_id, channel_name, is_active, created_at, updated_at
		FROM `+schema+`.stores WHERE id = $1 AND is_active`, id,
	).Scan(&s.ID, &s.BusinessUnitID, &s.StoreCode, &s.Name,
		&s.ZoneID, &zoneName, &s.ChannelID, &channelName,
		&s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Store{}, ErrNotFound
	}
	if err != nil {
		return domain.Store{}, xerrors.Wrap(err, "query store")
	}
	s.ZoneName, s.ChannelName = deref(zoneName), deref(channelName)
	return s, nil
}

func (r *StoreRepo) Create(ctx context.Context, s domain.Store) (domain.Store, error) {
	start := time.Now()
	defer func() { r.obs("store_create", time.Since(start)) }()

	err := r.db.QueryRow(ctx, `
		INSERT INTO `+schema+`.stores (
			business_unit_id, store_id, name, zone_id, zone_name,
			channel_id, channel_name, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,true)
		RETURNING id, created_at, updated_at`,
		s.BusinessUnitID, s.StoreCode, s.Name, s.ZoneID, nullIfEmpty(s.ZoneName),
		s.ChannelID, nullIfEmpty(s.ChannelName),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Store{}, xerrors.Wrap(err, "insert store")
	}
	s.Active = true
	return s, nil
}

func (r *StoreRepo) Update(ctx context.Context, id int64, s domain.Store) (domain.Store, error) {
	start := time.Now()
	defer func() { r.obs("store_update", time.Since(start)) }()

	tag, err := r.db.Exec(ctx, `
		UPDATE `+schema+`.stores SET
			name = $2, zone_id = $3, zone_name = $4,
			channel_id = $5, channel_name = $6, is_active = $7, updated_at = now()
		WHERE id = $1`,
		id, s.Name, s.ZoneID, nullIfEmpty(s.ZoneName),
		s.ChannelID, nullIfEmpty(s.ChannelName), s.Active)
	if err != nil {
		return domain.Store{}, xerrors.Wrap(err, "update store")
	}
	if tag.RowsAffected() == 0 {
		return domain.Store{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// SupplierRepo reads and writes the suppliers reference table, keyed by RUC.
type SupplierRepo struct {
	db  DB
	obs Observer
}

func NewSupplierRepo(db DB, obs Observer) *SupplierRepo {
	if obs == nil {
		obs = func(string, time.Duration) {}
	}
	return &SupplierRepo{db: db, obs: obs}
}

func (r *SupplierRepo) ListActive(ctx context.Context) ([]domain.Supplier, error) {
	start := time.Now()
	defer func() { r.obs("suppliers_list", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
		SELECT id, ruc, name, grouping, is_active, created_at, updated_at
		FROM `+schema+`.suppliers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, xerrors.Wrap(err, "query suppliers")
	}
	defer rows.Close()

	var out []domain.Supplier
	for rows.Next() {
		var s domain.Supplier
		var grouping *string
		if err := rows.Scan(&s.ID, &s.RUC, &s.Name, &grouping,
			&s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan supplier")
		}
		s.Grouping = deref(grouping)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SupplierRepo) GetByRUC(ctx context.Context, ruc string) (domain.Supplier, error) {
	start := time.Now()
	defer func() { r.obs("supplier_get", time.Since(start)) }()

	var s domain.Supplier
	var grouping *string
	err := r.db.QueryRow(ctx, `
		SELECT id, ruc, name, grouping, is_active, created_at, updated_at
		FROM `+schema+`.suppliers WHERE ruc = $1 AND is_active`, ruc,
	).Scan(&s.ID, &s.RUC, &s.Name, &grouping, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Supplier{}, ErrNotFound
	}
	if err != nil {
		return domain.Supplier{}, xerrors.Wrap(err, "query supplier")
	}
	s.Grouping = deref(grouping)
	return s, nil
}

func (r *SupplierRepo) Create(ctx context.Context, s domain.Supplier) (domain.Supplier, error) {
	start := time.Now()
	defer func() { r.obs("supplier_create", time.Since(start)) }()

	err := r.db.QueryRow(ctx, `
		INSERT INTO `+schema+`.suppliers (ruc, name, grouping, is_active)
		VALUES ($1,$2,$3,true)
		RETURNING id, created_at, updated_at`,
		s.RUC, s.Name, nullIfEmpty(s.Grouping),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Supplier{}, xerrors.Wrap(err, "insert supplier")
	}
	s.Active = true
	return s, nil
}

func (r *SupplierRepo) Update(ctx context.Context, ruc string, s domain.Supplier) (domain.Supplier, error) {
	start := time.Now()
	defer func() { r.obs("supplier_update", time.Since(start)) }()

	tag, err := r.db.Exec(ctx, `
		UPDATE `+schema+`.suppliers SET
			name = $2, grouping = $3, is_active = $4, updated_at = now()
		WHERE ruc = $1`,
		ruc, s.Name, nullIfEmpty(s.Grouping), s.Active)
	if err != nil {
		return domain.Supplier{}, xerrors.Wrap(err, "update supplier")
	}
	if tag.RowsAffected() == 0 {
		return domain.Supplier{}, ErrNotFound
	}
	return r.GetByRUC(ctx, ruc)
}
