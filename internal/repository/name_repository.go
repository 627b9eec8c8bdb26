package repository

import (
	"context"
	"database/sql"

	"github.com/supplysync/server/internal/models"
)

// NameRepository persists names
type NameRepository struct {
	db DBTX
}

// NewNameRepository creates a new NameRepository
func NewNameRepository(db DBTX) *NameRepository {
	return &NameRepository{db: db}
}

func (r *NameRepository) Upsert(ctx context.Context, n *models.NameRow) error {
	query := `INSERT INTO name (id, name, code, type, is_customer, is_supplier, is_on_hold)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				code = EXCLUDED.code,
				type = EXCLUDED.type,
				is_customer = EXCLUDED.is_customer,
				is_supplier = EXCLUDED.is_supplier,
				is_on_hold = EXCLUDED.is_on_hold`
	_, err := r.db.ExecContext(ctx, query, n.ID, n.Name, n.Code, n.Type, n.IsCustomer, n.IsSupplier, n.IsOnHold)
	return err
}

func (r *NameRepository) FindByID(ctx context.Context, id string) (*models.NameRow, error) {
	query := `SELECT id, name, code, type, is_customer, is_supplier, is_on_hold FROM name WHERE id = $1`

	var n models.NameRow
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.Name, &n.Code, &n.Type, &n.IsCustomer, &n.IsSupplier, &n.IsOnHold,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NameRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM name WHERE id = $1`, id)
	return err
}

// StoreRepository persists stores
type StoreRepository struct {
	db DBTX
}

// NewStoreRepository creates a new StoreRepository
func NewStoreRepository(db DBTX) *StoreRepository {
	return &StoreRepository{db: db}
}

const storeColumns = `id, name_link_id, code, site_id, store_mode, is_disabled`

func (r *StoreRepository) Upsert(ctx context.Context, s *models.StoreRow) error {
	query := `INSERT INTO store (` + storeColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (id) DO UPDATE SET
				name_link_id = EXCLUDED.name_link_id,
				code = EXCLUDED.code,
				site_id = EXCLUDED.site_id,
				store_mode = EXCLUDED.store_mode,
				is_disabled = EXCLUDED.is_disabled`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.NameLinkID, s.Code, s.SiteID, s.StoreMode, s.IsDisabled)
	return err
}

func (r *StoreRepository) FindByID(ctx context.Context, id string) (*models.StoreRow, error) {
	stores, err := r.query(ctx, `SELECT `+storeColumns+` FROM store WHERE id = $1`, id)
	if err != nil || len(stores) == 0 {
		return nil, err
	}
	return stores[0], nil
}

// FindBySiteID returns the enabled stores a site is authoritative for
func (r *StoreRepository) FindBySiteID(ctx context.Context, siteID int32) ([]*models.StoreRow, error) {
	return r.query(ctx, `SELECT `+storeColumns+` FROM store WHERE site_id = $1 AND is_disabled = false ORDER BY id`, siteID)
}

// FindByNameID returns the store a name represents, if any
func (r *StoreRepository) FindByNameID(ctx context.Context, nameID string) (*models.StoreRow, error) {
	stores, err := r.query(ctx, `SELECT `+storeColumns+` FROM store WHERE name_link_id = $1`, nameID)
	if err != nil || len(stores) == 0 {
		return nil, err
	}
	return stores[0], nil
}

func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM store WHERE id = $1`, id)
	return err
}

func (r *StoreRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.StoreRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*models.StoreRow
	for rows.Next() {
		var s models.StoreRow
		if err := rows.Scan(&s.ID, &s.NameLinkID, &s.Code, &s.SiteID, &s.StoreMode, &s.IsDisabled); err != nil {
			return nil, err
		}
		stores = append(stores, &s)
	}
	return stores, rows.Err()
}

// NameStoreJoinRepository persists name visibility per store
type NameStoreJoinRepository struct {
	db DBTX
}

// NewNameStoreJoinRepository creates a new NameStoreJoinRepository
func NewNameStoreJoinRepository(db DBTX) *NameStoreJoinRepository {
	return &NameStoreJoinRepository{db: db}
}

func (r *NameStoreJoinRepository) Upsert(ctx context.Context, j *models.NameStoreJoinRow) error {
	query := `INSERT INTO name_store_join (id, name_link_id, store_id, is_inactive)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (id) DO UPDATE SET
				name_link_id = EXCLUDED.name_link_id,
				store_id = EXCLUDED.store_id,
				is_inactive = EXCLUDED.is_inactive`
	_, err := r.db.ExecContext(ctx, query, j.ID, j.NameLinkID, j.StoreID, j.IsInactive)
	return err
}

func (r *NameStoreJoinRepository) FindByID(ctx context.Context, id string) (*models.NameStoreJoinRow, error) {
	query := `SELECT id, name_link_id, store_id, is_inactive FROM name_store_join WHERE id = $1`

	var j models.NameStoreJoinRow
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.NameLinkID, &j.StoreID, &j.IsInactive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *NameStoreJoinRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM name_store_join WHERE id = $1`, id)
	return err
}
