package repository

import (
	"context"
	"database/sql"

	"github.com/supplysync/server/internal/models"
)

// StocktakeRepository persists stocktakes
type StocktakeRepository struct {
	db DBTX
}

// NewStocktakeRepository creates a new StocktakeRepository
func NewStocktakeRepository(db DBTX) *StocktakeRepository {
	return &StocktakeRepository{db: db}
}

func (r *StocktakeRepository) Upsert(ctx context.Context, s *models.StocktakeRow) error {
	query := `INSERT INTO stocktake (id, store_id, user_id, stocktake_number, comment, description, status,
				created_datetime, stocktake_date, finalised_datetime, inventory_addition_id,
				inventory_reduction_id, is_locked)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (id) DO UPDATE SET
				store_id = EXCLUDED.store_id,
				user_id = EXCLUDED.user_id,
				stocktake_number = EXCLUDED.stocktake_number,
				comment = EXCLUDED.comment,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				created_datetime = EXCLUDED.created_datetime,
				stocktake_date = EXCLUDED.stocktake_date,
				finalised_datetime = EXCLUDED.finalised_datetime,
				inventory_addition_id = EXCLUDED.inventory_addition_id,
				inventory_reduction_id = EXCLUDED.inventory_reduction_id,
				is_locked = EXCLUDED.is_locked`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.StoreID, s.UserID, s.StocktakeNumber, s.Comment, s.Description, s.Status,
		s.CreatedDatetime, s.StocktakeDate, s.FinalisedDatetime, s.InventoryAdditionID,
		s.InventoryReductionID, s.IsLocked,
	)
	return err
}

func (r *StocktakeRepository) FindByID(ctx context.Context, id string) (*models.StocktakeRow, error) {
	query := `SELECT id, store_id, user_id, stocktake_number, comment, description, status,
				created_datetime, stocktake_date, finalised_datetime, inventory_addition_id,
				inventory_reduction_id, is_locked
			  FROM stocktake WHERE id = $1`

	var s models.StocktakeRow
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.StoreID, &s.UserID, &s.StocktakeNumber, &s.Comment, &s.Description, &s.Status,
		&s.CreatedDatetime, &s.StocktakeDate, &s.FinalisedDatetime, &s.InventoryAdditionID,
		&s.InventoryReductionID, &s.IsLocked,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normaliseTime(&s.CreatedDatetime)
	normaliseTimePtr(s.StocktakeDate)
	normaliseTimePtr(s.FinalisedDatetime)
	return &s, nil
}

func (r *StocktakeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM stocktake WHERE id = $1`, id)
	return err
}
