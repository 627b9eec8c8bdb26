package repository

import (
	"context"
	"database/sql"

	"github.com/supplysync/server/internal/models"
)

// RequisitionRepository persists requisitions
type RequisitionRepository struct {
	db DBTX
}

// NewRequisitionRepository creates a new RequisitionRepository
func NewRequisitionRepository(db DBTX) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

const requisitionColumns = `id, requisition_number, name_link_id, store_id, user_id, type, status,
	created_datetime, sent_datetime, finalised_datetime, expected_delivery_date, comment,
	their_reference, max_months_of_stock, min_months_of_stock, linked_requisition_id`

func (r *RequisitionRepository) Upsert(ctx context.Context, q *models.RequisitionRow) error {
	query := `INSERT INTO requisition (` + requisitionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			  ON CONFLICT (id) DO UPDATE SET
				requisition_number = EXCLUDED.requisition_number,
				name_link_id = EXCLUDED.name_link_id,
				store_id = EXCLUDED.store_id,
				user_id = EXCLUDED.user_id,
				type = EXCLUDED.type,
				status = EXCLUDED.status,
				created_datetime = EXCLUDED.created_datetime,
				sent_datetime = EXCLUDED.sent_datetime,
				finalised_datetime = EXCLUDED.finalised_datetime,
				expected_delivery_date = EXCLUDED.expected_delivery_date,
				comment = EXCLUDED.comment,
				their_reference = EXCLUDED.their_reference,
				max_months_of_stock = EXCLUDED.max_months_of_stock,
				min_months_of_stock = EXCLUDED.min_months_of_stock,
				linked_requisition_id = EXCLUDED.linked_requisition_id`

	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.RequisitionNumber, q.NameLinkID, q.StoreID, q.UserID, q.Type, q.Status,
		q.CreatedDatetime, q.SentDatetime, q.FinalisedDatetime, q.ExpectedDeliveryDate, q.Comment,
		q.TheirReference, q.MaxMonthsOfStock, q.MinMonthsOfStock, q.LinkedRequisitionID,
	)
	return err
}

func (r *RequisitionRepository) FindByID(ctx context.Context, id string) (*models.RequisitionRow, error) {
	return r.queryOne(ctx, `SELECT `+requisitionColumns+` FROM requisition WHERE id = $1`, id)
}

// FindByLinkedID returns the requisition that was created from the given requisition
func (r *RequisitionRepository) FindByLinkedID(ctx context.Context, linkedID string) (*models.RequisitionRow, error) {
	return r.queryOne(ctx, `SELECT `+requisitionColumns+` FROM requisition WHERE linked_requisition_id = $1`, linkedID)
}

// NextNumber returns the next requisition number of a type in a store
func (r *RequisitionRepository) NextNumber(ctx context.Context, storeID string, reqType models.RequisitionType) (int64, error) {
	var max int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(requisition_number), 0) FROM requisition WHERE store_id = $1 AND type = $2`,
		storeID, reqType,
	).Scan(&max)
	return max + 1, err
}

func (r *RequisitionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM requisition WHERE id = $1`, id)
	return err
}

func (r *RequisitionRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.RequisitionRow, error) {
	var q models.RequisitionRow
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&q.ID, &q.RequisitionNumber, &q.NameLinkID, &q.StoreID, &q.UserID, &q.Type, &q.Status,
		&q.CreatedDatetime, &q.SentDatetime, &q.FinalisedDatetime, &q.ExpectedDeliveryDate, &q.Comment,
		&q.TheirReference, &q.MaxMonthsOfStock, &q.MinMonthsOfStock, &q.LinkedRequisitionID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normaliseTime(&q.CreatedDatetime)
	normaliseTimePtr(q.SentDatetime)
	normaliseTimePtr(q.FinalisedDatetime)
	normaliseTimePtr(q.ExpectedDeliveryDate)
	return &q, nil
}
