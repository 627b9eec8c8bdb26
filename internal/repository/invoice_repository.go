package repository

import (
	"context"
	"database/sql"

	"github.com/supplysync/server/internal/models"
)

// InvoiceRepository persists invoices
type InvoiceRepository struct {
	db DBTX
}

// NewInvoiceRepository creates a new InvoiceRepository
func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, name_link_id, store_id, user_id, invoice_number, type, status, on_hold, comment,
	their_reference, created_datetime, picked_datetime, shipped_datetime, delivered_datetime,
	verified_datetime, linked_invoice_id, requisition_id`

func (r *InvoiceRepository) Upsert(ctx context.Context, i *models.InvoiceRow) error {
	query := `INSERT INTO invoice (` + invoiceColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			  ON CONFLICT (id) DO UPDATE SET
				name_link_id = EXCLUDED.name_link_id,
				store_id = EXCLUDED.store_id,
				user_id = EXCLUDED.user_id,
				invoice_number = EXCLUDED.invoice_number,
				type = EXCLUDED.type,
				status = EXCLUDED.status,
				on_hold = EXCLUDED.on_hold,
				comment = EXCLUDED.comment,
				their_reference = EXCLUDED.their_reference,
				created_datetime = EXCLUDED.created_datetime,
				picked_datetime = EXCLUDED.picked_datetime,
				shipped_datetime = EXCLUDED.shipped_datetime,
				delivered_datetime = EXCLUDED.delivered_datetime,
				verified_datetime = EXCLUDED.verified_datetime,
				linked_invoice_id = EXCLUDED.linked_invoice_id,
				requisition_id = EXCLUDED.requisition_id`

	_, err := r.db.ExecContext(ctx, query,
		i.ID, i.NameLinkID, i.StoreID, i.UserID, i.InvoiceNumber, i.Type, i.Status, i.OnHold, i.Comment,
		i.TheirReference, i.CreatedDatetime, i.PickedDatetime, i.ShippedDatetime, i.DeliveredDatetime,
		i.VerifiedDatetime, i.LinkedInvoiceID, i.RequisitionID,
	)
	return err
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.InvoiceRow, error) {
	return r.queryOne(ctx, `SELECT `+invoiceColumns+` FROM invoice WHERE id = $1`, id)
}

// FindByLinkedID returns the invoice that was created from the given invoice
func (r *InvoiceRepository) FindByLinkedID(ctx context.Context, linkedID string) (*models.InvoiceRow, error) {
	return r.queryOne(ctx, `SELECT `+invoiceColumns+` FROM invoice WHERE linked_invoice_id = $1`, linkedID)
}

// NextNumber returns the next invoice number of a type in a store
func (r *InvoiceRepository) NextNumber(ctx context.Context, storeID string, invoiceType models.InvoiceType) (int64, error) {
	var max int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(invoice_number), 0) FROM invoice WHERE store_id = $1 AND type = $2`,
		storeID, invoiceType,
	).Scan(&max)
	return max + 1, err
}

func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invoice WHERE id = $1`, id)
	return err
}

func (r *InvoiceRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.InvoiceRow, error) {
	var i models.InvoiceRow
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&i.ID, &i.NameLinkID, &i.StoreID, &i.UserID, &i.InvoiceNumber, &i.Type, &i.Status, &i.OnHold, &i.Comment,
		&i.TheirReference, &i.CreatedDatetime, &i.PickedDatetime, &i.ShippedDatetime, &i.DeliveredDatetime,
		&i.VerifiedDatetime, &i.LinkedInvoiceID, &i.RequisitionID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normaliseTime(&i.CreatedDatetime)
	normaliseTimePtr(i.PickedDatetime)
	normaliseTimePtr(i.ShippedDatetime)
	normaliseTimePtr(i.DeliveredDatetime)
	normaliseTimePtr(i.VerifiedDatetime)
	return &i, nil
}

// InvoiceLineRepository persists invoice lines
type InvoiceLineRepository struct {
	db DBTX
}

// NewInvoiceLineRepository creates a new InvoiceLineRepository
func NewInvoiceLineRepository(db DBTX) *InvoiceLineRepository {
	return &InvoiceLineRepository{db: db}
}

const invoiceLineColumns = `id, invoice_id, item_link_id, item_name, item_code, stock_line_id, location_id,
	batch, expiry_date, pack_size, cost_price_per_pack, sell_price_per_pack, number_of_packs, type, note`

func (r *InvoiceLineRepository) Upsert(ctx context.Context, l *models.InvoiceLineRow) error {
	query := `INSERT INTO invoice_line (` + invoiceLineColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  ON CONFLICT (id) DO UPDATE SET
				invoice_id = EXCLUDED.invoice_id,
				item_link_id = EXCLUDED.item_link_id,
				item_name = EXCLUDED.item_name,
				item_code = EXCLUDED.item_code,
				stock_line_id = EXCLUDED.stock_line_id,
				location_id = EXCLUDED.location_id,
				batch = EXCLUDED.batch,
				expiry_date = EXCLUDED.expiry_date,
				pack_size = EXCLUDED.pack_size,
				cost_price_per_pack = EXCLUDED.cost_price_per_pack,
				sell_price_per_pack = EXCLUDED.sell_price_per_pack,
				number_of_packs = EXCLUDED.number_of_packs,
				type = EXCLUDED.type,
				note = EXCLUDED.note`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.InvoiceID, l.ItemLinkID, l.ItemName, l.ItemCode, l.StockLineID, l.LocationID,
		l.BatchNumber, l.ExpiryDate, l.PackSize, l.CostPricePerPack, l.SellPricePerPack, l.NumberOfPacks,
		l.Type, l.Note,
	)
	return err
}

func (r *InvoiceLineRepository) FindByID(ctx context.Context, id string) (*models.InvoiceLineRow, error) {
	lines, err := r.query(ctx, `SELECT `+invoiceLineColumns+` FROM invoice_line WHERE id = $1`, id)
	if err != nil || len(lines) == 0 {
		return nil, err
	}
	return lines[0], nil
}

// FindByInvoiceID returns all lines of an invoice
func (r *InvoiceLineRepository) FindByInvoiceID(ctx context.Context, invoiceID string) ([]*models.InvoiceLineRow, error) {
	return r.query(ctx, `SELECT `+invoiceLineColumns+` FROM invoice_line WHERE invoice_id = $1 ORDER BY id`, invoiceID)
}

func (r *InvoiceLineRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invoice_line WHERE id = $1`, id)
	return err
}

func (r *InvoiceLineRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.InvoiceLineRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*models.InvoiceLineRow
	for rows.Next() {
		var l models.InvoiceLineRow
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.ItemLinkID, &l.ItemName, &l.ItemCode, &l.StockLineID,
			&l.LocationID, &l.BatchNumber, &l.ExpiryDate, &l.PackSize, &l.CostPricePerPack,
			&l.SellPricePerPack, &l.NumberOfPacks, &l.Type, &l.Note); err != nil {
			return nil, err
		}
		normaliseTimePtr(l.ExpiryDate)
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}
