package repository

import (
	"context"

	"github.com/supplysync/server/internal/models"
)

// SyncFileReferenceRepository persists attachment references
type SyncFileReferenceRepository struct {
	db DBTX
}

// NewSyncFileReferenceRepository creates a new SyncFileReferenceRepository
func NewSyncFileReferenceRepository(db DBTX) *SyncFileReferenceRepository {
	return &SyncFileReferenceRepository{db: db}
}

const syncFileReferenceColumns = `id, table_name, record_id, store_id, file_name, mime_type, total_bytes,
	status, created_datetime`

func (r *SyncFileReferenceRepository) Upsert(ctx context.Context, f *models.SyncFileReferenceRow) error {
	query := `INSERT INTO sync_file_reference (` + syncFileReferenceColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (id) DO UPDATE SET
				table_name = EXCLUDED.table_name,
				record_id = EXCLUDED.record_id,
				store_id = EXCLUDED.store_id,
				file_name = EXCLUDED.file_name,
				mime_type = EXCLUDED.mime_type,
				total_bytes = EXCLUDED.total_bytes,
				status = EXCLUDED.status,
				created_datetime = EXCLUDED.created_datetime`

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.OwnerTable, f.OwnerRecordID, f.StoreID, f.FileName, f.MimeType, f.TotalBytes,
		f.Status, f.CreatedDatetime,
	)
	return err
}

func (r *SyncFileReferenceRepository) FindByID(ctx context.Context, id string) (*models.SyncFileReferenceRow, error) {
	refs, err := r.query(ctx, `SELECT `+syncFileReferenceColumns+` FROM sync_file_reference WHERE id = $1`, id)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return refs[0], nil
}

// FindByStatus returns references in a transfer state, oldest first
func (r *SyncFileReferenceRepository) FindByStatus(ctx context.Context, status models.SyncFileStatus, limit int) ([]*models.SyncFileReferenceRow, error) {
	return r.query(ctx, `SELECT `+syncFileReferenceColumns+` FROM sync_file_reference
		WHERE status = $1 ORDER BY created_datetime ASC LIMIT $2`, status, limit)
}

// SetStatus updates the local transfer state. It is not a synced change.
func (r *SyncFileReferenceRepository) SetStatus(ctx context.Context, id string, status models.SyncFileStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_file_reference SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (r *SyncFileReferenceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_file_reference WHERE id = $1`, id)
	return err
}

func (r *SyncFileReferenceRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.SyncFileReferenceRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*models.SyncFileReferenceRow
	for rows.Next() {
		var f models.SyncFileReferenceRow
		if err := rows.Scan(&f.ID, &f.OwnerTable, &f.OwnerRecordID, &f.StoreID, &f.FileName, &f.MimeType,
			&f.TotalBytes, &f.Status, &f.CreatedDatetime); err != nil {
			return nil, err
		}
		normaliseTime(&f.CreatedDatetime)
		refs = append(refs, &f)
	}
	return refs, rows.Err()
}
