package repository

import (
	"context"
	"time"

	"github.com/supplysync/server/internal/models"
)

// SyncBufferRepository stages pulled records until they are integrated
type SyncBufferRepository struct {
	db DBTX
}

// NewSyncBufferRepository creates a new SyncBufferRepository
func NewSyncBufferRepository(db DBTX) *SyncBufferRepository {
	return &SyncBufferRepository{db: db}
}

// Upsert stores received records. A record received again replaces the staged
// copy and clears its integration state.
func (r *SyncBufferRepository) Upsert(ctx context.Context, rows []models.SyncBufferRow) error {
	query := `INSERT INTO sync_buffer (table_name, record_id, action, data, received_datetime,
				integration_datetime, integration_error, source_site_id)
			  VALUES ($1, $2, $3, $4, $5, NULL, NULL, $6)
			  ON CONFLICT (table_name, record_id) DO UPDATE SET
				action = EXCLUDED.action,
				data = EXCLUDED.data,
				received_datetime = EXCLUDED.received_datetime,
				integration_datetime = NULL,
				integration_error = NULL,
				source_site_id = EXCLUDED.source_site_id`

	for _, row := range rows {
		if _, err := r.db.ExecContext(ctx, query,
			row.TableName, row.RecordID, row.Action, string(row.Data),
			row.ReceivedDatetime, row.SourceSiteID,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetUnintegrated returns records not yet integrated, oldest first
func (r *SyncBufferRepository) GetUnintegrated(ctx context.Context) ([]models.SyncBufferRow, error) {
	query := `SELECT table_name, record_id, action, data, received_datetime, integration_datetime,
				integration_error, source_site_id
			  FROM sync_buffer WHERE integration_datetime IS NULL
			  ORDER BY received_datetime ASC, table_name ASC, record_id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.SyncBufferRow
	for rows.Next() {
		var row models.SyncBufferRow
		var data string
		if err := rows.Scan(&row.TableName, &row.RecordID, &row.Action, &data, &row.ReceivedDatetime,
			&row.IntegrationDatetime, &row.IntegrationError, &row.SourceSiteID); err != nil {
			return nil, err
		}
		row.Data = []byte(data)
		result = append(result, row)
	}
	return result, rows.Err()
}

// MarkIntegrated flags a record as integrated
func (r *SyncBufferRepository) MarkIntegrated(ctx context.Context, tableName, recordID string, at time.Time) error {
	query := `UPDATE sync_buffer SET integration_datetime = $1, integration_error = NULL
			  WHERE table_name = $2 AND record_id = $3`
	_, err := r.db.ExecContext(ctx, query, at, tableName, recordID)
	return err
}

// SetIntegrationError records why integration of a record failed
func (r *SyncBufferRepository) SetIntegrationError(ctx context.Context, tableName, recordID, message string) error {
	query := `UPDATE sync_buffer SET integration_error = $1 WHERE table_name = $2 AND record_id = $3`
	_, err := r.db.ExecContext(ctx, query, message, tableName, recordID)
	return err
}

// CountUnintegrated returns the number of records waiting for integration
func (r *SyncBufferRepository) CountUnintegrated(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_buffer WHERE integration_datetime IS NULL`).Scan(&count)
	return count, err
}

// DeleteIntegrated removes records integrated before the cutoff
func (r *SyncBufferRepository) DeleteIntegrated(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sync_buffer WHERE integration_datetime IS NOT NULL AND integration_datetime < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
