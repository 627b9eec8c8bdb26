package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/supplysync/server/internal/models"
)

// SyncLogRepository stores one row per sync cycle
type SyncLogRepository struct {
	db DBTX
}

// NewSyncLogRepository creates a new SyncLogRepository
func NewSyncLogRepository(db DBTX) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

const syncLogColumns = `id, started_datetime, finished_datetime, prepare_initial, push, wait_for_integration,
	pull_central, pull_remote, integration, error_message, error_code`

// Upsert inserts or replaces a sync log row
func (r *SyncLogRepository) Upsert(ctx context.Context, l *models.SyncLog) error {
	steps := make([]interface{}, 0, len(models.SyncSteps))
	for _, step := range models.SyncSteps {
		data, err := json.Marshal(l.Progress(step))
		if err != nil {
			return err
		}
		steps = append(steps, string(data))
	}

	query := `INSERT INTO sync_log (` + syncLogColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  ON CONFLICT (id) DO UPDATE SET
				finished_datetime = EXCLUDED.finished_datetime,
				prepare_initial = EXCLUDED.prepare_initial,
				push = EXCLUDED.push,
				wait_for_integration = EXCLUDED.wait_for_integration,
				pull_central = EXCLUDED.pull_central,
				pull_remote = EXCLUDED.pull_remote,
				integration = EXCLUDED.integration,
				error_message = EXCLUDED.error_message,
				error_code = EXCLUDED.error_code`

	args := []interface{}{l.ID, l.StartedDatetime, l.FinishedDatetime}
	args = append(args, steps...)
	args = append(args, l.ErrorMessage, l.ErrorCode)

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Latest returns the most recent sync log, or nil if sync never ran
func (r *SyncLogRepository) Latest(ctx context.Context) (*models.SyncLog, error) {
	logs, err := r.List(ctx, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

// LatestSuccessful returns the most recent cycle that finished without error
func (r *SyncLogRepository) LatestSuccessful(ctx context.Context) (*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_log
			  WHERE finished_datetime IS NOT NULL AND error_message IS NULL
			  ORDER BY started_datetime DESC LIMIT 1`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs, err := scanSyncLogs(rows)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

// List returns the newest sync logs first
func (r *SyncLogRepository) List(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_log ORDER BY started_datetime DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSyncLogs(rows)
}

// DeleteOlderThan removes all but the newest keep rows
func (r *SyncLogRepository) DeleteOlderThan(ctx context.Context, keep int) (int64, error) {
	query := `DELETE FROM sync_log WHERE id NOT IN (
				SELECT id FROM sync_log ORDER BY started_datetime DESC LIMIT $1
			  )`
	result, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSyncLogs(rows *sql.Rows) ([]*models.SyncLog, error) {
	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		var steps [6]string
		if err := rows.Scan(&l.ID, &l.StartedDatetime, &l.FinishedDatetime,
			&steps[0], &steps[1], &steps[2], &steps[3], &steps[4], &steps[5],
			&l.ErrorMessage, &l.ErrorCode); err != nil {
			return nil, err
		}
		for i, step := range models.SyncSteps {
			if err := json.Unmarshal([]byte(steps[i]), l.Progress(step)); err != nil {
				return nil, err
			}
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
