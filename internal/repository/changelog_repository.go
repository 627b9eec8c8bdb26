package repository

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/supplysync/server/internal/models"
)

// changelogWriterLock is the transaction-scoped advisory lock key that orders
// changelog writers on PostgreSQL
const changelogWriterLock int64 = 0x73796e636c6f67

// orderedWriters is set for backends whose cursors are allocated at insert
// time but become visible at commit. Holding the writer lock until commit
// makes commit order match cursor order, so a reader never sees cursor n+1
// while n is still in flight.
var orderedWriters atomic.Bool

// OrderChangelogWriters enables the writer lock for every changelog insert
func OrderChangelogWriters(enabled bool) {
	orderedWriters.Store(enabled)
}

// ChangelogRepository is the append-only log of row mutations
type ChangelogRepository struct {
	db DBTX
}

// NewChangelogRepository creates a new ChangelogRepository
func NewChangelogRepository(db DBTX) *ChangelogRepository {
	return &ChangelogRepository{db: db}
}

// Insert appends an entry and returns its cursor. It must run in the same
// transaction as the data write it records.
func (r *ChangelogRepository) Insert(ctx context.Context, entry models.ChangelogEntry) (int64, error) {
	if !entry.TableName.IsValid() {
		return 0, fmt.Errorf("changelog insert %q: %w", entry.TableName, models.ErrUnknownTable)
	}

	if orderedWriters.Load() {
		if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, changelogWriterLock); err != nil {
			return 0, fmt.Errorf("changelog writer lock: %w", err)
		}
	}

	query := `INSERT INTO changelog (table_name, record_id, row_action, store_id, name_link_id, last_sync_site_id, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING cursor`

	var cursor int64
	err := r.db.QueryRowContext(ctx, query,
		entry.TableName, entry.RecordID, entry.RowAction,
		entry.StoreID, entry.NameLinkID, entry.LastSyncSiteID, time.Now().UTC(),
	).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("changelog insert %s/%s: %w", entry.TableName, entry.RecordID, err)
	}
	return cursor, nil
}

// Changelogs returns entries with cursor > since in ascending order, up to limit
func (r *ChangelogRepository) Changelogs(ctx context.Context, since int64, limit int, filter *models.ChangelogFilter) ([]models.ChangelogRow, error) {
	q := &queryArgs{}
	where := buildChangelogWhere(q, since, filter)

	query := `SELECT cursor, table_name, record_id, row_action, store_id, name_link_id, last_sync_site_id, created_at
			  FROM changelog WHERE ` + where + ` ORDER BY cursor ASC`
	if limit > 0 {
		query += " LIMIT " + q.add(limit)
	}

	rows, err := r.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ChangelogRow
	for rows.Next() {
		var c models.ChangelogRow
		if err := rows.Scan(&c.Cursor, &c.TableName, &c.RecordID, &c.RowAction,
			&c.StoreID, &c.NameLinkID, &c.LastSyncSiteID, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Count returns how many entries a Changelogs call with the same arguments would
// walk through without a limit
func (r *ChangelogRepository) Count(ctx context.Context, since int64, filter *models.ChangelogFilter) (int64, error) {
	q := &queryArgs{}
	where := buildChangelogWhere(q, since, filter)

	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changelog WHERE `+where, q.args...).Scan(&count)
	return count, err
}

// LatestCursor returns the highest cursor, or 0 when the changelog is empty
func (r *ChangelogRepository) LatestCursor(ctx context.Context) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(cursor), 0) FROM changelog`).Scan(&cursor)
	return cursor, err
}

func buildChangelogWhere(q *queryArgs, since int64, filter *models.ChangelogFilter) string {
	conds := []string{"cursor > " + q.add(since)}
	if filter == nil {
		return conds[0]
	}

	if filter.MaxCursor > 0 {
		conds = append(conds, "cursor <= "+q.add(filter.MaxCursor))
	}

	if len(filter.TableNames) > 0 {
		names := make([]string, len(filter.TableNames))
		for i, t := range filter.TableNames {
			names[i] = string(t)
		}
		conds = append(conds, "table_name IN ("+q.list(names)+")")
	}

	if filter.RowAction != nil {
		conds = append(conds, "row_action = "+q.add(string(*filter.RowAction)))
	}

	if filter.HasRouting() {
		var routing []string
		if len(filter.StoreIDs) > 0 {
			routing = append(routing, "store_id IN ("+q.list(filter.StoreIDs)+")")
		}
		if len(filter.NameLinkIDs) > 0 {
			routing = append(routing, "name_link_id IN ("+q.list(filter.NameLinkIDs)+")")
		}
		if filter.IncludeNullStore {
			routing = append(routing, "store_id IS NULL")
		}
		conds = append(conds, "("+strings.Join(routing, " OR ")+")")
	}

	if filter.ExcludeLastSyncSiteID != nil {
		conds = append(conds, "(last_sync_site_id IS NULL OR last_sync_site_id <> "+q.add(*filter.ExcludeLastSyncSiteID)+")")
	}

	return strings.Join(conds, " AND ")
}
