package syncer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

// Pusher sends local changelog entries for this site's stores to the central server
type Pusher struct {
	db       *sql.DB
	api      SyncAPI
	registry *translations.Registry
	config   Config
	metrics  *observability.SyncMetrics
	logger   *observability.Logger
}

// NewPusher creates a new Pusher
func NewPusher(db *sql.DB, api SyncAPI, registry *translations.Registry, config Config, metrics *observability.SyncMetrics) *Pusher {
	return &Pusher{
		db:       db,
		api:      api,
		registry: registry,
		config:   config.withDefaults(),
		metrics:  metrics,
		logger:   observability.GetLogger().WithField("component", "push"),
	}
}

// pushEntry is a changelog entry and the wire record it became, if any
type pushEntry struct {
	changelog models.ChangelogRow
	record    *translations.PushRecord
}

// Push sends everything after the push cursor and returns the number of
// records the remote accepted. The cursor only moves past entries that were
// accepted or skipped, in order.
func (p *Pusher) Push(ctx context.Context, status *SyncLogger) (int, error) {
	store := repository.NewSyncRowStore(p.db, p.config.SiteID)
	kv := repository.NewKeyValueRepository(p.db)

	filter, err := p.filter(ctx, store)
	if err != nil {
		return 0, err
	}
	if filter == nil {
		p.logger.WithContext(ctx).Warn("No active stores on this site, nothing to push")
		return 0, nil
	}

	cursor, err := kv.GetCursor(ctx, models.KeySyncPushCursor)
	if err != nil {
		return 0, fmt.Errorf("read push cursor: %w", err)
	}

	total, err := store.Changelog().Count(ctx, cursor, filter)
	if err != nil {
		return 0, fmt.Errorf("count push changelogs: %w", err)
	}
	var done int64
	if err := status.Progress(ctx, models.SyncStepPush, total, done); err != nil {
		return 0, err
	}

	pushed := 0
	for {
		changelogs, err := store.Changelog().Changelogs(ctx, cursor, p.config.BatchSize, filter)
		if err != nil {
			return pushed, fmt.Errorf("read push changelogs: %w", err)
		}
		if len(changelogs) == 0 {
			break
		}

		entries, err := p.translate(ctx, store, changelogs)
		if err != nil {
			return pushed, err
		}

		accepted, newCursor, pushErr := p.send(ctx, entries, cursor)
		pushed += accepted

		if newCursor > cursor {
			if err := kv.SetInt(ctx, models.KeySyncPushCursor, newCursor); err != nil {
				return pushed, fmt.Errorf("save push cursor: %w", err)
			}
			cursor = newCursor
		}
		if pushErr != nil {
			return pushed, pushErr
		}

		done += int64(len(changelogs))
		if err := status.Progress(ctx, models.SyncStepPush, total, done); err != nil {
			return pushed, err
		}
	}

	p.metrics.RecordPushed(ctx, pushed)
	return pushed, nil
}

// filter scopes the push to this site's stores, never echoing central writes
func (p *Pusher) filter(ctx context.Context, store *repository.SyncRowStore) (*models.ChangelogFilter, error) {
	activeStores, err := store.ActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active stores: %w", err)
	}
	if len(activeStores) == 0 {
		return nil, nil
	}

	filter := &models.ChangelogFilter{
		TableNames:            p.registry.PullOrder(),
		ExcludeLastSyncSiteID: &p.config.CentralSiteID,
	}
	for _, s := range activeStores {
		filter.StoreIDs = append(filter.StoreIDs, s.ID)
		filter.NameLinkIDs = append(filter.NameLinkIDs, s.NameLinkID)
	}
	return filter, nil
}

// translate loads the current state of each changed row and converts it.
// Rows that no longer exist are skipped; their delete entry follows later.
func (p *Pusher) translate(ctx context.Context, store *repository.SyncRowStore, changelogs []models.ChangelogRow) ([]pushEntry, error) {
	entries := make([]pushEntry, 0, len(changelogs))
	for i := range changelogs {
		changelog := changelogs[i]
		entry := pushEntry{changelog: changelog}

		var row models.SyncRow
		if changelog.RowAction == models.RowActionUpsert {
			var err error
			row, err = store.Find(ctx, changelog.TableName, changelog.RecordID)
			if err != nil {
				return nil, fmt.Errorf("load %s %s for push: %w", changelog.TableName, changelog.RecordID, err)
			}
			if row == nil {
				entries = append(entries, entry)
				continue
			}
		}

		record, err := p.registry.ToPush(&changelog, row)
		if err != nil {
			return nil, err
		}
		entry.record = record
		entries = append(entries, entry)
	}
	return entries, nil
}

// send pushes the translated records of a batch and returns how many were
// accepted and the cursor of the last entry in the cleared prefix
func (p *Pusher) send(ctx context.Context, entries []pushEntry, cursor int64) (int, int64, error) {
	var records []syncapi.Record
	for _, e := range entries {
		if e.record == nil {
			continue
		}
		records = append(records, syncapi.Record{
			Cursor:    e.record.Cursor,
			TableName: e.record.TableName,
			RecordID:  e.record.RecordID,
			Action:    e.record.Action,
			StoreID:   e.record.StoreID,
			Data:      e.record.Data,
		})
	}

	results := map[int64]syncapi.RecordResult{}
	if len(records) > 0 {
		resp, err := p.api.PostQueuedRecords(ctx, records)
		if err != nil {
			return 0, cursor, err
		}
		for _, r := range resp.Results {
			results[r.Cursor] = r
		}
	}

	accepted := 0
	for _, e := range entries {
		if e.record != nil {
			result, ok := results[e.changelog.Cursor]
			if !ok || !result.Accepted {
				reason := result.Error
				if !ok {
					reason = "no result returned for record"
				}
				p.logger.WithContext(ctx).WithFields(map[string]interface{}{
					"cursor": e.changelog.Cursor,
					"table":  e.record.TableName,
					"record": e.record.RecordID,
				}).Warnf("Push rejected: %s", reason)
				return accepted, cursor, &PushRejectedError{
					Cursor:    e.changelog.Cursor,
					TableName: e.record.TableName,
					RecordID:  e.record.RecordID,
					Reason:    reason,
				}
			}
			accepted++
		}
		cursor = e.changelog.Cursor
	}
	return accepted, cursor, nil
}
