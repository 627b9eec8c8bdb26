package syncer

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/translations"
)

// Integrator applies buffered records to local storage in one transaction
type Integrator struct {
	db       *sql.DB
	registry *translations.Registry
	config   Config
	metrics  *observability.SyncMetrics
	logger   *observability.Logger
	now      func() time.Time
}

// NewIntegrator creates a new Integrator
func NewIntegrator(db *sql.DB, registry *translations.Registry, config Config, metrics *observability.SyncMetrics) *Integrator {
	return &Integrator{
		db:       db,
		registry: registry,
		config:   config.withDefaults(),
		metrics:  metrics,
		logger:   observability.GetLogger().WithField("component", "integrate"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CursorUpdate is a cursor saved in the same transaction as the records it covers
type CursorUpdate struct {
	Key   models.KeyType
	Value int64
}

// IntegrationResult summarises a committed integration
type IntegrationResult struct {
	Integrated int
	Skipped    int
}

type integrationItem struct {
	buffer models.SyncBufferRow
	record *translations.IntegrationRecord
}

// Integrate translates every unintegrated buffer row and applies them with
// the cursor updates. Either all of it commits or none of it does.
func (i *Integrator) Integrate(ctx context.Context, cursors []CursorUpdate, markInitialised bool, status *SyncLogger) (*IntegrationResult, error) {
	bufferRows, err := repository.NewSyncBufferRepository(i.db).GetUnintegrated(ctx)
	if err != nil {
		return nil, err
	}

	total := int64(len(bufferRows))
	if err := status.Progress(ctx, models.SyncStepIntegrate, total, 0); err != nil {
		return nil, err
	}

	items := make([]integrationItem, 0, len(bufferRows))
	for _, row := range bufferRows {
		record, err := i.registry.FromBuffer(&row)
		if err != nil {
			i.recordFailure(ctx, row, err)
			return nil, &IntegrationError{TableName: row.TableName, RecordID: row.RecordID, Err: err}
		}
		items = append(items, integrationItem{buffer: row, record: record})
	}
	i.order(items)

	result := &IntegrationResult{}
	var failed *integrationItem
	integratedAt := i.now()

	err = repository.WithTransaction(ctx, i.db, func(tx *sql.Tx) error {
		store := repository.NewSyncRowStore(tx, i.config.SiteID)
		buffer := repository.NewSyncBufferRepository(tx)
		kv := repository.NewKeyValueRepository(tx)

		for n := range items {
			item := &items[n]
			if err := i.apply(ctx, store, item); err != nil {
				failed = item
				return &IntegrationError{TableName: item.buffer.TableName, RecordID: item.buffer.RecordID, Err: err}
			}
			if item.record == nil {
				result.Skipped++
			} else {
				result.Integrated++
			}
			if err := buffer.MarkIntegrated(ctx, item.buffer.TableName, item.buffer.RecordID, integratedAt); err != nil {
				return err
			}
		}

		for _, c := range cursors {
			if err := kv.SetInt(ctx, c.Key, c.Value); err != nil {
				return err
			}
		}
		if markInitialised {
			if err := kv.SetBool(ctx, models.KeySyncIsInitialised, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if failed != nil {
			var integrationErr *IntegrationError
			if errors.As(err, &integrationErr) {
				i.recordFailure(ctx, failed.buffer, integrationErr.Err)
			}
		}
		return nil, err
	}

	if err := status.Progress(ctx, models.SyncStepIntegrate, total, total); err != nil {
		return nil, err
	}

	if !i.config.RetainBuffer {
		if _, err := repository.NewSyncBufferRepository(i.db).DeleteIntegrated(ctx, integratedAt.Add(time.Second)); err != nil {
			i.logger.WithContext(ctx).Warnf("Failed to prune sync buffer: %v", err)
		}
	}

	i.metrics.RecordIntegrated(ctx, result.Integrated)
	return result, nil
}

// order puts upserts first in pull order so referenced rows exist, then
// deletes in reverse pull order so referencing rows go first
func (i *Integrator) order(items []integrationItem) {
	rank := func(item integrationItem) (bool, int) {
		if item.record == nil {
			return false, -1
		}
		return item.record.Action == models.RowActionDelete, i.registry.OrderIndex(item.record.TableName)
	}

	sort.SliceStable(items, func(a, b int) bool {
		aDelete, aIndex := rank(items[a])
		bDelete, bIndex := rank(items[b])
		if aDelete != bDelete {
			return !aDelete
		}
		if aDelete {
			return aIndex > bIndex
		}
		return aIndex < bIndex
	})
}

func (i *Integrator) apply(ctx context.Context, store *repository.SyncRowStore, item *integrationItem) error {
	if item.record == nil {
		return nil
	}

	origin := item.buffer.SourceSiteID
	if origin == nil {
		origin = &i.config.CentralSiteID
	}

	var err error
	if item.record.Action == models.RowActionDelete {
		_, err = store.Delete(ctx, item.record.TableName, item.record.RecordID, origin)
	} else {
		_, err = store.Upsert(ctx, item.record.Row, origin)
	}
	return err
}

// recordFailure keeps the error on the buffer row after the rollback
func (i *Integrator) recordFailure(ctx context.Context, row models.SyncBufferRow, cause error) {
	buffer := repository.NewSyncBufferRepository(i.db)
	if err := buffer.SetIntegrationError(ctx, row.TableName, row.RecordID, cause.Error()); err != nil {
		i.logger.WithContext(ctx).Errorf("Failed to record integration error for %s %s: %v", row.TableName, row.RecordID, err)
	}
	i.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"table":  row.TableName,
		"record": row.RecordID,
	}).Errorf("Integration failed: %v", cause)
}
