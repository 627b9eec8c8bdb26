package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/syncapi"
)

// Puller fetches batches from the central server into the sync buffer
type Puller struct {
	db      *sql.DB
	api     SyncAPI
	config  Config
	metrics *observability.SyncMetrics
	now     func() time.Time
}

// NewPuller creates a new Puller
func NewPuller(db *sql.DB, api SyncAPI, config Config, metrics *observability.SyncMetrics) *Puller {
	return &Puller{
		db:      db,
		api:     api,
		config:  config.withDefaults(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Pull buffers every batch of a scope after from and returns the end cursor
// of the last batch. Nothing is persisted besides the buffer rows; the cursor
// is saved by integration.
func (p *Puller) Pull(ctx context.Context, scope syncapi.Scope, from int64, initial bool, step models.SyncStep, status *SyncLogger) (int64, int, error) {
	buffer := repository.NewSyncBufferRepository(p.db)
	centralSiteID := p.config.CentralSiteID

	cursor := from
	received := 0
	var total int64
	for {
		req := syncapi.PullRequest{Cursor: cursor, BatchSize: p.config.BatchSize, Scope: scope}

		var batch *syncapi.PullBatch
		var err error
		if initial {
			batch, err = p.api.InitialDump(ctx, req)
		} else {
			batch, err = p.api.GetQueuedRecords(ctx, req)
		}
		if err != nil {
			return cursor, received, err
		}

		now := p.now()
		rows := make([]models.SyncBufferRow, 0, len(batch.Records))
		for _, r := range batch.Records {
			rows = append(rows, models.SyncBufferRow{
				TableName:        r.TableName,
				RecordID:         r.RecordID,
				Action:           r.Action,
				Data:             r.Data,
				ReceivedDatetime: now,
				SourceSiteID:     &centralSiteID,
			})
		}
		if err := buffer.Upsert(ctx, rows); err != nil {
			return cursor, received, fmt.Errorf("buffer %s records: %w", scope, err)
		}
		received += len(rows)

		// The first batch reports everything that is left to pull
		if total == 0 {
			total = batch.TotalRecords
		}
		if err := status.Progress(ctx, step, total, int64(received)); err != nil {
			return cursor, received, err
		}

		if batch.IsLastBatch {
			if batch.EndCursor > cursor {
				cursor = batch.EndCursor
			}
			break
		}
		if batch.EndCursor <= cursor {
			return cursor, received, &syncapi.Error{
				Kind: syncapi.KindServer,
				Op:   "pull",
				Err:  fmt.Errorf("end cursor %d did not advance past %d", batch.EndCursor, cursor),
			}
		}
		cursor = batch.EndCursor
	}

	p.metrics.RecordPulled(ctx, string(scope), received)
	return cursor, received, nil
}
