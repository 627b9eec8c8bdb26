package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

const (
	maxPullBatchSize     = 1000
	defaultPullBatchSize = 500

	notProcessed = "not processed: an earlier record was rejected"
)

// CentralService serves the sync protocol to remote sites
type CentralService struct {
	db            *sql.DB
	registry      *translations.Registry
	centralSiteID int32
	storage       *services.FileStorageService
	metrics       *observability.SyncMetrics
	logger        *observability.Logger

	mu          sync.Mutex
	integrating map[int32]int
}

// NewCentralService creates a new CentralService. storage may be nil when
// file attachments are disabled.
func NewCentralService(db *sql.DB, registry *translations.Registry, centralSiteID int32, storage *services.FileStorageService, metrics *observability.SyncMetrics) *CentralService {
	return &CentralService{
		db:            db,
		registry:      registry,
		centralSiteID: centralSiteID,
		storage:       storage,
		metrics:       metrics,
		logger:        observability.GetLogger().WithField("component", "central"),
		integrating:   make(map[int32]int),
	}
}

// Push integrates records from a site, each in its own transaction. Records
// after the first rejection are not processed so the site resends them in order.
func (c *CentralService) Push(ctx context.Context, siteID int32, records []syncapi.Record) (*syncapi.PushResponse, error) {
	ctx, span := observability.StartServiceSpan(ctx, "central", "push")
	defer span.End()
	span.SetAttributes(observability.SiteID(siteID))

	c.setIntegrating(siteID, true)
	defer c.setIntegrating(siteID, false)

	owned, err := c.siteStoreIDs(ctx, siteID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	resp := &syncapi.PushResponse{Results: make([]syncapi.RecordResult, 0, len(records))}
	rejected := false
	for _, record := range records {
		result := syncapi.RecordResult{Cursor: record.Cursor, RecordID: record.RecordID}
		switch {
		case rejected:
			result.Error = notProcessed
		case record.StoreID == nil || !owned[*record.StoreID]:
			result.Error = fmt.Sprintf("%s %s is not owned by site %d", record.TableName, record.RecordID, siteID)
		default:
			if err := c.integrate(ctx, siteID, record); err != nil {
				result.Error = err.Error()
			} else {
				result.Accepted = true
			}
		}

		if !result.Accepted && !rejected {
			rejected = true
			c.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"site":   siteID,
				"cursor": record.Cursor,
				"table":  record.TableName,
				"record": record.RecordID,
			}).Warnf("Rejected pushed record: %s", result.Error)
		}
		resp.Results = append(resp.Results, result)
	}

	observability.SetSuccess(span)
	return resp, nil
}

func (c *CentralService) integrate(ctx context.Context, siteID int32, record syncapi.Record) error {
	integration, err := c.registry.FromBuffer(&models.SyncBufferRow{
		TableName:    record.TableName,
		RecordID:     record.RecordID,
		Action:       record.Action,
		Data:         record.Data,
		SourceSiteID: &siteID,
	})
	if err != nil || integration == nil {
		return err
	}

	return repository.WithTransaction(ctx, c.db, func(tx *sql.Tx) error {
		store := repository.NewSyncRowStore(tx, c.centralSiteID)
		if integration.Action == models.RowActionDelete {
			_, err := store.Delete(ctx, integration.TableName, integration.RecordID, &siteID)
			return err
		}
		_, err := store.Upsert(ctx, integration.Row, &siteID)
		return err
	})
}

// Pull returns the next batch of changes visible to a site. An initial dump
// also includes changes the site wrote itself.
func (c *CentralService) Pull(ctx context.Context, siteID int32, req syncapi.PullRequest, initial bool) (*syncapi.PullBatch, error) {
	ctx, span := observability.StartServiceSpan(ctx, "central", "pull")
	defer span.End()
	span.SetAttributes(observability.SiteID(siteID), observability.Cursor(req.Cursor))

	batch, err := c.pull(ctx, siteID, req, initial)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSuccess(span)
	return batch, nil
}

func (c *CentralService) pull(ctx context.Context, siteID int32, req syncapi.PullRequest, initial bool) (*syncapi.PullBatch, error) {
	store := repository.NewSyncRowStore(c.db, c.centralSiteID)
	changelog := store.Changelog()

	latest, err := changelog.LatestCursor(ctx)
	if err != nil {
		return nil, err
	}

	filter, err := c.visibility(ctx, store, siteID, req.Scope, initial)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return &syncapi.PullBatch{Records: []syncapi.Record{}, EndCursor: max(latest, req.Cursor), IsLastBatch: true}, nil
	}
	filter.MaxCursor = latest

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPullBatchSize
	}
	batchSize = min(batchSize, maxPullBatchSize)

	total, err := changelog.Count(ctx, req.Cursor, filter)
	if err != nil {
		return nil, err
	}
	entries, err := changelog.Changelogs(ctx, req.Cursor, batchSize, filter)
	if err != nil {
		return nil, err
	}

	batch := &syncapi.PullBatch{
		Records:      make([]syncapi.Record, 0, len(entries)),
		TotalRecords: total,
		IsLastBatch:  int64(len(entries)) >= total,
		EndCursor:    max(latest, req.Cursor),
	}
	if !batch.IsLastBatch {
		batch.EndCursor = entries[len(entries)-1].Cursor
	}

	for i := range entries {
		entry := entries[i]
		var row models.SyncRow
		if entry.RowAction == models.RowActionUpsert {
			row, err = store.Find(ctx, entry.TableName, entry.RecordID)
			if err != nil {
				return nil, err
			}
			if row == nil {
				continue
			}
		}

		record, err := c.registry.ToPush(&entry, row)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		batch.Records = append(batch.Records, syncapi.Record{
			Cursor:    entry.Cursor,
			TableName: record.TableName,
			RecordID:  record.RecordID,
			Action:    record.Action,
			StoreID:   record.StoreID,
			Data:      record.Data,
		})
	}
	return batch, nil
}

// visibility returns the changelog filter of a scope for a site, or nil when
// nothing in the scope can be visible to it
func (c *CentralService) visibility(ctx context.Context, store *repository.SyncRowStore, siteID int32, scope syncapi.Scope, initial bool) (*models.ChangelogFilter, error) {
	filter := &models.ChangelogFilter{TableNames: c.registry.PullOrder()}
	if !initial {
		filter.ExcludeLastSyncSiteID = &siteID
	}

	switch scope {
	case syncapi.ScopeCentral:
		filter.IncludeNullStore = true
	case syncapi.ScopeRemote:
		stores, err := store.Stores.FindBySiteID(ctx, siteID)
		if err != nil {
			return nil, err
		}
		if len(stores) == 0 {
			return nil, nil
		}
		for _, s := range stores {
			filter.StoreIDs = append(filter.StoreIDs, s.ID)
			filter.NameLinkIDs = append(filter.NameLinkIDs, s.NameLinkID)
		}
	default:
		return nil, fmt.Errorf("unknown pull scope %q", scope)
	}
	return filter, nil
}

// Acknowledge stores the cursor a site has integrated up to
func (c *CentralService) Acknowledge(ctx context.Context, siteID int32, req syncapi.AcknowledgeRequest) error {
	kv := repository.NewKeyValueRepository(c.db)
	return kv.SetInt(ctx, models.CentralAckCursorKey(siteID, string(req.Scope)), req.Cursor)
}

// SiteStatus reports whether a push from the site is being integrated
func (c *CentralService) SiteStatus(siteID int32) *syncapi.SiteStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &syncapi.SiteStatus{
		SiteID:        siteID,
		CentralSiteID: c.centralSiteID,
		IsIntegrating: c.integrating[siteID] > 0,
	}
}

// StoreFile saves the content of a file reference uploaded by a site
func (c *CentralService) StoreFile(ctx context.Context, referenceID string, content io.Reader, sha256Hex string) error {
	ref, err := c.fileReference(ctx, referenceID)
	if err != nil {
		return err
	}
	if _, err := c.storage.Store(ref, content, sha256Hex); err != nil {
		c.recordTransfer(ctx, "upload", err)
		return err
	}
	c.recordTransfer(ctx, "upload", nil)

	return repository.NewSyncFileReferenceRepository(c.db).SetStatus(ctx, ref.ID, models.SyncFileStatusDone)
}

// OpenFile returns the stored content of a file reference
func (c *CentralService) OpenFile(ctx context.Context, referenceID string) (*os.File, *models.SyncFileReferenceRow, error) {
	ref, err := c.fileReference(ctx, referenceID)
	if err != nil {
		return nil, nil, err
	}
	file, err := c.storage.Open(ref)
	c.recordTransfer(ctx, "download", err)
	if err != nil {
		return nil, nil, err
	}
	return file, ref, nil
}

func (c *CentralService) fileReference(ctx context.Context, referenceID string) (*models.SyncFileReferenceRow, error) {
	if c.storage == nil {
		return nil, models.ErrFileNotFound
	}
	ref, err := repository.NewSyncFileReferenceRepository(c.db).FindByID(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, models.ErrRecordNotFound
	}
	return ref, nil
}

func (c *CentralService) siteStoreIDs(ctx context.Context, siteID int32) (map[string]bool, error) {
	stores, err := repository.NewStoreRepository(c.db).FindBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(stores))
	for _, s := range stores {
		ids[s.ID] = true
	}
	return ids, nil
}

func (c *CentralService) setIntegrating(siteID int32, integrating bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if integrating {
		c.integrating[siteID]++
		return
	}
	c.integrating[siteID]--
	if c.integrating[siteID] <= 0 {
		delete(c.integrating, siteID)
	}
}

func (c *CentralService) recordTransfer(ctx context.Context, direction string, err error) {
	c.metrics.RecordFileTransfer(ctx, direction, err == nil)
}
