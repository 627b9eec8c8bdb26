package syncer

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
)

const fileBatchSize = 100

// FileSyncer moves attachment content for sync file references
type FileSyncer struct {
	db      *sql.DB
	api     SyncAPI
	storage *services.FileStorageService
	config  Config
	metrics *observability.SyncMetrics
	logger  *observability.Logger
}

// NewFileSyncer creates a new FileSyncer
func NewFileSyncer(db *sql.DB, api SyncAPI, storage *services.FileStorageService, config Config, metrics *observability.SyncMetrics) *FileSyncer {
	return &FileSyncer{
		db:      db,
		api:     api,
		storage: storage,
		config:  config.withDefaults(),
		metrics: metrics,
		logger:  observability.GetLogger().WithField("component", "files"),
	}
}

// UploadPending sends files of this site's stores that the central server
// has not received yet. It runs after push so the references exist there.
// Transient failures leave the reference NEW for the next cycle.
func (f *FileSyncer) UploadPending(ctx context.Context) (int, error) {
	store := repository.NewSyncRowStore(f.db, f.config.SiteID)
	refs, err := store.SyncFileRefs.FindByStatus(ctx, models.SyncFileStatusNew, fileBatchSize)
	if err != nil {
		return 0, err
	}
	active, err := f.activeStoreIDs(ctx, store)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, ref := range refs {
		if ref.StoreID == nil || !active[*ref.StoreID] || !f.storage.Exists(ref) {
			continue
		}

		err := f.upload(ctx, ref)
		f.recordTransfer(ctx, "upload", err)
		switch {
		case err == nil:
			uploaded++
			err = store.SyncFileRefs.SetStatus(ctx, ref.ID, models.SyncFileStatusDone)
		case syncapi.IsRetryable(err):
			f.logger.WithContext(ctx).Warnf("Upload of file %s deferred: %v", ref.ID, err)
			err = nil
		default:
			f.logger.WithContext(ctx).Errorf("Upload of file %s failed: %v", ref.ID, err)
			err = store.SyncFileRefs.SetStatus(ctx, ref.ID, models.SyncFileStatusError)
		}
		if err != nil {
			return uploaded, err
		}
	}
	return uploaded, nil
}

// DownloadMissing fetches content for references whose file is not stored locally
func (f *FileSyncer) DownloadMissing(ctx context.Context) (int, error) {
	store := repository.NewSyncRowStore(f.db, f.config.SiteID)
	refs, err := store.SyncFileRefs.FindByStatus(ctx, models.SyncFileStatusNew, fileBatchSize)
	if err != nil {
		return 0, err
	}

	downloaded := 0
	for _, ref := range refs {
		if f.storage.Exists(ref) {
			continue
		}

		err := f.download(ctx, ref)
		f.recordTransfer(ctx, "download", err)
		switch {
		case err == nil:
			downloaded++
			err = store.SyncFileRefs.SetStatus(ctx, ref.ID, models.SyncFileStatusDone)
		case errors.Is(err, models.ErrFileTooLarge):
			f.logger.WithContext(ctx).Errorf("Download of file %s failed: %v", ref.ID, err)
			err = store.SyncFileRefs.SetStatus(ctx, ref.ID, models.SyncFileStatusError)
		default:
			// Not uploaded yet or unreachable; try again next cycle
			f.logger.WithContext(ctx).Warnf("Download of file %s deferred: %v", ref.ID, err)
			err = nil
		}
		if err != nil {
			return downloaded, err
		}
	}
	return downloaded, nil
}

func (f *FileSyncer) upload(ctx context.Context, ref *models.SyncFileReferenceRow) error {
	checksum, err := f.storage.Checksum(ref)
	if err != nil {
		return err
	}
	file, err := f.storage.Open(ref)
	if err != nil {
		return err
	}
	defer file.Close()

	return f.api.UploadFile(ctx, syncapi.FileUpload{ReferenceID: ref.ID, FileName: ref.FileName}, file, checksum)
}

// download streams the response straight into file storage
func (f *FileSyncer) download(ctx context.Context, ref *models.SyncFileReferenceRow) error {
	reader, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := f.api.DownloadFile(ctx, ref.ID, writer)
		writer.CloseWithError(err)
		done <- err
	}()

	_, storeErr := f.storage.Store(ref, reader, "")
	// Unblock the download if storage stopped reading early
	reader.CloseWithError(io.ErrClosedPipe)
	downloadErr := <-done

	if downloadErr != nil && !errors.Is(downloadErr, io.ErrClosedPipe) {
		return downloadErr
	}
	return storeErr
}

func (f *FileSyncer) activeStoreIDs(ctx context.Context, store *repository.SyncRowStore) (map[string]bool, error) {
	stores, err := store.ActiveStores(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(stores))
	for _, s := range stores {
		ids[s.ID] = true
	}
	return ids, nil
}

func (f *FileSyncer) recordTransfer(ctx context.Context, direction string, err error) {
	f.metrics.RecordFileTransfer(ctx, direction, err == nil)
}
