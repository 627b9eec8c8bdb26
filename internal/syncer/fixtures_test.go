package syncer

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

const (
	centralSiteID int32 = 1
	remoteSiteID  int32 = 2
	otherSiteID   int32 = 3
)

func setupDB(t *testing.T, name string) *sql.DB {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func setupStorage(t *testing.T) *services.FileStorageService {
	t.Helper()

	storage, err := services.NewFileStorageService(t.TempDir(), 1, services.NewHashService())
	require.NoError(t, err)
	return storage
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func startedLogger(t *testing.T, db *sql.DB) *SyncLogger {
	t.Helper()

	status := NewSyncLogger(repository.NewSyncLogRepository(db), nil)
	require.NoError(t, status.Start(context.Background()))
	return status
}

// testCentral is a central server with two sites: store_a belongs to the
// remote site, store_b to another site
type testCentral struct {
	db       *sql.DB
	registry *translations.Registry
	storage  *services.FileStorageService
	service  *CentralService
}

func setupCentral(t *testing.T) *testCentral {
	t.Helper()

	c := &testCentral{
		db:       setupDB(t, "central"),
		registry: translations.DefaultRegistry(),
		storage:  setupStorage(t),
	}
	c.service = NewCentralService(c.db, c.registry, centralSiteID, c.storage, nil)

	c.upsert(t, nil,
		&models.NameRow{ID: "name_a", Name: "District Store", Code: "DS", Type: models.NameTypeStore, IsCustomer: true, IsSupplier: true},
		&models.NameRow{ID: "name_b", Name: "Health Centre", Code: "HC", Type: models.NameTypeStore, IsCustomer: true},
		&models.StoreRow{ID: "store_a", NameLinkID: "name_a", Code: "DS", SiteID: remoteSiteID, StoreMode: models.StoreModeStore},
		&models.StoreRow{ID: "store_b", NameLinkID: "name_b", Code: "HC", SiteID: otherSiteID, StoreMode: models.StoreModeStore},
	)
	return c
}

// upsert writes rows on the central server as if they came from origin
func (c *testCentral) upsert(t *testing.T, origin *int32, rows ...models.SyncRow) {
	t.Helper()

	store := repository.NewSyncRowStore(c.db, centralSiteID)
	for _, row := range rows {
		_, err := store.Upsert(context.Background(), row, origin)
		require.NoError(t, err)
	}
}

// centralAPI serves a site's calls from an in-process CentralService and
// records what was pushed
type centralAPI struct {
	central *CentralService
	siteID  int32

	mu     sync.Mutex
	pushed [][]syncapi.Record
	reject func(syncapi.Record) string
	down   bool
}

var _ SyncAPI = (*centralAPI)(nil)

func (a *centralAPI) InitialDump(ctx context.Context, req syncapi.PullRequest) (*syncapi.PullBatch, error) {
	if err := a.available(); err != nil {
		return nil, err
	}
	return a.central.Pull(ctx, a.siteID, req, true)
}

func (a *centralAPI) GetQueuedRecords(ctx context.Context, req syncapi.PullRequest) (*syncapi.PullBatch, error) {
	if err := a.available(); err != nil {
		return nil, err
	}
	return a.central.Pull(ctx, a.siteID, req, false)
}

func (a *centralAPI) PostQueuedRecords(ctx context.Context, records []syncapi.Record) (*syncapi.PushResponse, error) {
	if err := a.available(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.pushed = append(a.pushed, records)
	reject := a.reject
	a.mu.Unlock()

	if reject != nil {
		for i, record := range records {
			reason := reject(record)
			if reason == "" {
				continue
			}
			resp, err := a.central.Push(ctx, a.siteID, records[:i])
			if err != nil {
				return nil, err
			}
			resp.Results = append(resp.Results, syncapi.RecordResult{Cursor: record.Cursor, RecordID: record.RecordID, Error: reason})
			for _, rest := range records[i+1:] {
				resp.Results = append(resp.Results, syncapi.RecordResult{Cursor: rest.Cursor, RecordID: rest.RecordID, Error: notProcessed})
			}
			return resp, nil
		}
	}
	return a.central.Push(ctx, a.siteID, records)
}

func (a *centralAPI) PostAcknowledgedRecords(ctx context.Context, req syncapi.AcknowledgeRequest) error {
	if err := a.available(); err != nil {
		return err
	}
	return a.central.Acknowledge(ctx, a.siteID, req)
}

func (a *centralAPI) SiteStatus(ctx context.Context) (*syncapi.SiteStatus, error) {
	if err := a.available(); err != nil {
		return nil, err
	}
	return a.central.SiteStatus(a.siteID), nil
}

func (a *centralAPI) UploadFile(ctx context.Context, upload syncapi.FileUpload, content io.ReadSeeker, sha256Hex string) error {
	if err := a.available(); err != nil {
		return err
	}
	return a.central.StoreFile(ctx, upload.ReferenceID, content, sha256Hex)
}

func (a *centralAPI) DownloadFile(ctx context.Context, referenceID string, w io.Writer) (int64, error) {
	if err := a.available(); err != nil {
		return 0, err
	}
	file, _, err := a.central.OpenFile(ctx, referenceID)
	if err != nil {
		return 0, &syncapi.Error{Kind: syncapi.KindFileNotFound, Op: "download_file", Err: err}
	}
	defer file.Close()
	return io.Copy(w, file)
}

func (a *centralAPI) available() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return &syncapi.Error{Kind: syncapi.KindConnection, Op: "request"}
	}
	return nil
}

func (a *centralAPI) setReject(fn func(syncapi.Record) string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reject = fn
}

func (a *centralAPI) setDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

// takePushed returns the records pushed since the last call
func (a *centralAPI) takePushed() []syncapi.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	var records []syncapi.Record
	for _, batch := range a.pushed {
		records = append(records, batch...)
	}
	a.pushed = nil
	return records
}

// testSite is a remote site syncing against a testCentral
type testSite struct {
	db      *sql.DB
	api     *centralAPI
	storage *services.FileStorageService
	sync    *Synchroniser
}

func newTestSite(t *testing.T, central *testCentral, siteID int32, opts ...func(*Config)) *testSite {
	t.Helper()

	s := &testSite{
		db:      setupDB(t, "site"),
		api:     &centralAPI{central: central.service, siteID: siteID},
		storage: setupStorage(t),
	}
	config := Config{
		SiteID:          siteID,
		CentralSiteID:   centralSiteID,
		BatchSize:       2,
		IntegrationWait: time.Second,
		PollInterval:    10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	s.sync = NewSynchroniser(s.db, s.api, translations.DefaultRegistry(), config, Dependencies{FileStorage: s.storage})
	return s
}

func (s *testSite) rows() *repository.SyncRowStore {
	return repository.NewSyncRowStore(s.db, s.sync.config.SiteID)
}

func (s *testSite) upsert(t *testing.T, rows ...models.SyncRow) {
	t.Helper()

	for _, row := range rows {
		_, err := s.rows().Upsert(context.Background(), row, nil)
		require.NoError(t, err)
	}
}

func (s *testSite) cursor(t *testing.T, key models.KeyType) int64 {
	t.Helper()

	cursor, err := repository.NewKeyValueRepository(s.db).GetCursor(context.Background(), key)
	require.NoError(t, err)
	return cursor
}

func newStocktake(id string, number int64) *models.StocktakeRow {
	return &models.StocktakeRow{
		ID:              id,
		StoreID:         "store_a",
		UserID:          "user_a",
		StocktakeNumber: number,
		Status:          models.StocktakeStatusNew,
		CreatedDatetime: time.Date(2022, 3, 20, 9, 30, 0, 0, time.UTC),
	}
}

// bufferRowFor encodes a row the way the central server sends it
func bufferRowFor(t *testing.T, registry *translations.Registry, row models.SyncRow) models.SyncBufferRow {
	t.Helper()

	changelog := &models.ChangelogRow{Cursor: 1, TableName: row.Table(), RecordID: row.RecordID(), RowAction: models.RowActionUpsert}
	record, err := registry.ToPush(changelog, row)
	require.NoError(t, err)
	require.NotNil(t, record)

	source := centralSiteID
	return models.SyncBufferRow{
		TableName:        record.TableName,
		RecordID:         record.RecordID,
		Action:           record.Action,
		Data:             record.Data,
		ReceivedDatetime: time.Now().UTC(),
		SourceSiteID:     &source,
	}
}
