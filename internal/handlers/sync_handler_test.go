package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/syncer"
)

type fakeStatus struct {
	log *models.SyncLog
}

func (f *fakeStatus) Status(ctx context.Context) (*models.SyncLog, error) {
	return f.log, nil
}

type fakeTrigger struct {
	triggered int
	queued    bool
}

func (f *fakeTrigger) Trigger() bool {
	f.triggered++
	return f.queued
}

func (f *fakeTrigger) GetStatus() syncer.SchedulerStatus {
	return syncer.SchedulerStatus{Running: true, Interval: "5m0s"}
}

func setupSyncHandler(t *testing.T) (*SyncHandler, *fakeTrigger, *repository.SyncRowStore) {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	running := &models.SyncLog{ID: "log_1", StartedDatetime: started}
	running.Push.StartedDatetime = &started

	kv := repository.NewKeyValueRepository(db)
	require.NoError(t, kv.SetInt(context.Background(), models.KeySyncPushCursor, 2))
	require.NoError(t, kv.SetBool(context.Background(), models.KeySyncIsInitialised, true))

	trigger := &fakeTrigger{queued: true}
	handler := NewSyncHandler(
		&fakeStatus{log: running},
		trigger,
		repository.NewSyncLogRepository(db),
		repository.NewChangelogRepository(db),
		kv,
	)
	return handler, trigger, repository.NewSyncRowStore(db, siteID)
}

func TestSyncHandler_GetStatus(t *testing.T) {
	handler, _, store := setupSyncHandler(t)
	_, err := store.Upsert(context.Background(), &models.NameRow{ID: "name_a", Name: "A", Code: "A", Type: models.NameTypeStore}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var response SyncStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.NotNil(t, response.Current)
	assert.Equal(t, "log_1", response.Current.ID)
	assert.Nil(t, response.LastSuccessful)
	assert.True(t, response.IsInitialised)
	assert.True(t, response.Scheduler.Running)
	assert.Equal(t, SyncCursors{Push: 2, Latest: 1}, response.Cursors)
}

func TestSyncHandler_Trigger(t *testing.T) {
	handler, trigger, _ := setupSyncHandler(t)

	rec := httptest.NewRecorder()
	handler.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued": true}`, rec.Body.String())
	assert.Equal(t, 1, trigger.triggered)
}

func TestSyncHandler_ListLogs(t *testing.T) {
	handler, _, _ := setupSyncHandler(t)

	rec := httptest.NewRecorder()
	handler.ListLogs(rec, httptest.NewRequest(http.MethodGet, "/api/sync/logs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSyncHandler_ListChangelog(t *testing.T) {
	handler, _, store := setupSyncHandler(t)
	ctx := context.Background()
	for _, row := range []models.SyncRow{
		&models.NameRow{ID: "name_a", Name: "A", Code: "A", Type: models.NameTypeStore},
		&models.NameRow{ID: "name_b", Name: "B", Code: "B", Type: models.NameTypeStore},
		&models.StoreRow{ID: "store_a", NameLinkID: "name_a", Code: "A", SiteID: siteID, StoreMode: models.StoreModeStore},
	} {
		_, err := store.Upsert(ctx, row, nil)
		require.NoError(t, err)
	}

	t.Run("pages by cursor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ListChangelog(rec, httptest.NewRequest(http.MethodGet, "/api/changelog?since=1&limit=1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var response ChangelogResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Len(t, response.Entries, 1)
		assert.Equal(t, "name_b", response.Entries[0].RecordID)
		assert.Equal(t, int64(3), response.LatestCursor)
		assert.Equal(t, int64(1), response.Remaining)
	})

	t.Run("filters by table", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ListChangelog(rec, httptest.NewRequest(http.MethodGet, "/api/changelog?table=store", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var response ChangelogResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Len(t, response.Entries, 1)
		assert.Equal(t, models.TableNameStore, response.Entries[0].TableName)
		assert.Zero(t, response.Remaining)
	})
}
