package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/translations"
)

func TestIntegrator_Integrate(t *testing.T) {
	ctx := context.Background()
	registry := translations.DefaultRegistry()

	central := []models.SyncRow{
		&models.NameRow{ID: "name_a", Name: "District Store", Code: "DS", Type: models.NameTypeStore, IsSupplier: true},
		&models.StoreRow{ID: "store_a", NameLinkID: "name_a", Code: "DS", SiteID: remoteSiteID, StoreMode: models.StoreModeStore},
	}

	t.Run("applies rows in dependency order and saves cursors", func(t *testing.T) {
		db := setupDB(t, "site")
		// Buffered child first: integration must still insert the parent first
		rows := []models.SyncBufferRow{
			bufferRowFor(t, registry, newStocktake("stocktake_a", 1)),
			bufferRowFor(t, registry, central[1]),
			bufferRowFor(t, registry, central[0]),
		}
		require.NoError(t, repository.NewSyncBufferRepository(db).Upsert(ctx, rows))

		integrator := NewIntegrator(db, registry, Config{SiteID: remoteSiteID}, nil)
		result, err := integrator.Integrate(ctx, []CursorUpdate{{Key: models.KeySyncPullCursorCentral, Value: 42}}, true, startedLogger(t, db))
		require.NoError(t, err)
		assert.Equal(t, 3, result.Integrated)

		store := repository.NewSyncRowStore(db, remoteSiteID)
		stocktake, err := store.Stocktakes.FindByID(ctx, "stocktake_a")
		require.NoError(t, err)
		assert.NotNil(t, stocktake)

		cursor, err := repository.NewKeyValueRepository(db).GetCursor(ctx, models.KeySyncPullCursorCentral)
		require.NoError(t, err)
		assert.Equal(t, int64(42), cursor)

		initialised, err := repository.NewKeyValueRepository(db).GetBool(ctx, models.KeySyncIsInitialised)
		require.NoError(t, err)
		assert.True(t, initialised)

		// Integrated rows are logged as coming from the central server
		entries, err := store.Changelog().Changelogs(ctx, 0, 10, &models.ChangelogFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for _, e := range entries {
			require.NotNil(t, e.LastSyncSiteID)
			assert.Equal(t, centralSiteID, *e.LastSyncSiteID)
		}

		count, err := repository.NewSyncBufferRepository(db).CountUnintegrated(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("a failing record rolls back the whole batch", func(t *testing.T) {
		db := setupDB(t, "site")
		orphan := newStocktake("stocktake_orphan", 2)
		orphan.StoreID = "store_missing"
		rows := []models.SyncBufferRow{
			bufferRowFor(t, registry, central[0]),
			bufferRowFor(t, registry, central[1]),
			bufferRowFor(t, registry, newStocktake("stocktake_a", 1)),
			bufferRowFor(t, registry, orphan),
		}
		buffer := repository.NewSyncBufferRepository(db)
		require.NoError(t, buffer.Upsert(ctx, rows))

		integrator := NewIntegrator(db, registry, Config{SiteID: remoteSiteID}, nil)
		_, err := integrator.Integrate(ctx, []CursorUpdate{{Key: models.KeySyncPullCursorRemote, Value: 7}}, true, startedLogger(t, db))
		require.Error(t, err)

		var integrationErr *IntegrationError
		require.True(t, errors.As(err, &integrationErr))
		assert.Equal(t, "stocktake_orphan", integrationErr.RecordID)
		assert.Equal(t, models.SyncErrorIntegration, ErrorCodeOf(err))

		store := repository.NewSyncRowStore(db, remoteSiteID)
		for _, row := range append(central, newStocktake("stocktake_a", 1)) {
			found, err := store.Find(ctx, row.Table(), row.RecordID())
			require.NoError(t, err)
			assert.Nil(t, found, row.RecordID())
		}

		latest, err := store.Changelog().LatestCursor(ctx)
		require.NoError(t, err)
		assert.Zero(t, latest)

		cursor, err := repository.NewKeyValueRepository(db).GetInt(ctx, models.KeySyncPullCursorRemote)
		require.NoError(t, err)
		assert.Nil(t, cursor)

		initialised, err := repository.NewKeyValueRepository(db).GetBool(ctx, models.KeySyncIsInitialised)
		require.NoError(t, err)
		assert.False(t, initialised)

		pending, err := buffer.GetUnintegrated(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 4)
		for _, row := range pending {
			if row.RecordID == "stocktake_orphan" {
				require.NotNil(t, row.IntegrationError)
				assert.NotEmpty(t, *row.IntegrationError)
			} else {
				assert.Nil(t, row.IntegrationError, row.RecordID)
			}
		}
	})

	t.Run("untranslatable payload fails before anything is applied", func(t *testing.T) {
		db := setupDB(t, "site")
		broken := models.SyncBufferRow{
			TableName: translations.LegacyStocktakeTable,
			RecordID:  "stocktake_broken",
			Action:    models.RowActionUpsert,
			Data:      json.RawMessage(`{"ID": "stocktake_broken", "status": "zz", "stock_take_created_date": "2021-07-30"}`),
		}
		buffer := repository.NewSyncBufferRepository(db)
		require.NoError(t, buffer.Upsert(ctx, []models.SyncBufferRow{bufferRowFor(t, registry, central[0]), broken}))

		integrator := NewIntegrator(db, registry, Config{SiteID: remoteSiteID}, nil)
		_, err := integrator.Integrate(ctx, nil, false, startedLogger(t, db))
		require.Error(t, err)

		var translateErr *translations.Error
		assert.True(t, errors.As(err, &translateErr))

		name, err := repository.NewNameRepository(db).FindByID(ctx, "name_a")
		require.NoError(t, err)
		assert.Nil(t, name)
	})

	t.Run("unknown tables are skipped", func(t *testing.T) {
		db := setupDB(t, "site")
		unknown := models.SyncBufferRow{
			TableName: "item",
			RecordID:  "item_a",
			Action:    models.RowActionUpsert,
			Data:      json.RawMessage(`{}`),
		}
		require.NoError(t, repository.NewSyncBufferRepository(db).Upsert(ctx, []models.SyncBufferRow{unknown}))

		integrator := NewIntegrator(db, registry, Config{SiteID: remoteSiteID, RetainBuffer: true}, nil)
		result, err := integrator.Integrate(ctx, nil, false, startedLogger(t, db))
		require.NoError(t, err)
		assert.Equal(t, 0, result.Integrated)
		assert.Equal(t, 1, result.Skipped)

		count, err := repository.NewSyncBufferRepository(db).CountUnintegrated(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("deletes run after upserts, children first", func(t *testing.T) {
		db := setupDB(t, "site")
		store := repository.NewSyncRowStore(db, remoteSiteID)
		for _, row := range append(central, newStocktake("stocktake_a", 1)) {
			_, err := store.Upsert(ctx, row, nil)
			require.NoError(t, err)
		}

		source := centralSiteID
		del := func(table, id string) models.SyncBufferRow {
			return models.SyncBufferRow{TableName: table, RecordID: id, Action: models.RowActionDelete, Data: json.RawMessage(`{}`), SourceSiteID: &source}
		}
		require.NoError(t, repository.NewSyncBufferRepository(db).Upsert(ctx, []models.SyncBufferRow{
			del(translations.LegacyStoreTable, "store_a"),
			del(translations.LegacyStocktakeTable, "stocktake_a"),
		}))

		integrator := NewIntegrator(db, registry, Config{SiteID: remoteSiteID}, nil)
		_, err := integrator.Integrate(ctx, nil, false, startedLogger(t, db))
		require.NoError(t, err)

		gone, err := store.Stores.FindByID(ctx, "store_a")
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}
