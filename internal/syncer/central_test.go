package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

func wireRecord(t *testing.T, registry *translations.Registry, cursor int64, row models.SyncRow) syncapi.Record {
	t.Helper()

	record, err := registry.ToPush(&models.ChangelogRow{
		Cursor:    cursor,
		TableName: row.Table(),
		RecordID:  row.RecordID(),
		RowAction: models.RowActionUpsert,
		StoreID:   strPtr("store_a"),
	}, row)
	require.NoError(t, err)
	return syncapi.Record{
		Cursor:    cursor,
		TableName: record.TableName,
		RecordID:  record.RecordID,
		Action:    record.Action,
		StoreID:   record.StoreID,
		Data:      record.Data,
	}
}

func TestCentralService_Push(t *testing.T) {
	ctx := context.Background()

	t.Run("integrates accepted records with the site as origin", func(t *testing.T) {
		central := setupCentral(t)
		records := []syncapi.Record{
			wireRecord(t, central.registry, 10, newStocktake("st_1", 1)),
			wireRecord(t, central.registry, 11, newStocktake("st_2", 2)),
		}

		resp, err := central.service.Push(ctx, remoteSiteID, records)
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		for i, result := range resp.Results {
			assert.True(t, result.Accepted)
			assert.Equal(t, records[i].Cursor, result.Cursor)
		}

		entries := changelogCursors(t, central.db, models.TableNameStocktake)
		assert.Len(t, entries, 2)

		changelogs, err := repository.NewChangelogRepository(central.db).Changelogs(ctx, 0, 10, &models.ChangelogFilter{
			TableNames: []models.TableName{models.TableNameStocktake},
		})
		require.NoError(t, err)
		for _, c := range changelogs {
			require.NotNil(t, c.LastSyncSiteID)
			assert.Equal(t, remoteSiteID, *c.LastSyncSiteID)
		}
	})

	t.Run("rejects records for stores the site does not own", func(t *testing.T) {
		central := setupCentral(t)
		foreign := newStocktake("st_foreign", 2)
		foreign.StoreID = "store_b"
		records := []syncapi.Record{
			wireRecord(t, central.registry, 10, newStocktake("st_1", 1)),
			wireRecord(t, central.registry, 11, foreign),
			wireRecord(t, central.registry, 12, newStocktake("st_3", 3)),
		}
		records[1].StoreID = strPtr("store_b")

		resp, err := central.service.Push(ctx, remoteSiteID, records)
		require.NoError(t, err)
		require.Len(t, resp.Results, 3)

		assert.True(t, resp.Results[0].Accepted)
		assert.False(t, resp.Results[1].Accepted)
		assert.Contains(t, resp.Results[1].Error, "not owned by site 2")
		assert.False(t, resp.Results[2].Accepted)
		assert.Equal(t, notProcessed, resp.Results[2].Error)

		stocktakes := repository.NewStocktakeRepository(central.db)
		for id, want := range map[string]bool{"st_1": true, "st_foreign": false, "st_3": false} {
			row, err := stocktakes.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, row != nil, id)
		}
	})

	t.Run("a record that fails to apply is rejected", func(t *testing.T) {
		central := setupCentral(t)
		record := wireRecord(t, central.registry, 10, newStocktake("st_1", 1))
		record.Data = json.RawMessage(`{"ID": "st_1", "status": "zz"}`)

		resp, err := central.service.Push(ctx, remoteSiteID, []syncapi.Record{record})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.False(t, resp.Results[0].Accepted)
		assert.Contains(t, resp.Results[0].Error, "zz")
	})

	t.Run("site is not integrating once push returns", func(t *testing.T) {
		central := setupCentral(t)
		_, err := central.service.Push(ctx, remoteSiteID, nil)
		require.NoError(t, err)

		status := central.service.SiteStatus(remoteSiteID)
		assert.False(t, status.IsIntegrating)
		assert.Equal(t, centralSiteID, status.CentralSiteID)
		assert.Equal(t, remoteSiteID, status.SiteID)
	})
}

func TestCentralService_Pull(t *testing.T) {
	ctx := context.Background()

	t.Run("central scope pages through central data", func(t *testing.T) {
		central := setupCentral(t)

		first, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Cursor: 0, BatchSize: 3, Scope: syncapi.ScopeCentral}, false)
		require.NoError(t, err)
		assert.Len(t, first.Records, 3)
		assert.Equal(t, int64(4), first.TotalRecords)
		assert.False(t, first.IsLastBatch)
		assert.Equal(t, first.Records[2].Cursor, first.EndCursor)
		assert.Equal(t, translations.LegacyNameTable, first.Records[0].TableName)

		second, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Cursor: first.EndCursor, BatchSize: 3, Scope: syncapi.ScopeCentral}, false)
		require.NoError(t, err)
		assert.Len(t, second.Records, 1)
		assert.True(t, second.IsLastBatch)
		assert.Equal(t, int64(4), second.EndCursor)
	})

	t.Run("remote scope follows store and counter-party routing", func(t *testing.T) {
		central := setupCentral(t)
		origin := otherSiteID
		toSite := &models.InvoiceRow{
			ID: "invoice_to_a", NameLinkID: "name_a", StoreID: "store_b", InvoiceNumber: 1,
			Type: models.InvoiceTypeOutboundShipment, Status: models.InvoiceStatusPicked,
			CreatedDatetime: time.Date(2022, 3, 24, 8, 0, 0, 0, time.UTC),
		}
		toOther := &models.InvoiceRow{
			ID: "invoice_internal", NameLinkID: "name_b", StoreID: "store_b", InvoiceNumber: 2,
			Type: models.InvoiceTypeOutboundShipment, Status: models.InvoiceStatusPicked,
			CreatedDatetime: time.Date(2022, 3, 24, 8, 0, 0, 0, time.UTC),
		}
		central.upsert(t, &origin, toSite, toOther)

		batch, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Scope: syncapi.ScopeRemote}, false)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		assert.Equal(t, "invoice_to_a", batch.Records[0].RecordID)
		assert.Equal(t, translations.LegacyInvoiceTable, batch.Records[0].TableName)
		assert.True(t, batch.IsLastBatch)
	})

	t.Run("site's own changes only come back in an initial dump", func(t *testing.T) {
		central := setupCentral(t)
		origin := remoteSiteID
		central.upsert(t, &origin, newStocktake("st_1", 1))

		queued, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Scope: syncapi.ScopeRemote}, false)
		require.NoError(t, err)
		assert.Empty(t, queued.Records)
		assert.Zero(t, queued.TotalRecords)

		dump, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Scope: syncapi.ScopeRemote}, true)
		require.NoError(t, err)
		require.Len(t, dump.Records, 1)
		assert.Equal(t, "st_1", dump.Records[0].RecordID)
	})

	t.Run("site without stores gets an empty last batch", func(t *testing.T) {
		central := setupCentral(t)

		batch, err := central.service.Pull(ctx, 9, syncapi.PullRequest{Cursor: 1, Scope: syncapi.ScopeRemote}, true)
		require.NoError(t, err)
		assert.Empty(t, batch.Records)
		assert.True(t, batch.IsLastBatch)
		assert.Equal(t, int64(4), batch.EndCursor)
	})

	t.Run("deleted rows are sent as deletes", func(t *testing.T) {
		central := setupCentral(t)
		origin := otherSiteID
		central.upsert(t, &origin, newStocktake("st_1", 1))
		_, err := repository.NewSyncRowStore(central.db, centralSiteID).Delete(ctx, models.TableNameStocktake, "st_1", &origin)
		require.NoError(t, err)

		batch, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Scope: syncapi.ScopeRemote}, false)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		assert.Equal(t, models.RowActionDelete, batch.Records[0].Action)
		assert.Equal(t, int64(2), batch.TotalRecords)
	})

	t.Run("unknown scope is an error", func(t *testing.T) {
		central := setupCentral(t)
		_, err := central.service.Pull(ctx, remoteSiteID, syncapi.PullRequest{Scope: "everything"}, false)
		assert.Error(t, err)
	})
}

func TestCentralService_Acknowledge(t *testing.T) {
	ctx := context.Background()
	central := setupCentral(t)

	require.NoError(t, central.service.Acknowledge(ctx, remoteSiteID, syncapi.AcknowledgeRequest{Scope: syncapi.ScopeRemote, Cursor: 17}))

	cursor, err := repository.NewKeyValueRepository(central.db).GetCursor(ctx, models.CentralAckCursorKey(remoteSiteID, "remote"))
	require.NoError(t, err)
	assert.Equal(t, int64(17), cursor)
}

func TestCentralService_Files(t *testing.T) {
	ctx := context.Background()
	content := []byte("signed delivery note")
	hash := services.NewHashService().ComputeHashBytes(content)

	setup := func(t *testing.T) (*testCentral, *models.SyncFileReferenceRow) {
		central := setupCentral(t)
		ref, err := models.NewSyncFileReference(models.TableNameStocktake, "st_1", "note.txt", int64(len(content)), strPtr("store_a"))
		require.NoError(t, err)
		origin := remoteSiteID
		central.upsert(t, &origin, ref)
		return central, ref
	}

	t.Run("stores uploaded content and marks the reference done", func(t *testing.T) {
		central, ref := setup(t)

		require.NoError(t, central.service.StoreFile(ctx, ref.ID, bytes.NewReader(content), hash))

		stored, err := repository.NewSyncFileReferenceRepository(central.db).FindByID(ctx, ref.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SyncFileStatusDone, stored.Status)

		file, _, err := central.service.OpenFile(ctx, ref.ID)
		require.NoError(t, err)
		defer file.Close()
		got, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("rejects content that does not match its checksum", func(t *testing.T) {
		central, ref := setup(t)

		err := central.service.StoreFile(ctx, ref.ID, bytes.NewReader([]byte("tampered")), hash)
		assert.True(t, errors.Is(err, models.ErrChecksumMismatch))
	})

	t.Run("unknown reference", func(t *testing.T) {
		central, _ := setup(t)

		err := central.service.StoreFile(ctx, "missing", bytes.NewReader(content), "")
		assert.True(t, errors.Is(err, models.ErrRecordNotFound))

		_, _, err = central.service.OpenFile(ctx, "missing")
		assert.True(t, errors.Is(err, models.ErrRecordNotFound))
	})

	t.Run("reference without content", func(t *testing.T) {
		central, ref := setup(t)

		_, _, err := central.service.OpenFile(ctx, ref.ID)
		assert.True(t, errors.Is(err, models.ErrFileNotFound))
	})
}
