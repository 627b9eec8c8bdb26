package processors

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

const (
	centralSiteID int32 = 1
	siteA         int32 = 2
	siteB         int32 = 3
)

var created = time.Date(2022, 3, 24, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// setupSite creates a site database holding store_a (site A) and store_b
// (site B) as they arrive from the central server
func setupSite(t *testing.T, siteID int32) (*sql.DB, *repository.SyncRowStore) {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "site.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repository.NewSyncRowStore(db, siteID)
	origin := centralSiteID
	for _, row := range []models.SyncRow{
		&models.NameRow{ID: "name_a", Name: "District Store", Code: "DS", Type: models.NameTypeStore, IsCustomer: true, IsSupplier: true},
		&models.NameRow{ID: "name_b", Name: "Health Centre", Code: "HC", Type: models.NameTypeStore, IsCustomer: true},
		&models.StoreRow{ID: "store_a", NameLinkID: "name_a", Code: "DS", SiteID: siteA, StoreMode: models.StoreModeStore},
		&models.StoreRow{ID: "store_b", NameLinkID: "name_b", Code: "HC", SiteID: siteB, StoreMode: models.StoreModeStore},
	} {
		_, err := store.Upsert(context.Background(), row, &origin)
		require.NoError(t, err)
	}
	return db, store
}

func pulled(t *testing.T, store *repository.SyncRowStore, rows ...models.SyncRow) {
	t.Helper()

	origin := centralSiteID
	for _, row := range rows {
		_, err := store.Upsert(context.Background(), row, &origin)
		require.NoError(t, err)
	}
}

func sentRequest() *models.RequisitionRow {
	return &models.RequisitionRow{
		ID: "request_1", RequisitionNumber: 8, NameLinkID: "name_a", StoreID: "store_b",
		Type: models.RequisitionTypeRequest, Status: models.RequisitionStatusSent,
		CreatedDatetime:  created,
		SentDatetime:     &created,
		TheirReference:   strPtr("HC-8"),
		MaxMonthsOfStock: 3, MinMonthsOfStock: 1,
	}
}

func TestCreateResponseRequisition(t *testing.T) {
	ctx := context.Background()

	t.Run("answers a request addressed to an active store", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		pulled(t, store, sentRequest())

		runner := NewRunner(db, siteA, Default()...)
		require.NoError(t, runner.Run(ctx))

		response, err := store.Requisitions.FindByLinkedID(ctx, "request_1")
		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, models.RequisitionTypeResponse, response.Type)
		assert.Equal(t, models.RequisitionStatusNew, response.Status)
		assert.Equal(t, "store_a", response.StoreID)
		assert.Equal(t, "name_b", response.NameLinkID)
		assert.Equal(t, int64(1), response.RequisitionNumber)
		assert.Equal(t, "HC-8", *response.TheirReference)
		assert.Equal(t, float64(3), response.MaxMonthsOfStock)

		// The response is a local change so it is pushed
		entries, err := store.Changelog().Changelogs(ctx, 0, 100, &models.ChangelogFilter{
			TableNames: []models.TableName{models.TableNameRequisition},
		})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, response.ID, entries[1].RecordID)
		assert.Equal(t, siteA, *entries[1].LastSyncSiteID)

		latest, err := store.Changelog().LatestCursor(ctx)
		require.NoError(t, err)
		cursor, err := repository.NewKeyValueRepository(db).GetCursor(ctx, requisitionCursor)
		require.NoError(t, err)
		assert.Equal(t, entries[0].Cursor, cursor)
		assert.Less(t, cursor, latest)
	})

	t.Run("running again does not answer twice", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		pulled(t, store, sentRequest())

		runner := NewRunner(db, siteA, Default()...)
		require.NoError(t, runner.Run(ctx))
		pulled(t, store, sentRequest())
		require.NoError(t, runner.Run(ctx))

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM requisition WHERE type = 'RESPONSE'`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("ignores requests for stores on other sites", func(t *testing.T) {
		db, store := setupSite(t, siteB)
		pulled(t, store, sentRequest())

		require.NoError(t, NewRunner(db, siteB, Default()...).Run(ctx))

		response, err := store.Requisitions.FindByLinkedID(ctx, "request_1")
		require.NoError(t, err)
		assert.Nil(t, response)
	})

	t.Run("ignores requests that were not sent", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		draft := sentRequest()
		draft.Status = models.RequisitionStatusDraft
		pulled(t, store, draft)

		require.NoError(t, NewRunner(db, siteA, Default()...).Run(ctx))

		response, err := store.Requisitions.FindByLinkedID(ctx, "request_1")
		require.NoError(t, err)
		assert.Nil(t, response)
	})
}

func TestFinaliseRequestRequisition(t *testing.T) {
	ctx := context.Background()
	finalised := created.Add(48 * time.Hour)
	response := &models.RequisitionRow{
		ID: "response_1", RequisitionNumber: 2, NameLinkID: "name_b", StoreID: "store_a",
		Type: models.RequisitionTypeResponse, Status: models.RequisitionStatusFinalised,
		CreatedDatetime: created, FinalisedDatetime: &finalised,
		LinkedRequisitionID: strPtr("request_1"),
	}

	t.Run("finalises the linked request on the requesting site", func(t *testing.T) {
		db, store := setupSite(t, siteB)
		request := sentRequest()
		_, err := store.Upsert(ctx, request, nil)
		require.NoError(t, err)
		pulled(t, store, response)

		require.NoError(t, NewRunner(db, siteB, Default()...).Run(ctx))

		got, err := store.Requisitions.FindByID(ctx, "request_1")
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusFinalised, got.Status)
		assert.NotNil(t, got.FinalisedDatetime)
	})

	t.Run("leaves requests of other sites alone", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		pulled(t, store, sentRequest(), response)

		require.NoError(t, NewRunner(db, siteA, Default()...).Run(ctx))

		got, err := store.Requisitions.FindByID(ctx, "request_1")
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusSent, got.Status)
	})
}

func TestCreateInboundShipment(t *testing.T) {
	ctx := context.Background()

	outbound := func(status models.InvoiceStatus) *models.InvoiceRow {
		picked := created.Add(time.Hour)
		invoice := &models.InvoiceRow{
			ID: "outbound_1", NameLinkID: "name_a", StoreID: "store_b", InvoiceNumber: 5,
			Type: models.InvoiceTypeOutboundShipment, Status: status,
			TheirReference:  strPtr("PO-5"),
			CreatedDatetime: created,
			PickedDatetime:  &picked,
		}
		if status == models.InvoiceStatusShipped {
			shipped := created.Add(2 * time.Hour)
			invoice.ShippedDatetime = &shipped
		}
		return invoice
	}
	stockOut := func(packs float64) *models.InvoiceLineRow {
		return &models.InvoiceLineRow{
			ID: "out_line_1", InvoiceID: "outbound_1", ItemLinkID: "item_a", ItemName: "Amoxicillin", ItemCode: "AMX",
			BatchNumber: strPtr("B-1"), PackSize: 10, CostPricePerPack: 2, SellPricePerPack: 3, NumberOfPacks: packs,
			Type: models.InvoiceLineTypeStockOut,
		}
	}
	service := &models.InvoiceLineRow{
		ID: "out_line_2", InvoiceID: "outbound_1", ItemLinkID: "freight", ItemName: "Freight", ItemCode: "FRT",
		PackSize: 1, NumberOfPacks: 1, Type: models.InvoiceLineTypeService,
	}

	db, store := setupSite(t, siteA)
	runner := NewRunner(db, siteA, Default()...)

	t.Run("picked shipment creates an inbound shipment", func(t *testing.T) {
		pulled(t, store, outbound(models.InvoiceStatusPicked), stockOut(4), service)
		require.NoError(t, runner.Run(ctx))

		inbound, err := store.Invoices.FindByLinkedID(ctx, "outbound_1")
		require.NoError(t, err)
		require.NotNil(t, inbound)
		assert.Equal(t, models.InvoiceTypeInboundShipment, inbound.Type)
		assert.Equal(t, models.InvoiceStatusPicked, inbound.Status)
		assert.Equal(t, "store_a", inbound.StoreID)
		assert.Equal(t, "name_b", inbound.NameLinkID)
		assert.Equal(t, "PO-5", *inbound.TheirReference)

		lines, err := store.InvoiceLines.FindByInvoiceID(ctx, inbound.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, models.InvoiceLineTypeStockIn, lines[0].Type)
		assert.Equal(t, float64(4), lines[0].NumberOfPacks)
		assert.Equal(t, float64(3), lines[0].CostPricePerPack)
		assert.Equal(t, "B-1", *lines[0].BatchNumber)
	})

	t.Run("shipping updates the inbound shipment", func(t *testing.T) {
		pulled(t, store, outbound(models.InvoiceStatusShipped), stockOut(6))
		require.NoError(t, runner.Run(ctx))

		inbound, err := store.Invoices.FindByLinkedID(ctx, "outbound_1")
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusShipped, inbound.Status)
		assert.NotNil(t, inbound.ShippedDatetime)

		lines, err := store.InvoiceLines.FindByInvoiceID(ctx, inbound.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, float64(6), lines[0].NumberOfPacks)
	})

	t.Run("delivered inbound shipments are not touched", func(t *testing.T) {
		inbound, err := store.Invoices.FindByLinkedID(ctx, "outbound_1")
		require.NoError(t, err)
		inbound.Status = models.InvoiceStatusDelivered
		_, err = store.Upsert(ctx, inbound, nil)
		require.NoError(t, err)

		pulled(t, store, outbound(models.InvoiceStatusPicked))
		require.NoError(t, runner.Run(ctx))

		got, err := store.Invoices.FindByID(ctx, inbound.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusDelivered, got.Status)
	})
}

// fakeProcessor records the entries it saw and fails on chosen records
type fakeProcessor struct {
	name   string
	key    models.KeyType
	result string
	fail   map[string]bool
	seen   []string
}

func (p *fakeProcessor) Name() string              { return p.name }
func (p *fakeProcessor) CursorKey() models.KeyType { return p.key }

func (p *fakeProcessor) ChangelogFilter([]*models.StoreRow) *models.ChangelogFilter {
	return &models.ChangelogFilter{TableNames: []models.TableName{models.TableNameStocktake}}
}

func (p *fakeProcessor) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	p.seen = append(p.seen, changelog.RecordID)
	if p.fail[changelog.RecordID] {
		return "", errors.New("cannot process " + changelog.RecordID)
	}
	return p.result, nil
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	stocktakes := func(t *testing.T, store *repository.SyncRowStore, ids ...string) map[string]int64 {
		cursors := map[string]int64{}
		for i, id := range ids {
			cursor, err := store.Upsert(ctx, &models.StocktakeRow{
				ID: id, StoreID: "store_a", StocktakeNumber: int64(i + 1),
				Status: models.StocktakeStatusNew, CreatedDatetime: created,
			}, nil)
			require.NoError(t, err)
			cursors[id] = cursor
		}
		return cursors
	}

	t.Run("a failing record does not block later records or move the cursor past it", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		cursors := stocktakes(t, store, "st_1", "st_2", "st_3")

		p := &fakeProcessor{name: "fake", key: "fake_cursor", result: "done", fail: map[string]bool{"st_2": true}}
		runner := NewRunner(db, siteA, p)
		require.NoError(t, runner.Run(ctx))

		assert.Equal(t, []string{"st_1", "st_2", "st_3"}, p.seen)
		cursor, err := repository.NewKeyValueRepository(db).GetCursor(ctx, "fake_cursor")
		require.NoError(t, err)
		assert.Equal(t, cursors["st_1"], cursor)

		// Retried from the failure on the next run
		p.seen = nil
		p.fail = nil
		require.NoError(t, runner.Run(ctx))
		assert.Equal(t, []string{"st_2", "st_3"}, p.seen)

		cursor, err = repository.NewKeyValueRepository(db).GetCursor(ctx, "fake_cursor")
		require.NoError(t, err)
		assert.Equal(t, cursors["st_3"], cursor)
	})

	t.Run("first processor with a result wins", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		stocktakes(t, store, "st_1")

		skips := &fakeProcessor{name: "skips", key: "shared"}
		acts := &fakeProcessor{name: "acts", key: "shared", result: "acted"}
		never := &fakeProcessor{name: "never", key: "shared", result: "acted"}
		require.NoError(t, NewRunner(db, siteA, skips, acts, never).Run(ctx))

		assert.Equal(t, []string{"st_1"}, skips.seen)
		assert.Equal(t, []string{"st_1"}, acts.seen)
		assert.Empty(t, never.seen)
	})

	t.Run("groups keep independent cursors", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		cursors := stocktakes(t, store, "st_1", "st_2")

		failing := &fakeProcessor{name: "failing", key: "group_a", fail: map[string]bool{"st_1": true}}
		working := &fakeProcessor{name: "working", key: "group_b", result: "done"}
		require.NoError(t, NewRunner(db, siteA, failing, working).Run(ctx))

		kv := repository.NewKeyValueRepository(db)
		a, err := kv.GetCursor(ctx, "group_a")
		require.NoError(t, err)
		assert.Zero(t, a)

		b, err := kv.GetCursor(ctx, "group_b")
		require.NoError(t, err)
		assert.Equal(t, cursors["st_2"], b)
	})

	invoice := func(id, storeID, nameID string) *models.InvoiceRow {
		return &models.InvoiceRow{
			ID: id, NameLinkID: nameID, StoreID: storeID, InvoiceNumber: 1,
			Type: models.InvoiceTypeOutboundShipment, Status: models.InvoiceStatusNew,
			CreatedDatetime: created,
		}
	}

	t.Run("only entries for active stores are loaded", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		pulled(t, store,
			invoice("to_a", "store_b", "name_a"),
			invoice("to_b", "store_a", "name_b"),
		)
		latest, err := store.Changelog().LatestCursor(ctx)
		require.NoError(t, err)

		active, err := store.ActiveStores(ctx)
		require.NoError(t, err)
		p := &invoiceProcessor{}
		loaded, err := store.Changelog().Changelogs(ctx, 0, 0, mergeFilters([]*models.ChangelogFilter{p.ChangelogFilter(active)}, latest))
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "to_a", loaded[0].RecordID)

		require.NoError(t, NewRunner(db, siteA, p).Run(ctx))
		assert.Equal(t, []string{"to_a"}, p.seen)

		cursor, err := repository.NewKeyValueRepository(db).GetCursor(ctx, "invoice_cursor")
		require.NoError(t, err)
		assert.Equal(t, latest, cursor)
	})

	t.Run("a site without active stores skips the scan", func(t *testing.T) {
		db, store := setupSite(t, 9)
		pulled(t, store, invoice("to_a", "store_b", "name_a"))
		latest, err := store.Changelog().LatestCursor(ctx)
		require.NoError(t, err)

		p := &invoiceProcessor{}
		require.NoError(t, NewRunner(db, 9, p).Run(ctx))
		assert.Empty(t, p.seen)

		cursor, err := repository.NewKeyValueRepository(db).GetCursor(ctx, "invoice_cursor")
		require.NoError(t, err)
		assert.Equal(t, latest, cursor)
	})

	t.Run("a failed record rolls back its own writes", func(t *testing.T) {
		db, store := setupSite(t, siteA)
		stocktakes(t, store, "st_1")

		writer := &writingProcessor{}
		require.NoError(t, NewRunner(db, siteA, writer).Run(ctx))

		got, err := store.Stocktakes.FindByID(ctx, "st_1")
		require.NoError(t, err)
		assert.Equal(t, models.StocktakeStatusNew, got.Status)
	})
}

// writingProcessor finalises the stocktake and then fails
type writingProcessor struct{}

func (p *writingProcessor) Name() string              { return "writing" }
func (p *writingProcessor) CursorKey() models.KeyType { return "writing_cursor" }

func (p *writingProcessor) ChangelogFilter([]*models.StoreRow) *models.ChangelogFilter {
	return &models.ChangelogFilter{TableNames: []models.TableName{models.TableNameStocktake}}
}

func (p *writingProcessor) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	stocktake, err := store.Stocktakes.FindByID(ctx, changelog.RecordID)
	if err != nil {
		return "", err
	}
	stocktake.Status = models.StocktakeStatusFinalised
	if _, err := store.Upsert(ctx, stocktake, nil); err != nil {
		return "", err
	}
	return "", errors.New("late failure")
}

// invoiceProcessor records invoice upserts addressed to an active store
type invoiceProcessor struct {
	seen []string
}

func (p *invoiceProcessor) Name() string              { return "invoices" }
func (p *invoiceProcessor) CursorKey() models.KeyType { return "invoice_cursor" }

func (p *invoiceProcessor) ChangelogFilter(active []*models.StoreRow) *models.ChangelogFilter {
	return counterpartyFilter(models.TableNameInvoice, active)
}

func (p *invoiceProcessor) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	p.seen = append(p.seen, changelog.RecordID)
	return "", nil
}

func TestMergeFilters(t *testing.T) {
	routed := &models.ChangelogFilter{TableNames: []models.TableName{models.TableNameInvoice}, NameLinkIDs: []string{"name_a"}}
	unrouted := &models.ChangelogFilter{TableNames: []models.TableName{models.TableNameStocktake}}

	t.Run("no filters means nothing to load", func(t *testing.T) {
		assert.Nil(t, mergeFilters([]*models.ChangelogFilter{nil, nil}, 7))
	})

	t.Run("routing is kept when every filter is routed", func(t *testing.T) {
		merged := mergeFilters([]*models.ChangelogFilter{routed, nil}, 7)
		require.NotNil(t, merged)
		assert.Equal(t, int64(7), merged.MaxCursor)
		assert.Equal(t, []string{"name_a"}, merged.NameLinkIDs)
	})

	t.Run("an unrouted filter widens the query", func(t *testing.T) {
		merged := mergeFilters([]*models.ChangelogFilter{routed, unrouted}, 7)
		require.NotNil(t, merged)
		assert.Equal(t, []models.TableName{models.TableNameInvoice, models.TableNameStocktake}, merged.TableNames)
		assert.False(t, merged.HasRouting())
	})
}
