package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
)

const testSiteID int32 = 2

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func strPtr(s string) *string { return &s }

func int32Ptr(v int32) *int32 { return &v }

func testName(id string) *models.NameRow {
	return &models.NameRow{ID: id, Name: "Name " + id, Code: id, Type: models.NameTypeStore, IsCustomer: true, IsSupplier: true}
}

func testStore(id, nameID string, siteID int32) *models.StoreRow {
	return &models.StoreRow{ID: id, NameLinkID: nameID, Code: id, SiteID: siteID, StoreMode: models.StoreModeStore}
}

func testInvoice(id, storeID, nameID string) *models.InvoiceRow {
	return &models.InvoiceRow{
		ID:              id,
		NameLinkID:      nameID,
		StoreID:         storeID,
		InvoiceNumber:   1,
		Type:            models.InvoiceTypeOutboundShipment,
		Status:          models.InvoiceStatusNew,
		CreatedDatetime: time.Date(2022, 3, 24, 8, 15, 30, 0, time.UTC),
	}
}
