package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
)

func TestChangelogRepository_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("cursors strictly increase in insertion order", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewChangelogRepository(db)

		var inserted []int64
		for i := 0; i < 20; i++ {
			cursor, err := repo.Insert(ctx, models.ChangelogEntry{
				TableName: models.TableNameInvoice,
				RecordID:  fmt.Sprintf("invoice-%d", i),
				RowAction: models.RowActionUpsert,
			})
			require.NoError(t, err)
			inserted = append(inserted, cursor)
		}

		rows, err := repo.Changelogs(ctx, 0, 100, nil)
		require.NoError(t, err)
		require.Len(t, rows, 20)

		for i, row := range rows {
			assert.Equal(t, inserted[i], row.Cursor)
			assert.Equal(t, fmt.Sprintf("invoice-%d", i), row.RecordID)
			if i > 0 {
				assert.Greater(t, row.Cursor, rows[i-1].Cursor)
			}
		}

		latest, err := repo.LatestCursor(ctx)
		require.NoError(t, err)
		assert.Equal(t, inserted[len(inserted)-1], latest)
	})

	t.Run("rejects unknown table", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewChangelogRepository(db)

		_, err := repo.Insert(ctx, models.ChangelogEntry{TableName: "photo", RecordID: "x", RowAction: models.RowActionUpsert})
		assert.ErrorIs(t, err, models.ErrUnknownTable)
	})

	t.Run("rolled back insert leaves no entry", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewChangelogRepository(db)

		first, err := repo.Insert(ctx, models.ChangelogEntry{TableName: models.TableNameName, RecordID: "a", RowAction: models.RowActionUpsert})
		require.NoError(t, err)

		errForced := errors.New("forced")
		err = WithTransaction(ctx, db, func(tx *sql.Tx) error {
			_, err := NewChangelogRepository(tx).Insert(ctx, models.ChangelogEntry{TableName: models.TableNameName, RecordID: "b", RowAction: models.RowActionUpsert})
			require.NoError(t, err)
			return errForced
		})
		assert.ErrorIs(t, err, errForced)

		third, err := repo.Insert(ctx, models.ChangelogEntry{TableName: models.TableNameName, RecordID: "c", RowAction: models.RowActionUpsert})
		require.NoError(t, err)

		rows, err := repo.Changelogs(ctx, 0, 10, nil)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "a", rows[0].RecordID)
		assert.Equal(t, "c", rows[1].RecordID)
		assert.Greater(t, third, first)
	})
}

func TestChangelogRepository_Changelogs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewChangelogRepository(db)

	entries := []models.ChangelogEntry{
		{TableName: models.TableNameName, RecordID: "name1", RowAction: models.RowActionUpsert, LastSyncSiteID: int32Ptr(1)},
		{TableName: models.TableNameInvoice, RecordID: "inv1", RowAction: models.RowActionUpsert, StoreID: strPtr("store_a"), NameLinkID: strPtr("name_b"), LastSyncSiteID: int32Ptr(2)},
		{TableName: models.TableNameInvoice, RecordID: "inv2", RowAction: models.RowActionDelete, StoreID: strPtr("store_b"), LastSyncSiteID: int32Ptr(1)},
		{TableName: models.TableNameStocktake, RecordID: "st1", RowAction: models.RowActionUpsert, StoreID: strPtr("store_a"), LastSyncSiteID: int32Ptr(1)},
		{TableName: models.TableNameRequisition, RecordID: "req1", RowAction: models.RowActionUpsert, StoreID: strPtr("store_c"), NameLinkID: strPtr("name_a")},
	}
	for _, e := range entries {
		_, err := repo.Insert(ctx, e)
		require.NoError(t, err)
	}

	ids := func(rows []models.ChangelogRow) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.RecordID)
		}
		return out
	}

	t.Run("since and limit", func(t *testing.T) {
		all, err := repo.Changelogs(ctx, 0, 0, nil)
		require.NoError(t, err)
		require.Len(t, all, 5)

		rows, err := repo.Changelogs(ctx, all[1].Cursor, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"inv2", "st1"}, ids(rows))
	})

	t.Run("table filter", func(t *testing.T) {
		rows, err := repo.Changelogs(ctx, 0, 10, &models.ChangelogFilter{TableNames: []models.TableName{models.TableNameInvoice}})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv1", "inv2"}, ids(rows))
	})

	t.Run("row action filter", func(t *testing.T) {
		action := models.RowActionDelete
		rows, err := repo.Changelogs(ctx, 0, 10, &models.ChangelogFilter{RowAction: &action})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv2"}, ids(rows))
	})

	t.Run("store or name link routing", func(t *testing.T) {
		rows, err := repo.Changelogs(ctx, 0, 10, &models.ChangelogFilter{
			StoreIDs:    []string{"store_a"},
			NameLinkIDs: []string{"name_a"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv1", "st1", "req1"}, ids(rows))
	})

	t.Run("null store routing", func(t *testing.T) {
		rows, err := repo.Changelogs(ctx, 0, 10, &models.ChangelogFilter{StoreIDs: []string{"store_b"}, IncludeNullStore: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"name1", "inv2"}, ids(rows))
	})

	t.Run("excludes last sync site", func(t *testing.T) {
		rows, err := repo.Changelogs(ctx, 0, 10, &models.ChangelogFilter{ExcludeLastSyncSiteID: int32Ptr(1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"inv1", "req1"}, ids(rows))
	})

	t.Run("max cursor and count", func(t *testing.T) {
		all, err := repo.Changelogs(ctx, 0, 0, nil)
		require.NoError(t, err)

		filter := &models.ChangelogFilter{MaxCursor: all[2].Cursor}
		rows, err := repo.Changelogs(ctx, 0, 10, filter)
		require.NoError(t, err)
		assert.Equal(t, []string{"name1", "inv1", "inv2"}, ids(rows))

		count, err := repo.Count(ctx, all[0].Cursor, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestChangelogRepository_LatestCursorEmpty(t *testing.T) {
	db := setupTestDB(t)

	latest, err := NewChangelogRepository(db).LatestCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)
}
