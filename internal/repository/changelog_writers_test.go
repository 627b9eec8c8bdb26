package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplysync/server/internal/models"
)

// writerLocks records pg_advisory_xact_lock calls made on the
// sqlite3_writer_lock driver
type writerLocks struct {
	mu   sync.Mutex
	keys []int64
}

func (w *writerLocks) lock(key int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, key)
	return 0
}

func (w *writerLocks) taken() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.keys...)
}

var (
	registerLockDriver sync.Once
	recordedLocks      = &writerLocks{}
)

func setupWriterLockDB(t *testing.T) *sql.DB {
	t.Helper()

	registerLockDriver.Do(func() {
		sql.Register("sqlite3_writer_lock", &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("pg_advisory_xact_lock", recordedLocks.lock, false)
			},
		})
	})

	db, err := sql.Open("sqlite3_writer_lock", filepath.Join(t.TempDir(), "locks.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, createTables(db))
	return db
}

func TestChangelogRepository_WriterLock(t *testing.T) {
	ctx := context.Background()
	db := setupWriterLockDB(t)
	t.Cleanup(func() { OrderChangelogWriters(false) })

	t.Run("not taken by default", func(t *testing.T) {
		before := len(recordedLocks.taken())
		_, err := NewChangelogRepository(db).Insert(ctx, models.ChangelogEntry{
			TableName: models.TableNameName, RecordID: "name_a", RowAction: models.RowActionUpsert,
		})
		require.NoError(t, err)
		assert.Len(t, recordedLocks.taken(), before)
	})

	t.Run("taken for every insert in the writing transaction", func(t *testing.T) {
		OrderChangelogWriters(true)
		before := len(recordedLocks.taken())

		err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
			store := NewSyncRowStore(tx, testSiteID)
			if _, err := store.Upsert(ctx, testName("name_b"), nil); err != nil {
				return err
			}
			_, err := store.Upsert(ctx, testStore("store_b", "name_b", testSiteID), nil)
			return err
		})
		require.NoError(t, err)

		locks := recordedLocks.taken()[before:]
		assert.Equal(t, []int64{changelogWriterLock, changelogWriterLock}, locks)

		rows, err := NewChangelogRepository(db).Changelogs(ctx, 0, 0, nil)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})
}

// TestChangelogRepository_WritersCommitInCursorOrder needs a scratch
// PostgreSQL database in SUPPLYSYNC_TEST_POSTGRES_URL.
func TestChangelogRepository_WritersCommitInCursorOrder(t *testing.T) {
	url := os.Getenv("SUPPLYSYNC_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("SUPPLYSYNC_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	db, err := NewPostgresDB(url)
	require.NoError(t, err)
	t.Cleanup(func() {
		OrderChangelogWriters(false)
		db.Close()
	})

	repo := NewChangelogRepository(db)
	baseline, err := repo.LatestCursor(ctx)
	require.NoError(t, err)

	entry := func(id string) models.ChangelogEntry {
		return models.ChangelogEntry{TableName: models.TableNameStocktake, RecordID: id, RowAction: models.RowActionUpsert}
	}

	// First writer takes a cursor and stays open
	first, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer first.Rollback()
	firstCursor, err := NewChangelogRepository(first).Insert(ctx, entry("first"))
	require.NoError(t, err)

	// Second writer tries to insert and commit while the first is open
	type result struct {
		cursor int64
		err    error
	}
	second := make(chan result, 1)
	go func() {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			second <- result{err: err}
			return
		}
		defer tx.Rollback()
		cursor, err := NewChangelogRepository(tx).Insert(ctx, entry("second"))
		if err == nil {
			err = tx.Commit()
		}
		second <- result{cursor: cursor, err: err}
	}()

	select {
	case r := <-second:
		t.Fatalf("second writer committed cursor %d before the first writer (err %v)", r.cursor, r.err)
	case <-time.After(300 * time.Millisecond):
	}

	// A pull now must not move past the first writer's cursor
	latest, err := repo.LatestCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, baseline, latest)
	visible, err := repo.Changelogs(ctx, baseline, 0, &models.ChangelogFilter{MaxCursor: latest})
	require.NoError(t, err)
	assert.Empty(t, visible)

	require.NoError(t, first.Commit())

	var r result
	select {
	case r = <-second:
	case <-time.After(10 * time.Second):
		t.Fatal("second writer did not finish after the first committed")
	}
	require.NoError(t, r.err)
	assert.Greater(t, r.cursor, firstCursor)

	rows, err := repo.Changelogs(ctx, latest, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0].RecordID)
	assert.Equal(t, firstCursor, rows[0].Cursor)
	assert.Equal(t, "second", rows[1].RecordID)
}
