package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

func setupMaintenance(t *testing.T, cfg MaintenanceConfig) (*MaintenanceService, *repository.SyncBufferRepository, *repository.SyncLogRepository) {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "maintenance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	buffer := repository.NewSyncBufferRepository(db)
	logs := repository.NewSyncLogRepository(db)
	return NewMaintenanceService(buffer, logs, cfg), buffer, logs
}

func TestMaintenanceService_RunOnce(t *testing.T) {
	ctx := context.Background()
	service, buffer, logs := setupMaintenance(t, MaintenanceConfig{
		BufferRetention: 24 * time.Hour,
		SyncLogsToKeep:  2,
	})

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.SyncBufferRow{
		{TableName: "name", RecordID: "integrated_long_ago", Action: models.RowActionUpsert, Data: json.RawMessage(`{}`), ReceivedDatetime: old},
		{TableName: "name", RecordID: "integrated_now", Action: models.RowActionUpsert, Data: json.RawMessage(`{}`), ReceivedDatetime: old},
		{TableName: "name", RecordID: "waiting", Action: models.RowActionUpsert, Data: json.RawMessage(`{}`), ReceivedDatetime: old},
	}
	require.NoError(t, buffer.Upsert(ctx, rows))
	require.NoError(t, buffer.MarkIntegrated(ctx, "name", "integrated_long_ago", old))
	require.NoError(t, buffer.MarkIntegrated(ctx, "name", "integrated_now", time.Now().UTC()))

	for i := 0; i < 4; i++ {
		require.NoError(t, logs.Upsert(ctx, models.NewSyncLog(old.Add(time.Duration(i)*time.Hour))))
	}

	status := service.RunOnce(ctx)

	assert.Empty(t, status.Errors)
	assert.False(t, status.Running)
	assert.Equal(t, int64(1), status.BufferRowsRemoved)
	assert.Equal(t, int64(2), status.SyncLogsRemoved)
	assert.False(t, status.LastRun.IsZero())

	waiting, err := buffer.CountUnintegrated(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)

	remaining, err := logs.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.True(t, old.Add(3*time.Hour).Equal(remaining[0].StartedDatetime))

	assert.Equal(t, status, service.GetStatus())
}

func TestMaintenanceService_DisabledTasks(t *testing.T) {
	ctx := context.Background()
	service, buffer, _ := setupMaintenance(t, MaintenanceConfig{})

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, buffer.Upsert(ctx, []models.SyncBufferRow{
		{TableName: "name", RecordID: "a", Action: models.RowActionUpsert, Data: json.RawMessage(`{}`), ReceivedDatetime: old},
	}))
	require.NoError(t, buffer.MarkIntegrated(ctx, "name", "a", old))

	status := service.RunOnce(ctx)
	assert.Zero(t, status.BufferRowsRemoved)
	assert.Zero(t, status.SyncLogsRemoved)
}

func TestMaintenanceService_StartStop(t *testing.T) {
	service, _, _ := setupMaintenance(t, MaintenanceConfig{Interval: time.Hour})

	service.Start()
	service.Start()
	status := service.GetStatus()
	assert.True(t, status.Enabled)
	assert.WithinDuration(t, time.Now().Add(time.Hour), status.NextScheduledRun, time.Minute)

	service.Stop()
	assert.False(t, service.IsEnabled())
	service.Stop()
}
