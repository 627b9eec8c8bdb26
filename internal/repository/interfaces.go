package repository

import (
	"context"

	"github.com/supplysync/server/internal/models"
)

// ChangelogReader is the read side of the changelog, consumed by the push
// pipeline, processors and the admin API
type ChangelogReader interface {
	Changelogs(ctx context.Context, since int64, limit int, filter *models.ChangelogFilter) ([]models.ChangelogRow, error)
	Count(ctx context.Context, since int64, filter *models.ChangelogFilter) (int64, error)
	LatestCursor(ctx context.Context) (int64, error)
}

// SyncLogRepo defines the persistence operations for sync cycle history
type SyncLogRepo interface {
	Upsert(ctx context.Context, l *models.SyncLog) error
	Latest(ctx context.Context) (*models.SyncLog, error)
	LatestSuccessful(ctx context.Context) (*models.SyncLog, error)
	List(ctx context.Context, limit int) ([]*models.SyncLog, error)
	DeleteOlderThan(ctx context.Context, keep int) (int64, error)
}

var (
	_ ChangelogReader = (*ChangelogRepository)(nil)
	_ SyncLogRepo     = (*SyncLogRepository)(nil)
)
