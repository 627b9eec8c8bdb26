package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

// StatusBroadcaster receives a snapshot every time the sync log changes
type StatusBroadcaster interface {
	BroadcastSyncStatus(l *models.SyncLog)
}

// SyncLogger keeps the sync_log row of the running cycle up to date
type SyncLogger struct {
	repo        repository.SyncLogRepo
	broadcaster StatusBroadcaster
	now         func() time.Time

	mu  sync.Mutex
	log *models.SyncLog
}

// NewSyncLogger creates a logger. broadcaster may be nil.
func NewSyncLogger(repo repository.SyncLogRepo, broadcaster StatusBroadcaster) *SyncLogger {
	return &SyncLogger{
		repo:        repo,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a new sync log row for a cycle
func (l *SyncLogger) Start(ctx context.Context) error {
	l.mu.Lock()
	l.log = models.NewSyncLog(l.now())
	l.mu.Unlock()
	return l.save(ctx)
}

// StartStep marks a step as started
func (l *SyncLogger) StartStep(ctx context.Context, step models.SyncStep) error {
	return l.update(ctx, func(s *models.SyncLog) {
		now := l.now()
		s.Progress(step).StartedDatetime = &now
	})
}

// Progress sets the counters of a step
func (l *SyncLogger) Progress(ctx context.Context, step models.SyncStep, total, done int64) error {
	return l.update(ctx, func(s *models.SyncLog) {
		p := s.Progress(step)
		p.Total = &total
		p.Done = &done
	})
}

// DoneStep marks a step as finished
func (l *SyncLogger) DoneStep(ctx context.Context, step models.SyncStep) error {
	return l.update(ctx, func(s *models.SyncLog) {
		now := l.now()
		s.Progress(step).FinishedDatetime = &now
	})
}

// Finish closes the cycle successfully
func (l *SyncLogger) Finish(ctx context.Context) error {
	return l.update(ctx, func(s *models.SyncLog) {
		now := l.now()
		s.FinishedDatetime = &now
	})
}

// Fail closes the cycle with its terminal error
func (l *SyncLogger) Fail(ctx context.Context, cause error) error {
	return l.update(ctx, func(s *models.SyncLog) {
		now := l.now()
		message := cause.Error()
		code := ErrorCodeOf(cause)
		s.FinishedDatetime = &now
		s.ErrorMessage = &message
		s.ErrorCode = &code
	})
}

// Snapshot returns a copy of the current log, or nil before Start
func (l *SyncLogger) Snapshot() *models.SyncLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.log == nil {
		return nil
	}
	copied := *l.log
	return &copied
}

func (l *SyncLogger) update(ctx context.Context, fn func(s *models.SyncLog)) error {
	l.mu.Lock()
	if l.log == nil {
		l.mu.Unlock()
		return fmt.Errorf("sync log not started")
	}
	fn(l.log)
	l.mu.Unlock()
	return l.save(ctx)
}

func (l *SyncLogger) save(ctx context.Context) error {
	snapshot := l.Snapshot()
	if err := l.repo.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("save sync log: %w", err)
	}
	if l.broadcaster != nil {
		l.broadcaster.BroadcastSyncStatus(snapshot)
	}
	return nil
}
