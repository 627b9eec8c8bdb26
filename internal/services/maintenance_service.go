package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
)

// MaintenanceStatus is the outcome of the latest maintenance run
type MaintenanceStatus struct {
	Running           bool      `json:"running"`
	Enabled           bool      `json:"enabled"`
	LastRun           time.Time `json:"lastRun,omitempty"`
	LastRunDuration   string    `json:"lastRunDuration,omitempty"`
	BufferRowsRemoved int64     `json:"bufferRowsRemoved"`
	SyncLogsRemoved   int64     `json:"syncLogsRemoved"`
	Errors            []string  `json:"errors,omitempty"`
	NextScheduledRun  time.Time `json:"nextScheduledRun,omitempty"`
}

// MaintenanceConfig controls what maintenance keeps. A zero retention or
// keep count disables that task.
type MaintenanceConfig struct {
	Interval time.Duration
	// BufferRetention is how long integrated sync buffer rows are kept
	BufferRetention time.Duration
	// SyncLogsToKeep is the number of newest sync logs kept
	SyncLogsToKeep int
}

type maintenanceTask struct {
	name string
	run  func(ctx context.Context, now time.Time) (int64, error)
	// record stores the removed count on the status
	record func(status *MaintenanceStatus, removed int64)
}

// MaintenanceService prunes integrated sync buffer rows and old sync logs on
// an interval
type MaintenanceService struct {
	config MaintenanceConfig
	tasks  []maintenanceTask
	logger *observability.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	status MaintenanceStatus
}

// NewMaintenanceService creates a new MaintenanceService
func NewMaintenanceService(
	bufferRepo *repository.SyncBufferRepository,
	syncLogRepo repository.SyncLogRepo,
	config MaintenanceConfig,
) *MaintenanceService {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	s := &MaintenanceService{
		config: config,
		logger: observability.GetLogger().WithField("component", "maintenance"),
		status: MaintenanceStatus{Enabled: true},
	}

	if config.BufferRetention > 0 {
		s.tasks = append(s.tasks, maintenanceTask{
			name: "sync buffer",
			run: func(ctx context.Context, now time.Time) (int64, error) {
				return bufferRepo.DeleteIntegrated(ctx, now.Add(-config.BufferRetention))
			},
			record: func(status *MaintenanceStatus, removed int64) { status.BufferRowsRemoved = removed },
		})
	}
	if config.SyncLogsToKeep > 0 {
		s.tasks = append(s.tasks, maintenanceTask{
			name: "sync logs",
			run: func(ctx context.Context, _ time.Time) (int64, error) {
				return syncLogRepo.DeleteOlderThan(ctx, config.SyncLogsToKeep)
			},
			record: func(status *MaintenanceStatus, removed int64) { status.SyncLogsRemoved = removed },
		})
	}
	return s
}

// Start runs maintenance every interval until Stop. Calling Start while
// running does nothing.
func (s *MaintenanceService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.status.Enabled = true
	s.status.NextScheduledRun = time.Now().Add(s.config.Interval)

	go s.loop(ctx)
	s.logger.Infof("Maintenance scheduled every %s", s.config.Interval)
}

func (s *MaintenanceService) loop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.status.NextScheduledRun = time.Now().Add(s.config.Interval)
			s.mu.Unlock()
			s.RunOnce(ctx)
		}
	}
}

// Stop ends the schedule. It is safe to call when not started.
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.status.Enabled = false
	s.status.NextScheduledRun = time.Time{}
	s.logger.Info("Maintenance schedule stopped")
}

// IsEnabled reports whether the schedule is active
func (s *MaintenanceService) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Enabled
}

// GetStatus returns a copy of the current status
func (s *MaintenanceService) GetStatus() MaintenanceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *MaintenanceService) snapshot() MaintenanceStatus {
	status := s.status
	status.Errors = slices.Clone(s.status.Errors)
	return status
}

// RunOnce runs every enabled task now and returns the resulting status. A
// call that overlaps a run in progress returns the current status.
func (s *MaintenanceService) RunOnce(ctx context.Context) MaintenanceStatus {
	s.mu.Lock()
	if s.status.Running {
		status := s.snapshot()
		s.mu.Unlock()
		s.logger.Debug("Maintenance already running, skipping")
		return status
	}
	s.status.Running = true
	s.mu.Unlock()

	started := time.Now()
	result := MaintenanceStatus{Errors: []string{}}
	for _, task := range s.tasks {
		removed, err := task.run(ctx, started)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("prune %s: %v", task.name, err))
			s.logger.WithField("task", task.name).Errorf("Maintenance task failed: %v", err)
			continue
		}
		task.record(&result, removed)
		if removed > 0 {
			s.logger.WithField("task", task.name).Infof("Removed %d rows", removed)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.LastRun = started
	s.status.LastRunDuration = time.Since(started).Round(time.Millisecond).String()
	s.status.BufferRowsRemoved = result.BufferRowsRemoved
	s.status.SyncLogsRemoved = result.SyncLogsRemoved
	s.status.Errors = result.Errors
	return s.snapshot()
}
