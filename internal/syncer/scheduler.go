package syncer

import (
	"context"
	"log"
	"sync"
	"time"
)

// Syncer runs one sync cycle
type Syncer interface {
	Sync(ctx context.Context) error
}

// SchedulerStatus describes the scheduler for the admin API
type SchedulerStatus struct {
	Running      bool       `json:"running"`
	Pending      bool       `json:"pending"`
	LastStarted  *time.Time `json:"lastStarted,omitempty"`
	LastFinished *time.Time `json:"lastFinished,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	Interval     string     `json:"interval"`
}

// Scheduler serialises sync cycles: at most one runs, at most one more is
// pending, and further requests while one is pending are dropped.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	requests chan struct{}

	mu     sync.RWMutex
	status SchedulerStatus
}

// NewScheduler creates a scheduler. An interval of zero disables the timer
// so only Trigger starts a cycle.
func NewScheduler(syncer Syncer, interval time.Duration) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		requests: make(chan struct{}, 1),
		status:   SchedulerStatus{Interval: interval.String()},
	}
}

// Trigger requests a sync cycle. It returns false when a request is already
// pending and this one was coalesced into it.
func (s *Scheduler) Trigger() bool {
	select {
	case s.requests <- struct{}{}:
		s.mu.Lock()
		s.status.Pending = true
		s.mu.Unlock()
		return true
	default:
		return false
	}
}

// Run processes sync requests until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval > 0 {
		go s.tick(ctx)
		s.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
			s.runOnce(ctx)
		}
	}
}

// GetStatus returns the current scheduler status
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) tick(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()
	s.mu.Lock()
	s.status.Running = true
	s.status.Pending = len(s.requests) > 0
	s.status.LastStarted = &started
	s.mu.Unlock()

	err := s.syncer.Sync(ctx)
	if err != nil {
		log.Printf("Sync cycle failed: %v", err)
	}

	finished := time.Now()
	s.mu.Lock()
	s.status.Running = false
	s.status.Pending = len(s.requests) > 0
	s.status.LastFinished = &finished
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()
}
