package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

// SyncAPI is the central server as seen by a remote site
type SyncAPI interface {
	InitialDump(ctx context.Context, req syncapi.PullRequest) (*syncapi.PullBatch, error)
	GetQueuedRecords(ctx context.Context, req syncapi.PullRequest) (*syncapi.PullBatch, error)
	PostQueuedRecords(ctx context.Context, records []syncapi.Record) (*syncapi.PushResponse, error)
	PostAcknowledgedRecords(ctx context.Context, req syncapi.AcknowledgeRequest) error
	SiteStatus(ctx context.Context) (*syncapi.SiteStatus, error)
	UploadFile(ctx context.Context, upload syncapi.FileUpload, content io.ReadSeeker, sha256Hex string) error
	DownloadFile(ctx context.Context, referenceID string, w io.Writer) (int64, error)
}

var _ SyncAPI = (*syncapi.Client)(nil)

// Config holds the settings shared by the sync pipelines
type Config struct {
	SiteID        int32
	CentralSiteID int32
	BatchSize     int
	// RetainBuffer keeps integrated sync buffer rows for audit
	RetainBuffer bool
	// IntegrationWait bounds how long to wait for the central server to
	// finish integrating this site's push
	IntegrationWait time.Duration
	PollInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.CentralSiteID == 0 {
		c.CentralSiteID = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.IntegrationWait <= 0 {
		c.IntegrationWait = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// ProcessorRunner runs post-integration processors
type ProcessorRunner interface {
	Run(ctx context.Context) error
}

// Dependencies are the optional collaborators of a Synchroniser. Nil fields
// disable the matching feature.
type Dependencies struct {
	FileStorage *services.FileStorageService
	Processors  ProcessorRunner
	Broadcaster StatusBroadcaster
	Metrics     *observability.SyncMetrics
}

// Synchroniser runs one sync cycle at a time against the central server
type Synchroniser struct {
	db         *sql.DB
	api        SyncAPI
	config     Config
	deps       Dependencies
	pusher     *Pusher
	puller     *Puller
	integrator *Integrator
	files      *FileSyncer
	syncLogs   *repository.SyncLogRepository
	logger     *observability.Logger

	current atomic.Pointer[SyncLogger]
}

// NewSynchroniser creates a new Synchroniser
func NewSynchroniser(db *sql.DB, api SyncAPI, registry *translations.Registry, config Config, deps Dependencies) *Synchroniser {
	config = config.withDefaults()
	s := &Synchroniser{
		db:         db,
		api:        api,
		config:     config,
		deps:       deps,
		pusher:     NewPusher(db, api, registry, config, deps.Metrics),
		puller:     NewPuller(db, api, config, deps.Metrics),
		integrator: NewIntegrator(db, registry, config, deps.Metrics),
		syncLogs:   repository.NewSyncLogRepository(db),
		logger:     observability.GetLogger().WithField("component", "synchroniser"),
	}
	if deps.FileStorage != nil {
		s.files = NewFileSyncer(db, api, deps.FileStorage, config, deps.Metrics)
	}
	return s
}

// Sync runs a full cycle and records it in the sync log. It must not be
// called concurrently; the Scheduler serialises calls.
func (s *Synchroniser) Sync(ctx context.Context) error {
	ctx, span := observability.StartServiceSpan(ctx, "synchroniser", "sync")
	defer span.End()

	status := NewSyncLogger(s.syncLogs, s.deps.Broadcaster)
	s.current.Store(status)
	if err := status.Start(ctx); err != nil {
		observability.RecordError(span, err)
		return err
	}

	start := time.Now()
	err := s.run(ctx, status)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.WithContext(ctx).WithField("code", ErrorCodeOf(err)).Errorf("Sync failed: %v", err)
		if logErr := status.Fail(ctx, err); logErr != nil {
			s.logger.WithContext(ctx).Errorf("Failed to record sync error: %v", logErr)
		}
	} else {
		observability.SetSuccess(span)
		if logErr := status.Finish(ctx); logErr != nil {
			err = logErr
		}
	}

	s.deps.Metrics.RecordCycle(ctx, time.Since(start), string(ErrorCodeOf(err)))
	return err
}

func (s *Synchroniser) run(ctx context.Context, status *SyncLogger) error {
	kv := repository.NewKeyValueRepository(s.db)
	initialised, err := kv.GetBool(ctx, models.KeySyncIsInitialised)
	if err != nil {
		return err
	}

	centralCursor, err := kv.GetCursor(ctx, models.KeySyncPullCursorCentral)
	if err != nil {
		return err
	}
	remoteCursor, err := kv.GetCursor(ctx, models.KeySyncPullCursorRemote)
	if err != nil {
		return err
	}

	if !initialised {
		err := s.step(ctx, status, models.SyncStepPrepareInitial, func(ctx context.Context) error {
			return s.prepareInitial(ctx)
		})
		if err != nil {
			return err
		}
		centralCursor, remoteCursor = 0, 0
	}

	err = s.step(ctx, status, models.SyncStepPush, func(ctx context.Context) error {
		if _, err := s.pusher.Push(ctx, status); err != nil {
			return err
		}
		if s.files != nil {
			if _, err := s.files.UploadPending(ctx); err != nil {
				return fmt.Errorf("upload files: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.step(ctx, status, models.SyncStepWaitForIntegration, s.waitForIntegration)
	if err != nil {
		return err
	}

	var centralEnd, remoteEnd int64
	err = s.step(ctx, status, models.SyncStepPullCentral, func(ctx context.Context) error {
		var err error
		centralEnd, _, err = s.puller.Pull(ctx, syncapi.ScopeCentral, centralCursor, false, models.SyncStepPullCentral, status)
		return err
	})
	if err != nil {
		return err
	}

	err = s.step(ctx, status, models.SyncStepPullRemote, func(ctx context.Context) error {
		var err error
		remoteEnd, _, err = s.puller.Pull(ctx, syncapi.ScopeRemote, remoteCursor, !initialised, models.SyncStepPullRemote, status)
		return err
	})
	if err != nil {
		return err
	}

	err = s.step(ctx, status, models.SyncStepIntegrate, func(ctx context.Context) error {
		_, err := s.integrator.Integrate(ctx, []CursorUpdate{
			{Key: models.KeySyncPullCursorCentral, Value: centralEnd},
			{Key: models.KeySyncPullCursorRemote, Value: remoteEnd},
		}, !initialised, status)
		return err
	})
	if err != nil {
		return err
	}

	// Everything below runs on committed data and does not fail the cycle
	s.acknowledge(ctx, syncapi.ScopeCentral, centralCursor, centralEnd)
	s.acknowledge(ctx, syncapi.ScopeRemote, remoteCursor, remoteEnd)

	if s.files != nil {
		if _, err := s.files.DownloadMissing(ctx); err != nil {
			s.logger.WithContext(ctx).Warnf("File download failed: %v", err)
		}
	}
	if s.deps.Processors != nil {
		if err := s.deps.Processors.Run(ctx); err != nil {
			s.logger.WithContext(ctx).Warnf("Processors failed: %v", err)
		}
	}
	return nil
}

// step runs fn between the step's start and finish log entries
func (s *Synchroniser) step(ctx context.Context, status *SyncLogger, step models.SyncStep, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartServiceSpan(ctx, "synchroniser", string(step))
	defer span.End()

	if err := status.StartStep(ctx, step); err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithField("step", step).Debug("Sync step started")

	if err := fn(ctx); err != nil {
		observability.RecordError(span, err)
		return err
	}

	if p := status.Snapshot().Progress(step); p.Done != nil {
		span.SetAttributes(attribute.Int64("sync.step.done", *p.Done))
	}
	observability.SetSuccess(span)
	return status.DoneStep(ctx, step)
}

// prepareInitial checks that the central server knows this site as configured
func (s *Synchroniser) prepareInitial(ctx context.Context) error {
	siteStatus, err := s.api.SiteStatus(ctx)
	if err != nil {
		return err
	}
	if s.config.SiteID != 0 && siteStatus.SiteID != s.config.SiteID {
		return fmt.Errorf("central server identifies this site as %d, configured as %d", siteStatus.SiteID, s.config.SiteID)
	}
	return nil
}

// waitForIntegration polls until the central server has applied this site's push
func (s *Synchroniser) waitForIntegration(ctx context.Context) error {
	deadline := time.Now().Add(s.config.IntegrationWait)
	for {
		siteStatus, err := s.api.SiteStatus(ctx)
		if err != nil {
			return err
		}
		if !siteStatus.IsIntegrating {
			return nil
		}
		if time.Now().After(deadline) {
			return &syncapi.Error{Kind: syncapi.KindIntegrationInProgress, Op: "site_status"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

func (s *Synchroniser) acknowledge(ctx context.Context, scope syncapi.Scope, from, to int64) {
	if to <= from {
		return
	}
	if err := s.api.PostAcknowledgedRecords(ctx, syncapi.AcknowledgeRequest{Scope: scope, Cursor: to}); err != nil {
		s.logger.WithContext(ctx).Warnf("Acknowledge %s cursor %d failed: %v", scope, to, err)
	}
}

// Status returns the latest sync log, preferring the cycle in progress
func (s *Synchroniser) Status(ctx context.Context) (*models.SyncLog, error) {
	if current := s.current.Load(); current != nil {
		if snapshot := current.Snapshot(); snapshot != nil && snapshot.IsRunning() {
			return snapshot, nil
		}
	}
	return s.syncLogs.Latest(ctx)
}
