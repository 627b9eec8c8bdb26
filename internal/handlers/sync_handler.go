package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/syncer"
)

// SyncStatusSource reports the current or latest sync cycle
type SyncStatusSource interface {
	Status(ctx context.Context) (*models.SyncLog, error)
}

// SyncTrigger requests sync cycles
type SyncTrigger interface {
	Trigger() bool
	GetStatus() syncer.SchedulerStatus
}

// SyncStatusResponse for GET /api/sync/status
type SyncStatusResponse struct {
	Current        *models.SyncLog        `json:"current,omitempty"`
	LastSuccessful *models.SyncLog        `json:"lastSuccessful,omitempty"`
	IsInitialised  bool                   `json:"isInitialised"`
	Scheduler      syncer.SchedulerStatus `json:"scheduler"`
	Cursors        SyncCursors            `json:"cursors"`
}

// SyncCursors are the watermarks of a remote site
type SyncCursors struct {
	Push        int64 `json:"push"`
	PullCentral int64 `json:"pullCentral"`
	PullRemote  int64 `json:"pullRemote"`
	Latest      int64 `json:"latest"`
}

// TriggerResponse for POST /api/sync/trigger
type TriggerResponse struct {
	Queued bool `json:"queued"`
}

// ChangelogResponse for GET /api/changelog
type ChangelogResponse struct {
	Entries      []models.ChangelogRow `json:"entries"`
	LatestCursor int64                 `json:"latestCursor"`
	Remaining    int64                 `json:"remaining"`
}

// SyncHandler serves the local sync admin endpoints
type SyncHandler struct {
	status    SyncStatusSource
	scheduler SyncTrigger
	syncLogs  repository.SyncLogRepo
	changelog repository.ChangelogReader
	kv        *repository.KeyValueRepository
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	status SyncStatusSource,
	scheduler SyncTrigger,
	syncLogs repository.SyncLogRepo,
	changelog repository.ChangelogReader,
	kv *repository.KeyValueRepository,
) *SyncHandler {
	return &SyncHandler{
		status:    status,
		scheduler: scheduler,
		syncLogs:  syncLogs,
		changelog: changelog,
		kv:        kv,
	}
}

// GetStatus returns the state of the sync engine
// @Summary Get sync status
// @Description Current or latest sync cycle, scheduler state and cursors
// @Tags sync
// @Produce json
// @Success 200 {object} SyncStatusResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/status [get]
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current, err := h.status.Status(ctx)
	if err != nil {
		log.Printf("Error getting sync status: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	lastSuccessful, err := h.syncLogs.LatestSuccessful(ctx)
	if err != nil {
		log.Printf("Error getting last successful sync: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	response := SyncStatusResponse{
		Current:        current,
		LastSuccessful: lastSuccessful,
		Scheduler:      h.scheduler.GetStatus(),
	}

	cursors := []struct {
		key  models.KeyType
		into *int64
	}{
		{models.KeySyncPushCursor, &response.Cursors.Push},
		{models.KeySyncPullCursorCentral, &response.Cursors.PullCentral},
		{models.KeySyncPullCursorRemote, &response.Cursors.PullRemote},
	}
	for _, c := range cursors {
		if *c.into, err = h.kv.GetCursor(ctx, c.key); err != nil {
			log.Printf("Error getting cursor %s: %v", c.key, err)
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}
	}
	if response.Cursors.Latest, err = h.changelog.LatestCursor(ctx); err != nil {
		log.Printf("Error getting latest cursor: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if response.IsInitialised, err = h.kv.GetBool(ctx, models.KeySyncIsInitialised); err != nil {
		log.Printf("Error getting initialised flag: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Trigger requests a sync cycle
// @Summary Trigger sync
// @Description Queues a sync cycle. Requests made while one is already pending are dropped.
// @Tags sync
// @Produce json
// @Success 202 {object} TriggerResponse
// @Security ApiKeyAuth
// @Router /api/sync/trigger [post]
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, TriggerResponse{Queued: h.scheduler.Trigger()})
}

// ListLogs returns recent sync cycles, newest first
// @Summary List sync logs
// @Tags sync
// @Produce json
// @Param limit query int false "Maximum number of logs" default(20)
// @Success 200 {array} models.SyncLog
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/logs [get]
func (h *SyncHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit > 500 {
		limit = 500
	}

	logs, err := h.syncLogs.List(r.Context(), limit)
	if err != nil {
		log.Printf("Error listing sync logs: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if logs == nil {
		logs = []*models.SyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ListChangelog pages through the changelog
// @Summary List changelog
// @Tags sync
// @Produce json
// @Param since query int false "Return entries after this cursor"
// @Param limit query int false "Maximum number of entries" default(100)
// @Param table query string false "Only entries of this table (repeatable)"
// @Success 200 {object} ChangelogResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/changelog [get]
func (h *SyncHandler) ListChangelog(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		since = 0
	}
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}

	filter := &models.ChangelogFilter{}
	for _, table := range r.URL.Query()["table"] {
		filter.TableNames = append(filter.TableNames, models.TableName(table))
	}

	ctx := r.Context()
	entries, err := h.changelog.Changelogs(ctx, since, limit, filter)
	if err != nil {
		log.Printf("Error listing changelog: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	total, err := h.changelog.Count(ctx, since, filter)
	if err != nil {
		log.Printf("Error counting changelog: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	latest, err := h.changelog.LatestCursor(ctx)
	if err != nil {
		log.Printf("Error getting latest cursor: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if entries == nil {
		entries = []models.ChangelogRow{}
	}

	writeJSON(w, http.StatusOK, ChangelogResponse{
		Entries:      entries,
		LatestCursor: latest,
		Remaining:    total - int64(len(entries)),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
