package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/supplysync/server/internal/middleware"
	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/syncer"
)

// maxPushBodyBytes bounds a push request body
const maxPushBodyBytes = 64 << 20

// SyncServerHandler serves the sync protocol to remote sites
type SyncServerHandler struct {
	central *syncer.CentralService
	hashes  *services.HashService
	logger  *observability.Logger
}

// NewSyncServerHandler creates a new SyncServerHandler
func NewSyncServerHandler(central *syncer.CentralService) *SyncServerHandler {
	return &SyncServerHandler{
		central: central,
		hashes:  services.NewHashService(),
		logger:  observability.GetLogger().WithField("component", "sync_server"),
	}
}

// Routes mounts the protocol endpoints. Callers add authentication.
func (h *SyncServerHandler) Routes(r chi.Router) {
	r.Post("/initial_dump", h.InitialDump)
	r.Post("/pull", h.Pull)
	r.Post("/push", h.Push)
	r.Post("/acknowledge", h.Acknowledge)
	r.Get("/site_status", h.SiteStatus)
	r.Post("/files", h.UploadFile)
	r.Get("/files/{id}", h.DownloadFile)
}

// InitialDump returns a batch of everything visible to the site
// @Summary Initial dump
// @Tags sync-protocol
// @Accept json
// @Produce json
// @Param request body syncapi.PullRequest true "Pull request"
// @Success 200 {object} syncapi.PullBatch
// @Security BasicAuth
// @Router /sync/v7/initial_dump [post]
func (h *SyncServerHandler) InitialDump(w http.ResponseWriter, r *http.Request) {
	h.pull(w, r, true)
}

// Pull returns the next batch of changes for the site
// @Summary Pull changes
// @Tags sync-protocol
// @Accept json
// @Produce json
// @Param request body syncapi.PullRequest true "Pull request"
// @Success 200 {object} syncapi.PullBatch
// @Security BasicAuth
// @Router /sync/v7/pull [post]
func (h *SyncServerHandler) Pull(w http.ResponseWriter, r *http.Request) {
	h.pull(w, r, false)
}

func (h *SyncServerHandler) pull(w http.ResponseWriter, r *http.Request, initial bool) {
	site := middleware.GetSiteFromContext(r.Context())
	if site == nil {
		syncapi.WriteError(w, http.StatusUnauthorized, syncapi.KindAuthentication, "site required", nil)
		return
	}

	var req syncapi.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "invalid pull request", nil)
		return
	}

	batch, err := h.central.Pull(r.Context(), site.SiteID, req, initial)
	if err != nil {
		h.logger.WithContext(r.Context()).WithField("site", site.Name).Errorf("Pull failed: %v", err)
		syncapi.WriteError(w, http.StatusInternalServerError, syncapi.KindServer, err.Error(), nil)
		return
	}
	syncapi.WriteData(w, http.StatusOK, batch)
}

// Push integrates records sent by the site
// @Summary Push changes
// @Tags sync-protocol
// @Accept json
// @Produce json
// @Param request body syncapi.PushRequest true "Records"
// @Success 200 {object} syncapi.PushResponse
// @Security BasicAuth
// @Router /sync/v7/push [post]
func (h *SyncServerHandler) Push(w http.ResponseWriter, r *http.Request) {
	site := middleware.GetSiteFromContext(r.Context())
	if site == nil {
		syncapi.WriteError(w, http.StatusUnauthorized, syncapi.KindAuthentication, "site required", nil)
		return
	}

	var req syncapi.PushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBodyBytes)).Decode(&req); err != nil {
		syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "invalid push request", nil)
		return
	}

	resp, err := h.central.Push(r.Context(), site.SiteID, req.Records)
	if err != nil {
		h.logger.WithContext(r.Context()).WithField("site", site.Name).Errorf("Push failed: %v", err)
		syncapi.WriteError(w, http.StatusInternalServerError, syncapi.KindServer, err.Error(), nil)
		return
	}
	syncapi.WriteData(w, http.StatusOK, resp)
}

// Acknowledge records how far the site has integrated
// @Summary Acknowledge pulled records
// @Tags sync-protocol
// @Accept json
// @Produce json
// @Param request body syncapi.AcknowledgeRequest true "Acknowledged cursor"
// @Success 200
// @Security BasicAuth
// @Router /sync/v7/acknowledge [post]
func (h *SyncServerHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	site := middleware.GetSiteFromContext(r.Context())
	if site == nil {
		syncapi.WriteError(w, http.StatusUnauthorized, syncapi.KindAuthentication, "site required", nil)
		return
	}

	var req syncapi.AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "invalid acknowledge request", nil)
		return
	}

	if err := h.central.Acknowledge(r.Context(), site.SiteID, req); err != nil {
		syncapi.WriteError(w, http.StatusInternalServerError, syncapi.KindServer, err.Error(), nil)
		return
	}
	syncapi.WriteData(w, http.StatusOK, struct{}{})
}

// SiteStatus reports whether a push from the site is still being integrated
// @Summary Site status
// @Tags sync-protocol
// @Produce json
// @Success 200 {object} syncapi.SiteStatus
// @Security BasicAuth
// @Router /sync/v7/site_status [get]
func (h *SyncServerHandler) SiteStatus(w http.ResponseWriter, r *http.Request) {
	site := middleware.GetSiteFromContext(r.Context())
	if site == nil {
		syncapi.WriteError(w, http.StatusUnauthorized, syncapi.KindAuthentication, "site required", nil)
		return
	}
	syncapi.WriteData(w, http.StatusOK, h.central.SiteStatus(site.SiteID))
}

// UploadFile stores the content of a sync file reference
// @Summary Upload sync file
// @Tags sync-protocol
// @Accept multipart/form-data
// @Produce json
// @Param reference_id formData string true "Sync file reference id"
// @Param file formData file true "File content"
// @Success 200
// @Security BasicAuth
// @Router /sync/v7/files [post]
func (h *SyncServerHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	checksum, err := h.hashes.ParseChecksum(r.Header.Get(syncapi.HeaderContentSHA256))
	if err != nil {
		syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, err.Error(), nil)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "multipart body required", nil)
		return
	}

	// reference_id precedes the file part
	var referenceID string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "invalid multipart body", nil)
			return
		}

		switch part.FormName() {
		case "reference_id":
			value, _ := io.ReadAll(io.LimitReader(part, 256))
			referenceID = string(value)
		case "file":
			if referenceID == "" {
				syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "reference_id must precede file", nil)
				return
			}
			err := h.central.StoreFile(r.Context(), referenceID, part, checksum)
			if err != nil {
				h.writeFileError(w, r, referenceID, err)
				return
			}
			syncapi.WriteData(w, http.StatusOK, struct{}{})
			return
		}
	}
	syncapi.WriteError(w, http.StatusBadRequest, syncapi.KindParse, "file part missing", nil)
}

// DownloadFile streams the content of a sync file reference
// @Summary Download sync file
// @Tags sync-protocol
// @Produce application/octet-stream
// @Param id path string true "Sync file reference id"
// @Success 200 {file} binary
// @Failure 404 {object} syncapi.Envelope
// @Security BasicAuth
// @Router /sync/v7/files/{id} [get]
func (h *SyncServerHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	referenceID := chi.URLParam(r, "id")

	file, ref, err := h.central.OpenFile(r.Context(), referenceID)
	if err != nil {
		h.writeFileError(w, r, referenceID, err)
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	if ref.MimeType != nil && *ref.MimeType != "" {
		contentType = *ref.MimeType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+ref.FileName+"\"")
	if info, err := file.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	io.Copy(w, file)
}

func (h *SyncServerHandler) writeFileError(w http.ResponseWriter, r *http.Request, referenceID string, err error) {
	switch {
	case errors.Is(err, models.ErrFileNotFound), errors.Is(err, models.ErrRecordNotFound):
		syncapi.WriteError(w, http.StatusNotFound, syncapi.KindFileNotFound, err.Error(), nil)
	case errors.Is(err, models.ErrChecksumMismatch):
		syncapi.WriteError(w, http.StatusUnprocessableEntity, syncapi.KindServer, err.Error(), nil)
	case errors.Is(err, models.ErrFileTooLarge):
		syncapi.WriteError(w, http.StatusRequestEntityTooLarge, syncapi.KindServer, err.Error(), nil)
	default:
		h.logger.WithContext(r.Context()).WithField("reference", referenceID).Errorf("File transfer failed: %v", err)
		syncapi.WriteError(w, http.StatusInternalServerError, syncapi.KindServer, "file transfer failed", nil)
	}
}
