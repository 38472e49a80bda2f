// Package httpapi exposes the delta sync engine over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

// SyncEngine is the ledger surface the HTTP layer needs.
type SyncEngine interface {
	Ingest(ctx context.Context, userID, dataType, deviceID string, batchTS *time.Time, batch []api.ChangeSubmission) (*api.UploadResponse, error)
	Changes(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) (*api.DownloadResponse, error)
	Deleted(ctx context.Context, userID, dataType string, since time.Time, limit, offset int) (*api.DeletedResponse, error)
	Status(ctx context.Context, userID, dataType string) (*api.StatusResponse, error)
	Advance(ctx context.Context, userID, dataType string, req api.AckRequest) error
}

// BlobSigner issues presigned URLs for attachment transfer.
type BlobSigner interface {
	GetPresignedPutUrl(ctx context.Context) (string, string, error)
	GetPresignedGetUrl(ctx context.Context, key string) (string, error)
}

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	ledger SyncEngine
	blobs  BlobSigner
	logger logging.Logger
}

func NewHandler(ledger SyncEngine, blobs BlobSigner, logger logging.Logger) *Handler {
	return &Handler{ledger: ledger, blobs: blobs, logger: logger.With("module", "httpapi")}
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}
	dataType := chi.URLParam(r, "dataType")

	var req api.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: malformed body", common.ErrValidation))
		return
	}

	deviceID := id.DeviceID
	if deviceID == "" {
		deviceID = req.DeviceID
	}

	resp, err := h.ledger.Ingest(r.Context(), id.UserID, dataType, deviceID, req.ClientTimestamp, req.Changes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}
	dataType := chi.URLParam(r, "dataType")

	since, limit, offset, err := parseDeltaQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.ledger.Changes(r.Context(), id.UserID, dataType, since, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleted(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}
	dataType := chi.URLParam(r, "dataType")

	since, limit, offset, err := parseDeltaQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.ledger.Deleted(r.Context(), id.UserID, dataType, since, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}
	dataType := chi.URLParam(r, "dataType")

	resp, err := h.ledger.Status(r.Context(), id.UserID, dataType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, common.ErrUnauthorized.Error())
		return
	}
	dataType := chi.URLParam(r, "dataType")

	var req api.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: malformed body", common.ErrValidation))
		return
	}

	if err := h.ledger.Advance(r.Context(), id.UserID, dataType, req); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createBlob(w http.ResponseWriter, r *http.Request) {
	key, url, err := h.blobs.GetPresignedPutUrl(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "failed to presign put url", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.PresignResponse{Key: key, URL: url})
}

func (h *Handler) getBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: blob key is required", common.ErrValidation))
		return
	}

	url, err := h.blobs.GetPresignedGetUrl(r.Context(), key)
	if err != nil {
		h.logger.Error(r.Context(), "failed to presign get url", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PresignResponse{URL: url})
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// parseDeltaQuery reads the since/limit/offset query parameters. since is
// RFC 3339; a missing since means "from the beginning of history".
func parseDeltaQuery(r *http.Request) (time.Time, int, int, error) {
	q := r.URL.Query()

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, 0, 0, fmt.Errorf("%w: invalid since %q", common.ErrValidation, raw)
		}
		since = parsed
	}

	limit, err := parseIntParam(q.Get("limit"))
	if err != nil {
		return time.Time{}, 0, 0, fmt.Errorf("%w: invalid limit", common.ErrValidation)
	}
	offset, err := parseIntParam(q.Get("offset"))
	if err != nil {
		return time.Time{}, 0, 0, fmt.Errorf("%w: invalid offset", common.ErrValidation)
	}
	return since, limit, offset, nil
}

func parseIntParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
