package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// reindexQueue accepts document IDs for background re-indexing.
type reindexQueue interface {
	Enqueue(documentID string) error
}

// SyncHandler is the endpoint the Drive-side Apps Script trigger calls when
// a knowledge-base document changes. It authenticates with a shared secret
// and hands the document ID to the reindex pool without waiting for the
// re-index itself.
type SyncHandler struct {
	queue  reindexQueue
	secret string
	logger *logging.Logger
}

// SyncConfig wires the sync webhook. Secret is the shared token; an empty
// secret makes every request fail with 500 rather than opening the endpoint.
type SyncConfig struct {
	Queue  reindexQueue
	Secret string
	Logger *logging.Logger
}

// NewSyncHandler builds the sync webhook.
func NewSyncHandler(cfg SyncConfig) *SyncHandler {
	if cfg.Queue == nil {
		panic("handlers: reindex queue is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SyncHandler{queue: cfg.Queue, secret: cfg.Secret, logger: cfg.Logger}
}

type syncRequest struct {
	DocumentID  string `json:"documentId"`
	SecretToken string `json:"secretToken"`
}

// Handle is POST /webhook-google-sync.
func (h *SyncHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid JSON payload"})
		return
	}
	if req.DocumentID == "" || req.SecretToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing documentId or secretToken"})
		return
	}
	if h.secret == "" {
		h.logger.Error("sync webhook called but no secret token is configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Sync is not configured"})
		return
	}
	if req.SecretToken != h.secret {
		h.logger.Warn("sync webhook rejected: bad secret token", "document_id", req.DocumentID)
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "Invalid secret token"})
		return
	}

	// The response does not wait for the re-index; a full queue is logged by
	// the pool and the trigger retries on the next edit.
	if err := h.queue.Enqueue(req.DocumentID); err != nil {
		h.logger.Warn("failed to enqueue reindex job", "document_id", req.DocumentID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "documentId": req.DocumentID})
}
