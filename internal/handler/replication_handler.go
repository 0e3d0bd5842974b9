package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/model"
	"github.com/loopgrid/ringd/internal/replication"
)

// maxSyncBody bounds an internal request body. Sync payloads carry whole
// containers, so the cap is well above the public payload limit.
const maxSyncBody = 256 * 1024 * 1024

// ReplicationHandler serves the internal replication plane. Requests
// and responses are msgpack envelopes, not JSON.
type ReplicationHandler struct {
	applier      *replication.Applier
	errorHandler *errors.Handler
	logger       *zap.Logger
}

// NewReplicationHandler creates a new ReplicationHandler instance.
func NewReplicationHandler(applier *replication.Applier, errorHandler *errors.Handler, logger *zap.Logger) *ReplicationHandler {
	return &ReplicationHandler{
		applier:      applier,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Append handles POST /internal/v1/replication/append requests from
// primary members.
func (h *ReplicationHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req model.BackupAppend
	if !h.decodeBody(w, r, &req) {
		return
	}

	result, err := h.applier.ApplyAppend(req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeMsgpackResponse(w, r, result)
}

// Sync handles POST /internal/v1/replication/sync requests carrying a
// full container transfer.
func (h *ReplicationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req model.SyncRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	result, err := h.applier.ApplySync(req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeMsgpackResponse(w, r, result)
}

func (h *ReplicationHandler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSyncBody))
	if err != nil {
		h.errorHandler.HandleError(w, r, errors.CorruptStream("failed to read replication request body", err))
		return false
	}
	if err := replication.DecodeEnvelope(body, v); err != nil {
		h.errorHandler.HandleError(w, r, errors.CorruptStream("failed to decode replication envelope", err))
		return false
	}
	return true
}

func (h *ReplicationHandler) writeMsgpackResponse(w http.ResponseWriter, r *http.Request, v interface{}) {
	data, err := replication.EncodeEnvelope(v)
	if err != nil {
		h.errorHandler.HandleError(w, r, errors.SerializationFailed("failed to encode replication response", err))
		return
	}

	w.Header().Set("Content-Type", replication.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write replication response", zap.Error(err))
	}
}
