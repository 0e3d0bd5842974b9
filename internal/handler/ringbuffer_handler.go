// Package handler provides HTTP request handlers for the data server.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/service"
	"github.com/loopgrid/ringd/internal/validation"
)

const defaultReadCount = 100

// AddResponse is the response body for an append.
type AddResponse struct {
	Ringbuffer string `json:"ringbuffer"`
	Sequence   int64  `json:"sequence"`
}

// ItemResponse is the response body for a single item read. Item is
// base64 in JSON and null when the stored payload was nil.
type ItemResponse struct {
	Ringbuffer string `json:"ringbuffer"`
	Sequence   int64  `json:"sequence"`
	Item       []byte `json:"item"`
}

// BatchItem is one element of a batch read response.
type BatchItem struct {
	Sequence int64  `json:"sequence"`
	Item     []byte `json:"item"`
}

// ReadManyResponse is the response body for a batch read.
type ReadManyResponse struct {
	Ringbuffer    string      `json:"ringbuffer"`
	StartSequence int64       `json:"start_sequence"`
	Items         []BatchItem `json:"items"`
	ReadCount     int         `json:"read_count"`
	NextSequence  int64       `json:"next_sequence"`
}

// RingbufferHandler serves the public ringbuffer API.
type RingbufferHandler struct {
	service      *service.RingbufferService
	errorHandler *errors.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewRingbufferHandler creates a new RingbufferHandler instance.
func NewRingbufferHandler(
	svc *service.RingbufferService,
	errorHandler *errors.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) *RingbufferHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RingbufferHandler{
		service:      svc,
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// Add handles POST /v1/ringbuffers/{name} requests. The request body is
// the item payload, stored verbatim.
func (h *RingbufferHandler) Add(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	name := mux.Vars(r)["name"]

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxPayloadSize+1))
	if err != nil {
		h.errorHandler.WriteErrorResponse(w, http.StatusBadRequest,
			errors.CodeString(errors.ErrCodePayloadTooLarge), "request body too large", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	seq, err := h.service.Add(ctx, name, payload)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, AddResponse{Ringbuffer: name, Sequence: seq})
}

// ReadOne handles GET /v1/ringbuffers/{name}/items/{seq} requests.
func (h *RingbufferHandler) ReadOne(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)
	name := vars["name"]

	seq, err := strconv.ParseInt(vars["seq"], 10, 64)
	if err != nil {
		h.errorHandler.WriteValidationError(w, "invalid sequence: "+vars["seq"], requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.service.ReadOne(ctx, name, seq)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ItemResponse{Ringbuffer: name, Sequence: seq, Item: item})
}

// ReadMany handles GET /v1/ringbuffers/{name}/items?start=S&count=N
// requests. count defaults to 100 and is capped by the validator.
func (h *RingbufferHandler) ReadMany(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	name := mux.Vars(r)["name"]

	startParam := r.URL.Query().Get("start")
	start, err := strconv.ParseInt(startParam, 10, 64)
	if err != nil {
		h.errorHandler.WriteValidationError(w, "invalid or missing start sequence: "+startParam, requestID)
		return
	}

	count := defaultReadCount
	if countParam := r.URL.Query().Get("count"); countParam != "" {
		count, err = strconv.Atoi(countParam)
		if err != nil {
			h.errorHandler.WriteValidationError(w, "invalid count: "+countParam, requestID)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.ReadMany(ctx, name, start, count)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	items := make([]BatchItem, 0, len(result.Items))
	for i, item := range result.Items {
		items = append(items, BatchItem{Sequence: start + int64(i), Item: item})
	}
	h.writeJSONResponse(w, http.StatusOK, ReadManyResponse{
		Ringbuffer:    name,
		StartSequence: start,
		Items:         items,
		ReadCount:     len(items),
		NextSequence:  result.NextSequence,
	})
}

// Info handles GET /v1/ringbuffers/{name} requests.
func (h *RingbufferHandler) Info(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	info, err := h.service.Info(name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, info)
}

// List handles GET /v1/ringbuffers requests.
func (h *RingbufferHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ringbuffers": h.service.Names(),
	})
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *RingbufferHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
