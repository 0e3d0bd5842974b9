package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler writes RingError values as HTTP responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")
	h.WriteErrorResponse(w, HTTPStatus(err), CodeString(GetCode(err)), err.Error(), requestID)
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", errorCode),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, CodeString(ErrCodeInvalidArgument), message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, CodeString(ErrCodeResourceExhausted), "rate limit exceeded", requestID)
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCode(err) {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidRingbufferName, ErrCodePayloadTooLarge:
		return http.StatusBadRequest
	case ErrCodeRingbufferNotFound:
		return http.StatusNotFound
	case ErrCodeStaleSequence:
		return http.StatusGone
	case ErrCodeSequenceOutOfBounds:
		return http.StatusNotFound
	case ErrCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable, ErrCodeReplicationFailed:
		return http.StatusServiceUnavailable
	case ErrCodeChecksumFailed, ErrCodeCorruptStream, ErrCodeConfigMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CodeString returns the wire name of an error code.
func CodeString(code ErrorCode) string {
	switch code {
	case ErrCodeOK:
		return "OK"
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeRingbufferNotFound:
		return "RINGBUFFER_NOT_FOUND"
	case ErrCodeInvalidRingbufferName:
		return "INVALID_RINGBUFFER_NAME"
	case ErrCodePayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case ErrCodeStaleSequence:
		return "STALE_SEQUENCE"
	case ErrCodeSequenceOutOfBounds:
		return "SEQUENCE_OUT_OF_BOUNDS"
	case ErrCodeChecksumFailed:
		return "CHECKSUM_FAILED"
	case ErrCodeUnavailable:
		return "UNAVAILABLE"
	case ErrCodeCorruptStream:
		return "CORRUPT_STREAM"
	case ErrCodeConfigMismatch:
		return "CONFIG_MISMATCH"
	case ErrCodeSerializationFailed:
		return "SERIALIZATION_FAILED"
	case ErrCodeReplicationFailed:
		return "REPLICATION_FAILED"
	case ErrCodeResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	default:
		return "INTERNAL_ERROR"
	}
}
