package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for ringbuffer operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument       ErrorCode = 1000
	ErrCodeRingbufferNotFound    ErrorCode = 1001
	ErrCodeInvalidRingbufferName ErrorCode = 1002
	ErrCodePayloadTooLarge       ErrorCode = 1003
	ErrCodeStaleSequence         ErrorCode = 1004
	ErrCodeSequenceOutOfBounds   ErrorCode = 1005
	ErrCodeChecksumFailed        ErrorCode = 1006

	// Server errors (5xx equivalent)
	ErrCodeInternal            ErrorCode = 2000
	ErrCodeUnavailable         ErrorCode = 2001
	ErrCodeCorruptStream       ErrorCode = 2002
	ErrCodeConfigMismatch      ErrorCode = 2003
	ErrCodeSerializationFailed ErrorCode = 2004
	ErrCodeReplicationFailed   ErrorCode = 2005
	ErrCodeResourceExhausted   ErrorCode = 2006
)

// RingError represents a structured error with code and context
type RingError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *RingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *RingError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts RingError to gRPC status
func (e *RingError) ToGRPCStatus() *status.Status {
	grpcCode := e.toGRPCCode()
	return status.New(grpcCode, e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *RingError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidRingbufferName, ErrCodePayloadTooLarge:
		return codes.InvalidArgument
	case ErrCodeRingbufferNotFound:
		return codes.NotFound
	case ErrCodeStaleSequence, ErrCodeSequenceOutOfBounds:
		return codes.OutOfRange
	case ErrCodeChecksumFailed, ErrCodeCorruptStream, ErrCodeConfigMismatch:
		return codes.DataLoss
	case ErrCodeResourceExhausted:
		return codes.ResourceExhausted
	case ErrCodeUnavailable, ErrCodeReplicationFailed:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// NewRingError creates a new RingError
func NewRingError(code ErrorCode, message string, cause error) *RingError {
	return &RingError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *RingError) WithDetail(key string, value interface{}) *RingError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *RingError {
	return NewRingError(ErrCodeInvalidArgument, message, cause)
}

func RingbufferNotFound(name string) *RingError {
	return NewRingError(ErrCodeRingbufferNotFound, fmt.Sprintf("ringbuffer not found: %s", name), nil).
		WithDetail("name", name)
}

func InvalidRingbufferName(name, reason string) *RingError {
	return NewRingError(ErrCodeInvalidRingbufferName, fmt.Sprintf("invalid ringbuffer name '%s': %s", name, reason), nil).
		WithDetail("name", name).
		WithDetail("reason", reason)
}

func PayloadTooLarge(size, maxSize int) *RingError {
	return NewRingError(ErrCodePayloadTooLarge, fmt.Sprintf("payload size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

// StaleSequence reports a read below the current head. The head sequence is
// carried so callers can resume from the oldest retained item.
func StaleSequence(name string, seq, head int64) *RingError {
	return NewRingError(ErrCodeStaleSequence, fmt.Sprintf("sequence %d is stale, oldest retained sequence of %s is %d", seq, name, head), nil).
		WithDetail("name", name).
		WithDetail("sequence", seq).
		WithDetail("head_sequence", head)
}

func SequenceOutOfBounds(name string, seq, tail int64) *RingError {
	return NewRingError(ErrCodeSequenceOutOfBounds, fmt.Sprintf("sequence %d is beyond tail %d of %s", seq, tail, name), nil).
		WithDetail("name", name).
		WithDetail("sequence", seq).
		WithDetail("tail_sequence", tail)
}

func ChecksumFailed(expected, actual uint32) *RingError {
	return NewRingError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *RingError {
	return NewRingError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *RingError {
	return NewRingError(ErrCodeUnavailable, message, cause)
}

func CorruptStream(message string, cause error) *RingError {
	return NewRingError(ErrCodeCorruptStream, message, cause)
}

func ConfigMismatch(name, field string, expected, actual interface{}) *RingError {
	return NewRingError(ErrCodeConfigMismatch, fmt.Sprintf("stream for %s does not match configuration: %s expected %v, got %v", name, field, expected, actual), nil).
		WithDetail("name", name).
		WithDetail("field", field).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func SerializationFailed(message string, cause error) *RingError {
	return NewRingError(ErrCodeSerializationFailed, message, cause)
}

func ReplicationFailed(member string, cause error) *RingError {
	return NewRingError(ErrCodeReplicationFailed, fmt.Sprintf("replication to %s failed", member), cause).
		WithDetail("member", member)
}

func ResourceExhausted(resource string, current, limit int) *RingError {
	return NewRingError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsRingError checks if an error is a RingError
func IsRingError(err error) bool {
	_, ok := err.(*RingError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if re, ok := err.(*RingError); ok {
		return re.Code
	}
	return ErrCodeInternal
}
