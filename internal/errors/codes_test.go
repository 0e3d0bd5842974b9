package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestRingErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ReplicationFailed("node-2", cause)

	assert.Equal(t, ErrCodeReplicationFailed, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "node-2")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStaleSequenceCarriesHead(t *testing.T) {
	err := StaleSequence("events", 3, 7)

	require.Equal(t, ErrCodeStaleSequence, err.Code)
	assert.Equal(t, int64(7), err.Details["head_sequence"])
	assert.Equal(t, int64(3), err.Details["sequence"])
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *RingError
		want codes.Code
	}{
		{"invalid argument", InvalidArgument("bad", nil), codes.InvalidArgument},
		{"not found", RingbufferNotFound("missing"), codes.NotFound},
		{"stale sequence", StaleSequence("rb", 1, 4), codes.OutOfRange},
		{"beyond tail", SequenceOutOfBounds("rb", 9, 4), codes.OutOfRange},
		{"corrupt stream", CorruptStream("truncated", nil), codes.DataLoss},
		{"config mismatch", ConfigMismatch("rb", "capacity", 3, 5), codes.DataLoss},
		{"checksum", ChecksumFailed(1, 2), codes.DataLoss},
		{"replication", ReplicationFailed("node-1", nil), codes.Unavailable},
		{"exhausted", ResourceExhausted("workers", 8, 8), codes.ResourceExhausted},
		{"internal", InternalError("boom", nil), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ToGRPCStatus().Code())
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"stale", StaleSequence("rb", 0, 2), http.StatusGone},
		{"beyond tail", SequenceOutOfBounds("rb", 10, 4), http.StatusNotFound},
		{"not found", RingbufferNotFound("rb"), http.StatusNotFound},
		{"corrupt", CorruptStream("short read", nil), http.StatusUnprocessableEntity},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestGetCodeFallsBackToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeStaleSequence, GetCode(StaleSequence("rb", 0, 1)))
}
