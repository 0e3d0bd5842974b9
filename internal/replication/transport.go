package replication

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/model"
)

// Transport delivers replication envelopes to a peer's data address.
type Transport interface {
	SendAppend(ctx context.Context, addr string, req model.BackupAppend) (model.BackupAppendResult, error)
	SendSync(ctx context.Context, addr string, req model.SyncRequest) (model.SyncResult, error)
}

// HTTPTransport posts msgpack envelopes to the peer's internal replication
// endpoints. The underlying client pools connections per peer.
type HTTPTransport struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendAppend replicates one append to the peer at addr.
func (t *HTTPTransport) SendAppend(ctx context.Context, addr string, req model.BackupAppend) (model.BackupAppendResult, error) {
	var result model.BackupAppendResult
	if err := t.post(ctx, addr, AppendPath, &req, &result); err != nil {
		return model.BackupAppendResult{}, err
	}
	return result, nil
}

// SendSync ships a full container stream to the peer at addr.
func (t *HTTPTransport) SendSync(ctx context.Context, addr string, req model.SyncRequest) (model.SyncResult, error) {
	var result model.SyncResult
	if err := t.post(ctx, addr, SyncPath, &req, &result); err != nil {
		return model.SyncResult{}, err
	}
	return result, nil
}

func (t *HTTPTransport) post(ctx context.Context, addr, path string, in, out interface{}) error {
	body, err := EncodeEnvelope(in)
	if err != nil {
		return errors.ReplicationFailed(addr, fmt.Errorf("encode envelope: %w", err))
	}

	url := fmt.Sprintf("http://%s%s", addr, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.ReplicationFailed(addr, err)
	}
	httpReq.Header.Set("Content-Type", ContentType)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return errors.ReplicationFailed(addr, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.ReplicationFailed(addr, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return errors.ReplicationFailed(addr,
			fmt.Errorf("peer rejected %s with status %d: %s", path, resp.StatusCode, truncate(respBody, 256)))
	}
	if err := DecodeEnvelope(respBody, out); err != nil {
		return errors.ReplicationFailed(addr, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
