// Package sync implements the client side of the delta protocol: an HTTP API
// client, a push/pull service over the local replica, and a background worker
// that drains the offline queue.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

// Transport is the server API surface the sync service depends on.
type Transport interface {
	Upload(ctx context.Context, dataType string, req *api.UploadRequest) (*api.UploadResponse, error)
	Download(ctx context.Context, dataType string, since time.Time, limit, offset int) (*api.DownloadResponse, error)
	Status(ctx context.Context, dataType string) (*api.StatusResponse, error)
	Ack(ctx context.Context, dataType string, req *api.AckRequest) error
}

const (
	requestTimeout = 30 * time.Second

	// In-flight retries cover short network blips. Longer outages are the
	// offline queue's job, with its own persisted schedule.
	inflightRetries = 2
	inflightBackoff = 500 * time.Millisecond
)

// APIClient talks JSON over HTTP to the sync server.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (c *APIClient) Upload(ctx context.Context, dataType string, req *api.UploadRequest) (*api.UploadResponse, error) {
	var resp api.UploadResponse
	path := fmt.Sprintf("/api/v1/sync/%s/changes", dataType)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Download(ctx context.Context, dataType string, since time.Time, limit, offset int) (*api.DownloadResponse, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.Format(time.RFC3339Nano))
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp api.DownloadResponse
	path := fmt.Sprintf("/api/v1/sync/%s/changes?%s", dataType, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Status(ctx context.Context, dataType string) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	path := fmt.Sprintf("/api/v1/sync/%s/status", dataType)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Ack(ctx context.Context, dataType string, req *api.AckRequest) error {
	path := fmt.Sprintf("/api/v1/sync/%s/ack", dataType)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// do sends one request, retrying transport-level and 5xx failures a couple
// of times before giving up with ErrRetryable. All server operations are
// idempotent, so re-sending a request that may have landed is safe.
func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	b := retry.WithMaxRetries(inflightRetries, retry.NewExponential(inflightBackoff))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrRetryable, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%w: server returned %d", common.ErrRetryable, resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return classifyStatus(resp)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// classifyStatus maps a non-2xx reply back onto the shared sentinel errors.
func classifyStatus(resp *http.Response) error {
	var body api.ErrorResponse
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrValidation, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrVersionConflict, msg)
	default:
		return fmt.Errorf("%w: %s", common.ErrInternal, msg)
	}
}
