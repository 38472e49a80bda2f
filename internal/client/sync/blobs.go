package sync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/api"
)

// BlobTransport moves attachment blobs between the client and object
// storage. The server only brokers presigned URLs; blob bytes never pass
// through it.
type BlobTransport interface {
	CreateBlob(ctx context.Context) (*api.PresignResponse, error)
	BlobURL(ctx context.Context, key string) (*api.PresignResponse, error)
	UploadToPresignedURL(ctx context.Context, url string, blob []byte) error
}

// CreateBlob asks the server for a storage key and a presigned PUT URL for a
// new attachment blob.
func (c *APIClient) CreateBlob(ctx context.Context) (*api.PresignResponse, error) {
	var resp api.PresignResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/blobs", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BlobURL fetches a presigned GET URL for an existing blob key.
func (c *APIClient) BlobURL(ctx context.Context, key string) (*api.PresignResponse, error) {
	var resp api.PresignResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/blobs/"+key, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadToPresignedURL PUTs an encrypted blob directly to object storage.
// The URL embeds its own authorization, so no token header is sent.
func (c *APIClient) UploadToPresignedURL(ctx context.Context, url string, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed: %s", resp.Status)
	}
	return nil
}
