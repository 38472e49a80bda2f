package client

import (
	"context"
	"fmt"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/repositories/records"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/client/sync"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
	"github.com/owlivion-tech/owlivion-mail-sync/internal/cryptox"
)

// Vault is the local-edit entry point: it seals plaintext mail-data records
// with the user's master key and hands the ciphertext to the sync service.
// Everything past this boundary only ever sees encrypted payloads.
type Vault struct {
	service *sync.Service
	records records.Repository
	blobs   sync.BlobTransport
	key     []byte
}

func NewVault(service *sync.Service, r records.Repository, blobs sync.BlobTransport, password, salt []byte) *Vault {
	return &Vault{
		service: service,
		records: r,
		blobs:   blobs,
		key:     cryptox.DeriveMasterKey(password, salt),
	}
}

// Close wipes the master key from memory. The vault is unusable afterwards.
func (v *Vault) Close() {
	common.WipeByteArray(v.key)
	v.key = nil
}

// Save seals value and queues it for upload. An empty id creates a new
// record with a generated identifier; the final id is returned.
func (v *Vault) Save(ctx context.Context, dataType, id string, value any) (string, error) {
	if id == "" {
		var err error
		id, err = common.MakeRandHexString(16)
		if err != nil {
			return "", fmt.Errorf("failed to generate record id: %w", err)
		}
	}

	ciphertext, nonce, err := cryptox.SealRecord(value, v.key)
	if err != nil {
		return "", fmt.Errorf("failed to seal record: %w", err)
	}

	if err := v.service.QueueUpload(ctx, dataType, id, ciphertext, nonce); err != nil {
		return "", err
	}
	return id, nil
}

// Get reads a record from the replica and decrypts it into out.
func (v *Vault) Get(ctx context.Context, dataType, id string, out any) error {
	rec, err := v.records.GetByID(ctx, dataType, id)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return common.ErrNotFound
	}
	return cryptox.OpenRecord(rec.Payload, rec.Nonce, v.key, out)
}

// Delete queues a deletion for the record.
func (v *Vault) Delete(ctx context.Context, dataType, id string) error {
	return v.service.QueueDelete(ctx, dataType, id)
}

// SaveAttachment seals data and uploads it straight to object storage via a
// presigned URL. The stored blob is nonce||ciphertext, so the returned key
// is all a record needs to reference it.
func (v *Vault) SaveAttachment(ctx context.Context, data []byte) (string, error) {
	ciphertext, nonce, err := cryptox.SealRecord(data, v.key)
	if err != nil {
		return "", fmt.Errorf("failed to seal attachment: %w", err)
	}

	presign, err := v.blobs.CreateBlob(ctx)
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	if err := v.blobs.UploadToPresignedURL(ctx, presign.URL, blob); err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return presign.Key, nil
}

// AttachmentURL fetches a presigned download URL for a stored attachment.
func (v *Vault) AttachmentURL(ctx context.Context, key string) (string, error) {
	presign, err := v.blobs.BlobURL(ctx, key)
	if err != nil {
		return "", err
	}
	return presign.URL, nil
}
