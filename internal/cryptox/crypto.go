// Package cryptox seals mail-data records into the opaque encrypted payloads
// moved by the sync engine. Encryption happens strictly on the client; the
// server only ever stores and verifies ciphertext plus its checksum.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/argon2"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/common"
)

// DeriveMasterKey derives a 32-byte AES key from a password and salt using
// argon2id. The same parameters must be used on every device of a user.
func DeriveMasterKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// SealRecord serializes v to JSON and encrypts it with AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each call; ciphertext and nonce are returned
// separately because the server stores them as distinct columns.
func SealRecord(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// OpenRecord decrypts ciphertext produced by SealRecord and unmarshals the
// resulting JSON into v. The key and nonce must match the sealing call.
func OpenRecord(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}

// Checksum returns the hex-encoded SHA-256 digest of the (encrypted) payload.
// The server recomputes it at ingest to reject corrupted uploads.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether want is the checksum of payload.
func VerifyChecksum(payload []byte, want string) bool {
	return Checksum(payload) == want
}
