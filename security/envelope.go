package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	envelopePrefix = "customerauth.secret.v1:"
	gcmNonceBytes  = 16
	gcmTagBytes    = 16
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Encrypt seals plaintext under AES-256-GCM with a fresh random 128-bit
// nonce. The authentication tag travels as its own envelope field so tamper
// detection covers every component independently.
func (e *KeyEngine) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("security: key engine is nil")
	}
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < gcmTagBytes {
		return nil, fmt.Errorf("security: sealed payload shorter than tag")
	}
	split := len(sealed) - gcmTagBytes

	data, err := json.Marshal(envelope{
		KeyID:      e.keyID,
		Version:    e.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		Tag:        base64.StdEncoding.EncodeToString(sealed[split:]),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}

	prefixed := append([]byte(envelopePrefix), data...)
	return prefixed, nil
}

// Decrypt opens an envelope produced by Encrypt. Any alteration of nonce,
// ciphertext, or tag fails authentication and yields no plaintext.
func (e *KeyEngine) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("security: key engine is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	payload := string(ciphertext)
	if strings.HasPrefix(payload, envelopePrefix) {
		payload = strings.TrimPrefix(payload, envelopePrefix)
	}

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.KeyID != "" && parsed.KeyID != e.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, e.keyID)
	}
	if parsed.Version > 0 && parsed.Version != e.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, e.version)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	body, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(parsed.Tag)
	if err != nil {
		return nil, fmt.Errorf("security: decode tag: %w", err)
	}
	if len(tag) != gcmTagBytes {
		return nil, fmt.Errorf("security: tag length %d is invalid", len(tag))
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcmNonceBytes {
		return nil, fmt.Errorf("security: nonce length %d is invalid", len(nonce))
	}

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (e *KeyEngine) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceBytes)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}
