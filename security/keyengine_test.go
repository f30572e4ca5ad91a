package security

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-customer-auth/core"
)

type memoryMasterKeyStore struct {
	record      core.MasterKeyRecord
	hasRecord   bool
	loadCalls   int
	createCalls int
}

func (s *memoryMasterKeyStore) Load(context.Context) (core.MasterKeyRecord, bool, error) {
	s.loadCalls++
	return s.record, s.hasRecord, nil
}

func (s *memoryMasterKeyStore) Create(_ context.Context, record core.MasterKeyRecord) (core.MasterKeyRecord, error) {
	s.createCalls++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.record = record
	s.hasRecord = true
	return record, nil
}

func TestKeyEngineRoundTrip(t *testing.T) {
	engine, err := NewKeyEngineFromKey([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKeyEngineFromKey failed: %v", err)
	}

	plaintext := []byte("refresh-token-secret")
	sealed, err := engine.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !strings.HasPrefix(string(sealed), envelopePrefix) {
		t.Fatalf("expected envelope prefix, got %q", sealed)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("plaintext leaked into envelope")
	}

	opened, err := engine.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestKeyEngineEncryptProducesUniqueNonces(t *testing.T) {
	engine, err := NewKeyEngineFromKey([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKeyEngineFromKey failed: %v", err)
	}

	first, err := engine.Encrypt(context.Background(), []byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := engine.Encrypt(context.Background(), []byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct envelopes for repeated plaintext")
	}

	var parsed envelope
	if err := json.Unmarshal(bytes.TrimPrefix(first, []byte(envelopePrefix)), &parsed); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	if len(nonce) != 16 {
		t.Fatalf("expected 128-bit nonce, got %d bytes", len(nonce))
	}
}

func TestKeyEngineDecryptFailsClosedOnTamper(t *testing.T) {
	engine, err := NewKeyEngineFromKey([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKeyEngineFromKey failed: %v", err)
	}
	sealed, err := engine.Encrypt(context.Background(), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	flipField := func(t *testing.T, field string) []byte {
		t.Helper()
		var parsed envelope
		if err := json.Unmarshal(bytes.TrimPrefix(sealed, []byte(envelopePrefix)), &parsed); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		var value *string
		switch field {
		case "nonce":
			value = &parsed.Nonce
		case "ciphertext":
			value = &parsed.Ciphertext
		case "tag":
			value = &parsed.Tag
		}
		raw, err := base64.StdEncoding.DecodeString(*value)
		if err != nil {
			t.Fatalf("decode %s: %v", field, err)
		}
		raw[0] ^= 0x01
		*value = base64.StdEncoding.EncodeToString(raw)
		data, err := json.Marshal(parsed)
		if err != nil {
			t.Fatalf("encode envelope: %v", err)
		}
		return append([]byte(envelopePrefix), data...)
	}

	for _, field := range []string{"nonce", "ciphertext", "tag"} {
		tampered := flipField(t, field)
		if _, err := engine.Decrypt(context.Background(), tampered); err == nil {
			t.Fatalf("expected decrypt failure after %s tamper", field)
		}
	}
}

func TestNewKeyEngineProvisionsMasterKeyOnce(t *testing.T) {
	store := &memoryMasterKeyStore{}

	first, err := NewKeyEngine(context.Background(), store)
	if err != nil {
		t.Fatalf("NewKeyEngine failed: %v", err)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected one create, got %d", store.createCalls)
	}
	if len(store.record.KeyMaterial) != masterKeyBytes {
		t.Fatalf("expected %d byte key, got %d", masterKeyBytes, len(store.record.KeyMaterial))
	}

	second, err := NewKeyEngine(context.Background(), store)
	if err != nil {
		t.Fatalf("NewKeyEngine on existing key failed: %v", err)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected the stored key to be reused, create calls = %d", store.createCalls)
	}

	sealed, err := first.Encrypt(context.Background(), []byte("shared secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	opened, err := second.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("expected second engine to open first engine's envelope: %v", err)
	}
	if string(opened) != "shared secret" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
}

func TestNewKeyEngineFromKeyRejectsEmptyMaterial(t *testing.T) {
	if _, err := NewKeyEngineFromKey(nil); err == nil {
		t.Fatalf("expected error for empty key material")
	}
	if _, err := NewKeyEngineFromKey([]byte("   ")); err == nil {
		t.Fatalf("expected error for blank key material")
	}
}

func TestKeyEngineRejectsForeignKeyID(t *testing.T) {
	engine, err := NewKeyEngineFromKey([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKeyEngineFromKey failed: %v", err)
	}
	other, err := NewKeyEngineFromKey([]byte("0123456789abcdef0123456789abcdef"), WithKeyID("rotated"))
	if err != nil {
		t.Fatalf("NewKeyEngineFromKey failed: %v", err)
	}

	sealed, err := other.Encrypt(context.Background(), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := engine.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected key id mismatch to be rejected")
	}
}
