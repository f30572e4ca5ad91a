package security

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-customer-auth/core"
)

const masterKeyBytes = 32

type Option func(*KeyEngine)

// KeyEngine is the process-wide secret provider. It owns the singleton
// master key, loading it from the key store on first use and provisioning it
// exactly once when absent.
type KeyEngine struct {
	key     []byte
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(engine *KeyEngine) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			engine.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(engine *KeyEngine) {
		if version > 0 {
			engine.version = version
		}
	}
}

// NewKeyEngine loads the master key from the store, creating it on first
// run, then proves the key usable with an encrypt/decrypt self test. A
// failed self test rejects construction; the process must not continue with
// a key that cannot round-trip.
func NewKeyEngine(ctx context.Context, store core.MasterKeyStore, opts ...Option) (*KeyEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("security: master key store is required")
	}

	record, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("security: load master key: %w", err)
	}
	if !found {
		material := make([]byte, masterKeyBytes)
		if _, err := io.ReadFull(rand.Reader, material); err != nil {
			return nil, fmt.Errorf("security: master key generation failed: %w", err)
		}
		record, err = store.Create(ctx, core.MasterKeyRecord{
			ID:          core.MasterKeyID,
			KeyMaterial: material,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("security: provision master key: %w", err)
		}
	}

	engine, err := NewKeyEngineFromKey(record.KeyMaterial, opts...)
	if err != nil {
		return nil, err
	}
	if err := engine.selfTest(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

// NewKeyEngineFromKey builds an engine around caller-supplied key material.
// Material that is not a valid AES key length is hashed down to 32 bytes.
func NewKeyEngineFromKey(keyMaterial []byte, opts ...Option) (*KeyEngine, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	engine := &KeyEngine{
		key:     normalizeKey(key),
		keyID:   core.MasterKeyID,
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(engine)
	}
	return engine, nil
}

func (e *KeyEngine) selfTest(ctx context.Context) error {
	sample := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, sample); err != nil {
		return fmt.Errorf("security: self test sample generation failed: %w", err)
	}
	sealed, err := e.Encrypt(ctx, sample)
	if err != nil {
		return fmt.Errorf("security: self test encrypt failed: %w", err)
	}
	opened, err := e.Decrypt(ctx, sealed)
	if err != nil {
		return fmt.Errorf("security: self test decrypt failed: %w", err)
	}
	if !bytes.Equal(sample, opened) {
		return fmt.Errorf("security: self test round trip mismatch")
	}
	return nil
}

func (e *KeyEngine) KeyID() string {
	if e == nil {
		return ""
	}
	return e.keyID
}

func (e *KeyEngine) Version() int {
	if e == nil {
		return 0
	}
	return e.version
}

func (e *KeyEngine) Metadata() (string, int) {
	return e.KeyID(), e.Version()
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*KeyEngine)(nil)
