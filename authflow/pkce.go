package authflow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const verifierBytes = 32

type pkcePair struct {
	verifier  string
	challenge string
}

// newPKCEPair draws a fresh random verifier and derives its S256 challenge.
// Both values are base64url without padding, per RFC 7636.
func newPKCEPair() (pkcePair, error) {
	raw := make([]byte, verifierBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return pkcePair{}, fmt.Errorf("authflow: verifier generation failed: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return pkcePair{
		verifier:  verifier,
		challenge: challengeFromVerifier(verifier),
	}, nil
}

func challengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newStateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("authflow: state generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
