package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes provides 256 bits of entropy.
	pkceVerifierBytes = 32

	// loginIDBytes is the number of random bytes for a login id. 32 bytes
	// encodes to 43 base64url characters and comfortably exceeds the
	// 128-bit minimum for an unguessable correlation id.
	loginIDBytes = 32
)

// GeneratePKCE generates a PKCE code verifier and its S256 challenge.
// Both are base64url-encoded without padding.
func GeneratePKCE() (verifier, challenge string, err error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier = base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	return verifier, challenge, nil
}

// GenerateLoginID generates a fresh correlation id for a login attempt.
// The id doubles as the OAuth state parameter.
func GenerateLoginID() (string, error) {
	idBytes := make([]byte, loginIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate login id: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(idBytes), nil
}
