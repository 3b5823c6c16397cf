package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCE(t *testing.T) {
	verifier, challenge, err := GeneratePKCE()
	require.NoError(t, err)

	assert.NotEmpty(t, verifier)
	assert.NotEmpty(t, challenge)
	assert.NotEqual(t, verifier, challenge)

	// Challenge must be the S256 hash of the verifier, base64url, no padding.
	hash := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	assert.Equal(t, expected, challenge)

	assert.False(t, strings.ContainsAny(verifier, "+/="))
	assert.False(t, strings.ContainsAny(challenge, "+/="))
}

func TestGeneratePKCEUnique(t *testing.T) {
	v1, c1, err := GeneratePKCE()
	require.NoError(t, err)
	v2, c2, err := GeneratePKCE()
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, c1, c2)
}

func TestGenerateLoginID(t *testing.T) {
	id, err := GenerateLoginID()
	require.NoError(t, err)

	// 32 bytes encode to 43 base64url characters.
	assert.Len(t, id, 43)
	assert.False(t, strings.ContainsAny(id, "+/="))

	id2, err := GenerateLoginID()
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestGeneratePasscode(t *testing.T) {
	code, err := GeneratePasscode()
	require.NoError(t, err)

	assert.Len(t, code, PasscodeLength)
	for _, r := range code {
		assert.Contains(t, passcodeAlphabet, string(r))
	}

	// Ambiguous characters are excluded from the alphabet.
	assert.False(t, strings.ContainsAny(code, "0O1lI"))

	code2, err := GeneratePasscode()
	require.NoError(t, err)
	assert.NotEqual(t, code, code2)
}
