package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func newKeySet(t *testing.T, keys ...*rsa.PrivateKey) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for i, key := range keys {
		pub, err := jwk.FromRaw(&key.PublicKey)
		require.NoError(t, err)
		require.NoError(t, pub.Set(jwk.KeyIDKey, string(rune('a'+i))))
		require.NoError(t, set.AddKey(pub))
	}
	return set
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":   "user-123",
		"email": "dev@example.com",
		"name":  "Dev User",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestVerify(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	claims, err := v.Verify(context.Background(), signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "Dev User", claims.Name)
	assert.Empty(t, claims.ContextID)
}

func TestVerifyExpired(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	c := validClaims()
	c["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := v.Verify(context.Background(), signToken(t, key, c))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyUnknownKey(t *testing.T) {
	trusted := newSigningKey(t)
	rogue := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, trusted)}, "")

	_, err := v.Verify(context.Background(), signToken(t, rogue, validClaims()))
	assert.ErrorIs(t, err, ErrNoMatchingKey)
}

func TestVerifyRotatedKey(t *testing.T) {
	old := newSigningKey(t)
	current := newSigningKey(t)
	// Both keys stay in the set during rotation; a token signed with
	// either must verify.
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, old, current)}, "")

	for _, key := range []*rsa.PrivateKey{old, current} {
		claims, err := v.Verify(context.Background(), signToken(t, key, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject)
	}
}

func TestVerifyMissingExpiry(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	c := validClaims()
	delete(c, "exp")

	_, err := v.Verify(context.Background(), signToken(t, key, c))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyFutureIssuedAt(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	c := validClaims()
	c["iat"] = time.Now().Add(time.Hour).Unix()

	_, err := v.Verify(context.Background(), signToken(t, key, c))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyIgnoresNotBefore(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	// A future nbf must not reject the token; only exp and iat are
	// enforced.
	c := validClaims()
	c["nbf"] = time.Now().Add(time.Hour).Unix()

	_, err := v.Verify(context.Background(), signToken(t, key, c))
	assert.NoError(t, err)
}

func TestVerifyAudience(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "hive-client")

	c := validClaims()
	c["aud"] = []string{"other-client", "hive-client"}
	_, err := v.Verify(context.Background(), signToken(t, key, c))
	assert.NoError(t, err)

	c["aud"] = "other-client"
	_, err = v.Verify(context.Background(), signToken(t, key, c))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	delete(c, "aud")
	_, err = v.Verify(context.Background(), signToken(t, key, c))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyWrongAlgorithm(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.Error(t, err)
}

func TestVerifyMalformedToken(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	_, err := v.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyEmptyKeySet(t *testing.T) {
	v := NewVerifier(&StaticKeyProvider{Set: jwk.NewSet()}, "")

	key := newSigningKey(t)
	_, err := v.Verify(context.Background(), signToken(t, key, validClaims()))
	assert.ErrorIs(t, err, ErrNoMatchingKey)
}

func TestVerifyContextScopedToken(t *testing.T) {
	key := newSigningKey(t)
	v := NewVerifier(&StaticKeyProvider{Set: newKeySet(t, key)}, "")

	c := validClaims()
	c["context_id"] = "ctx-42"

	claims, err := v.Verify(context.Background(), signToken(t, key, c))
	require.NoError(t, err)
	assert.Equal(t, "ctx-42", claims.ContextID)
}
