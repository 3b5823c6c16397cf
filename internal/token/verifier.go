package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"hive/pkg/logging"
)

// clockSkew is the leeway granted when comparing time claims.
const clockSkew = 30 * time.Second

// Verification outcomes. Callers must not grant access on anything but
// success; the distinct failure values exist for logging and for mapping
// to HTTP status codes.
var (
	// ErrTokenExpired means at least one key verified the signature but
	// the token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid means the token is malformed or its claims failed
	// validation under every candidate key.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrNoMatchingKey means no key in the provider's set verified the
	// token signature.
	ErrNoMatchingKey = errors.New("no key verified the token signature")
)

// result classifies a single verification attempt against one key.
type result int

const (
	resultOK result = iota
	resultExpired
	resultInvalid
	resultWrongKey
)

// Claims is the verified identity extracted from a token.
type Claims struct {
	Subject string
	Email   string
	Name    string

	// ContextID scopes a token to a single context when the IdP issued it
	// that way. Empty means unscoped.
	ContextID string
}

// Verifier validates bearer tokens against the identity provider's signing
// keys. Verification is stateless: every call re-checks signature and
// claims from scratch, so key rotation and expiry take effect immediately.
type Verifier struct {
	keys     KeyProvider
	audience string
	now      func() time.Time
}

// NewVerifier creates a verifier. audience, when non-empty, must appear in
// the token's aud claim.
func NewVerifier(keys KeyProvider, audience string) *Verifier {
	return &Verifier{
		keys:     keys,
		audience: audience,
		now:      time.Now,
	}
}

// Verify checks the raw token against every key in the current set; the
// first key that fully validates it wins. A signature mismatch on one key
// is not fatal (the set may hold rotated keys), but exhausting the set
// fails closed. Expiry under a verifying key is reported as expired rather
// than as a generic failure.
//
// Time claims checked are exp and iat. nbf is deliberately not enforced:
// providers emit iat-only tokens and clock skew on nbf locks users out of
// freshly issued sessions.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}
	if set.Len() == 0 {
		return nil, ErrNoMatchingKey
	}

	sawExpired := false
	sawInvalid := false

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}

		claims, res := v.verifyWithKey(rawToken, key)
		switch res {
		case resultOK:
			return claims, nil
		case resultExpired:
			sawExpired = true
		case resultInvalid:
			sawInvalid = true
		case resultWrongKey:
			// Try the next key.
		}
	}

	switch {
	case sawExpired:
		return nil, ErrTokenExpired
	case sawInvalid:
		return nil, ErrTokenInvalid
	default:
		logging.Debug("Auth", "Token signature matched none of %d keys", set.Len())
		return nil, ErrNoMatchingKey
	}
}

// verifyWithKey attempts signature and claim validation under one key.
func (v *Verifier) verifyWithKey(rawToken string, key jwk.Key) (*Claims, result) {
	var pubKey interface{}
	if err := key.Raw(&pubKey); err != nil {
		return nil, resultWrongKey
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims,
		func(*jwt.Token) (interface{}, error) { return pubKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		// Claim validation is done by hand below so nbf stays unchecked.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, resultWrongKey
		}
		return nil, resultInvalid
	}

	now := v.now()

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		// A session credential without expiry is not acceptable.
		return nil, resultInvalid
	}
	if now.After(exp.Time.Add(clockSkew)) {
		return nil, resultExpired
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, resultInvalid
	}
	if iat != nil && iat.Time.After(now.Add(clockSkew)) {
		return nil, resultInvalid
	}

	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !containsAudience(aud, v.audience) {
			return nil, resultInvalid
		}
	}

	return extractClaims(claims), resultOK
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// extractClaims pulls the identity fields out of the validated claims.
func extractClaims(claims jwt.MapClaims) *Claims {
	out := &Claims{}
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		out.Name = name
	} else if name, ok := claims["preferred_username"].(string); ok {
		out.Name = name
	}
	if contextID, ok := claims["context_id"].(string); ok {
		out.ContextID = contextID
	}
	return out
}
