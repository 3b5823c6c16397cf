package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"hive/pkg/logging"
)

// jwksHTTPTimeout bounds JWKS fetches against the identity provider.
const jwksHTTPTimeout = 30 * time.Second

// KeyProvider supplies the signing keys used to verify tokens.
type KeyProvider interface {
	// Keys returns the current key set. Implementations refresh in the
	// background; a returned set may be cached but is never silently empty
	// on fetch failure.
	Keys(ctx context.Context) (jwk.Set, error)
}

// cachedKeyProvider backs KeyProvider with a jwk.Cache that auto-refreshes
// the provider's JWKS endpoint.
type cachedKeyProvider struct {
	cache   *jwk.Cache
	jwksURL string
}

// NewKeyProvider creates a key provider for the given JWKS endpoint. The
// initial fetch happens here: an unreachable or malformed endpoint is a
// startup error, not a silently empty key set.
func NewKeyProvider(ctx context.Context, jwksURL string) (KeyProvider, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("JWKS URL is empty")
	}

	client := &http.Client{Timeout: jwksHTTPTimeout}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithHTTPClient(client)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS endpoint: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	logging.Debug("Auth", "JWKS cache primed from %s", jwksURL)

	return &cachedKeyProvider{cache: cache, jwksURL: jwksURL}, nil
}

func (p *cachedKeyProvider) Keys(ctx context.Context) (jwk.Set, error) {
	set, err := p.cache.Get(ctx, p.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS from cache: %w", err)
	}
	return set, nil
}

// StaticKeyProvider serves a fixed key set. Used in tests and for
// deployments that pin keys instead of discovering them.
type StaticKeyProvider struct {
	Set jwk.Set
}

func (p *StaticKeyProvider) Keys(ctx context.Context) (jwk.Set, error) {
	return p.Set, nil
}
