package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"hive/internal/config"
	"hive/pkg/logging"
)

// metadataCacheTTL is the time-to-live for the cached discovery document.
const metadataCacheTTL = 30 * time.Minute

// idpHTTPTimeout bounds every network call to the IdP. Calls are not
// retried within the handshake; a failed exchange fails the login attempt.
const idpHTTPTimeout = 30 * time.Second

// IdentityClient abstracts the identity provider for the handshake
// orchestrator. Two variants exist: a real IdP-backed client and a
// development stand-in selected at construction when OIDC is disabled,
// so call sites never branch on "is OAuth configured".
type IdentityClient interface {
	// Enabled reports whether a real IdP is behind this client.
	Enabled() bool

	// AuthCodeURL builds the IdP authorization URL for a login attempt.
	AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error)

	// Exchange trades an authorization code for a bearer credential,
	// presenting the PKCE verifier. The returned value is the opaque
	// token delivered to clients (the ID token when present).
	Exchange(ctx context.Context, code, codeVerifier string) (string, error)
}

// NewIdentityClient selects the client variant from configuration.
func NewIdentityClient(cfg config.OIDCConfig, redirectURI string) IdentityClient {
	if cfg.Disabled {
		logging.Warn("OAuth", "OIDC is disabled: logins will receive the fixed development credential")
		return &devClient{}
	}
	return &idpClient{
		cfg:         cfg,
		redirectURI: redirectURI,
		httpClient:  &http.Client{Timeout: idpHTTPTimeout},
	}
}

// idpClient talks to a real identity provider. Endpoints are discovered
// from the issuer's well-known document and cached.
type idpClient struct {
	cfg         config.OIDCConfig
	redirectURI string
	httpClient  *http.Client

	metadataMu      sync.RWMutex
	metadata        *ProviderMetadata
	metadataFetched time.Time
	metadataGroup   singleflight.Group
}

func (c *idpClient) Enabled() bool { return true }

// AuthCodeURL builds the authorization URL embedding client id, redirect
// URI, scopes, the anti-CSRF state, and the S256 PKCE challenge.
func (c *idpClient) AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error) {
	oc, err := c.oauthConfig(ctx)
	if err != nil {
		return "", err
	}

	return oc.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// Exchange performs the code-for-token exchange at the IdP's token
// endpoint. The ID token is preferred as the session credential; the
// access token is the fallback for providers that do not return one.
func (c *idpClient) Exchange(ctx context.Context, code, codeVerifier string) (string, error) {
	oc, err := c.oauthConfig(ctx)
	if err != nil {
		return "", err
	}

	// Route the exchange through our timeout-bounded HTTP client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := oc.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		return idToken, nil
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response contained no usable credential")
	}
	return token.AccessToken, nil
}

// oauthConfig assembles the oauth2 configuration from discovered metadata.
func (c *idpClient) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	metadata, err := c.fetchMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provider metadata: %w", err)
	}

	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.redirectURI,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  metadata.AuthorizationEndpoint,
			TokenURL: metadata.TokenEndpoint,
		},
	}, nil
}

// fetchMetadata returns the discovery document, from cache when fresh.
// Concurrent fetches for an expired cache are deduplicated.
func (c *idpClient) fetchMetadata(ctx context.Context) (*ProviderMetadata, error) {
	c.metadataMu.RLock()
	if c.metadata != nil && time.Since(c.metadataFetched) < metadataCacheTTL {
		md := c.metadata
		c.metadataMu.RUnlock()
		return md, nil
	}
	c.metadataMu.RUnlock()

	result, err, _ := c.metadataGroup.Do("metadata", func() (interface{}, error) {
		// Double-check after acquiring the singleflight slot.
		c.metadataMu.RLock()
		if c.metadata != nil && time.Since(c.metadataFetched) < metadataCacheTTL {
			md := c.metadata
			c.metadataMu.RUnlock()
			return md, nil
		}
		c.metadataMu.RUnlock()

		return c.doFetchMetadata(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*ProviderMetadata), nil
}

// doFetchMetadata performs the actual discovery fetch. The OpenID Connect
// document is tried first, with the plain OAuth metadata endpoint as a
// fallback.
func (c *idpClient) doFetchMetadata(ctx context.Context) (*ProviderMetadata, error) {
	issuer := strings.TrimSuffix(c.cfg.Issuer, "/")

	metadata, err := c.getMetadata(ctx, issuer+"/.well-known/openid-configuration")
	if err != nil {
		logging.Debug("OAuth", "OIDC discovery failed, trying oauth-authorization-server: %v", err)
		metadata, err = c.getMetadata(ctx, issuer+"/.well-known/oauth-authorization-server")
		if err != nil {
			return nil, err
		}
	}

	c.metadataMu.Lock()
	c.metadata = metadata
	c.metadataFetched = time.Now()
	c.metadataMu.Unlock()

	logging.Debug("OAuth", "Fetched provider metadata (auth=%s, token=%s)",
		metadata.AuthorizationEndpoint, metadata.TokenEndpoint)

	return metadata, nil
}

func (c *idpClient) getMetadata(ctx context.Context, wellKnownURL string) (*ProviderMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned status %d", resp.StatusCode)
	}

	var metadata ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse provider metadata: %w", err)
	}

	if metadata.AuthorizationEndpoint == "" || metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("provider metadata is missing required endpoints")
	}

	return &metadata, nil
}

// devClient is the development stand-in used when OIDC is disabled.
// It never performs network calls; login initiation short-circuits to the
// fixed development credential before any of these methods are reached.
type devClient struct{}

func (d *devClient) Enabled() bool { return false }

func (d *devClient) AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error) {
	return "", fmt.Errorf("OIDC is disabled")
}

func (d *devClient) Exchange(ctx context.Context, code, codeVerifier string) (string, error) {
	return "", fmt.Errorf("OIDC is disabled")
}
