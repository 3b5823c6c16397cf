package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTokenPending is returned by token polls while the login has not
// completed yet. Callers keep polling on it.
var ErrTokenPending = errors.New("token not ready yet")

// ErrUnauthorized is returned when the platform rejects the credential.
var ErrUnauthorized = errors.New("credential rejected")

// loginResponse mirrors the login initiation body. A null login_url means
// the server runs with OIDC disabled and the development credential
// applies.
type loginResponse struct {
	LoginURL *string `json:"login_url"`
	LoginID  string  `json:"login_id"`
}

// tokenResponse mirrors the token poll body.
type tokenResponse struct {
	Token string `json:"token"`
}

// UserInfo is the caller's user record as returned by the platform.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// API is the HTTP client for the platform's auth surface.
type API struct {
	endpoint   string
	httpClient *http.Client
}

// NewAPI creates a platform client for the given base endpoint.
func NewAPI(endpoint string) *API {
	return &API{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Endpoint returns the configured platform base URL.
func (a *API) Endpoint() string {
	return a.endpoint
}

// InitiateLogin starts a CLI login attempt.
func (a *API) InitiateLogin(ctx context.Context) (*loginResponse, error) {
	var resp loginResponse
	if err := a.getJSON(ctx, "/api/v1/login?cli=true", "", &resp); err != nil {
		return nil, fmt.Errorf("failed to initiate login: %w", err)
	}
	return &resp, nil
}

// PollToken asks for the pending token once. ErrTokenPending means the
// login has not completed; anything delivered is delivered exactly once.
func (a *API) PollToken(ctx context.Context, loginID string) (string, error) {
	var resp tokenResponse
	err := a.getJSON(ctx, "/api/v1/cli/token?login_id="+url.QueryEscape(loginID), "", &resp)
	if errors.Is(err, errNotFound) {
		return "", ErrTokenPending
	}
	if err != nil {
		return "", fmt.Errorf("token poll failed: %w", err)
	}
	return resp.Token, nil
}

// RedeemPasscode trades a one-time passcode for its token.
func (a *API) RedeemPasscode(ctx context.Context, passcode string) (string, error) {
	var resp tokenResponse
	err := a.getJSON(ctx, "/api/v1/token?passcode="+url.QueryEscape(passcode), "", &resp)
	if errors.Is(err, errNotFound) {
		return "", ErrTokenPending
	}
	if err != nil {
		return "", fmt.Errorf("passcode redemption failed: %w", err)
	}
	return resp.Token, nil
}

// Me fetches the authenticated user's record, verifying the credential
// server-side.
func (a *API) Me(ctx context.Context, token string) (*UserInfo, error) {
	var info UserInfo
	if err := a.getJSON(ctx, "/api/v1/me", token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// errNotFound marks a 404 response internally.
var errNotFound = errors.New("not found")

func (a *API) getJSON(ctx context.Context, path, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return errNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
