package oauth

import (
	"time"
)

// Mode identifies which kind of client initiated a login attempt. The mode
// is recorded when the attempt is created and read back from the consumed
// state in the callback, so callback handling never has to guess the client
// type from the request itself.
type Mode string

const (
	// ModeCLI is a command-line login: the CLI receives the authorization
	// URL and login id as data, opens a browser, and polls for the token.
	ModeCLI Mode = "cli"

	// ModeBrowser is a web UI login: the server redirects the browser to
	// the IdP and delivers the token as a session cookie.
	ModeBrowser Mode = "browser"

	// ModePasscode is the legacy hand-off: after the exchange the browser
	// is redirected to a third-party callback URL carrying a one-time
	// passcode which the CLI redeems.
	ModePasscode Mode = "passcode"
)

// Development stand-in credentials, returned when OIDC is administratively
// disabled. They short-circuit the flow before any network call.
const (
	DevLoginID = "dev"
	DevToken   = "hive-dev-token"
)

// SessionCookieName is the cookie carrying the session credential for
// browser clients. The request authentication gate reads the same name.
const SessionCookieName = "hive-platform"

// PendingLogin is the server-side record of an initiated login attempt.
// It lives in the state store from login initiation until the IdP callback
// consumes it (or it expires).
type PendingLogin struct {
	// ID is the correlation id for this attempt. It doubles as the OAuth
	// state parameter, binding the callback to this record.
	ID string

	// CodeVerifier is the PKCE verifier generated at initiation.
	CodeVerifier string

	// Mode is the client type that initiated the attempt.
	Mode Mode

	// CallbackURL is the third-party callback target (passcode mode only).
	CallbackURL string

	// CreatedAt is when the attempt was initiated, for expiry.
	CreatedAt time.Time
}

// LoginResponse is the JSON body returned to CLI-mode login initiation.
// LoginURL is null when OIDC is disabled and the fixed development
// credential applies.
type LoginResponse struct {
	LoginURL *string `json:"login_url"`
	LoginID  string  `json:"login_id"`
}

// TokenResponse is the JSON body returned by the token poll endpoints.
type TokenResponse struct {
	Token string `json:"token"`
}

// ProviderMetadata is the subset of the IdP's discovery document the
// handshake needs.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JwksURI               string `json:"jwks_uri,omitempty"`
}

// ProtectedResourceMetadata describes this server as an OAuth protected
// resource (RFC 9728), served at /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	BearerMethods        []string `json:"bearer_methods_supported,omitempty"`
}
