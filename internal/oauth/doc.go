// Package oauth implements the server side of the hive login handshake:
// an OAuth 2 authorization-code flow with PKCE against an external OpenID
// Connect identity provider, plus the registries that relay the resulting
// credential back to the client that started the attempt.
//
// # Flow
//
// A login attempt moves through a small state machine:
//
//	INITIATED          login creates a PendingLogin in the StateStore;
//	                   the attempt's correlation id is the OAuth state
//	CALLBACK_RECEIVED  the IdP redirects back; the state is consumed
//	                   (one-shot) and the code exchanged for a token
//	TOKEN_READY        the token sits in the TokenRegistry (CLI mode),
//	                   a session cookie (browser mode), or the
//	                   PasscodeStore (passcode mode)
//	DELIVERED          the poll endpoint pops the token; or
//	EXPIRED            the TTL elapses first; or
//	REJECTED           unknown/replayed state or a failed exchange
//
// Both registries are mutex-guarded maps with background expiry sweeps.
// Read-then-remove on a single entry is atomic, so a token is never
// delivered twice and racing polls produce exactly one winner.
//
// # Development bypass
//
// When OIDC is administratively disabled the IdentityClient is a no-op
// variant and login short-circuits to a fixed development credential
// before any network call. The bypass is selected once at construction
// and logged loudly; no call site branches on "is OAuth configured".
package oauth
