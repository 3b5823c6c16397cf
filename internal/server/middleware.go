package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hive/internal/config"
	"hive/internal/oauth"
	"hive/internal/token"
	"hive/internal/user"
	"hive/pkg/logging"
)

// AdminEmail is the built-in identity used when authentication is
// administratively disabled.
const AdminEmail = "admin@hive.dev"

// DevEmail is the identity behind the fixed development token issued when
// OIDC is disabled.
const DevEmail = "dev@hive.dev"

// exemptPaths are reachable without a credential: the health probe, the
// whole login handshake surface, and the protected-resource metadata. Kept
// as an explicit allow-list so adding a route never silently opens it.
var exemptPaths = map[string]bool{
	"/healthcheck":                          true,
	"/api/v1/login":                         true,
	"/api/v1/auth/callback":                 true,
	"/api/v1/cli-complete":                  true,
	"/api/v1/cli/token":                     true,
	"/api/v1/token":                         true,
	"/api/v1/display-passcode":              true,
	"/.well-known/oauth-protected-resource": true,
}

// Gate authenticates every non-exempt request. Each request revalidates
// its credential from scratch: there is no session cache to go stale after
// expiry or key rotation.
type Gate struct {
	users  *user.Store
	admins map[string]bool

	// verifier is nil when OIDC is disabled; the fixed development token
	// is then the only accepted credential.
	verifier *token.Verifier

	// authDisabled short-circuits the gate to the built-in admin.
	authDisabled bool
}

// NewGate creates the request authentication gate. Both bypasses are
// decided here, once, from explicit configuration, and announced loudly.
func NewGate(cfg *config.Config, verifier *token.Verifier, users *user.Store) *Gate {
	if cfg.Auth.Disabled {
		logging.Warn("Auth", "Authentication is DISABLED: every request runs as the built-in admin")
	}

	admins := make(map[string]bool, len(cfg.Auth.AdminEmails))
	for _, email := range cfg.Auth.AdminEmails {
		admins[strings.ToLower(email)] = true
	}

	return &Gate{
		users:        users,
		admins:       admins,
		verifier:     verifier,
		authDisabled: cfg.Auth.Disabled,
	}
}

// Middleware enforces the gate. Exempt paths pass through without an
// identity; everything else gets a verified identity attached or a 401.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := g.authenticate(r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// authenticate resolves the request's identity.
func (g *Gate) authenticate(r *http.Request) (*Identity, error) {
	if g.authDisabled {
		return g.identityFor(r.Context(), AdminEmail, "")
	}

	rawToken, err := extractToken(r)
	if err != nil {
		return nil, err
	}

	if g.verifier == nil {
		// OIDC is disabled: the fixed development credential is the only
		// token that exists.
		if rawToken != oauth.DevToken {
			return nil, errors.New("invalid token")
		}
		return g.identityFor(r.Context(), DevEmail, "")
	}

	claims, err := g.verifier.Verify(r.Context(), rawToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return nil, errors.New("token has expired")
		case errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrNoMatchingKey):
			return nil, errors.New("invalid token")
		default:
			logging.Error("Auth", err, "Token verification failed")
			return nil, errors.New("authentication failed")
		}
	}

	if claims.Email == "" {
		return nil, errors.New("token carries no email claim")
	}

	return g.identityFor(r.Context(), claims.Email, claims.ContextID)
}

// identityFor resolves (creating on first sight) the user behind a
// verified email and expands its permissions. Admin-listed emails are
// created as admins; existing records keep their role.
func (g *Gate) identityFor(ctx context.Context, email, tokenContextID string) (*Identity, error) {
	role := user.RoleUser
	if email == AdminEmail || email == DevEmail || g.admins[strings.ToLower(email)] {
		role = user.RoleAdmin
	}

	u, err := g.users.GetOrCreate(ctx, email, role)
	if err != nil {
		logging.Error("Auth", err, "Failed to resolve user %s", email)
		return nil, errors.New("authentication failed")
	}

	return &Identity{
		User:           u,
		Permissions:    user.Permissions(u.Role),
		TokenContextID: tokenContextID,
	}, nil
}

// extractToken pulls the credential off the request. The Authorization
// header wins over the cookie; a present-but-malformed header is a hard
// 401, never a silent fallthrough to the cookie.
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		// Scheme matching is case-insensitive; anything other than exactly
		// "bearer <token>" is rejected.
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("malformed Authorization header")
		}
		return parts[1], nil
	}

	cookie, err := r.Cookie(oauth.SessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", errors.New("missing authentication token")
}

// RequirePermission guards a route with a permission check. Failing it is
// a 403: the caller is known, just not allowed.
func RequirePermission(perm user.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if identity == nil || !identity.HasPermission(perm) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireContext guards context-addressed routes against tokens minted for
// a different context. Unscoped tokens pass; a scoped token only reaches
// the context it was issued for. param names the chi URL parameter holding
// the addressed context id.
func RequireContext(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if identity == nil {
				writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			requested := chi.URLParam(r, param)
			if identity.TokenContextID != "" && identity.TokenContextID != requested {
				logging.Warn("Auth", "Token scoped to context %s used against context %s", identity.TokenContextID, requested)
				writeJSONError(w, http.StatusForbidden, "token is scoped to a different context")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
