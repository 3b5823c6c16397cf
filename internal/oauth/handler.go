package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hive/internal/config"
	"hive/pkg/logging"
)

// loginPath is where browsers land after a failed handshake. Handshake
// failures never surface IdP error details to the user.
const loginPath = "/login"

// Handler serves the login handshake endpoints: login initiation, the IdP
// callback, the CLI poll endpoint, and the passcode relay.
type Handler struct {
	idp       IdentityClient
	states    *StateStore
	tokens    *TokenRegistry
	passcodes PasscodeStore

	publicURL   string
	basePath    string
	issuer      string
	passcodeTTL time.Duration
}

// NewHandler creates the handshake handler. basePath is the URL prefix the
// handler's routes are mounted under (e.g. "/api/v1"), used to build
// redirect targets.
func NewHandler(cfg *config.Config, idp IdentityClient, states *StateStore, tokens *TokenRegistry, passcodes PasscodeStore, basePath string) *Handler {
	return &Handler{
		idp:         idp,
		states:      states,
		tokens:      tokens,
		passcodes:   passcodes,
		publicURL:   strings.TrimSuffix(cfg.Server.PublicURL, "/"),
		basePath:    basePath,
		issuer:      cfg.OIDC.Issuer,
		passcodeTTL: cfg.OIDC.PasscodeTTL,
	}
}

// RedirectURI returns the callback URL registered with the IdP.
func (h *Handler) RedirectURI() string {
	return h.publicURL + h.basePath + "/auth/callback"
}

// HandleLogin initiates a login attempt.
//
// CLI mode (?cli=true) returns JSON {login_url, login_id} so the CLI can
// open a browser and start polling. Passcode mode (?callback_url=...)
// redirects like browser mode but hands the token off via a one-time
// passcode appended to the callback URL. Plain browser mode redirects
// straight to the IdP.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	isCLI := r.URL.Query().Get("cli") == "true"
	callbackURL := r.URL.Query().Get("callback_url")

	if !h.idp.Enabled() {
		h.handleDevLogin(w, r, isCLI)
		return
	}

	mode := ModeBrowser
	switch {
	case isCLI:
		mode = ModeCLI
	case callbackURL != "":
		mode = ModePasscode
		if !strings.HasPrefix(callbackURL, "http://") && !strings.HasPrefix(callbackURL, "https://") {
			callbackURL = "https://" + callbackURL
		}
	}

	loginID, err := GenerateLoginID()
	if err != nil {
		h.loginError(w, isCLI, err)
		return
	}

	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		h.loginError(w, isCLI, err)
		return
	}

	authURL, err := h.idp.AuthCodeURL(r.Context(), loginID, challenge)
	if err != nil {
		h.loginError(w, isCLI, err)
		return
	}

	h.states.Put(&PendingLogin{
		ID:           loginID,
		CodeVerifier: verifier,
		Mode:         mode,
		CallbackURL:  callbackURL,
		CreatedAt:    time.Now(),
	})

	logging.Debug("OAuth", "Initiated login attempt mode=%s", mode)

	if isCLI {
		writeJSON(w, http.StatusOK, LoginResponse{LoginURL: &authURL, LoginID: loginID})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleDevLogin short-circuits the flow with the fixed development
// credential. No registry entry is created and no network call is made.
func (h *Handler) handleDevLogin(w http.ResponseWriter, r *http.Request, isCLI bool) {
	if isCLI {
		writeJSON(w, http.StatusOK, LoginResponse{LoginURL: nil, LoginID: DevLoginID})
		return
	}
	h.setSessionCookie(w, DevToken)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) loginError(w http.ResponseWriter, isCLI bool, err error) {
	logging.Error("OAuth", err, "Failed to initiate login")
	if isCLI {
		writeJSONError(w, http.StatusBadGateway, "failed to initiate login")
		return
	}
	renderHTML(w, http.StatusBadGateway, renderErrorPage("Could not reach the identity provider."))
}

// HandleCallback receives the IdP redirect. The state parameter must match
// a pending login; the pending record is consumed exactly once regardless
// of outcome, so a replayed state is rejected before any exchange.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if errParam := query.Get("error"); errParam != "" {
		logging.Warn("OAuth", "Callback returned IdP error: %s - %s", errParam, query.Get("error_description"))
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	if code == "" || state == "" {
		logging.Warn("OAuth", "Callback missing code or state parameter")
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	pending := h.states.Consume(state)
	if pending == nil {
		// Unknown, already consumed, or expired. Either a replay or a
		// forged state; both end the attempt here.
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	token, err := h.idp.Exchange(r.Context(), code, pending.CodeVerifier)
	if err != nil {
		logging.Warn("OAuth", "Code exchange failed: %v", err)
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	// The mode was fixed at initiation and travels with the consumed
	// state, never inferred from the callback request.
	switch pending.Mode {
	case ModeCLI:
		h.tokens.Put(pending.ID, token)
		http.Redirect(w, r, h.basePath+"/cli-complete", http.StatusFound)

	case ModePasscode:
		h.completePasscode(w, r, pending, token)

	default: // ModeBrowser
		h.setSessionCookie(w, token)
		http.Redirect(w, r, "/", http.StatusFound)
	}

	logging.Info("OAuth", "Login completed mode=%s", pending.Mode)
}

// completePasscode stores the token under a fresh one-time passcode and
// redirects the browser to the third-party callback carrying the passcode.
func (h *Handler) completePasscode(w http.ResponseWriter, r *http.Request, pending *PendingLogin, token string) {
	passcode, err := GeneratePasscode()
	if err != nil {
		logging.Error("OAuth", err, "Failed to generate passcode")
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	if err := h.passcodes.Put(r.Context(), passcode, token); err != nil {
		logging.Error("OAuth", err, "Failed to store passcode")
		http.Redirect(w, r, loginPath, http.StatusFound)
		return
	}

	callbackURL := pending.CallbackURL
	delimiter := "?"
	if strings.Contains(callbackURL, "?") {
		delimiter = "&"
	}
	http.Redirect(w, r, callbackURL+delimiter+"passcode="+url.QueryEscape(passcode), http.StatusFound)
}

// HandlePollToken is the CLI poll endpoint. The first successful read pops
// the pending token; later polls for the same id see not-found. The
// development login id always yields the fixed development token without
// touching the registry.
func (h *Handler) HandlePollToken(w http.ResponseWriter, r *http.Request) {
	loginID := r.URL.Query().Get("login_id")
	if loginID == "" {
		writeJSONError(w, http.StatusBadRequest, "login_id is required")
		return
	}

	if loginID == DevLoginID && !h.idp.Enabled() {
		writeJSON(w, http.StatusOK, TokenResponse{Token: DevToken})
		return
	}

	token, ok := h.tokens.Pop(loginID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "token not found or expired")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleTokenByPasscode redeems a one-time passcode for its token.
func (h *Handler) HandleTokenByPasscode(w http.ResponseWriter, r *http.Request) {
	passcode := r.URL.Query().Get("passcode")
	if passcode == "" {
		writeJSONError(w, http.StatusBadRequest, "passcode is required")
		return
	}

	if passcode == DevLoginID && !h.idp.Enabled() {
		writeJSON(w, http.StatusOK, TokenResponse{Token: DevToken})
		return
	}

	token, err := h.passcodes.Pop(r.Context(), passcode)
	if errors.Is(err, ErrPasscodeNotFound) {
		writeJSONError(w, http.StatusNotFound, "token not found or expired")
		return
	}
	if err != nil {
		logging.Error("OAuth", err, "Failed to redeem passcode")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleDisplayPasscode renders the one-time passcode page.
func (h *Handler) HandleDisplayPasscode(w http.ResponseWriter, r *http.Request) {
	passcode := r.URL.Query().Get("passcode")
	renderHTML(w, http.StatusOK, renderPasscodePage(passcode, h.passcodeTTL))
}

// HandleCLIComplete renders the completion notice after a CLI login.
func (h *Handler) HandleCLIComplete(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusOK, renderCompletionPage())
}

// HandleProtectedResourceMetadata serves the static RFC 9728 document
// describing this server and its authorization server.
func (h *Handler) HandleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	metadata := ProtectedResourceMetadata{
		Resource:      h.publicURL,
		BearerMethods: []string{"header"},
	}
	if h.issuer != "" {
		metadata.AuthorizationServers = []string{h.issuer}
	}
	writeJSON(w, http.StatusOK, metadata)
}

// Stop stops the background goroutines of the registries owned by the
// handshake.
func (h *Handler) Stop() {
	h.states.Stop()
	h.tokens.Stop()
	h.passcodes.Stop()
}

// setSessionCookie sets the browser session credential. The cookie is
// http-only and scoped to the site; Secure is set unless the deployment
// is plain-HTTP localhost.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.publicURL, "https://"),
		SameSite: http.SameSiteStrictMode,
	})
}

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

func renderHTML(w http.ResponseWriter, status int, body string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
