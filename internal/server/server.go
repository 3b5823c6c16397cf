package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"hive/internal/config"
	"hive/internal/oauth"
	"hive/internal/user"
	"hive/pkg/logging"
)

// Server is the platform HTTP server: the login handshake surface plus the
// authenticated API behind the gate.
type Server struct {
	cfg   *config.Config
	auth  *oauth.Handler
	gate  *Gate
	users *user.Store

	httpServer *http.Server
}

// New assembles the server from its wired components.
func New(cfg *config.Config, auth *oauth.Handler, gate *Gate, users *user.Store) *Server {
	s := &Server{
		cfg:   cfg,
		auth:  auth,
		gate:  gate,
		users: users,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// router builds the route tree. The gate sits in front of everything; its
// exempt list carves out the handshake surface.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(s.gate.Middleware)

	r.Get("/healthcheck", s.handleHealthcheck)
	r.Get("/.well-known/oauth-protected-resource", s.auth.HandleProtectedResourceMetadata)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/login", s.auth.HandleLogin)
		r.Get("/auth/callback", s.auth.HandleCallback)
		r.Get("/cli-complete", s.auth.HandleCLIComplete)
		r.Get("/cli/token", s.auth.HandlePollToken)
		r.Get("/token", s.auth.HandleTokenByPasscode)
		r.Get("/display-passcode", s.auth.HandleDisplayPasscode)

		r.Get("/me", s.handleMe)

		r.With(RequireContext("contextID")).Get("/contexts/{contextID}/me", s.handleMe)

		r.With(RequirePermission(user.PermissionManage)).Get("/users", s.handleListUsers)
	})

	return r
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Listening on %s", s.cfg.Server.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logging.Info("Server", "Shutting down")
	s.auth.Stop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the authenticated caller's user record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFrom(r.Context())
	if identity == nil {
		writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}
	writeJSON(w, http.StatusOK, identity.User)
}

// handleListUsers is admin-only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		logging.Error("Server", err, "Failed to list users")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
