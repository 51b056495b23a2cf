package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Authorities checked by the admin routes.
const (
	AuthorityUserCreate = "USER_CREATE"
	AuthorityUserRead   = "USER_READ"
	AuthorityUserUpdate = "USER_UPDATE"
	AuthorityUserDelete = "USER_DELETE"
)

// Handler builds the router with all routes and middleware.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)
	r.Use(Authenticate(s.tokens, s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, codeRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, codeMethodNotAllowed)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
			r.With(RequireAuthenticated).Get("/me", s.handleMe)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(RequireAuthenticated)

			r.With(RequireAuthority(AuthorityUserCreate)).Post("/", s.handleCreateUser)
			r.With(RequireAuthority(AuthorityUserRead)).Get("/", s.handleListUsers)

			r.Route("/{userId}", func(r chi.Router) {
				r.With(RequireAuthority(AuthorityUserRead)).Get("/", s.handleGetUser)
				r.With(RequireAuthority(AuthorityUserUpdate)).Put("/", s.handleUpdateUser)
				r.With(RequireAuthority(AuthorityUserDelete)).Delete("/", s.handleDeleteUser)
				r.With(RequireAuthority(AuthorityUserUpdate)).Patch("/password", s.handleChangePassword)
				r.With(RequireAuthority(AuthorityUserUpdate)).Patch("/lock", s.handleLockUser)
				r.With(RequireAuthority(AuthorityUserUpdate)).Patch("/unlock", s.handleUnlockUser)
			})
		})
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "UP"})
}
