package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the resume
// backend API.
//
// Routes:
//
//	GET  /api/health                           → liveness, also the client's connectivity probe
//	POST /api/register                         → authHandler.Register
//	POST /api/login                            → authHandler.Login
//	GET  /api/session                          → authHandler.Session (auth)
//	GET  /api/profile/{id}                     → profileHandler.Get (auth)
//	PATCH /api/profile/{id}                    → profileHandler.Update (auth)
//	GET  /api/resumes/{id}/sections            → sectionHandler.List (auth)
//	GET  /api/resumes/{id}/sections/{type}     → sectionHandler.Get (auth)
//	PUT  /api/resumes/{id}/sections/{type}     → sectionHandler.Upsert (auth)
//	DELETE /api/resumes/{id}/sections/{type}   → sectionHandler.Delete (auth)
//	GET  /api/resumes/{id}/changes             → changeHub.Serve (auth, websocket)
func NewRouter(
	authHandler *AuthHandler,
	profileHandler *ProfileHandler,
	sectionHandler *SectionHandler,
	changeHub *ChangeHub,
	jwtSecret string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Head("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Protected group: requires a valid bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtSecret))

			r.Get("/session", authHandler.Session)
			r.Get("/profile/{id}", profileHandler.Get)
			r.Patch("/profile/{id}", profileHandler.Update)

			r.Route("/resumes/{id}", func(r chi.Router) {
				r.Get("/sections", sectionHandler.List)
				r.Get("/sections/{type}", sectionHandler.Get)
				r.Put("/sections/{type}", sectionHandler.Upsert)
				r.Delete("/sections/{type}", sectionHandler.Delete)
				r.Get("/changes", changeHub.Serve)
			})
		})
	})

	return r
}
