package http

import (
	"net/http"

	"github.com/atinyakov/swyppy/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler for the listing API. Browsing is
// public, auth endpoints take JSON, and every write requires an admin
// bearer token.
//
// Routes:
//
//	POST   /api/register           → authHandler.Register
//	POST   /api/login              → authHandler.Login
//	POST   /api/logout             → authHandler.Logout
//	GET    /api/listings           → listingHandler.List
//	GET    /api/listings/stats     → listingHandler.Stats
//	GET    /api/listings/{id}      → listingHandler.Get
//	POST   /api/listings           → listingHandler.Create (admin)
//	POST   /api/listings/refresh   → listingHandler.Refresh (admin)
//	PUT    /api/listings/{id}      → listingHandler.Update (admin)
//	DELETE /api/listings/{id}      → listingHandler.Delete (admin)
//	GET    /api/uploads/{jobId}    → listingHandler.UploadStatus (admin)
//
// Middleware chain (applied in order):
//  1. RequestID                  tags each request for the logs
//  2. WithRequestLogging(logger) logs incoming requests
//  3. TokenAuth + RequireRole    guard the admin group
func NewRouter(
	authHandler *AuthHandler,
	listingHandler *ListingHandler,
	secret []byte,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
		})

		r.Get("/listings", listingHandler.List)
		r.Get("/listings/stats", listingHandler.Stats)
		r.Get("/listings/{id}", listingHandler.Get)

		// Protected group: admin token required
		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(secret))
			r.Use(middleware.RequireRole("admin"))

			r.With(chiMiddleware.AllowContentType("multipart/form-data")).Post("/listings", listingHandler.Create)
			r.Post("/listings/refresh", listingHandler.Refresh)
			r.With(chiMiddleware.AllowContentType("multipart/form-data")).Put("/listings/{id}", listingHandler.Update)
			r.Delete("/listings/{id}", listingHandler.Delete)
			r.Get("/uploads/{jobId}", listingHandler.UploadStatus)
		})
	})

	return r
}
