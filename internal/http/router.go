package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"memorybank/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Files  *handlers.FilesHandler
	Search *handlers.SearchHandler
	Sync   *handlers.SyncHandler
	Health *handlers.HealthHandler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/files", deps.Files.Create)
		r.Get("/files", deps.Files.List)
		r.Get("/dirs", deps.Files.ListDirectories)
		r.Delete("/dir", deps.Files.DeleteDirectory)

		r.Get("/file", deps.Files.Read)
		r.Put("/file", deps.Files.Replace)
		r.Delete("/file", deps.Files.Delete)
		r.Post("/file/append", deps.Files.Append)
		r.Get("/file/exists", deps.Files.Exists)
		r.Post("/file/patch", deps.Files.Patch)

		r.Method(http.MethodGet, "/search", deps.Search)
		r.Post("/refresh", deps.Sync.Refresh)
	})

	r.Method(http.MethodGet, "/health", deps.Health)

	return r
}
