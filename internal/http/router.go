package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-ha/srun-guard/internal/http/handlers"
)

// requestTimeout covers a manual login plus the status refresh after it.
const requestTimeout = 20 * time.Second

// NewRouter builds the HTTP routing tree for the control API.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(RequestLogger(api))

	// Long-lived stream, outside the request timeout.
	r.Get("/api/ws", api.Events)

	r.Group(func(timed chi.Router) {
		timed.Use(middleware.Timeout(requestTimeout))

		timed.Get("/healthz", api.Health)
		timed.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Get("/status", api.GetStatus)
			apiRouter.Post("/refresh", api.Refresh)
			apiRouter.Post("/login", api.Login)
			apiRouter.Post("/logout", api.Logout)

			apiRouter.Get("/settings", api.GetSettings)
			apiRouter.Put("/settings", api.PutSettings)
			apiRouter.Delete("/settings", api.DeleteSettings)

			apiRouter.Get("/profile", api.GetProfile)
			apiRouter.Get("/profiles", api.ListProfiles)

			apiRouter.Get("/history/status", api.ListStatusHistory)
			apiRouter.Get("/history/auth", api.ListAuthHistory)
		})
	})
	return r
}
