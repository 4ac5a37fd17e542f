package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appmw "go-classifieds-app/internal/middleware"
)

// NewRouter creates and configures the application router. Every
// business handler returns an error and is wrapped by the error
// middleware; authentication and authorization run for all routes.
func NewRouter(
	categories *CategoryHandler,
	ads *RecordHandler,
	companies *RecordHandler,
	identityMiddleware func(http.Handler) http.Handler,
	authzMiddleware func(http.Handler) http.Handler,
	errors func(appmw.AppHandler) http.Handler,
	registry *prometheus.Registry,
) *chi.Mux {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(identityMiddleware)
	r.Use(authzMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/categories/{vertical}", func(r chi.Router) {
		r.Method(http.MethodGet, "/", errors(categories.allTreesHandler))
		r.Method(http.MethodPost, "/", errors(categories.createHandler))
		r.Method(http.MethodGet, "/{id}/tree", errors(categories.treeHandler))
		r.Method(http.MethodGet, "/{id}/children", errors(categories.childrenHandler))
		r.Method(http.MethodGet, "/{id}/fields", errors(categories.fieldsHandler))
		r.Method(http.MethodPut, "/{id}", errors(categories.updateHandler))
		r.Method(http.MethodDelete, "/{id}", errors(categories.deleteHandler))
	})

	mountRecords := func(r chi.Router, h *RecordHandler) {
		r.Method(http.MethodPost, "/", errors(h.createHandler))
		r.Method(http.MethodGet, "/mine", errors(h.mineHandler))
		r.Method(http.MethodPost, "/bulk", errors(h.bulkHandler))
		r.Method(http.MethodGet, "/{id}", errors(h.getHandler))
		r.Method(http.MethodPost, "/{id}/{action}", errors(h.transitionHandler))
		r.Method(http.MethodDelete, "/{id}", errors(h.deleteHandler))
	}

	r.Route("/ads", func(r chi.Router) { mountRecords(r, ads) })
	r.Route("/companies", func(r chi.Router) { mountRecords(r, companies) })

	// Moderation routes, restricted to privileged roles by policy.
	r.Route("/admin", func(r chi.Router) {
		r.Method(http.MethodGet, "/ads/owner/{ownerID}", errors(ads.ownerHandler))
		r.Method(http.MethodGet, "/companies/owner/{ownerID}", errors(companies.ownerHandler))
		r.Method(http.MethodPost, "/ads/{id}/{action}", errors(ads.transitionForHandler))
		r.Method(http.MethodPost, "/companies/{id}/{action}", errors(companies.transitionForHandler))
		r.Method(http.MethodPut, "/companies/{id}/verification", errors(companies.verificationHandler))
	})

	return r
}
