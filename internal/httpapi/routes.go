package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Directory Directory
	// WS upgrades /ws; nil leaves the route out.
	WS http.Handler
	// Unlocker backs DELETE /api/sync/locks/*; nil leaves the route out.
	Unlocker Unlocker
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	if d.WS != nil {
		r.Get("/ws", d.WS.ServeHTTP)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/clients", ListClients(d.Directory))
		r.Get("/terminals/{terminalID}/clients", ListTerminalClients(d.Directory))
		r.Get("/locks", ListLocks(d.Directory))
		if d.Unlocker != nil {
			r.Delete("/locks/*", ForceUnlock(d.Unlocker))
		}
	})
	return r
}
