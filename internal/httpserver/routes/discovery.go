package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/mw"
)

func init() {
	Register(Group{Name: "discovery", Mount: registerDiscovery})
}

func registerDiscovery(r chi.Router, d deps.Deps) {
	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.TriggerLimit(d.TriggerRate, d.TrustProxy, d.Logger),
	).Post("/api/discovery", handlers.Discovery(d))
}
