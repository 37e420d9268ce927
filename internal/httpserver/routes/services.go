package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/mw"
)

func init() {
	Register(Group{Name: "services", Mount: registerServices})
}

func registerServices(r chi.Router, d deps.Deps) {
	read := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	read.Get("/api/services", handlers.ListServices(d))
	read.Get("/api/services/{name}", handlers.GetService(d))

	write := read.With(
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.TriggerLimit(d.TriggerRate, d.TrustProxy, d.Logger),
	)
	write.Post("/api/services/{name}/check", handlers.CheckService(d))
	write.Post("/api/services/{name}/restart", handlers.RestartService(d))
	write.Delete("/api/services/{name}", handlers.UnregisterService(d))
}
