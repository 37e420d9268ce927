package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/mw"
)

func init() {
	Register(Group{Name: "health", Mount: registerHealth})
	Register(Group{
		Name:    "history",
		Mount:   registerHistory,
		Enabled: func(d deps.Deps) bool { return d.History != nil },
	})
}

func registerHealth(r chi.Router, d deps.Deps) {
	read := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	read.Get("/api/health", handlers.Health(d))
}

func registerHistory(r chi.Router, d deps.Deps) {
	read := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	read.Get("/api/health/history", handlers.HealthHistory(d))
	read.Get("/api/alerts", handlers.Alerts(d))
}
