package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/mw"
)

func init() {
	Register(Group{
		Name:    "metrics",
		Mount:   registerMetrics,
		Enabled: func(d deps.Deps) bool { return d.Metrics != nil },
	})
}

func registerMetrics(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Handle("/metrics", d.Metrics)
}
