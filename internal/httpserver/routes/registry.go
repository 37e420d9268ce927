package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// Group is one area of the API, added from an init func of its own file.
type Group struct {
	Name  string
	Mount func(r chi.Router, d deps.Deps)
	// Enabled skips the group when its collaborator is not wired. Nil means always.
	Enabled func(d deps.Deps) bool
}

var groups []Group

func Register(g Group) {
	groups = append(groups, g)
}

// RegisterAll mounts every enabled group. Called once from NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	mounted := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.Enabled != nil && !g.Enabled(d) {
			continue
		}
		g.Mount(r, d)
		mounted = append(mounted, g.Name)
	}
	if d.Logger != nil {
		d.Logger.Debug("routes mounted", logger.Strings("groups", mounted))
	}
}
