package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

type readyzResponse struct {
	Ready      bool              `json:"ready"`
	Components map[string]string `json:"components"`
}

func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: true, Components: map[string]string{}}

		if err := d.Supervisor.Ready(); err != nil {
			resp.Ready = false
			resp.Components["supervisor"] = err.Error()
		} else {
			resp.Components["supervisor"] = "ok"
		}

		if d.History != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.History.Ping(ctx); err != nil {
				d.Logger.Warn("readiness: redis unreachable", logger.Error(err))
				resp.Ready = false
				resp.Components["redis"] = "unreachable"
			} else {
				resp.Components["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
