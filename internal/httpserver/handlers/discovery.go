package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

type discoveryResponse struct {
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}

// Discovery queues an immediate discovery cycle.
func Discovery(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.DiscoveryTrigger == nil {
			writeError(w, http.StatusServiceUnavailable, "discovery disabled")
			return
		}

		if !d.DiscoveryTrigger() {
			d.Logger.Warn("discovery already queued",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, discoveryResponse{
				Queued:  false,
				Message: "discovery already queued, please wait",
			})
			return
		}

		d.Logger.Info("manual discovery triggered via endpoint",
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, http.StatusAccepted, discoveryResponse{
			Queued:  true,
			Message: "discovery cycle queued",
		})
	}
}
