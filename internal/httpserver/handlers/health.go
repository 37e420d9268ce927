package handlers

import (
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Health returns the last aggregate result, running one if none exists.
func Health(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := d.Health.Last()
		if result == nil {
			result = d.Health.PerformHealthCheck(r.Context())
		}
		status := http.StatusOK
		if result.Status == domain.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	}
}

type historyResponse struct {
	Count   int                         `json:"count"`
	Results []*domain.HealthCheckResult `json:"results"`
}

func HealthHistory(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		results, err := d.History.RecentResults(r.Context(), limit)
		if err != nil {
			d.Logger.Warn("failed to read health history", logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{Count: len(results), Results: results})
	}
}

type alertsResponse struct {
	Count  int             `json:"count"`
	Alerts []*domain.Alert `json:"alerts"`
}

func Alerts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		alerts, err := d.History.RecentAlerts(r.Context(), limit)
		if err != nil {
			d.Logger.Warn("failed to read alert history", logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "alert history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, alertsResponse{Count: len(alerts), Alerts: alerts})
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxHistoryLimit), true
}
