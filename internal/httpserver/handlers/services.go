package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

type serviceView struct {
	domain.ServiceSnapshot
	LastError string `json:"last_error,omitempty"`
}

func viewOf(s domain.ServiceSnapshot) serviceView {
	return serviceView{ServiceSnapshot: s, LastError: s.Status.LastErrorMessage()}
}

type servicesResponse struct {
	Count    int           `json:"count"`
	Services []serviceView `json:"services"`
}

func ListServices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := d.Supervisor.GetServicesStatus()
		views := make([]serviceView, 0, len(snaps))
		for _, s := range snaps {
			views = append(views, viewOf(s))
		}
		writeJSON(w, http.StatusOK, servicesResponse{Count: len(views), Services: views})
	}
}

func GetService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := d.Supervisor.GetServiceStatus(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, viewOf(snap))
	}
}

// CheckService runs one health check now.
func CheckService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		snap, err := d.Supervisor.TriggerHealthCheck(r.Context(), name)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		d.Logger.Info("manual health check",
			logger.String("service", name),
			logger.String("status", string(snap.Status.HealthCheckStatus)),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, http.StatusOK, viewOf(snap))
	}
}

// RestartService restarts a service now, bypassing its restart policy.
func RestartService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		snap, err := d.Supervisor.TriggerRestart(r.Context(), name)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		d.Logger.Info("manual restart",
			logger.String("service", name),
			logger.Bool("is_running", snap.Status.IsRunning),
			logger.Int("restart_attempts", snap.Status.RestartAttempts),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, http.StatusOK, viewOf(snap))
	}
}

func UnregisterService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := d.Supervisor.Unregister(name); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		d.Logger.Info("service unregistered via endpoint",
			logger.String("service", name),
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusNoContent)
	}
}
