package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/MrSnakeDoc/sentinel/internal/utils"
)

// TriggerLimit caps mutating requests per client IP and minute.
// A non-positive limit disables it.
func TriggerLimit(perMinute int, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return passthrough
	}

	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return utils.ClientIP(r, trustProxy), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn("trigger rate limit exceeded",
				logger.String("remote_ip", utils.ClientIP(r, trustProxy)),
				logger.String("path", r.URL.Path))
			deny(w, http.StatusTooManyRequests, "too many manual triggers, retry later")
		}),
	)
}
