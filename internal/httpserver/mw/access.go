package mw

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/MrSnakeDoc/sentinel/internal/utils"
)

// AllowOnlyCIDRS restricts the operator API to the given prefixes and
// addresses. An empty list disables the filter.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	set, invalid := utils.ParseAddrSet(allowed)
	if len(invalid) > 0 {
		log.Warn("ignoring invalid allowed CIDRs", logger.Strings("entries", invalid))
	}
	if set.Empty() {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := utils.ClientAddr(r, trustProxy)
			if !ok || !set.Contains(addr) {
				log.Warn("request rejected by address filter",
					logger.String("remote_ip", utils.ClientIP(r, trustProxy)),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path))
				deny(w, http.StatusForbidden, "client address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnforceHost guards mutating endpoints against requests addressed to an
// unexpected Host. Patterns are exact names or "*.domain"; the port and
// letter case are ignored. An empty list disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return passthrough
	}
	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		patterns = append(patterns, strings.ToLower(strings.TrimSpace(h)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := hostOnly(r.Host)
			for _, p := range patterns {
				if matchHost(host, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Warn("request rejected by host filter",
				logger.String("host", r.Host),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path))
			deny(w, http.StatusForbidden, "host not allowed")
		})
	}
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		hostport = h
	}
	return strings.ToLower(hostport)
}

// matchHost does not let "*.example.com" match the apex itself.
func matchHost(host, pattern string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	}
	return host == pattern
}
