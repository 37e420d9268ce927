package mw

import (
	"encoding/json"
	"net/http"
)

// deny writes the same {"error": ...} body the API handlers use.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{msg})
}

func passthrough(next http.Handler) http.Handler { return next }
