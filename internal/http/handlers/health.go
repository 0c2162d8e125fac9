package handlers

import "net/http"

// Health is the liveness probe mounted at the root path.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
