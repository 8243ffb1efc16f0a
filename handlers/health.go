package handlers

import (
	"net/http"
	"time"
)

// Health reports liveness. Mounted outside the auth middleware so load
// balancers can probe it.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
