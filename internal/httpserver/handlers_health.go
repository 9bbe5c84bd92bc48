package httpserver

import (
	"net/http"
	"time"
)

// health reports liveness and uptime. It deliberately doesn't probe the
// persistence backend: a database blip shouldn't flip a load balancer's
// health check, only the requests that actually touch it should fail.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    now.Sub(serverStartTime).String(),
		"timestamp": now.UTC(),
	})
}
