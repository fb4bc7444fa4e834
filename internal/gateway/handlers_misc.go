package gateway

import "net/http"

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleContract(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.cfg.Contract)
}
