package supervisor

import (
	"encoding/json"
	"net/http"

	"github.com/comfyendpoints/runtime/internal/resolver"
)

// degradedHandler serves failure verbatim on /run and
// /artifact-resolver/error (503, the resolver's FailureError body) and a
// 503 {"ok": false, ...} envelope on /healthz: once the resolver fails,
// the process stays up just long enough to report why.
func degradedHandler(failure *resolver.FailureError) http.Handler {
	mux := http.NewServeMux()

	body, _ := json.Marshal(failure)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":      false,
			"status":  failure.Status,
			"stage":   failure.Stage,
			"message": failure.Message,
		})
	})

	serveFailure := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(body)
	}
	mux.HandleFunc("POST /run", serveFailure)
	mux.HandleFunc("GET /artifact-resolver/error", serveFailure)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		serveFailure(w, r)
	})

	return mux
}
