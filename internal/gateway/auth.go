package gateway

import (
	"crypto/subtle"
	"net/http"
)

// requireAuth wraps next with an API-key check: the x-api-key header
// must equal the configured secret via a constant-time comparison; a
// missing or mismatched key yields 401.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get("x-api-key")
		if !apiKeyMatches(g.cfg.APIKey, supplied) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "")
			return
		}
		next(w, r)
	}
}

func apiKeyMatches(expected, supplied string) bool {
	if expected == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
