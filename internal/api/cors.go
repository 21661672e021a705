package api

import (
	"net/http"
	"strings"
)

const corsAllowedMethods = "GET, POST, DELETE, OPTIONS"

// corsMiddleware answers preflight requests and sets Access-Control-Allow-Origin. allowed is
// "*" or a comma separated list of origins.
func corsMiddleware(allowed string) func(http.Handler) http.Handler {
	origins := map[string]struct{}{}
	wildcard := false
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowedOrigin := ""
			if wildcard {
				allowedOrigin = "*"
			} else if _, ok := origins[origin]; ok && origin != "" {
				allowedOrigin = origin
				w.Header().Add("Vary", "Origin")
			}
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowedOrigin != "" {
					w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
					headers := r.Header.Get("Access-Control-Request-Headers")
					if headers == "" {
						headers = "Content-Type"
					}
					w.Header().Set("Access-Control-Allow-Headers", headers)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
