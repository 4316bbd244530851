package shield

import (
	"mime"
	"net/http"
)

// MaxJSONBody returns middleware that limits the request body size of
// application/json requests. Other content types are passed through; a
// decoder reading past the limit gets an *http.MaxBytesError.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
