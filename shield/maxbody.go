package shield

import "net/http"

// DefaultMaxBody caps API request bodies at 64 KiB. Sheet registrations and
// process requests are a few hundred bytes.
const DefaultMaxBody int64 = 64 * 1024

// MaxBody returns middleware that limits every request body to maxBytes.
// Reads past the limit fail and the handler answers 400.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
