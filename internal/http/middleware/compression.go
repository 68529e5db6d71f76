package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForMedia wraps a compression middleware and bypasses
// it for segment delivery. MPEG-TS payloads do not compress and the
// extra buffering hurts time-to-first-byte on playback.
func SkipCompressionForMedia(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "/videos/segments/") || strings.HasSuffix(r.URL.Path, ".ts") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
