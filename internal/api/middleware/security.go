package middleware

import "net/http"

// SecurityHeaders sets browser security headers on every response. The
// control API serves JSON over loopback HTTP and never renders HTML, so
// the policy is blanket-deny: no resource loading, no framing, no HSTS
// (there is no TLS endpoint for browsers to pin).
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		next.ServeHTTP(w, r)
	})
}
