package middleware

import (
	"net/http"
	"os"

	"github.com/belfastbikes/belfastbikes/internal/api/models"
)

// ContentSecurityPolicy allows the bundled front end (same-origin scripts,
// styles and map tiles over https) and nothing else.
const ContentSecurityPolicy = "default-src 'self'; img-src 'self' data: https:; " +
	"style-src 'self' 'unsafe-inline' https:; script-src 'self' 'unsafe-inline' https:; " +
	"connect-src 'self'; frame-ancestors 'none'"

// SecurityHeaders adds standard security headers to all HTTP responses.
// Geolocation stays enabled for same-origin use so the app can find nearby stations.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy)
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(self), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS middleware enforces HTTPS connections.
// It checks the X-Forwarded-Proto header set by a fronting load balancer.
// Enable with REQUIRE_TLS=true environment variable.
func RequireTLS(next http.Handler) http.Handler {
	requireTLS := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requireTLS {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto != "" && proto != "https" {
				models.NewError(http.StatusForbidden, "TLS required", GetRequestID(r.Context())).
					WithDetail("This endpoint requires HTTPS").
					Write(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
