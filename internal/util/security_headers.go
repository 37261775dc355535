package util

import (
	"net/http"
	"strings"
)

const contentSecurityPolicy = "default-src 'self'; img-src 'self' data:; connect-src 'self'; " +
	"form-action 'self'; object-src 'none'; frame-ancestors 'none'; base-uri 'none'"

var staticSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "same-origin"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Content-Security-Policy", contentSecurityPolicy},
}

// WithSecurityHeaders sets response headers for the server-rendered portal.
// Pages greet the guest by name, so everything outside /static/ is marked
// no-store to keep shared caches from serving one guest's page to another.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range staticSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		if !strings.HasPrefix(r.URL.Path, "/static/") {
			h.Set("Cache-Control", "no-store")
		}
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
