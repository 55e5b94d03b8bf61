// Package middleware provides HTTP middleware for the junrei API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/junrei/internal/identity"
)

// CORSOptions configures the CORS middleware.
type CORSOptions struct {
	// AllowedOrigins may contain "*". Credentials are only allowed for
	// origins listed explicitly.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is how long browsers may cache a preflight, in seconds.
	MaxAge int
}

// DefaultCORSOptions allows the dialogue API's methods and headers for the
// given origins.
func DefaultCORSOptions(origins ...string) CORSOptions {
	return CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", identity.SessionHeaderName},
		MaxAge:         600,
	}
}

// CORS returns middleware that handles CORS headers for the given origins
// using the default methods and headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return CORSWithOptions(DefaultCORSOptions(allowedOrigins...))
}

// CORSWithOptions returns middleware that handles CORS headers.
func CORSWithOptions(opts CORSOptions) func(http.Handler) http.Handler {
	methods := strings.Join(opts.AllowedMethods, ", ")
	headers := strings.Join(opts.AllowedHeaders, ", ")
	maxAge := ""
	if opts.MaxAge > 0 {
		maxAge = strconv.Itoa(opts.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if allowed, explicit := matchOrigin(opts.AllowedOrigins, origin); allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				// A wildcard-echoed origin with credentials enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if maxAge != "" && r.Method == http.MethodOptions {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed and whether it was listed
// explicitly rather than matched by "*".
func matchOrigin(allowedOrigins []string, origin string) (allowed, explicit bool) {
	if origin == "" {
		return false, false
	}
	for _, o := range allowedOrigins {
		if o == origin {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return allowed, false
}
