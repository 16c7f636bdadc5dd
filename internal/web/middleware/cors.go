package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/kozaktomas/reunite/internal/constants"
)

var corsHeaders = strings.Join([]string{
	"Accept", "Content-Type", "X-Requested-With", constants.HandlerHeader, constants.CameraHeader,
}, ", ")

// originPolicy decides which browser origins may read API responses.
type originPolicy struct {
	exact     map[string]struct{}
	localhost bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case strings.EqualFold(o, "localhost"):
			p.localhost = true
		default:
			p.exact[o] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if !p.localhost {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return u.Hostname() == "localhost" && u.Path == ""
}

// CORS grants the configured origins access to the API. Requests from other
// origins are still served, they just do not receive the allow headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(origins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin := r.Header.Get("Origin"); policy.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders marks every response as non-renderable, non-framable and
// non-cacheable. Alert payloads carry personal data.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
