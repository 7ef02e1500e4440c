package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy describes which browser origins may call the API. Methods and
// headers left empty default to the verbs and headers the versioned API
// actually uses, so most deployments only configure origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

const (
	defaultAllowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	defaultAllowedHeaders = "Authorization, Content-Type"
)

// WithCORS answers preflights and stamps response headers for allowed
// origins. With no configured origins it is a no-op, which is the correct
// posture when the API sits behind a same-origin reverse proxy.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := cleanList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	methods := strings.Join(cleanList(cfg.AllowedMethods), ", ")
	if methods == "" {
		methods = defaultAllowedMethods
	}
	headers := strings.Join(cleanList(cfg.AllowedHeaders), ", ")
	if headers == "" {
		headers = defaultAllowedHeaders
	}
	var maxAge string
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			allow := resolveOrigin(r.Header.Get("Origin"), origins, cfg.AllowCredentials)
			if allow == "" {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allow)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveOrigin returns the Allow-Origin value to emit, or "" when the
// request origin is not allowed. A wildcard entry echoes the caller's origin
// when credentials are allowed; the header may not be "*" in that mode.
func resolveOrigin(origin string, allowed []string, credentials bool) string {
	if origin == "" {
		return ""
	}
	for _, candidate := range allowed {
		switch {
		case candidate == "*" && credentials:
			return origin
		case candidate == "*":
			return "*"
		case strings.EqualFold(candidate, origin):
			return origin
		}
	}
	return ""
}

func cleanList(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
