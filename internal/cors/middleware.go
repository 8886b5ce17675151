package cors

import (
	"log/slog"
	"net/http"
)

const (
	headerOrigin        = "Origin"
	headerRequestMethod = "Access-Control-Request-Method"
	headerAllowOrigin   = "Access-Control-Allow-Origin"
	headerAllowCreds    = "Access-Control-Allow-Credentials"
	headerAllowMethods  = "Access-Control-Allow-Methods"
	headerAllowHeaders  = "Access-Control-Allow-Headers"
	headerExposeHeaders = "Access-Control-Expose-Headers"
	headerMaxAge        = "Access-Control-Max-Age"
)

// IsPreflight reports whether r asks for cross-origin permission.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get(headerRequestMethod) != ""
}

// Middleware applies policy to every response. Every OPTIONS request is
// answered here with 204 when allowed and 403 when denied; only preflights
// get the Allow-Methods, Allow-Headers and Max-Age headers. Other requests
// always reach next; a denied origin only loses the CORS response headers.
func Middleware(policy *Policy, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get(headerOrigin)
			decision := policy.Evaluate(origin)

			h := w.Header()
			h.Add("Vary", headerOrigin)

			if origin != "" {
				switch {
				case !decision.Allowed:
					logger.Warn("Origin not allowed",
						slog.String("origin", origin),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path))
				case !decision.Listed:
					logger.Warn("Allowing unlisted origin",
						slog.String("origin", origin),
						slog.String("mode", string(policy.mode)))
				}
			}

			if decision.AllowedOrigin != "" {
				h.Set(headerAllowOrigin, decision.AllowedOrigin)
				if policy.credentials {
					h.Set(headerAllowCreds, "true")
				}
				if policy.exposed != "" {
					h.Set(headerExposeHeaders, policy.exposed)
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			if IsPreflight(r) {
				h.Add("Vary", headerRequestMethod)
				if policy.methods != "" {
					h.Set(headerAllowMethods, policy.methods)
				}
				if policy.headers != "" {
					h.Set(headerAllowHeaders, policy.headers)
				}
				if policy.maxAge != "" {
					h.Set(headerMaxAge, policy.maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
