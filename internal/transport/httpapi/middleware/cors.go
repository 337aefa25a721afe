package middleware

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/cors"
)

// CORS allows the configured origins. With allowLocalhost set any
// http://localhost or 127.0.0.1 origin is accepted as well, whatever its
// port, so a local frontend dev server works without extra config.
func CORS(allowedOrigins []string, allowLocalhost bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			if slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin) {
				return true
			}
			return allowLocalhost && isLocalOrigin(origin)
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		// backup downloads name the file through Content-Disposition
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	})
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
