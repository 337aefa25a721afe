package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "github.com/kislikjeka/pocketledger/internal/shared/errors"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Recovery turns a handler panic into an INTERNAL_ERROR response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(log *logger.Logger) func(next http.Handler) http.Handler {
	log = logger.OrNop(log).WithComponent(logger.ComponentHTTP)
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				appErr := apperrors.Internal("internal server error", fmt.Errorf("%v", rec))
				log.WithContext(r.Context()).WithError(appErr).Error("Panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(appErr.HTTPStatus())
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": appErr.PublicMessage(),
					"code":  appErr.Code,
				})
			}()

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
