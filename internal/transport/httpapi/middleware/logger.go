package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// maxCapturedBody bounds how much of an error response is kept for logging
const maxCapturedBody = 4 << 10

// errorBody records the body of 4xx/5xx responses so the log line can carry
// the error code the client saw.
type errorBody struct {
	chimiddleware.WrapResponseWriter
	buf bytes.Buffer
}

func (e *errorBody) Write(b []byte) (int, error) {
	if e.Status() >= http.StatusBadRequest && e.buf.Len() < maxCapturedBody {
		n := min(len(b), maxCapturedBody-e.buf.Len())
		e.buf.Write(b[:n])
	}
	return e.WrapResponseWriter.Write(b)
}

// parse pulls "error" and "code" out of an ErrorResponse body
func (e *errorBody) parse() (msg, code string) {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(e.buf.Bytes(), &body) != nil {
		return "", ""
	}
	return body.Error, body.Code
}

// Logger returns a request logging middleware. Probes under /health are
// logged at debug so they do not drown ledger traffic.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	log = logger.OrNop(log).WithComponent(logger.ComponentHTTP)
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			eb := &errorBody{WrapResponseWriter: chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)}
			start := time.Now()

			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, reqID))
			}

			defer func() {
				status := eb.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}

				l := log.WithContext(r.Context()).WithDuration(time.Since(start))
				attrs := []any{
					"method", r.Method,
					"route", route,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"status", status,
					"bytes", eb.BytesWritten(),
				}
				if status >= http.StatusBadRequest {
					if msg, code := eb.parse(); code != "" {
						attrs = append(attrs, "error", msg, "code", code)
					}
				}

				switch {
				case status >= http.StatusInternalServerError:
					l.Error("HTTP request", attrs...)
				case status >= http.StatusBadRequest:
					l.Warn("HTTP request", attrs...)
				case strings.HasPrefix(r.URL.Path, "/health"):
					l.Debug("HTTP request", attrs...)
				default:
					l.Info("HTTP request", attrs...)
				}
			}()

			next.ServeHTTP(eb, r)
		}
		return http.HandlerFunc(fn)
	}
}
