package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/google/uuid"
	middleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/rs/cors"
)

const (
	requestIdHeader  = "X-Request-Id"
	adminTokenHeader = "X-Admin-Token"
)

type middlewareFunc func(next http.Handler) http.Handler

// requestIdMiddleware tags the request with an id, echoed back in the
// response, and stores a logger carrying it in the context.
func (a *API) requestIdMiddleware() middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestId, err := uuid.Parse(r.Header.Get(requestIdHeader))
			if err != nil {
				requestId = uuid.New()
			}
			w.Header().Set(requestIdHeader, requestId.String())

			ctx := ctxWithRequestId(r.Context(), requestId)
			ctx = ctxWithLogger(ctx, a.logger.With(slog.String("requestId", requestId.String())))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *API) loggingMiddleware() middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			loggingRW := newLoggingResponseWriter(w)

			// process the request
			next.ServeHTTP(loggingRW, r)

			a.getLoggerOrBaseLogger(r.Context()).InfoContext(r.Context(),
				"Access log",
				slog.String("latency", formatDuration(time.Since(start))),
				slog.Int64("request-content-length", r.ContentLength),
				slog.Int("resp-body-size", loggingRW.responseSize),
				slog.String("host", r.Host),
				slog.String("method", r.Method),
				slog.Int("status-code", loggingRW.statusCode),
				slog.String("path", r.URL.Path),
			)
		})
	}
}

func (a *API) recoverMiddleware() middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				a.getLoggerOrBaseLogger(r.Context()).ErrorContext(r.Context(), "Recovered from panic in handler",
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Something went wrong"})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) openapiValidateMiddleware(swagger *openapi3.T) middlewareFunc {
	return middleware.OapiRequestValidatorWithOptions(swagger, &middleware.Options{
		ErrorHandlerWithOpts: func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, opts middleware.ErrorHandlerOpts) {
			var message string

			var requestErr *openapi3filter.RequestError
			var secErr *openapi3filter.SecurityRequirementsError
			if errors.As(err, &requestErr) {
				message = "Invalid request: " + requestErr.Error()
			} else if errors.As(err, &secErr) {
				message = "Not authorized"
			} else if opts.StatusCode == http.StatusNotFound {
				message = "Not found"
			} else {
				message = "Invalid request"
			}

			a.getLoggerOrBaseLogger(r.Context()).Warn("Request failed openapi validation", slog.String("error", err.Error()), slog.Int("status-code", opts.StatusCode))
			writeJSON(w, opts.StatusCode, errorResponse{Message: message})
		},
	})
}

func (a *API) corsMiddleware() middlewareFunc {
	var serverCors *cors.Cors

	switch a.env {
	case PROD:
		serverCors = cors.New(cors.Options{
			AllowedOrigins: a.settings.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", requestIdHeader},
			MaxAge:         300,
		})
	default:
		serverCors = cors.AllowAll()
	}

	return serverCors.Handler
}

// adminTokenMiddleware guards operator endpoints with a shared token. With no
// token configured the endpoints do not exist.
func (a *API) adminTokenMiddleware() middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.settings.AdminToken == "" {
				writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
				return
			}

			token := r.Header.Get(adminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(a.settings.AdminToken)) != 1 {
				a.getLoggerOrBaseLogger(r.Context()).Warn("Admin token mismatch", slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Admin token required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// formatDuration formats a duration to one decimal point.
func formatDuration(d time.Duration) string {
	div := time.Duration(10)
	switch {
	case d > time.Second:
		d = d.Round(time.Second / div)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond / div)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond / div)
	case d > time.Nanosecond:
		d = d.Round(time.Nanosecond / div)
	}
	return d.String()
}
