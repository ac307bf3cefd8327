package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/International-Combat-Archery-Alliance/middleware"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/google/uuid"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/rs/cors"
)

const requestIdHeader = "X-Request-Id"

// useMiddlewares wraps h so the last middleware given runs first.
func useMiddlewares(h http.Handler, middlewares ...middleware.MiddlewareFunc) http.Handler {
	s := h

	for _, mw := range middlewares {
		s = mw(s)
	}

	return s
}

func (a *API) requestContextMiddleware() middleware.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestId := uuid.New()
			if fromHeader, err := uuid.Parse(r.Header.Get(requestIdHeader)); err == nil {
				requestId = fromHeader
			}
			w.Header().Set(requestIdHeader, requestId.String())

			logger := a.logger.With(slog.String("request-id", requestId.String()))

			ctx := ctxWithRequestId(r.Context(), requestId)
			ctx = ctxWithLogger(ctx, logger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *API) loggingMiddleware() middleware.MiddlewareFunc {
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

func (a *API) openapiValidateMiddleware(swagger *openapi3.T) middleware.MiddlewareFunc {
	return oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapimiddleware.Options{
		ErrorHandlerWithOpts: func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, opts oapimiddleware.ErrorHandlerOpts) {
			var e Error

			var requestErr *openapi3filter.RequestError
			var secErr *openapi3filter.SecurityRequirementsError
			if errors.As(err, &requestErr) {
				e = Error{
					Message: requestErr.Error(),
					Code:    InputValidationError,
				}
			} else if errors.As(err, &secErr) {
				e = Error{
					Message: err.Error(),
					Code:    AuthError,
				}
			} else if opts.StatusCode == http.StatusNotFound {
				e = Error{
					Message: "Route not found",
					Code:    NotFound,
				}
			} else {
				e = Error{
					Message: err.Error(),
					Code:    InternalError,
				}
			}

			a.writeJSON(w, r, opts.StatusCode, e)
		},
	})
}

func (a *API) corsMiddleware() middleware.MiddlewareFunc {
	var serverCors *cors.Cors

	switch a.env {
	case PROD:
		serverCors = cors.New(cors.Options{
			AllowedOrigins:   a.allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Content-Type", "Authorization", requestIdHeader},
			AllowCredentials: true,
			MaxAge:           300,
		})
	default:
		serverCors = cors.AllowAll()
	}

	return serverCors.Handler
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		a.getLoggerOrBaseLogger(r.Context()).Error("failed to marshal response", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		jsonBody = []byte(`{"error": "Internal server error", "code": "InternalError"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBody)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	a.writeJSON(w, r, status, Error{Message: message, Code: code})
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
