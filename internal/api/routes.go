package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"imagegate/internal/models"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/health" &&
					r.Method != http.MethodOptions
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	// mux skips router middleware for the 404 and 405 handlers, so they get
	// the same chain minus tracing wrapped around them directly.
	fallback := []mux.MiddlewareFunc{requestIDMiddleware}
	if config.Server.CORS.Enabled {
		cors := corsMiddleware(config.Server.CORS)
		router.Use(cors)
		fallback = append(fallback, cors)
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)
	fallback = append(fallback, loggingMiddleware, recoveryMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/generate", handlers.Generate).Methods(http.MethodPost)
	api.HandleFunc("/edit", handlers.Edit).Methods(http.MethodPost)
	api.HandleFunc("/quota", handlers.QuotaStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Preflight on every known path. With CORS enabled the middleware
	// answers first and adds the Access-Control headers.
	for _, path := range []string{"/api/generate", "/api/edit", "/api/quota", "/api/health", "/health"} {
		router.HandleFunc(path, preflightHandler).Methods(http.MethodOptions)
	}

	router.MethodNotAllowedHandler = wrap(http.HandlerFunc(methodNotAllowedHandler), fallback)
	router.NotFoundHandler = wrap(http.HandlerFunc(notFoundHandler), fallback)

	return router
}

// wrap applies middleware so that the first entry runs outermost.
func wrap(h http.Handler, middleware []mux.MiddlewareFunc) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

func preflightHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Not found")
}
